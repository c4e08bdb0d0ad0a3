package barcode

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatPDF417
	FormatCode128
	FormatCode39
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

var formatNames = map[Format]string{
	FormatQR:         "qr",
	FormatDataMatrix: "datamatrix",
	FormatAztec:      "aztec",
	FormatPDF417:     "pdf417",
	FormatCode128:    "code128",
	FormatCode39:     "code39",
	FormatEAN8:       "ean8",
	FormatEAN13:      "ean13",
	FormatUPCA:       "upca",
	FormatUPCE:       "upce",
	FormatITF:        "itf",
	FormatCodabar:    "codabar",
}

// String returns the canonical lowercase name of the format.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseFormat converts a format name (as used in configuration files) into a Format.
func ParseFormat(name string) (Format, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == lower {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown barcode format: %q", name)
}

// ParseFormats converts a list of format names into a capability set.
// An empty input yields the full default capability set.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return DefaultFormats(), nil
	}
	out := make([]Format, 0, len(names))
	for _, name := range names {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// DefaultFormats returns the full set of supported symbologies.
func DefaultFormats() []Format {
	return []Format{
		FormatQR, FormatDataMatrix, FormatAztec, FormatPDF417,
		FormatCode128, FormatCode39, FormatEAN8, FormatEAN13,
		FormatUPCA, FormatUPCE, FormatITF, FormatCodabar,
	}
}

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search.
	// Empty means the full default capability set.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool

	// Multi enables multi-symbol detection in a single image.
	Multi bool
}

// Point is an integer point in image coordinates.
type Point struct {
	X int
	Y int
}

// Result represents a decoded barcode.
type Result struct {
	Type       Format
	Value      string
	Points     []Point         // Corner or key points if available
	BBox       image.Rectangle // Bounding box if derivable from points
	Confidence float64         // -1 if not provided by backend
}

// Backend is a pluggable barcode decoder implementation.
//
// Decode returns the symbols it could read; an image without any decodable
// symbol yields an empty slice and no error. Errors indicate the backend
// itself failed, not that no barcode was present.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

func rectFromPoints(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
