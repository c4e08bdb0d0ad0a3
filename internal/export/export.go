// Package export writes finished documents to disk in the supported
// output formats and produces the search-index sidecar.
package export

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/tiff"
)

// Format is a supported output file format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatTIFF Format = "tiff"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat normalizes a format name from configuration.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pdf":
		return FormatPDF, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", name)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatPDF:
		return ".pdf"
	case FormatTIFF:
		return ".tiff"
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	default:
		return ""
	}
}

// MultiPage reports whether the format holds all pages in one file.
// JPEG, PNG and TIFF write one file per page with a numbered suffix.
func (f Format) MultiPage() bool { return f == FormatPDF }

// Write exports the ordered pages under basePath (path without extension).
// It returns the paths written, primary artifact first.
func Write(ctx context.Context, basePath string, format Format, pages []image.Image) ([]string, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to export")
	}
	if format == FormatPDF {
		path, err := writePDF(ctx, basePath+format.Ext(), pages)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	paths := make([]string, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		path := basePath + format.Ext()
		if len(pages) > 1 {
			path = fmt.Sprintf("%s-%03d%s", basePath, i+1, format.Ext())
		}
		if err := writePage(path, format, page); err != nil {
			return paths, fmt.Errorf("export page %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writePage(path string, format Format, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // G304: destination comes from validated config
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	switch format {
	case FormatJPEG:
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case FormatPNG:
		return png.Encode(f, img)
	case FormatTIFF:
		return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported page format: %s", format)
	}
}
