package barcode

import (
	"context"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// NewBackend returns the default gozxing-backed decoder.
func NewBackend() Backend { return &gozxingBackend{} }

type gozxingBackend struct{}

// readerFor returns a fresh reader for the given symbology.
// gozxing readers carry decode state, so they are not shared across calls.
func readerFor(f Format) gozxing.Reader {
	switch f {
	case FormatQR:
		return qrcode.NewQRCodeReader()
	case FormatDataMatrix:
		return datamatrix.NewDataMatrixReader()
	case FormatAztec:
		return aztec.NewAztecReader()
	case FormatPDF417:
		// gozxing has no pdf417 package in any published version; a nil
		// reader is skipped by Decode, so PDF417 degrades to "not decoded".
		return nil
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatCode39:
		return oned.NewCode39Reader()
	case FormatEAN8:
		return oned.NewEAN8Reader()
	case FormatEAN13:
		return oned.NewEAN13Reader()
	case FormatUPCA:
		return oned.NewUPCAReader()
	case FormatUPCE:
		return oned.NewUPCEReader()
	case FormatITF:
		return oned.NewITFReader()
	case FormatCodabar:
		return oned.NewCodaBarReader()
	default:
		return nil
	}
}

// Decode attempts each configured symbology independently. A reader that
// finds nothing is skipped silently; only bitmap construction can fail.
func (b *gozxingBackend) Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error) {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = DefaultFormats()
	}

	bitmap, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, err
	}

	hints := make(map[gozxing.DecodeHintType]interface{})
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	var out []Result
	seen := make(map[string]bool)
	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		reader := readerFor(f)
		if reader == nil {
			continue
		}
		r, err := reader.Decode(bitmap, hints)
		if err != nil || r == nil {
			continue
		}
		res := normalize(f, r)
		key := res.Type.String() + "\x00" + res.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, res)
		if !opts.Multi {
			break
		}
	}
	return out, nil
}

func normalize(f Format, r *gozxing.Result) Result {
	pts := r.GetResultPoints()
	var points []Point
	if len(pts) > 0 {
		points = make([]Point, 0, len(pts))
		for _, p := range pts {
			points = append(points, Point{X: int(p.GetX()), Y: int(p.GetY())})
		}
	}
	return Result{
		Type:       f,
		Value:      r.GetText(),
		Points:     points,
		BBox:       rectFromPoints(points),
		Confidence: -1, // gozxing does not provide calibrated confidence
	}
}
