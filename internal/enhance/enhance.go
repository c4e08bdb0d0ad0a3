package enhance

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Options holds the per-page correction flags and tonal adjustments.
// The zero value disables everything; DefaultOptions enables the geometric
// corrections with conservative thresholds.
type Options struct {
	Deskew     bool // straighten small skew angles
	AutoRotate bool // pick the best rotation out of 0/90/180/270
	AutoCrop   bool // crop to the detected document region

	Brightness float64 // percentage, [-100, 100], 0 = neutral
	Contrast   float64 // percentage, [-100, 100], 0 = neutral
	Gamma      float64 // 1.0 = neutral, 0 = untouched
	Hue        float64 // degrees, 0 = neutral
	Saturation float64 // percentage, [-100, 100], 0 = neutral
	Lightness  float64 // percentage, [-100, 100], 0 = neutral

	Sharpen  bool
	Descreen bool // suppress halftone screens from printed sources
	Invert   bool

	// MinQuadConfidence gates deskew/crop: below it the page passes through
	// unmodified rather than risking a bad warp.
	MinQuadConfidence float64

	// RotateThreshold is the minimum detected skew (degrees) worth correcting.
	RotateThreshold float64
}

// DefaultOptions returns enhancement defaults matching typical flatbed scans.
func DefaultOptions() Options {
	return Options{
		Deskew:            true,
		AutoRotate:        false,
		AutoCrop:          true,
		Gamma:             0,
		MinQuadConfidence: 0.25,
		RotateThreshold:   0.5,
	}
}

// Report describes what Enhance actually did to a page.
type Report struct {
	Rotation  int     // applied coarse rotation in degrees (0/90/180/270)
	SkewAngle float64 // applied fine deskew angle in degrees
	Cropped   bool
	CropRect  image.Rectangle
	Quality   float64 // confidence of the content detection, [0,1]
}

// EnhancementError wraps a failure in a named enhancement operation.
type EnhancementError struct {
	Operation string
	Err       error
}

func (e *EnhancementError) Error() string {
	return fmt.Sprintf("enhancement error in %s: %v", e.Operation, e.Err)
}

func (e *EnhancementError) Unwrap() error { return e.Err }

// Enhancer applies geometric and tonal corrections to page images.
// It is stateless and safe for concurrent use across pages.
type Enhancer struct {
	opts Options
}

// New creates an Enhancer with the given options.
func New(opts Options) *Enhancer {
	if opts.RotateThreshold <= 0 {
		opts.RotateThreshold = 0.5
	}
	return &Enhancer{opts: opts}
}

// Options returns a copy of the enhancer options.
func (e *Enhancer) Options() Options { return e.opts }

// Enhance returns a corrected copy of img. The input is never mutated.
// Geometric stages fail open: when content detection is not confident
// enough the page passes through unchanged.
func (e *Enhancer) Enhance(ctx context.Context, img image.Image) (image.Image, Report, error) {
	if img == nil {
		return nil, Report{}, &EnhancementError{Operation: "enhance", Err: errNilImage}
	}

	var report Report
	out := imaging.Clone(img)

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	if e.opts.AutoRotate {
		rotation := bestOrientation(out)
		if rotation != 0 {
			out = rotateQuarters(out, rotation)
			report.Rotation = rotation
		}
	}

	if e.opts.Deskew {
		angle, conf := estimateSkew(out)
		report.Quality = conf
		if conf >= e.opts.MinQuadConfidence && absf(angle) > e.opts.RotateThreshold {
			out = imaging.Rotate(out, -angle, backgroundColor(out))
			report.SkewAngle = angle
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	if e.opts.AutoCrop {
		rect, conf := detectContentRect(out)
		if report.Quality == 0 {
			report.Quality = conf
		}
		if conf >= e.opts.MinQuadConfidence && rect.Dx() > 0 && rect.Dy() > 0 {
			out = imaging.Crop(out, rect)
			report.Cropped = true
			report.CropRect = rect
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	out = e.applyTonal(out)

	return out, report, nil
}

// applyTonal runs the tonal adjustments in a fixed order so results are
// reproducible regardless of which options are set.
func (e *Enhancer) applyTonal(img *image.NRGBA) *image.NRGBA {
	out := img
	if e.opts.Brightness != 0 {
		out = imaging.AdjustBrightness(out, e.opts.Brightness)
	}
	if e.opts.Contrast != 0 {
		out = imaging.AdjustContrast(out, e.opts.Contrast)
	}
	if e.opts.Gamma > 0 && e.opts.Gamma != 1.0 {
		out = imaging.AdjustGamma(out, e.opts.Gamma)
	}
	if e.opts.Saturation != 0 {
		out = imaging.AdjustSaturation(out, e.opts.Saturation)
	}
	if e.opts.Hue != 0 || e.opts.Lightness != 0 {
		out = adjustHueLightness(out, e.opts.Hue, e.opts.Lightness)
	}
	if e.opts.Descreen {
		// Light blur followed by sharpening flattens halftone screens
		// without losing text edges.
		out = imaging.Sharpen(imaging.Blur(out, 0.8), 0.6)
	}
	if e.opts.Sharpen {
		out = imaging.Sharpen(out, 1.0)
	}
	if e.opts.Invert {
		out = imaging.Invert(out)
	}
	return out
}

func rotateQuarters(img *image.NRGBA, degrees int) *image.NRGBA {
	switch degrees {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
