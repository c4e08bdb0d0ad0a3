package classify

import (
	"image"
)

// BlankConfig controls luminance-based blank page detection.
type BlankConfig struct {
	// Sensitivity in [0,1]; higher values lower the bar to call a page blank.
	Sensitivity float64
}

// DefaultBlankConfig returns the middle-of-the-road sensitivity.
func DefaultBlankConfig() BlankConfig { return BlankConfig{Sensitivity: 0.5} }

// BlankResult reports whether a page is blank and how sure we are.
type BlankResult struct {
	IsBlank    bool
	Confidence float64 // [0,1]
	MeanLuma   float64 // mean normalized luminance, [0,1]
	InkRatio   float64 // fraction of sampled pixels darker than mid gray
}

// lumaThreshold maps sensitivity monotonically onto a mean-luminance bar.
// Sensitivity 0 demands a near-perfect white page (0.99); sensitivity 1
// accepts anything brighter than 0.80. Scanner noise on an empty page
// typically lands around 0.93-0.97.
func lumaThreshold(sensitivity float64) float64 {
	if sensitivity < 0 {
		sensitivity = 0
	}
	if sensitivity > 1 {
		sensitivity = 1
	}
	return 0.99 - 0.19*sensitivity
}

// inkCeiling is the maximum tolerated ink coverage for a blank page,
// also monotone in sensitivity.
func inkCeiling(sensitivity float64) float64 {
	return 0.002 + 0.018*sensitivity
}

// rowInkCeiling bounds the ink fraction of any single sampled row. Sparse
// text can stay under the page-wide ceiling, but its glyph rows are dense;
// scanner noise never concentrates in one row.
func rowInkCeiling(sensitivity float64) float64 {
	if sensitivity < 0 {
		sensitivity = 0
	}
	if sensitivity > 1 {
		sensitivity = 1
	}
	return 0.02 + 0.08*sensitivity
}

// DetectBlank samples the image luminance and decides blankness against the
// sensitivity-derived thresholds. Deterministic for a fixed input.
func DetectBlank(img image.Image, cfg BlankConfig) BlankResult {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return BlankResult{IsBlank: true, Confidence: 1, MeanLuma: 1}
	}

	stride := b.Dx() / 256
	if stride < 1 {
		stride = 1
	}

	var sum float64
	var ink, samples int
	var maxRowInk float64
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		var rowInk, rowSamples int
		for x := b.Min.X; x < b.Max.X; x += stride {
			r, g, bl, _ := img.At(x, y).RGBA()
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 65535
			sum += luma
			if luma < 0.5 {
				rowInk++
			}
			rowSamples++
		}
		ink += rowInk
		samples += rowSamples
		if frac := float64(rowInk) / float64(rowSamples); frac > maxRowInk {
			maxRowInk = frac
		}
	}

	mean := sum / float64(samples)
	inkRatio := float64(ink) / float64(samples)

	threshold := lumaThreshold(cfg.Sensitivity)
	ceiling := inkCeiling(cfg.Sensitivity)
	rowCeiling := rowInkCeiling(cfg.Sensitivity)
	// The row ceiling catches organized ink (text lines, rules) that is too
	// sparse page-wide to trip the overall ink ceiling.
	isBlank := mean >= threshold && inkRatio <= ceiling && maxRowInk <= rowCeiling

	// Confidence scales with the distance from the luminance bar.
	var conf float64
	if isBlank {
		conf = (mean - threshold) / (1 - threshold)
	} else {
		conf = (threshold - mean) / threshold
		if inkRatio > ceiling {
			conf = maxF(conf, minF(1, inkRatio/(ceiling*4)))
		}
		if maxRowInk > rowCeiling {
			conf = maxF(conf, minF(1, maxRowInk/(rowCeiling*2)))
		}
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return BlankResult{
		IsBlank:    isBlank,
		Confidence: conf,
		MeanLuma:   mean,
		InkRatio:   inkRatio,
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
