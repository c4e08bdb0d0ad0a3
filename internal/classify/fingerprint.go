package classify

import (
	"image"

	"github.com/disintegration/imaging"
)

// fingerprintGrid is the fingerprint resolution per axis.
const fingerprintGrid = 8

// Fingerprint is a deterministic compact descriptor of a page's visual
// content: an 8x8 grid of mean luminances. It is used only for relative
// similarity scoring between adjacent pages, never for display.
type Fingerprint struct {
	Cells [fingerprintGrid * fingerprintGrid]float64 // normalized luma per cell
	Valid bool
}

// ComputeFingerprint reduces the image to the luminance grid. Identical
// input always yields an identical fingerprint, and small amounts of noise
// average out within the coarse cells.
func ComputeFingerprint(img image.Image) Fingerprint {
	var fp Fingerprint
	if img == nil {
		return fp
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fp
	}

	// Box resampling to the grid size computes each cell's mean directly.
	small := imaging.Grayscale(imaging.Resize(img, fingerprintGrid, fingerprintGrid, imaging.Box))
	for y := range fingerprintGrid {
		for x := range fingerprintGrid {
			i := small.PixOffset(x, y)
			fp.Cells[y*fingerprintGrid+x] = float64(small.Pix[i]) / 255
		}
	}
	fp.Valid = true
	return fp
}

// DistanceTo returns the mean absolute cell difference in [0,1].
// A missing fingerprint on either side compares as identical (distance 0):
// degraded pages must never force a content split.
func (fp Fingerprint) DistanceTo(other Fingerprint) float64 {
	if !fp.Valid || !other.Valid {
		return 0
	}
	var sum float64
	for i := range fp.Cells {
		d := fp.Cells[i] - other.Cells[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(fp.Cells))
}
