package enhance

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

var errNilImage = errors.New("input image is nil")

const (
	analysisWidth = 256 // thumbnail width for skew/orientation analysis
	inkThreshold  = 160 // 8-bit luma below this counts as ink
)

// thumbnail returns a small grayscale copy used for geometric analysis.
func thumbnail(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w := b.Dx()
	if w > analysisWidth {
		w = analysisWidth
	}
	return imaging.Grayscale(imaging.Resize(img, w, 0, imaging.Box))
}

func lumaAt(img *image.NRGBA, x, y int) uint8 {
	i := img.PixOffset(x, y)
	// Grayscale NRGBA has R=G=B.
	return img.Pix[i]
}

// rowVariance scores how strongly ink is organized into horizontal rows.
// Straight text lines concentrate ink into few rows, raising the variance.
func rowVariance(img *image.NRGBA) (float64, float64) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0, 0
	}
	rows := make([]float64, b.Dy())
	inkTotal := 0.0
	for y := range b.Dy() {
		for x := range b.Dx() {
			if lumaAt(img, b.Min.X+x, b.Min.Y+y) < inkThreshold {
				rows[y]++
			}
		}
		inkTotal += rows[y]
	}
	if inkTotal == 0 {
		return 0, 0
	}
	mean := inkTotal / float64(len(rows))
	variance := 0.0
	for _, v := range rows {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(rows))
	inkFraction := inkTotal / float64(b.Dx()*b.Dy())
	return variance, inkFraction
}

// bestOrientation picks the quarter rotation that best aligns text rows
// horizontally. Returns 0, 90, 180 or 270 degrees.
func bestOrientation(img *image.NRGBA) int {
	thumb := thumbnail(img)

	v0, ink := rowVariance(thumb)
	if ink < 0.002 {
		return 0 // effectively blank, nothing to orient on
	}
	v90, _ := rowVariance(imaging.Rotate90(thumb))

	rotation := 0
	oriented := thumb
	if v90 > v0*1.15 {
		rotation = 90
		oriented = imaging.Rotate90(thumb)
	}

	// Rows look the same upside down; prefer the variant with more ink in
	// the upper half, where headers and body text usually sit.
	if upsideDown(oriented) {
		rotation += 180
	}
	return rotation
}

func upsideDown(img *image.NRGBA) bool {
	b := img.Bounds()
	half := b.Dy() / 2
	if half == 0 {
		return false
	}
	top, bottom := 0, 0
	for y := range b.Dy() {
		for x := range b.Dx() {
			if lumaAt(img, b.Min.X+x, b.Min.Y+y) < inkThreshold {
				if y < half {
					top++
				} else {
					bottom++
				}
			}
		}
	}
	return float64(bottom) > float64(top)*1.5
}

// estimateSkew searches small rotation angles for the one that maximizes
// row alignment. Returns the skew angle in degrees and a confidence score.
func estimateSkew(img *image.NRGBA) (float64, float64) {
	thumb := thumbnail(img)
	base, ink := rowVariance(thumb)
	if ink < 0.002 {
		return 0, 0
	}

	bestAngle := 0.0
	bestVar := base
	sum := base
	count := 1
	for angle := -5.0; angle <= 5.0; angle += 0.25 {
		if angle == 0 {
			continue
		}
		v, _ := rowVariance(imaging.Rotate(thumb, angle, color.White))
		sum += v
		count++
		if v > bestVar {
			bestVar = v
			bestAngle = -angle // undoing the skew needs the opposite rotation
		}
	}

	mean := sum / float64(count)
	if bestVar <= 0 {
		return 0, 0
	}
	conf := (bestVar - mean) / bestVar
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return bestAngle, conf
}

// detectContentRect finds the bounding rectangle of the page content.
// Returns the zero rectangle when cropping would not remove anything
// meaningful, or when there is too little ink to trust the detection.
func detectContentRect(img *image.NRGBA) (image.Rectangle, float64) {
	b := img.Bounds()
	stride := b.Dx() / 512
	if stride < 1 {
		stride = 1
	}

	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X, b.Min.Y
	ink, sampled := 0, 0
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			sampled++
			if lumaAt(img, x, y) >= inkThreshold {
				continue
			}
			ink++
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if ink == 0 || sampled == 0 {
		return image.Rectangle{}, 0
	}

	inkFraction := float64(ink) / float64(sampled)
	conf := inkFraction * 50
	if conf > 1 {
		conf = 1
	}

	// Pad by 1% of the page so descenders and edge strokes survive the crop.
	padX := b.Dx() / 100
	padY := b.Dy() / 100
	rect := image.Rect(minX-padX, minY-padY, maxX+padX+1, maxY+padY+1).Intersect(b)

	// A box spanning nearly the whole page is not worth a crop.
	if rect.Dx()*rect.Dy() >= b.Dx()*b.Dy()*97/100 {
		return image.Rectangle{}, conf
	}
	// Reject degenerate detections that do not look like a document region.
	if rect.Dx()*rect.Dy() < b.Dx()*b.Dy()/20 {
		return image.Rectangle{}, 0
	}
	return rect, conf
}

// backgroundColor estimates the page background from the image border,
// used as fill when rotating by non-quarter angles.
func backgroundColor(img *image.NRGBA) color.Color {
	b := img.Bounds()
	var sum, n uint64
	for x := b.Min.X; x < b.Max.X; x += 4 {
		sum += uint64(lumaAt(img, x, b.Min.Y))
		sum += uint64(lumaAt(img, x, b.Max.Y-1))
		n += 2
	}
	for y := b.Min.Y; y < b.Max.Y; y += 4 {
		sum += uint64(lumaAt(img, b.Min.X, y))
		sum += uint64(lumaAt(img, b.Max.X-1, y))
		n += 2
	}
	if n == 0 {
		return color.White
	}
	v := uint8(sum / n)
	return color.NRGBA{R: v, G: v, B: v, A: 255}
}

// adjustHueLightness shifts hue (degrees) and lightness (percent) in HSL space.
// imaging has no hue/lightness adjustment, so this is done per pixel.
func adjustHueLightness(img *image.NRGBA, hue, lightness float64) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			r := float64(out.Pix[i]) / 255
			g := float64(out.Pix[i+1]) / 255
			bl := float64(out.Pix[i+2]) / 255
			h, s, l := rgbToHSL(r, g, bl)
			h = math.Mod(h+hue/360+1, 1)
			l += lightness / 100
			l = clamp01(l)
			r, g, bl = hslToRGB(h, s, l)
			out.Pix[i] = uint8(r*255 + 0.5)
			out.Pix[i+1] = uint8(g*255 + 0.5)
			out.Pix[i+2] = uint8(bl*255 + 0.5)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func rgbToHSL(r, g, b float64) (float64, float64, float64) {
	maxV := math.Max(r, math.Max(g, b))
	minV := math.Min(r, math.Min(g, b))
	l := (maxV + minV) / 2
	if maxV == minV {
		return 0, 0, l
	}
	d := maxV - minV
	var s float64
	if l > 0.5 {
		s = d / (2 - maxV - minV)
	} else {
		s = d / (maxV + minV)
	}
	var h float64
	switch maxV {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h / 6, s, l
}

func hslToRGB(h, s, l float64) (float64, float64, float64) {
	if s == 0 {
		return l, l, l
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return hueToRGB(p, q, h+1.0/3), hueToRGB(p, q, h), hueToRGB(p, q, h-1.0/3)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}
