package finish

import (
	"image"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImprintConfig describes the optional text overlay stamped on each page.
type ImprintConfig struct {
	Enabled bool

	// Text supports {page}, {pages}, {date} and {batch}. Page numbers are
	// relative to the document, not the batch.
	Text string

	Position string  // top-left, top-right, bottom-left, bottom-right, center
	Rotation float64 // degrees counterclockwise
	Opacity  float64 // (0,1]; 0 means fully opaque for config convenience
	Scale    int     // integer text magnification, 0/1 = base size
}

// Apply stamps the imprint onto a copy of the page. The input image is
// never modified.
func (c ImprintConfig) Apply(img image.Image, page, pages int, batch string) image.Image {
	if !c.Enabled || c.Text == "" {
		return img
	}

	text := strings.NewReplacer(
		"{page}", strconv.Itoa(page),
		"{pages}", strconv.Itoa(pages),
		"{date}", time.Now().Format("2006-01-02"),
		"{batch}", batch,
	).Replace(c.Text)

	layer := renderTextLayer(text, c.Scale)
	if c.Rotation != 0 {
		layer = imaging.Rotate(layer, c.Rotation, color.Transparent)
	}

	opacity := c.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}

	base := imaging.Clone(img)
	pos := c.anchor(base.Bounds(), layer.Bounds())
	return imaging.Overlay(base, layer, pos, opacity)
}

func (c ImprintConfig) anchor(page, layer image.Rectangle) image.Point {
	const margin = 24
	switch c.Position {
	case "top-left":
		return image.Pt(margin, margin)
	case "top-right":
		return image.Pt(page.Dx()-layer.Dx()-margin, margin)
	case "bottom-left":
		return image.Pt(margin, page.Dy()-layer.Dy()-margin)
	case "center":
		return image.Pt((page.Dx()-layer.Dx())/2, (page.Dy()-layer.Dy())/2)
	default: // bottom-right
		return image.Pt(page.Dx()-layer.Dx()-margin, page.Dy()-layer.Dy()-margin)
	}
}

// renderTextLayer draws the text onto a transparent layer, optionally
// magnified with nearest-neighbor scaling to stay crisp.
func renderTextLayer(text string, scale int) *image.NRGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	if width == 0 {
		width = 1
	}

	layer := image.NewNRGBA(image.Rect(0, 0, width+2, height+2))
	drawer := &font.Drawer{
		Dst:  layer,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(1, face.Metrics().Ascent.Ceil()+1),
	}
	drawer.DrawString(text)

	if scale > 1 {
		return imaging.Resize(layer, layer.Bounds().Dx()*scale, layer.Bounds().Dy()*scale, imaging.NearestNeighbor)
	}
	return layer
}
