package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PageSize is the default synthetic page size. Small enough to keep tests
// fast, large enough for fingerprinting and barcode decoding to behave.
var PageSize = image.Rect(0, 0, 400, 560)

// BlankPage returns a uniformly white page.
func BlankPage() image.Image {
	img := image.NewRGBA(PageSize)
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

// NoisyBlankPage returns a near-white page with light scanner noise, still
// under the blank-detection ink ceiling at default sensitivity.
func NoisyBlankPage(seed int64) image.Image {
	img := image.NewRGBA(PageSize)
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test noise, not crypto
	for i := 0; i < 40; i++ {
		x := rng.Intn(PageSize.Dx())
		y := rng.Intn(PageSize.Dy())
		g := uint8(235 + rng.Intn(20))
		img.Set(x, y, color.RGBA{g, g, g, 255})
	}
	return img
}

// TextPage returns a white page with the given lines of black text drawn
// down the left margin. Distinct texts produce distinct fingerprints.
func TextPage(lines ...string) image.Image {
	img := image.NewRGBA(PageSize)
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
	}
	lineHeight := basicfont.Face7x13.Metrics().Height.Ceil() + 4
	for i, line := range lines {
		drawer.Dot = fixed.P(24, 40+i*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// DensePage returns a page with heavy ink coverage, useful as a strongly
// non-blank, high-contrast fingerprint target.
func DensePage() image.Image {
	img := image.NewRGBA(PageSize)
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for y := 40; y < PageSize.Dy()-40; y += 16 {
		for x := 24; x < PageSize.Dx()-24; x++ {
			for dy := 0; dy < 6; dy++ {
				img.Set(x, y+dy, color.Black)
			}
		}
	}
	return img
}

// QRPage returns a white page carrying a QR code with the given payload,
// centered, sized for reliable decoding.
func QRPage(t *testing.T, payload string) image.Image {
	t.Helper()

	writer := qrcode.NewQRCodeWriter()
	matrix, err := writer.Encode(payload, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err, "encode QR payload %q", payload)

	img := image.NewRGBA(PageSize)
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	offX := (PageSize.Dx() - matrix.GetWidth()) / 2
	offY := (PageSize.Dy() - matrix.GetHeight()) / 2
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if matrix.Get(x, y) {
				img.Set(offX+x, offY+y, color.Black)
			}
		}
	}
	return img
}

// WritePNG saves an image under dir with the given name and returns its path.
func WritePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // test-controlled path
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
	return path
}

// WritePageDir writes the images as zero-padded PNG files into a fresh
// directory under t.TempDir() and returns the directory.
func WritePageDir(t *testing.T, pages []image.Image) string {
	t.Helper()

	dir := t.TempDir()
	for i, page := range pages {
		WritePNG(t, dir, fmt.Sprintf("page-%03d.png", i), page)
	}
	return dir
}
