package export

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// writePDF assembles a multi-page PDF from the page images via pdfcpu.
// Pages are staged as JPEG files and imported one per PDF page.
func writePDF(ctx context.Context, path string, pages []image.Image) (string, error) {
	tmpDir, err := os.MkdirTemp("", "docsplit-pdf-*")
	if err != nil {
		return "", fmt.Errorf("stage dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	files := make([]string, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		file := filepath.Join(tmpDir, fmt.Sprintf("page-%04d.jpg", i+1))
		if err := writeJPEG(file, page); err != nil {
			return "", fmt.Errorf("stage page %d: %w", i+1, err)
		}
		files = append(files, file)
	}

	if err := api.ImportImagesFile(files, path, nil, nil); err != nil {
		return "", fmt.Errorf("assemble pdf: %w", err)
	}
	return path, nil
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // G304: temp staging path
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}
