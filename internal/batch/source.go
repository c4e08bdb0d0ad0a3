package batch

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// RawPage is one captured page image. The capture index is assigned by the
// runner in arrival order and is immutable from then on.
type RawPage struct {
	ID       uuid.UUID
	Index    int
	Captured time.Time
	Image    image.Image
}

// Source is the page-capture collaborator. Implementations push pages into
// out strictly in capture order and return when the batch is complete; a
// non-nil return signals a terminal capture error. Sources are treated as
// untrusted: they must respect ctx but the runner guards against ones that
// do not by bounding the channel.
type Source interface {
	Name() string
	Capture(ctx context.Context, out chan<- RawPage) error
}

// Sized is implemented by sources that know the total page count up front
// (a directory of files, unlike a document feeder).
type Sized interface {
	ExpectedPages() int
}

// SliceSource serves in-memory images; used by tests and programmatic
// callers that already hold the pages.
type SliceSource struct {
	SourceName string
	Images     []image.Image
}

func (s *SliceSource) Name() string {
	if s.SourceName == "" {
		return "memory"
	}
	return s.SourceName
}

func (s *SliceSource) ExpectedPages() int { return len(s.Images) }

func (s *SliceSource) Capture(ctx context.Context, out chan<- RawPage) error {
	for _, img := range s.Images {
		page := RawPage{ID: uuid.New(), Captured: time.Now(), Image: img}
		select {
		case out <- page:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// supportedExtensions lists the image types a directory source picks up.
var supportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}

func isSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range supportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// DirectorySource captures pages from image files in a directory, sorted by
// filename, which for scanner output matches capture order.
type DirectorySource struct {
	dir   string
	files []string
}

// NewDirectorySource lists the directory eagerly so the expected page count
// is known before capture starts.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedImage(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported images in %s", dir)
	}
	sort.Strings(files)
	return &DirectorySource{dir: dir, files: files}, nil
}

func (s *DirectorySource) Name() string { return s.dir }

func (s *DirectorySource) ExpectedPages() int { return len(s.files) }

func (s *DirectorySource) Capture(ctx context.Context, out chan<- RawPage) error {
	for _, path := range s.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := loadImage(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		page := RawPage{ID: uuid.New(), Captured: time.Now(), Image: img}
		select {
		case out <- page:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: user-provided scan directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	return img, err
}
