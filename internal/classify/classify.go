package classify

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/docsplit/internal/barcode"
	"github.com/google/uuid"
)

// TextRecognizer is the capability interface for optional OCR.
// Implementations wrap an external engine; the classifier never depends on
// recognition internals.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Config controls per-page classification.
type Config struct {
	Blank   BlankConfig
	Barcode BarcodeConfig

	// OCR enables text extraction when a recognizer is attached.
	OCR bool
}

// BarcodeConfig selects the decode capability set.
type BarcodeConfig struct {
	Enabled   bool
	Formats   []barcode.Format // empty = full default set
	TryHarder bool
}

// DefaultConfig returns classification defaults: blank detection on,
// barcodes on with the full capability set, OCR off.
func DefaultConfig() Config {
	return Config{
		Blank:   DefaultBlankConfig(),
		Barcode: BarcodeConfig{Enabled: true},
	}
}

// Analysis is the frozen per-page classification result. It is written
// exactly once by the classifier and never mutated afterwards.
type Analysis struct {
	PageID uuid.UUID
	Index  int // capture ordinal, immutable

	Blank       BlankResult
	Barcodes    []barcode.Result
	OCRText     string
	Fingerprint Fingerprint
	Corrected   image.Image

	// Degraded marks a page whose enhancement or classification failed and
	// was carried forward with neutral defaults instead of aborting the batch.
	Degraded bool
	Warnings []string
}

// Degraded returns the neutral analysis used for pages whose processing
// failed: not blank, no barcodes, zero fingerprint, original image.
func Degraded(pageID uuid.UUID, index int, img image.Image, reason string) *Analysis {
	return &Analysis{
		PageID:    pageID,
		Index:     index,
		Corrected: img,
		Degraded:  true,
		Warnings:  []string{reason},
	}
}

// Classifier analyzes corrected page images. It is stateless apart from its
// configuration and safe for concurrent use.
type Classifier struct {
	cfg        Config
	backend    barcode.Backend
	recognizer TextRecognizer
}

// New creates a Classifier. The backend may be nil when barcodes are
// disabled; the recognizer may be nil when OCR is disabled.
func New(cfg Config, backend barcode.Backend, recognizer TextRecognizer) *Classifier {
	return &Classifier{cfg: cfg, backend: backend, recognizer: recognizer}
}

// Classify produces the analysis for one corrected page image.
// Individual signal failures degrade that signal only, never the page:
// a failed barcode decode yields no barcodes and a failed OCR pass yields
// empty text, each with a recorded warning.
func (c *Classifier) Classify(ctx context.Context, pageID uuid.UUID, index int, img image.Image) *Analysis {
	a := &Analysis{
		PageID:    pageID,
		Index:     index,
		Corrected: img,
	}
	if img == nil {
		a.Degraded = true
		a.Warnings = append(a.Warnings, "no image to classify")
		return a
	}

	a.Blank = DetectBlank(img, c.cfg.Blank)
	a.Fingerprint = ComputeFingerprint(img)

	if c.cfg.Barcode.Enabled && c.backend != nil {
		results, err := c.backend.Decode(ctx, img, barcode.Options{
			Formats:   c.cfg.Barcode.Formats,
			TryHarder: c.cfg.Barcode.TryHarder,
			Multi:     true,
		})
		if err != nil {
			// Decode failure is silent at page level; nothing matched.
			slog.Debug("barcode decode failed", "page", index, "error", err)
			a.Warnings = append(a.Warnings, fmt.Sprintf("barcode decode failed: %v", err))
		}
		a.Barcodes = results
	}

	if c.cfg.OCR && c.recognizer != nil {
		text, err := c.recognizer.Recognize(ctx, img)
		if err != nil {
			slog.Debug("text recognition failed", "page", index, "error", err)
			a.Warnings = append(a.Warnings, fmt.Sprintf("text recognition failed: %v", err))
		} else {
			a.OCRText = text
		}
	}

	return a
}
