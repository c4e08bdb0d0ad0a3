// Package finish turns one segmented document into persisted artifacts:
// imprinted pages, a resolved filename, the export files and the
// search-index sidecar.
package finish

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/barcode"
	"github.com/MeKo-Tech/docsplit/internal/export"
	"github.com/google/uuid"
)

// Page is one ordered page of a document ready for finishing.
type Page struct {
	Index    int // capture index, kept for traceability
	Image    image.Image
	Text     string
	Barcodes []barcode.Result
}

// Document is the unit of finishing: the ordered pages of one segmented
// document plus its identity within the batch.
type Document struct {
	ID      uuid.UUID
	Number  int // 1-based position within the batch
	Batch   string
	Trigger string // boundary trigger reason, informational
	Pages   []Page
}

// Artifact describes what finishing wrote to disk.
type Artifact struct {
	DocumentID  uuid.UUID
	Number      int // 1-based position within the batch
	Name        string
	Paths       []string // primary artifact first
	SidecarPath string
	Format      export.Format
	PageCount   int
	CreatedAt   time.Time
	Warnings    []string
}

// Features selects the optional finishing stages. The degraded retry after
// a finishing failure runs with everything switched off.
type Features struct {
	Imprint   bool
	TextLayer bool
}

// AllFeatures enables every configured finishing stage.
func AllFeatures() Features { return Features{Imprint: true, TextLayer: true} }

// Config holds the finishing settings shared by all documents of a batch.
type Config struct {
	Destination string
	Format      export.Format
	Naming      NamingConfig
	Imprint     ImprintConfig
	Collision   CollisionPolicy
}

// DefaultConfig returns finishing defaults: PDF into the working directory,
// date+sequence naming, rename on collision.
func DefaultConfig() Config {
	return Config{
		Destination: ".",
		Format:      export.FormatPDF,
		Naming:      DefaultNamingConfig(),
		Collision:   CollisionRename,
	}
}

// Finisher persists documents. Distinct documents may be finished
// concurrently; filename and sequence allocation for a shared destination
// is serialized through the allocator.
type Finisher struct {
	cfg       Config
	suggester Suggester
	alloc     *Allocator
}

// New creates a Finisher. suggester may be nil; naming then always uses the
// template (and its deterministic fallback).
func New(cfg Config, suggester Suggester) *Finisher {
	if cfg.Destination == "" {
		cfg.Destination = "."
	}
	if cfg.Format == "" {
		cfg.Format = export.FormatPDF
	}
	return &Finisher{cfg: cfg, suggester: suggester, alloc: NewAllocator()}
}

// Finish writes one document's artifacts and returns their description.
func (f *Finisher) Finish(ctx context.Context, doc Document, features Features) (Artifact, error) {
	if len(doc.Pages) == 0 {
		return Artifact{}, fmt.Errorf("document %s has no pages", doc.ID)
	}

	artifact := Artifact{
		DocumentID: doc.ID,
		Number:     doc.Number,
		Format:     f.cfg.Format,
		PageCount:  len(doc.Pages),
		CreatedAt:  time.Now(),
	}

	name, warn := f.resolveName(ctx, doc)
	if warn != "" {
		artifact.Warnings = append(artifact.Warnings, warn)
	}

	basePath, err := f.alloc.Reserve(f.cfg.Destination, name, f.cfg.Format, f.cfg.Collision)
	if err != nil {
		return artifact, fmt.Errorf("allocate filename: %w", err)
	}
	artifact.Name = filepath.Base(basePath)

	images := make([]image.Image, len(doc.Pages))
	for i, page := range doc.Pages {
		img := page.Image
		if features.Imprint && f.cfg.Imprint.Enabled {
			img = f.cfg.Imprint.Apply(img, i+1, len(doc.Pages), doc.Batch)
		}
		images[i] = img
	}

	paths, err := export.Write(ctx, basePath, f.cfg.Format, images)
	if err != nil {
		return artifact, fmt.Errorf("export %s: %w", doc.ID, err)
	}
	artifact.Paths = paths

	sidecar := export.Sidecar{
		Document:  doc.ID.String(),
		Batch:     doc.Batch,
		Format:    string(f.cfg.Format),
		CreatedAt: artifact.CreatedAt,
	}
	for i, page := range doc.Pages {
		sp := export.SidecarPage{Page: i + 1}
		if features.TextLayer {
			sp.Text = page.Text
		}
		for _, bc := range page.Barcodes {
			sp.Barcodes = append(sp.Barcodes, bc.Value)
		}
		sidecar.Pages = append(sidecar.Pages, sp)
	}
	sidecarPath := basePath + ".json"
	if err := export.WriteSidecar(sidecarPath, sidecar); err != nil {
		return artifact, fmt.Errorf("write sidecar: %w", err)
	}
	artifact.SidecarPath = sidecarPath

	return artifact, nil
}

// resolveName produces the document's base filename. Suggestion failures
// are never fatal: the template (with its deterministic date+sequence
// baseline) is always available.
func (f *Finisher) resolveName(ctx context.Context, doc Document) (string, string) {
	if f.cfg.Naming.UseSuggestion && f.suggester != nil {
		name, err := f.suggest(ctx, doc)
		if err == nil && name != "" {
			return name, ""
		}
		warn := "naming suggestion unavailable, using template"
		if err != nil {
			warn = fmt.Sprintf("naming suggestion failed (%v), using template", err)
		}
		return f.cfg.Naming.Render(doc), warn
	}
	return f.cfg.Naming.Render(doc), ""
}

func (f *Finisher) suggest(ctx context.Context, doc Document) (string, error) {
	timeout := f.cfg.Naming.SuggestionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	suggestion, err := f.suggester.Suggest(ctx, contentSummary(doc))
	if err != nil {
		return "", err
	}
	// An empty suggestion must not sanitize into the "scan" placeholder;
	// the caller falls back to the template instead.
	if strings.TrimSpace(suggestion) == "" {
		return "", nil
	}
	return Sanitize(suggestion), nil
}

// contentSummary condenses the document for the naming collaborator:
// leading OCR text and any barcode payloads.
func contentSummary(doc Document) string {
	const maxLen = 2000
	summary := ""
	for _, page := range doc.Pages {
		for _, bc := range page.Barcodes {
			summary += bc.Value + "\n"
		}
		summary += page.Text + "\n"
		if len(summary) >= maxLen {
			return summary[:maxLen]
		}
	}
	return summary
}
