package finish

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Suggester is the external naming-suggestion collaborator: document
// content summary in, suggested filename (or empty/failure) out. Calls are
// timeout-bounded by the finisher; the implementation stays best-effort.
type Suggester interface {
	Suggest(ctx context.Context, summary string) (string, error)
}

// NamingConfig controls filename resolution.
type NamingConfig struct {
	// Template supports the tokens {date}, {time}, {seq}, {batch} and
	// {barcode} (first barcode payload of the document, if any).
	Template string

	UseSuggestion     bool
	SuggestionTimeout time.Duration
}

// DefaultNamingConfig returns the deterministic date+sequence baseline.
func DefaultNamingConfig() NamingConfig {
	return NamingConfig{
		Template:          "scan-{date}-{seq}",
		SuggestionTimeout: 5 * time.Second,
	}
}

// Render expands the template for one document. The result is sanitized
// and never empty.
func (n NamingConfig) Render(doc Document) string {
	template := n.Template
	if template == "" {
		template = DefaultNamingConfig().Template
	}
	now := time.Now()

	firstBarcode := ""
	for _, page := range doc.Pages {
		if len(page.Barcodes) > 0 {
			firstBarcode = page.Barcodes[0].Value
			break
		}
	}

	r := strings.NewReplacer(
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("150405"),
		"{seq}", fmt.Sprintf("%03d", doc.Number),
		"{batch}", doc.Batch,
		"{barcode}", firstBarcode,
	)
	return Sanitize(r.Replace(template))
}

const maxNameLength = 120

// Sanitize makes an arbitrary string safe as a filename component:
// Unicode normalization, reserved character stripping, whitespace
// collapsing and a length cap. Empty results fall back to "scan".
func Sanitize(name string) string {
	name = norm.NFKC.String(name)

	var b strings.Builder
	lastSpace := false
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|' || r == 0:
			// reserved on at least one supported filesystem
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	out := strings.Trim(b.String(), " .")
	if len(out) > maxNameLength {
		out = strings.TrimRight(out[:maxNameLength], " .")
	}
	if out == "" {
		return "scan"
	}
	return out
}
