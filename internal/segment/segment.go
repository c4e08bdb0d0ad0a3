// Package segment turns the ordered per-page analyses of a batch into
// document boundaries. The scan is deterministic: identical analyses and
// configuration always produce identical boundaries.
package segment

import (
	"fmt"
	"regexp"

	"github.com/MeKo-Tech/docsplit/internal/classify"
)

// Trigger identifies the signal that opened a document (i.e. accepted the
// boundary immediately before its first page).
type Trigger string

const (
	TriggerNone    Trigger = "none" // first document of the batch
	TriggerBarcode Trigger = "barcode"
	TriggerBlank   Trigger = "blank"
	TriggerContent Trigger = "content"
	TriggerMinimum Trigger = "forced-minimum"
)

// Config mirrors the user-facing separation settings.
type Config struct {
	Enabled bool

	UseBlankPages    bool
	BlankSensitivity float64 // [0,1], consumed by the classifier
	DeleteBlankPages bool

	UseBarcodes        bool
	BarcodePattern     string // regex over raw payload; empty matches any
	ExcludeMarkerPages bool   // drop separator pages from the output

	UseContentAnalysis  bool
	SimilarityThreshold float64 // [0,1]; lower = pages must be more alike to stay together

	MinimumPages         int  // per-document floor, >= 1
	EnforceMinimumOnTail bool // apply the floor to the batch's final document too

	AllowManualAdjustment bool
}

// DefaultConfig returns separation defaults: enabled, barcode and blank
// signals on, content analysis off, one-page minimum.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		UseBlankPages:       true,
		BlankSensitivity:    0.5,
		UseBarcodes:         true,
		SimilarityThreshold: 0.5,
		MinimumPages:        1,
	}
}

// Boundary is one resulting document: a contiguous range of kept pages
// plus the trigger that started it.
type Boundary struct {
	Start   int   // capture index of the first page
	End     int   // capture index of the last page, inclusive
	Pages   []int // kept capture indices, in order
	Trigger Trigger
}

// DroppedPage records a page removed from the output entirely.
type DroppedPage struct {
	Index  int
	Reason Trigger // blank (deleted) or barcode (excluded marker)
}

// SuppressedBoundary records a signal match the minimum-pages floor
// overrode. Kept in the plan so reviewers and job reports can see why a
// document spans a separator.
type SuppressedBoundary struct {
	Before int     // capture index the boundary would have preceded
	Signal Trigger // the overridden signal
}

// Plan is the engine's proposal: an ordered partition of the kept pages.
type Plan struct {
	Documents  []Boundary
	Dropped    []DroppedPage
	Suppressed []SuppressedBoundary
}

// PageCount returns the number of kept pages across all documents.
func (p Plan) PageCount() int {
	n := 0
	for _, d := range p.Documents {
		n += len(d.Pages)
	}
	return n
}

// Partition returns the plan as plain page index slices, the shape manual
// reviewers edit and return.
func (p Plan) Partition() [][]int {
	out := make([][]int, len(p.Documents))
	for i, d := range p.Documents {
		pages := make([]int, len(d.Pages))
		copy(pages, d.Pages)
		out[i] = pages
	}
	return out
}

// Segment scans the analyses in capture order and produces the boundary
// plan. Enabled signals are evaluated per page in fixed priority (barcode,
// then blank, then content drift) and the first match wins: barcode
// separators are explicit user-placed markers and outrank incidental
// signals. With separation disabled (or no signals enabled) the whole
// batch becomes a single document.
func Segment(analyses []*classify.Analysis, cfg Config) (Plan, error) {
	if cfg.MinimumPages < 1 {
		cfg.MinimumPages = 1
	}

	var markerRe *regexp.Regexp
	if cfg.Enabled && cfg.UseBarcodes {
		pattern := cfg.BarcodePattern
		if pattern == "" {
			pattern = ".*"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Plan{}, fmt.Errorf("invalid barcode pattern %q: %w", cfg.BarcodePattern, err)
		}
		markerRe = re
	}

	var plan Plan
	var current []int
	currentTrigger := TriggerNone

	closeCurrent := func() {
		if len(current) == 0 {
			return
		}
		plan.Documents = append(plan.Documents, Boundary{
			Start:   current[0],
			End:     current[len(current)-1],
			Pages:   current,
			Trigger: currentTrigger,
		})
		current = nil
	}

	for i, a := range analyses {
		trigger, drop := evaluate(a, analyses, i, cfg, markerRe)

		if trigger != TriggerNone && i > 0 && len(current) > 0 {
			// Minimum-pages constraint: a document that would close too
			// small absorbs the boundary and keeps growing.
			if len(current) >= cfg.MinimumPages {
				closeCurrent()
				currentTrigger = trigger
			} else {
				plan.Suppressed = append(plan.Suppressed, SuppressedBoundary{
					Before: a.Index,
					Signal: trigger,
				})
			}
		}

		if drop {
			plan.Dropped = append(plan.Dropped, DroppedPage{Index: a.Index, Reason: trigger})
			continue
		}
		current = append(current, a.Index)
	}
	closeCurrent()

	mergeShortTail(&plan, cfg)
	return plan, nil
}

// evaluate applies the signal priority to one page. It reports the matched
// trigger and whether the page itself is removed from the output.
func evaluate(a *classify.Analysis, analyses []*classify.Analysis, i int, cfg Config, markerRe *regexp.Regexp) (Trigger, bool) {
	if !cfg.Enabled {
		return TriggerNone, false
	}

	if cfg.UseBarcodes && markerRe != nil {
		for _, bc := range a.Barcodes {
			if markerRe.MatchString(bc.Value) {
				return TriggerBarcode, cfg.ExcludeMarkerPages
			}
		}
	}

	if cfg.UseBlankPages && a.Blank.IsBlank {
		return TriggerBlank, cfg.DeleteBlankPages
	}

	if cfg.UseContentAnalysis && i > 0 {
		dist := a.Fingerprint.DistanceTo(analyses[i-1].Fingerprint)
		if dist > 1-cfg.SimilarityThreshold {
			return TriggerContent, false
		}
	}

	return TriggerNone, false
}

// mergeShortTail folds an undersized final document into its predecessor
// when the tail exemption is switched off.
func mergeShortTail(plan *Plan, cfg Config) {
	n := len(plan.Documents)
	if n < 2 || !cfg.EnforceMinimumOnTail {
		return
	}
	tail := plan.Documents[n-1]
	if len(tail.Pages) >= cfg.MinimumPages {
		return
	}
	prev := &plan.Documents[n-2]
	prev.Pages = append(prev.Pages, tail.Pages...)
	prev.End = prev.Pages[len(prev.Pages)-1]
	plan.Documents = plan.Documents[:n-1]
	plan.Suppressed = append(plan.Suppressed, SuppressedBoundary{
		Before: tail.Start,
		Signal: TriggerMinimum,
	})
}

// Verify checks the plan invariant: the documents plus the dropped pages
// reproduce the input sequence exactly, with no gap, overlap or
// duplication. A violation is an internal error, not a user mistake.
func Verify(plan Plan, analyses []*classify.Analysis) error {
	seen := make(map[int]bool, len(analyses))
	prev := -1
	for _, d := range plan.Documents {
		if len(d.Pages) == 0 {
			return fmt.Errorf("empty document in plan")
		}
		for _, idx := range d.Pages {
			if idx <= prev {
				return fmt.Errorf("page %d out of capture order", idx)
			}
			if seen[idx] {
				return fmt.Errorf("page %d appears twice", idx)
			}
			seen[idx] = true
			prev = idx
		}
	}
	for _, dp := range plan.Dropped {
		if seen[dp.Index] {
			return fmt.Errorf("dropped page %d also appears in a document", dp.Index)
		}
		seen[dp.Index] = true
	}
	for _, a := range analyses {
		if !seen[a.Index] {
			return fmt.Errorf("page %d missing from plan", a.Index)
		}
	}
	if len(seen) != len(analyses) {
		return fmt.Errorf("plan covers %d pages, batch has %d", len(seen), len(analyses))
	}
	return nil
}
