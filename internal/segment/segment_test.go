package segment

import (
	"testing"

	"github.com/MeKo-Tech/docsplit/internal/barcode"
	"github.com/MeKo-Tech/docsplit/internal/classify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contentPage builds an analysis with a uniform fingerprint of the given
// shade, so fingerprint distance between pages equals |shadeA - shadeB|.
func contentPage(idx int, shade float64) *classify.Analysis {
	a := &classify.Analysis{PageID: uuid.New(), Index: idx}
	for i := range a.Fingerprint.Cells {
		a.Fingerprint.Cells[i] = shade
	}
	a.Fingerprint.Valid = true
	return a
}

func blankPage(idx int) *classify.Analysis {
	a := contentPage(idx, 1)
	a.Blank = classify.BlankResult{IsBlank: true, Confidence: 1}
	return a
}

func markerPage(idx int, payload string) *classify.Analysis {
	a := contentPage(idx, 0.5)
	a.Barcodes = []barcode.Result{{Type: barcode.FormatQR, Value: payload}}
	return a
}

func pages(n int) []*classify.Analysis {
	out := make([]*classify.Analysis, n)
	for i := range out {
		out[i] = contentPage(i, 0.5)
	}
	return out
}

func TestSegmentDisabledSingleDocument(t *testing.T) {
	analyses := pages(5)
	cfg := DefaultConfig()
	cfg.Enabled = false

	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)
	require.Len(t, plan.Documents, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, plan.Documents[0].Pages)
	assert.Equal(t, TriggerNone, plan.Documents[0].Trigger)
	assert.Empty(t, plan.Dropped)
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentNoSignalsEnabled(t *testing.T) {
	analyses := pages(4)
	cfg := DefaultConfig()
	cfg.UseBlankPages = false
	cfg.UseBarcodes = false
	cfg.UseContentAnalysis = false

	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)
	require.Len(t, plan.Documents, 1)
	assert.Len(t, plan.Documents[0].Pages, 4)
}

func TestSegmentBlankSeparatorsKept(t *testing.T) {
	// Nine pages with blank pages at capture indices 3 and 7. Blanks are
	// kept, so each one starts the document it separates.
	analyses := pages(9)
	analyses[3] = blankPage(3)
	analyses[7] = blankPage(7)

	cfg := DefaultConfig()
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 3)
	assert.Equal(t, []int{0, 1, 2}, plan.Documents[0].Pages)
	assert.Equal(t, []int{3, 4, 5, 6}, plan.Documents[1].Pages)
	assert.Equal(t, []int{7, 8}, plan.Documents[2].Pages)
	assert.Equal(t, TriggerNone, plan.Documents[0].Trigger)
	assert.Equal(t, TriggerBlank, plan.Documents[1].Trigger)
	assert.Equal(t, TriggerBlank, plan.Documents[2].Trigger)
	assert.Empty(t, plan.Dropped)
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentBlankSeparatorsDeleted(t *testing.T) {
	analyses := pages(9)
	analyses[3] = blankPage(3)
	analyses[7] = blankPage(7)

	cfg := DefaultConfig()
	cfg.DeleteBlankPages = true
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 3)
	assert.Equal(t, []int{0, 1, 2}, plan.Documents[0].Pages)
	assert.Equal(t, []int{4, 5, 6}, plan.Documents[1].Pages)
	assert.Equal(t, []int{8}, plan.Documents[2].Pages)
	require.Len(t, plan.Dropped, 2)
	assert.Equal(t, DroppedPage{Index: 3, Reason: TriggerBlank}, plan.Dropped[0])
	assert.Equal(t, DroppedPage{Index: 7, Reason: TriggerBlank}, plan.Dropped[1])
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentBarcodeMarkers(t *testing.T) {
	analyses := pages(6)
	analyses[2] = markerPage(2, "DOC-START-7")
	analyses[4] = markerPage(4, "DOC-START-8")

	cfg := DefaultConfig()
	cfg.BarcodePattern = "^DOC-START-"
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 3)
	assert.Equal(t, []int{0, 1}, plan.Documents[0].Pages)
	assert.Equal(t, []int{2, 3}, plan.Documents[1].Pages)
	assert.Equal(t, []int{4, 5}, plan.Documents[2].Pages)
	assert.Equal(t, TriggerBarcode, plan.Documents[1].Trigger)
	assert.Equal(t, TriggerBarcode, plan.Documents[2].Trigger)
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentBarcodeMarkersExcluded(t *testing.T) {
	analyses := pages(6)
	analyses[2] = markerPage(2, "DOC-START-7")
	analyses[4] = markerPage(4, "DOC-START-8")

	cfg := DefaultConfig()
	cfg.BarcodePattern = "^DOC-START-"
	cfg.ExcludeMarkerPages = true
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 3)
	assert.Equal(t, []int{0, 1}, plan.Documents[0].Pages)
	assert.Equal(t, []int{3}, plan.Documents[1].Pages)
	assert.Equal(t, []int{5}, plan.Documents[2].Pages)
	require.Len(t, plan.Dropped, 2)
	assert.Equal(t, TriggerBarcode, plan.Dropped[0].Reason)
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentBarcodePatternFiltersPayloads(t *testing.T) {
	analyses := pages(4)
	// Payload that does not match the pattern must not separate.
	analyses[2] = markerPage(2, "INVOICE-123")

	cfg := DefaultConfig()
	cfg.BarcodePattern = "^DOC-START-"
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)
	require.Len(t, plan.Documents, 1)
}

func TestSegmentEmptyPatternMatchesAnyBarcode(t *testing.T) {
	analyses := pages(4)
	analyses[2] = markerPage(2, "anything")

	plan, err := Segment(analyses, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, plan.Documents, 2)
	assert.Equal(t, TriggerBarcode, plan.Documents[1].Trigger)
}

func TestSegmentInvalidPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BarcodePattern = "["
	_, err := Segment(pages(2), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid barcode pattern")
}

func TestSegmentBarcodeOutranksBlank(t *testing.T) {
	analyses := pages(4)
	both := blankPage(2)
	both.Barcodes = []barcode.Result{{Type: barcode.FormatQR, Value: "DOC-START-1"}}
	analyses[2] = both

	cfg := DefaultConfig()
	cfg.DeleteBlankPages = true // would drop if classified as blank separator
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 2)
	assert.Equal(t, TriggerBarcode, plan.Documents[1].Trigger)
	// Kept: barcode marker exclusion is off, blank deletion does not apply.
	assert.Equal(t, []int{2, 3}, plan.Documents[1].Pages)
	assert.Empty(t, plan.Dropped)
}

func TestSegmentContentDrift(t *testing.T) {
	analyses := []*classify.Analysis{
		contentPage(0, 0.2),
		contentPage(1, 0.25),
		contentPage(2, 0.9), // jump
		contentPage(3, 0.85),
	}

	cfg := DefaultConfig()
	cfg.UseBlankPages = false
	cfg.UseBarcodes = false
	cfg.UseContentAnalysis = true
	cfg.SimilarityThreshold = 0.5 // split when distance > 0.5

	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)
	require.Len(t, plan.Documents, 2)
	assert.Equal(t, []int{0, 1}, plan.Documents[0].Pages)
	assert.Equal(t, []int{2, 3}, plan.Documents[1].Pages)
	assert.Equal(t, TriggerContent, plan.Documents[1].Trigger)
}

func TestSegmentContentDriftComparesImmediatePredecessor(t *testing.T) {
	// Gradual drift where no adjacent step exceeds the threshold must not
	// split, even though first and last pages differ a lot.
	analyses := []*classify.Analysis{
		contentPage(0, 0.1),
		contentPage(1, 0.4),
		contentPage(2, 0.7),
		contentPage(3, 1.0),
	}

	cfg := DefaultConfig()
	cfg.UseBlankPages = false
	cfg.UseBarcodes = false
	cfg.UseContentAnalysis = true
	cfg.SimilarityThreshold = 0.5

	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)
	require.Len(t, plan.Documents, 1)
}

func TestSegmentDegradedPageNeverForcesContentSplit(t *testing.T) {
	analyses := []*classify.Analysis{
		contentPage(0, 0.1),
		{PageID: uuid.New(), Index: 1, Degraded: true}, // invalid fingerprint
		contentPage(2, 0.95),
	}

	cfg := DefaultConfig()
	cfg.UseBlankPages = false
	cfg.UseBarcodes = false
	cfg.UseContentAnalysis = true
	cfg.SimilarityThreshold = 0.5

	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)
	require.Len(t, plan.Documents, 1)
}

func TestSegmentMinimumPagesSuppression(t *testing.T) {
	// A blank right after the first page would close a one-page document;
	// with a two-page floor the boundary is absorbed instead.
	analyses := pages(5)
	analyses[1] = blankPage(1)
	analyses[3] = blankPage(3)

	cfg := DefaultConfig()
	cfg.MinimumPages = 2
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 2)
	assert.Equal(t, []int{0, 1, 2}, plan.Documents[0].Pages)
	assert.Equal(t, []int{3, 4}, plan.Documents[1].Pages)
	require.Len(t, plan.Suppressed, 1)
	assert.Equal(t, SuppressedBoundary{Before: 1, Signal: TriggerBlank}, plan.Suppressed[0])
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentSuppressedSeparatorStillDropped(t *testing.T) {
	analyses := pages(4)
	analyses[1] = blankPage(1)

	cfg := DefaultConfig()
	cfg.MinimumPages = 3
	cfg.DeleteBlankPages = true
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	// Boundary suppressed, but the blank page itself is still deleted.
	require.Len(t, plan.Documents, 1)
	assert.Equal(t, []int{0, 2, 3}, plan.Documents[0].Pages)
	require.Len(t, plan.Dropped, 1)
	assert.Equal(t, 1, plan.Dropped[0].Index)
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentTailExemptDefault(t *testing.T) {
	// Trailing document smaller than the floor survives by default.
	analyses := pages(5)
	analyses[4] = blankPage(4)

	cfg := DefaultConfig()
	cfg.MinimumPages = 2
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 2)
	assert.Equal(t, []int{4}, plan.Documents[1].Pages)
}

func TestSegmentTailMergedWhenEnforced(t *testing.T) {
	analyses := pages(5)
	analyses[4] = blankPage(4)

	cfg := DefaultConfig()
	cfg.MinimumPages = 2
	cfg.EnforceMinimumOnTail = true
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)

	require.Len(t, plan.Documents, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, plan.Documents[0].Pages)
	require.Len(t, plan.Suppressed, 1)
	assert.Equal(t, TriggerMinimum, plan.Suppressed[0].Signal)
	require.NoError(t, Verify(plan, analyses))
}

func TestSegmentDeterministic(t *testing.T) {
	analyses := pages(12)
	analyses[3] = blankPage(3)
	analyses[6] = markerPage(6, "DOC-START-1")
	analyses[9] = blankPage(9)

	cfg := DefaultConfig()
	cfg.MinimumPages = 2

	first, err := Segment(analyses, cfg)
	require.NoError(t, err)
	for range 10 {
		again, err := Segment(analyses, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestVerifyRejectsCorruptPlans(t *testing.T) {
	analyses := pages(3)

	tests := []struct {
		name string
		plan Plan
	}{
		{"missing page", Plan{Documents: []Boundary{{Pages: []int{0, 1}}}}},
		{"duplicate page", Plan{Documents: []Boundary{{Pages: []int{0, 1}}, {Pages: []int{1, 2}}}}},
		{"out of order", Plan{Documents: []Boundary{{Pages: []int{1, 0}}, {Pages: []int{2}}}}},
		{"empty document", Plan{Documents: []Boundary{{Pages: []int{0, 1, 2}}, {Pages: nil}}}},
		{"dropped twice", Plan{
			Documents: []Boundary{{Pages: []int{0, 1, 2}}},
			Dropped:   []DroppedPage{{Index: 2, Reason: TriggerBlank}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Verify(tt.plan, analyses))
		})
	}
}

func TestPlanPartitionCopies(t *testing.T) {
	plan := Plan{Documents: []Boundary{{Pages: []int{0, 1}}, {Pages: []int{2}}}}
	part := plan.Partition()
	require.Equal(t, [][]int{{0, 1}, {2}}, part)
	part[0][0] = 99
	assert.Equal(t, 0, plan.Documents[0].Pages[0])
}
