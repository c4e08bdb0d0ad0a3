package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/barcode"
	"github.com/MeKo-Tech/docsplit/internal/classify"
	"github.com/MeKo-Tech/docsplit/internal/enhance"
	"github.com/MeKo-Tech/docsplit/internal/finish"
	"github.com/MeKo-Tech/docsplit/internal/segment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// stubClassifier maps capture indices to canned signals. Unlisted pages
// classify as ordinary content.
type stubClassifier struct {
	blankAt  map[int]bool
	nilAt    map[int]bool
	markerAt map[int]string
}

func (s *stubClassifier) Classify(_ context.Context, pageID uuid.UUID, index int, img image.Image) *classify.Analysis {
	if s.nilAt[index] {
		return nil
	}
	a := &classify.Analysis{PageID: pageID, Index: index, Corrected: img}
	if s.blankAt[index] {
		a.Blank = classify.BlankResult{IsBlank: true, Confidence: 1}
	}
	if payload, ok := s.markerAt[index]; ok {
		a.Barcodes = append(a.Barcodes, barcode.Result{Value: payload, Type: barcode.FormatQR})
	}
	return a
}

type stubEnhancer struct {
	failAt map[int]bool

	mu    sync.Mutex
	calls int
}

func (s *stubEnhancer) Enhance(_ context.Context, img image.Image) (image.Image, enhance.Report, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.mu.Unlock()
	if s.failAt[call] {
		return nil, enhance.Report{}, errors.New("lens cap on")
	}
	return img, enhance.Report{}, nil
}

// stubFinisher records finished documents without touching the filesystem.
type stubFinisher struct {
	mu       sync.Mutex
	docs     []finish.Document
	features []finish.Features
	failDocs map[int]int // document number -> remaining failures
}

func (s *stubFinisher) Finish(_ context.Context, doc finish.Document, features finish.Features) (finish.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	s.features = append(s.features, features)
	if s.failDocs[doc.Number] > 0 {
		s.failDocs[doc.Number]--
		return finish.Artifact{}, errors.New("disk full")
	}
	return finish.Artifact{
		DocumentID: doc.ID,
		Number:     doc.Number,
		Name:       fmt.Sprintf("doc-%03d", doc.Number),
		PageCount:  len(doc.Pages),
	}, nil
}

func (s *stubFinisher) finished() []finish.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]finish.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

func testImages(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = image.NewRGBA(image.Rect(0, 0, 4, 4))
	}
	return out
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 2
	opts.FinishWorkers = 2
	return opts
}

func newTestRunner(opts Options, c PageClassifier, f DocumentFinisher) *Runner {
	return NewRunner(opts, &stubEnhancer{}, c, f, nil)
}

func TestRunnerHappyPathSplitsOnBlank(t *testing.T) {
	classifier := &stubClassifier{blankAt: map[int]bool{3: true}}
	finisher := &stubFinisher{}
	r := newTestRunner(testOptions(), classifier, finisher)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(7)})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, job.State())
	require.NoError(t, job.Err())

	s := job.Snapshot()
	assert.Equal(t, 7, s.Captured)
	assert.Equal(t, 7, s.Analyzed)
	assert.Equal(t, 2, s.Documents)
	assert.Equal(t, 2, s.Finished)
	assert.InDelta(t, 1, s.Progress, 1e-9)
	assert.Empty(t, s.Warnings)

	arts := job.Artifacts()
	require.Len(t, arts, 2)
	pages := 0
	for _, a := range arts {
		pages += a.PageCount
	}
	// The blank separator stays in the second document by default.
	assert.Equal(t, 7, pages)
}

func TestRunnerPreservesCaptureOrder(t *testing.T) {
	classifier := &stubClassifier{}
	finisher := &stubFinisher{}
	opts := testOptions()
	opts.Workers = 4
	r := newTestRunner(opts, classifier, finisher)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(20)})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, job.State())

	docs := finisher.finished()
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Pages, 20)
	for i, p := range docs[0].Pages {
		assert.Equal(t, i, p.Index)
	}
}

func TestRunnerClassifierNilFallsBackToDegraded(t *testing.T) {
	classifier := &stubClassifier{nilAt: map[int]bool{2: true}}
	finisher := &stubFinisher{}
	r := newTestRunner(testOptions(), classifier, finisher)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(5)})
	require.NoError(t, err)

	// The page is carried forward, the job completes with a warning.
	assert.Equal(t, StateCompletedWithWarnings, job.State())
	docs := finisher.finished()
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Pages, 5)

	s := job.Snapshot()
	require.NotEmpty(t, s.Warnings)
	assert.Equal(t, "classify", s.Warnings[0].Stage)
	assert.Equal(t, 2, s.Warnings[0].Page)
}

func TestRunnerEnhancementFailureKeepsRawPage(t *testing.T) {
	classifier := &stubClassifier{}
	finisher := &stubFinisher{}
	opts := testOptions()
	opts.Workers = 1 // deterministic call order for failAt
	r := NewRunner(opts, &stubEnhancer{failAt: map[int]bool{1: true}}, classifier, finisher, nil)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(3)})
	require.NoError(t, err)

	assert.Equal(t, StateCompletedWithWarnings, job.State())
	docs := finisher.finished()
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Pages, 3)

	s := job.Snapshot()
	require.Len(t, s.Warnings, 1)
	assert.Equal(t, "enhance", s.Warnings[0].Stage)
}

type blockingSource struct {
	name    string
	release chan struct{}
}

func (s *blockingSource) Name() string { return s.name }

func (s *blockingSource) Capture(ctx context.Context, _ chan<- RawPage) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sizedBlockingSource struct {
	blockingSource
	pages int
}

func (s *sizedBlockingSource) ExpectedPages() int { return s.pages }

// The snapshot returned by Start must already carry the expected page
// count; callers read it before the supervising goroutine gets scheduled.
func TestStartExposesExpectedPagesImmediately(t *testing.T) {
	r := newTestRunner(testOptions(), &stubClassifier{}, &stubFinisher{})

	src := &sizedBlockingSource{
		blockingSource: blockingSource{name: "scanner", release: make(chan struct{})},
		pages:          3,
	}
	job, err := r.Start(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Snapshot().Expected)

	close(src.release)
	require.NoError(t, job.Wait(context.Background()))
}

func TestRunnerSourceBusy(t *testing.T) {
	classifier := &stubClassifier{}
	r := newTestRunner(testOptions(), classifier, &stubFinisher{})

	src := &blockingSource{name: "scanner", release: make(chan struct{})}
	job, err := r.Start(context.Background(), src)
	require.NoError(t, err)

	_, err = r.Start(context.Background(), &blockingSource{name: "scanner", release: make(chan struct{})})
	require.ErrorIs(t, err, ErrSourceBusy)

	// A different source is admitted immediately.
	other, err := r.Start(context.Background(), &SliceSource{SourceName: "tray", Images: testImages(1)})
	require.NoError(t, err)
	require.NoError(t, other.Wait(context.Background()))

	close(src.release)
	require.NoError(t, job.Wait(context.Background()))

	// The source is free again after the job terminates.
	again, err := r.Start(context.Background(), &SliceSource{SourceName: "scanner", Images: testImages(1)})
	require.NoError(t, err)
	require.NoError(t, again.Wait(context.Background()))
}

func TestRunnerCancellation(t *testing.T) {
	classifier := &stubClassifier{}
	r := newTestRunner(testOptions(), classifier, &stubFinisher{})

	src := &blockingSource{name: "scanner", release: make(chan struct{})}
	job, err := r.Start(context.Background(), src)
	require.NoError(t, err)

	require.NoError(t, r.Cancel(job.ID.String()))
	require.NoError(t, job.Wait(context.Background()))
	assert.Equal(t, StateCancelled, job.State())
}

func TestRunnerCancelUnknownJob(t *testing.T) {
	r := newTestRunner(testOptions(), &stubClassifier{}, &stubFinisher{})
	require.ErrorIs(t, r.Cancel("nope"), ErrUnknownJob)
	_, err := r.Job("nope")
	require.ErrorIs(t, err, ErrUnknownJob)
}

type failingSource struct {
	pages int // pages delivered before the failure
}

func (s *failingSource) Name() string { return "flaky" }

func (s *failingSource) Capture(ctx context.Context, out chan<- RawPage) error {
	for range s.pages {
		select {
		case out <- RawPage{ID: uuid.New(), Captured: time.Now(), Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.New("paper jam")
}

func TestRunnerCaptureFailureWithoutPagesFails(t *testing.T) {
	r := newTestRunner(testOptions(), &stubClassifier{}, &stubFinisher{})
	job, err := r.Run(context.Background(), &failingSource{pages: 0})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, job.State())
	var ce *CaptureError
	require.ErrorAs(t, job.Err(), &ce)
}

func TestRunnerCaptureFailureWithPagesContinues(t *testing.T) {
	finisher := &stubFinisher{}
	r := newTestRunner(testOptions(), &stubClassifier{}, finisher)
	job, err := r.Run(context.Background(), &failingSource{pages: 3})
	require.NoError(t, err)

	assert.Equal(t, StateCompletedWithWarnings, job.State())
	require.NoError(t, job.Err())

	docs := finisher.finished()
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Pages, 3)

	s := job.Snapshot()
	require.NotEmpty(t, s.Warnings)
	assert.Equal(t, "capture", s.Warnings[0].Stage)
}

func TestRunnerFinishingRetriesWithReducedFeatures(t *testing.T) {
	classifier := &stubClassifier{blankAt: map[int]bool{2: true}}
	finisher := &stubFinisher{failDocs: map[int]int{1: 1}} // first attempt of doc 1 fails
	r := newTestRunner(testOptions(), classifier, finisher)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(4)})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, job.State())
	assert.Len(t, job.Artifacts(), 2)

	finisher.mu.Lock()
	defer finisher.mu.Unlock()
	var reduced int
	for i, doc := range finisher.docs {
		if doc.Number == 1 && finisher.features[i] == (finish.Features{}) {
			reduced++
		}
	}
	assert.Equal(t, 1, reduced)
}

func TestRunnerFinishingFailureIsolatedPerDocument(t *testing.T) {
	classifier := &stubClassifier{blankAt: map[int]bool{2: true}}
	finisher := &stubFinisher{failDocs: map[int]int{1: 2}} // both attempts of doc 1 fail
	r := newTestRunner(testOptions(), classifier, finisher)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(4)})
	require.NoError(t, err)

	assert.Equal(t, StateCompletedWithWarnings, job.State())
	arts := job.Artifacts()
	require.Len(t, arts, 1)
	assert.Equal(t, 2, arts[0].Number)

	s := job.Snapshot()
	require.Len(t, s.Warnings, 1)
	assert.Equal(t, "finish", s.Warnings[0].Stage)
	assert.Equal(t, 1, s.Warnings[0].Document)
}

func TestRunnerMarkerSplitAndDrop(t *testing.T) {
	classifier := &stubClassifier{markerAt: map[int]string{2: "DOC-START-2"}}
	finisher := &stubFinisher{}
	opts := testOptions()
	opts.Separation.BarcodePattern = "^DOC-START-"
	opts.Separation.ExcludeMarkerPages = true
	r := newTestRunner(opts, classifier, finisher)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(5)})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, job.State())

	docs := finisher.finished()
	require.Len(t, docs, 2)
	// Finishing runs in parallel; completion order is not document order.
	byNumber := make(map[int]finish.Document, len(docs))
	for _, d := range docs {
		byNumber[d.Number] = d
	}
	require.Len(t, byNumber, 2)
	assert.Len(t, byNumber[1].Pages, 2)
	assert.Len(t, byNumber[2].Pages, 2)
	assert.Equal(t, string(segment.TriggerBarcode), byNumber[2].Trigger)
}

func TestRunnerAllPagesDropped(t *testing.T) {
	classifier := &stubClassifier{blankAt: map[int]bool{0: true, 1: true}}
	opts := testOptions()
	opts.Separation.DeleteBlankPages = true
	r := newTestRunner(opts, classifier, &stubFinisher{})

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(2)})
	require.NoError(t, err)

	assert.Equal(t, StateCompletedWithWarnings, job.State())
	assert.Empty(t, job.Artifacts())
	s := job.Snapshot()
	require.NotEmpty(t, s.Warnings)
	assert.Contains(t, s.Warnings[len(s.Warnings)-1].Message, "every page was dropped")
}

type stubReviewer struct {
	revised [][]int
	err     error
}

func (s *stubReviewer) Review(context.Context, segment.Plan) ([][]int, error) {
	return s.revised, s.err
}

func TestRunnerReviewGateAppliesRevision(t *testing.T) {
	classifier := &stubClassifier{blankAt: map[int]bool{2: true}}
	finisher := &stubFinisher{}
	opts := testOptions()
	opts.Separation.AllowManualAdjustment = true
	// The operator merges everything back into one document.
	reviewer := &stubReviewer{revised: [][]int{{0, 1, 2, 3}}}
	r := NewRunner(opts, &stubEnhancer{}, classifier, finisher, reviewer)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(4)})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, job.State())

	docs := finisher.finished()
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Pages, 4)
}

func TestRunnerReviewGateRejectsInvalidRevision(t *testing.T) {
	classifier := &stubClassifier{blankAt: map[int]bool{2: true}}
	finisher := &stubFinisher{}
	opts := testOptions()
	opts.Separation.AllowManualAdjustment = true
	// The revision loses page 3: rejected, proposal kept.
	reviewer := &stubReviewer{revised: [][]int{{0, 1, 2}}}
	r := NewRunner(opts, &stubEnhancer{}, classifier, finisher, reviewer)

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(4)})
	require.NoError(t, err)
	require.Equal(t, StateCompletedWithWarnings, job.State())

	docs := finisher.finished()
	require.Len(t, docs, 2)
	s := job.Snapshot()
	require.NotEmpty(t, s.Warnings)
	assert.Contains(t, s.Warnings[0].Message, "revision rejected")
}

func TestRunnerWritesJobReport(t *testing.T) {
	classifier := &stubClassifier{blankAt: map[int]bool{2: true}}
	opts := testOptions()
	opts.ReportDir = t.TempDir()
	opts.Separation.DeleteBlankPages = true
	r := newTestRunner(opts, classifier, &stubFinisher{})

	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(5)})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, job.State())

	path := filepath.Join(opts.ReportDir, "job-"+job.ID.String()[:8]+".yaml")
	data, err := os.ReadFile(path) //nolint:gosec // test-controlled path
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, yaml.Unmarshal(data, &rep))
	assert.Equal(t, job.ID.String(), rep["job"])
	assert.Equal(t, 5, rep["pages"])
	docs, ok := rep["documents"].([]any)
	require.True(t, ok)
	assert.Len(t, docs, 2)
	dropped, ok := rep["dropped_pages"].([]any)
	require.True(t, ok)
	assert.Len(t, dropped, 1)
}

func TestRunnerJobsListsSnapshots(t *testing.T) {
	r := newTestRunner(testOptions(), &stubClassifier{}, &stubFinisher{})
	job, err := r.Run(context.Background(), &SliceSource{Images: testImages(1)})
	require.NoError(t, err)

	all := r.Jobs()
	require.Len(t, all, 1)
	assert.Equal(t, job.ID.String(), all[0].ID)

	got, err := r.Job(job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
}
