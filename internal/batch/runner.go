// Package batch drives a scanning session through capture, per-page
// analysis, segmentation and finishing, tolerating individual page
// failures and cooperative cancellation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/classify"
	"github.com/MeKo-Tech/docsplit/internal/enhance"
	"github.com/MeKo-Tech/docsplit/internal/finish"
	"github.com/MeKo-Tech/docsplit/internal/segment"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PageEnhancer corrects one page image; enhance.Enhancer implements it.
type PageEnhancer interface {
	Enhance(ctx context.Context, img image.Image) (image.Image, enhance.Report, error)
}

// PageClassifier analyzes one corrected page; classify.Classifier
// implements it. A nil result is treated as a classification failure.
type PageClassifier interface {
	Classify(ctx context.Context, pageID uuid.UUID, index int, img image.Image) *classify.Analysis
}

// DocumentFinisher persists one document; finish.Finisher implements it.
type DocumentFinisher interface {
	Finish(ctx context.Context, doc finish.Document, features finish.Features) (finish.Artifact, error)
}

// Options configures the runner.
type Options struct {
	Workers       int           // page analysis workers (0 = NumCPU)
	QueueDepth    int           // capture channel depth decoupling scan cadence from analysis
	PageTimeout   time.Duration // per-page enhance+classify budget
	FinishWorkers int           // parallel document finishing (0 = NumCPU)

	Separation segment.Config
	ReportDir  string // where job reports are written; empty disables reports

	Progress ProgressCallback
}

// DefaultOptions returns runner defaults.
func DefaultOptions() Options {
	return Options{
		Workers:       runtime.NumCPU(),
		QueueDepth:    16,
		PageTimeout:   30 * time.Second,
		FinishWorkers: runtime.NumCPU(),
		Separation:    segment.DefaultConfig(),
	}
}

// Runner supervises batch jobs. One supervising goroutine runs per job;
// at most one job per capture source is admitted at a time.
type Runner struct {
	opts       Options
	enhancer   PageEnhancer
	classifier PageClassifier
	finisher   DocumentFinisher
	reviewer   segment.Reviewer

	mu     sync.Mutex
	active map[string]*Job
	jobs   map[string]*Job
}

// NewRunner creates a Runner. reviewer may be nil; manual adjustment then
// auto-confirms proposals.
func NewRunner(opts Options, enhancer PageEnhancer, classifier PageClassifier,
	finisher DocumentFinisher, reviewer segment.Reviewer,
) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.FinishWorkers <= 0 {
		opts.FinishWorkers = runtime.NumCPU()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 16
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	if opts.Progress == nil {
		opts.Progress = NoOpProgressCallback{}
	}
	if reviewer == nil {
		reviewer = segment.AutoConfirm{}
	}
	return &Runner{
		opts:       opts,
		enhancer:   enhancer,
		classifier: classifier,
		finisher:   finisher,
		reviewer:   reviewer,
		active:     make(map[string]*Job),
		jobs:       make(map[string]*Job),
	}
}

// Start admits a job for the source and runs it asynchronously. It returns
// ErrSourceBusy while the source has an active job.
func (r *Runner) Start(ctx context.Context, source Source) (*Job, error) {
	r.mu.Lock()
	if _, busy := r.active[source.Name()]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSourceBusy, source.Name())
	}
	job := newJob(source.Name())
	// Expected pages are known before capture starts; set them here so the
	// snapshot returned to the caller already carries them.
	if sized, ok := source.(Sized); ok {
		job.setExpected(sized.ExpectedPages())
	}
	jctx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	r.active[source.Name()] = job
	r.jobs[job.ID.String()] = job
	r.mu.Unlock()

	go r.run(jctx, job, source)
	return job, nil
}

// Run is the synchronous variant of Start.
func (r *Runner) Run(ctx context.Context, source Source) (*Job, error) {
	job, err := r.Start(ctx, source)
	if err != nil {
		return nil, err
	}
	<-job.Done()
	return job, nil
}

// Jobs returns snapshots of every job the runner has seen.
func (r *Runner) Jobs() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// Job returns the snapshot for one job id.
func (r *Runner) Job(id string) (Status, error) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Status{}, ErrUnknownJob
	}
	return j.Snapshot(), nil
}

// Cancel requests cancellation of a job by id.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	j.Cancel()
	return nil
}

func (r *Runner) release(job *Job) {
	r.mu.Lock()
	if r.active[job.Source] == job {
		delete(r.active, job.Source)
	}
	r.mu.Unlock()
}

// run is the supervising goroutine for one job.
func (r *Runner) run(ctx context.Context, job *Job, source Source) {
	defer r.release(job)
	defer close(job.done)
	defer r.opts.Progress.OnComplete()

	log := slog.With("job", job.ID.String(), "source", job.Source)

	expected := job.Snapshot().Expected
	total := -1
	if expected > 0 {
		total = 2 * expected
	}
	r.opts.Progress.OnStart(total)

	analyses, capErr := r.captureAndAnalyze(ctx, job, source, total)

	if ctx.Err() != nil {
		log.Info("job cancelled", "analyzed", len(analyses))
		_ = job.setState(StateCancelled)
		return
	}
	if capErr != nil {
		if len(analyses) == 0 {
			log.Error("capture failed with no pages", "error", capErr)
			job.fail(&CaptureError{Err: capErr})
			return
		}
		// Already-captured pages still flow through the pipeline.
		log.Warn("capture terminated early, continuing with captured pages",
			"pages", len(analyses), "error", capErr)
		job.addWarning(Warning{
			Stage: "capture", Page: -1, Document: -1,
			Message: (&CaptureError{Err: capErr}).Error(),
		})
	}

	plan, ok := r.segmentJob(ctx, job, analyses, log)
	if !ok {
		return
	}
	if ctx.Err() != nil {
		_ = job.setState(StateCancelled)
		return
	}

	r.finishJob(ctx, job, plan, analyses, total, log)

	if ctx.Err() != nil {
		_ = job.setState(StateCancelled)
		return
	}

	r.writeReport(job, plan, log)

	if len(job.Snapshot().Warnings) > 0 {
		_ = job.setState(StateCompletedWithWarnings)
	} else {
		_ = job.setState(StateCompleted)
	}
	log.Info("job finished", "state", job.State(), "documents", job.Snapshot().Finished)
}

// captureAndAnalyze overlaps capture with per-page analysis: each page is
// enhanced and classified as soon as it arrives, independent of later
// pages. It returns the analyses ordered by capture index.
func (r *Runner) captureAndAnalyze(ctx context.Context, job *Job, source Source, total int) ([]*classify.Analysis, error) {
	_ = job.setState(StateCapturing)

	captured := make(chan RawPage, r.opts.QueueDepth)
	captureErr := make(chan error, 1)
	go func() {
		captureErr <- source.Capture(ctx, captured)
		close(captured)
	}()

	// A single distributor assigns capture indices in arrival order; the
	// workers behind it may then finish pages in any order.
	indexed := make(chan RawPage)
	go func() {
		defer close(indexed)
		idx := 0
		for page := range captured {
			page.Index = idx
			idx++
			job.incCaptured()
			select {
			case indexed <- page:
			case <-ctx.Done():
				// Drain so the capture goroutine can exit.
				for range captured { //nolint:revive // intentional drain
				}
				return
			}
		}
	}()

	var mu sync.Mutex
	byIndex := make(map[int]*classify.Analysis)

	var wg sync.WaitGroup
	for range r.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range indexed {
				a := r.analyzePage(ctx, job, page)
				mu.Lock()
				// Write-once: each index is stored exactly once.
				byIndex[page.Index] = a
				done := len(byIndex)
				mu.Unlock()
				job.incAnalyzed()
				r.opts.Progress.OnProgress(done, total)
			}
		}()
	}

	capErr := <-captureErr
	_ = job.setState(StateAnalyzing)
	wg.Wait()

	ordered := make([]*classify.Analysis, 0, len(byIndex))
	for i := 0; i < len(byIndex); i++ {
		if a, ok := byIndex[i]; ok {
			ordered = append(ordered, a)
		}
	}
	if errors.Is(capErr, context.Canceled) {
		capErr = nil
	}
	return ordered, capErr
}

// analyzePage runs enhance+classify for one page under the page timeout.
// Failures never abort the batch: the page is carried forward with a
// neutral degraded analysis and a recorded warning.
func (r *Runner) analyzePage(ctx context.Context, job *Job, page RawPage) *classify.Analysis {
	pctx, cancel := context.WithTimeout(ctx, r.opts.PageTimeout)
	defer cancel()

	corrected := page.Image
	if r.enhancer != nil {
		img, _, err := r.enhancer.Enhance(pctx, page.Image)
		if err != nil {
			job.addWarning(Warning{
				Stage: "enhance", Page: page.Index, Document: -1,
				Message: (&PageError{Page: page.Index, Stage: "enhancement", Err: err}).Error(),
			})
		} else {
			corrected = img
		}
	}

	var a *classify.Analysis
	if r.classifier != nil {
		a = r.classifier.Classify(pctx, page.ID, page.Index, corrected)
	}
	if a == nil {
		err := &PageError{Page: page.Index, Stage: "classification", Err: errors.New("classifier returned no analysis")}
		job.addWarning(Warning{Stage: "classify", Page: page.Index, Document: -1, Message: err.Error()})
		return classify.Degraded(page.ID, page.Index, corrected, err.Error())
	}
	for _, w := range a.Warnings {
		job.addWarning(Warning{Stage: "classify", Page: page.Index, Document: -1, Message: w})
	}
	return a
}

// segmentJob runs the boundary engine and the optional manual-review gate.
// The returned bool is false when the job terminated.
func (r *Runner) segmentJob(ctx context.Context, job *Job, analyses []*classify.Analysis, log *slog.Logger) (segment.Plan, bool) {
	if err := job.setState(StateSegmenting); err != nil {
		job.fail(err)
		return segment.Plan{}, false
	}

	plan, err := segment.Segment(analyses, r.opts.Separation)
	if err == nil {
		err = segment.Verify(plan, analyses)
	}
	if err != nil {
		// Invariant violation: log the full input for diagnosis.
		log.Error("segmentation failed on valid input",
			"error", err,
			"pages", len(analyses),
			"config", fmt.Sprintf("%+v", r.opts.Separation),
			"plan", fmt.Sprintf("%+v", plan))
		job.fail(&SegmentationError{Err: err})
		return segment.Plan{}, false
	}

	for _, s := range plan.Suppressed {
		job.addWarning(Warning{
			Stage: "segment", Page: s.Before, Document: -1,
			Message: fmt.Sprintf("%s boundary before page %d suppressed by minimum-pages floor", s.Signal, s.Before),
		})
	}

	if r.opts.Separation.AllowManualAdjustment {
		if err := job.setState(StateAwaitingReview); err != nil {
			job.fail(err)
			return segment.Plan{}, false
		}
		revised, err := r.reviewer.Review(ctx, plan)
		switch {
		case err != nil:
			job.addWarning(Warning{
				Stage: "segment", Page: -1, Document: -1,
				Message: fmt.Sprintf("manual review failed (%v), keeping proposal", err),
			})
		case segment.ValidateRevision(plan, revised, r.opts.Separation) != nil:
			verr := segment.ValidateRevision(plan, revised, r.opts.Separation)
			job.addWarning(Warning{
				Stage: "segment", Page: -1, Document: -1,
				Message: fmt.Sprintf("revision rejected (%v), keeping proposal", verr),
			})
		default:
			plan = segment.ApplyRevision(plan, revised)
		}
	}

	return plan, true
}

// finishJob runs document finishing in parallel. Sibling documents are
// isolated: a failed document is retried once with reduced features and
// then reported, never failing the job.
func (r *Runner) finishJob(ctx context.Context, job *Job, plan segment.Plan, analyses []*classify.Analysis, total int, log *slog.Logger) {
	if err := job.setState(StateFinishing); err != nil {
		job.fail(err)
		return
	}
	job.setDocuments(len(plan.Documents))
	if len(plan.Documents) == 0 {
		job.addWarning(Warning{
			Stage: "segment", Page: -1, Document: -1,
			Message: "no documents to finish, every page was dropped",
		})
		return
	}

	byIndex := make(map[int]*classify.Analysis, len(analyses))
	for _, a := range analyses {
		byIndex[a.Index] = a
	}
	batchName := job.ID.String()[:8]

	var progress atomic.Int64
	progress.Store(int64(job.Snapshot().Analyzed))

	g := new(errgroup.Group)
	g.SetLimit(r.opts.FinishWorkers)
	for i, boundary := range plan.Documents {
		g.Go(func() error {
			doc := buildDocument(batchName, i+1, boundary, byIndex)
			art, err := r.finisher.Finish(ctx, doc, finish.AllFeatures())
			if err != nil && ctx.Err() == nil {
				log.Warn("document finishing failed, retrying with reduced features",
					"document", i+1, "error", err)
				art, err = r.finisher.Finish(ctx, doc, finish.Features{})
			}
			if err != nil {
				ferr := &FinishingError{Document: i + 1, Err: err}
				job.addWarning(Warning{Stage: "finish", Page: -1, Document: i + 1, Message: ferr.Error()})
				return nil // sibling documents keep going
			}
			job.addArtifact(art)
			r.opts.Progress.OnProgress(int(progress.Add(int64(art.PageCount))), total)
			return nil
		})
	}
	_ = g.Wait()
}

func buildDocument(batch string, number int, b segment.Boundary, byIndex map[int]*classify.Analysis) finish.Document {
	doc := finish.Document{
		ID:      uuid.New(),
		Number:  number,
		Batch:   batch,
		Trigger: string(b.Trigger),
	}
	for _, idx := range b.Pages {
		a := byIndex[idx]
		if a == nil {
			continue
		}
		doc.Pages = append(doc.Pages, finish.Page{
			Index:    idx,
			Image:    a.Corrected,
			Text:     a.OCRText,
			Barcodes: a.Barcodes,
		})
	}
	return doc
}
