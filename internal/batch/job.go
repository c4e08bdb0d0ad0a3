package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/finish"
	"github.com/google/uuid"
)

// State is a batch job's lifecycle state. Transitions are monotonic along
// the processing order; only the terminal Failed and Cancelled states are
// reachable from any non-terminal state.
type State string

const (
	StatePending               State = "pending"
	StateCapturing             State = "capturing"
	StateAnalyzing             State = "analyzing"
	StateSegmenting            State = "segmenting"
	StateAwaitingReview        State = "awaiting-review"
	StateFinishing             State = "finishing"
	StateCompleted             State = "completed"
	StateCompletedWithWarnings State = "completed-with-warnings"
	StateFailed                State = "failed"
	StateCancelled             State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCompletedWithWarnings, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// order positions the non-terminal states along the pipeline.
var order = map[State]int{
	StatePending:        0,
	StateCapturing:      1,
	StateAnalyzing:      2,
	StateSegmenting:     3,
	StateAwaitingReview: 4,
	StateFinishing:      5,
}

// canTransition enforces monotonic forward movement plus the two terminal
// escape hatches.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	if to == StateCompleted || to == StateCompletedWithWarnings {
		return from == StateFinishing || from == StateSegmenting
	}
	fo, ok1 := order[from]
	to2, ok2 := order[to]
	return ok1 && ok2 && to2 > fo
}

// Warning is one entry of the structured job report. Page and Document are
// -1 when the warning is not tied to one.
type Warning struct {
	Stage    string `json:"stage" yaml:"stage"`
	Page     int    `json:"page" yaml:"page"`
	Document int    `json:"document" yaml:"document"`
	Message  string `json:"message" yaml:"message"`
}

// Status is a point-in-time snapshot of a job for the status surface.
type Status struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	State     State     `json:"state"`
	Progress  float64   `json:"progress"` // [0,1], or -1 when total is unknown
	Expected  int       `json:"expected_pages"`
	Captured  int       `json:"captured_pages"`
	Analyzed  int       `json:"analyzed_pages"`
	Documents int       `json:"documents"`
	Finished  int       `json:"finished_documents"`
	Warnings  []Warning `json:"warnings,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

// Job tracks one batch through the pipeline. All mutation goes through the
// runner; external callers observe via Snapshot and control via Cancel.
type Job struct {
	ID     uuid.UUID
	Source string

	mu            sync.Mutex
	state         State
	expected      int // -1 while unknown
	captured      int
	analyzed      int
	documents     int
	finished      int
	finishedPages int
	warnings      []Warning
	err           error
	artifacts     []finish.Artifact
	createdAt     time.Time
	endedAt       time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(source string) *Job {
	return &Job{
		ID:        uuid.New(),
		Source:    source,
		state:     StatePending,
		expected:  -1,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// setState applies a transition, returning an error on violations. Illegal
// transitions indicate a runner bug, so callers treat them as fatal.
func (j *Job) setState(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, to) {
		return fmt.Errorf("illegal state transition %s -> %s", j.state, to)
	}
	j.state = to
	if to.Terminal() {
		j.endedAt = time.Now()
	}
	return nil
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the job's terminal error, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Artifacts returns the artifacts persisted so far.
func (j *Job) Artifacts() []finish.Artifact {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]finish.Artifact, len(j.artifacts))
	copy(out, j.artifacts)
	return out
}

// Cancel requests cooperative cancellation: in-flight page operations
// finish, nothing new is admitted, segmentation and finishing are skipped.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job terminates or ctx expires.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) addWarning(w Warning) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.warnings = append(j.warnings, w)
}

func (j *Job) setExpected(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.expected = n
}

func (j *Job) incCaptured() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.captured++
}

func (j *Job) incAnalyzed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.analyzed++
}

func (j *Job) setDocuments(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.documents = n
}

func (j *Job) addArtifact(a finish.Artifact) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.artifacts = append(j.artifacts, a)
	j.finished++
	j.finishedPages += a.PageCount
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	_ = j.setState(StateFailed)
}

// progressLocked implements the progress contract: while the expected page
// count is known, progress is (pages analyzed + pages finished) over twice
// the expected count; otherwise -1 and callers fall back to the monotonic
// counters in the snapshot.
func (j *Job) progressLocked() float64 {
	if j.state == StateCompleted || j.state == StateCompletedWithWarnings {
		return 1
	}
	if j.expected <= 0 {
		return -1
	}
	p := float64(j.analyzed+j.finishedPages) / float64(2*j.expected)
	if p > 1 {
		p = 1
	}
	return p
}

// Snapshot returns a copy of the job's observable state.
func (j *Job) Snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	warnings := make([]Warning, len(j.warnings))
	copy(warnings, j.warnings)

	s := Status{
		ID:        j.ID.String(),
		Source:    j.Source,
		State:     j.state,
		Progress:  j.progressLocked(),
		Expected:  j.expected,
		Captured:  j.captured,
		Analyzed:  j.analyzed,
		Documents: j.documents,
		Finished:  j.finished,
		Warnings:  warnings,
		CreatedAt: j.createdAt,
		EndedAt:   j.endedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}
