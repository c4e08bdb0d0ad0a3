package batch

import (
	"errors"
	"fmt"
)

// ErrSourceBusy is returned by Start when the capture source already has an
// active job; at most one job per source accepts pages at a time.
var ErrSourceBusy = errors.New("capture source already has an active job")

// ErrUnknownJob is returned for lookups of job ids the runner never issued.
var ErrUnknownJob = errors.New("unknown job")

// CaptureError wraps a terminal failure of the capture source. It fails the
// job only when nothing was captured; otherwise the captured pages still
// flow through segmentation and finishing.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture failed: %v", e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// PageError wraps a per-page enhancement or classification failure. Always
// non-fatal: the page is carried forward degraded.
type PageError struct {
	Page  int
	Stage string
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d %s failed: %v", e.Page, e.Stage, e.Err)
}
func (e *PageError) Unwrap() error { return e.Err }

// SegmentationError indicates the engine produced an invalid plan for valid
// input. This is an internal invariant violation and fatal to the job; the
// full input is logged for diagnosis.
type SegmentationError struct {
	Err error
}

func (e *SegmentationError) Error() string { return fmt.Sprintf("segmentation failed: %v", e.Err) }
func (e *SegmentationError) Unwrap() error { return e.Err }

// FinishingError wraps a per-document finishing failure after the reduced
// retry. Non-fatal to sibling documents.
type FinishingError struct {
	Document int
	Err      error
}

func (e *FinishingError) Error() string {
	return fmt.Sprintf("document %d finishing failed: %v", e.Document, e.Err)
}
func (e *FinishingError) Unwrap() error { return e.Err }
