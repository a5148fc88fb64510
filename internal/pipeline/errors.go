package pipeline

import (
	"errors"
	"fmt"

	"github.com/code-100-precent/LingBook/internal/models"
)

var ErrNoSegments = errors.New("no text units produced")

// ErrorKind groups document-level failures.
type ErrorKind string

const (
	// KindInput covers a missing or unreadable source document.
	KindInput ErrorKind = "input"
	// KindSegmentation means non-empty input produced zero units.
	KindSegmentation ErrorKind = "segmentation"
	// KindMerge covers merge failures, including no completed units.
	KindMerge ErrorKind = "merge"
)

// PipelineError is a document-level failure tagged with the stage it hit.
// Cancellation is never wrapped in one.
type PipelineError struct {
	Document string       `json:"document"`
	Stage    models.Stage `json:"stage"`
	Kind     ErrorKind    `json:"kind"`
	Err      error        `json:"-"`
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s failed at %s (%s)", e.Document, e.Stage, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of a PipelineError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
