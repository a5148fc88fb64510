package pipeline

import (
	"sync"

	"github.com/code-100-precent/LingBook/internal/models"
)

// Stage weights in percent of the whole document.
const (
	percentReading        = 0
	percentSegmenting     = 25
	percentSynthesisStart = 30
	percentSynthesisEnd   = 80
	percentMerging        = 80
	percentDone           = 100
)

// SynthesisPercent maps done/total units onto the synthesis span.
func SynthesisPercent(done, total int) float64 {
	if total <= 0 {
		return percentSynthesisStart
	}
	if done > total {
		done = total
	}
	span := float64(percentSynthesisEnd - percentSynthesisStart)
	return percentSynthesisStart + span*float64(done)/float64(total)
}

// reporter stamps events with the document title and serializes calls to
// the caller's callback, which may be reached from several workers.
type reporter struct {
	mu       sync.Mutex
	document string
	fn       models.ProgressFunc
	percent  float64
	// highest unit count reported; synthesis progress only moves forward
	unitsDone int
}

func newReporter(document string, fn models.ProgressFunc) *reporter {
	return &reporter{document: document, fn: fn}
}

func (r *reporter) stage(stage models.Stage, percent float64, message string) {
	r.emit(models.ProgressEvent{Stage: stage, Percent: percent, Message: message})
}

// unit drops counts at or below one already reported, since workers can
// reach the reporter out of order.
func (r *reporter) unit(done, total int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if done <= r.unitsDone {
		return
	}
	r.unitsDone = done
	r.emitLocked(models.ProgressEvent{
		Stage:   models.StageSynthesizing,
		Percent: SynthesisPercent(done, total),
		Current: done,
		Total:   total,
		Message: message,
	})
}

// warn keeps the current percent so warnings never move the bar.
func (r *reporter) warn(ev models.ProgressEvent) {
	ev.Warning = true
	r.emit(ev)
}

func (r *reporter) emit(ev models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(ev)
}

func (r *reporter) emitLocked(ev models.ProgressEvent) {
	ev.Document = r.document
	if ev.Warning {
		ev.Percent = r.percent
	} else {
		r.percent = ev.Percent
	}
	if r.fn != nil {
		r.fn(ev)
	}
}

func (r *reporter) rename(document string) {
	r.mu.Lock()
	r.document = document
	r.mu.Unlock()
}
