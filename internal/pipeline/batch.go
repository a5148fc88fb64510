package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/code-100-precent/LingBook/internal/merger"
	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/events"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"go.uber.org/zap"
)

// Job is one document to convert.
type Job struct {
	Source string `json:"source"`
	Output string `json:"output"`
}

var documentExtensions = map[string]bool{".txt": true, ".md": true}

// JobsFromFolder lists the text files in dir in name order and maps each
// to <outDir>/<stem>.wav.
func JobsFromFolder(dir, outDir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var jobs []Job
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !documentExtensions[strings.ToLower(ext)] {
			continue
		}
		jobs = append(jobs, Job{
			Source: filepath.Join(dir, e.Name()),
			Output: filepath.Join(outDir, strings.TrimSuffix(e.Name(), ext)+".wav"),
		})
	}
	return jobs, nil
}

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

type DocumentOutcome struct {
	Source    string        `json:"source"`
	Output    string        `json:"output,omitempty"`
	Title     string        `json:"title,omitempty"`
	Status    OutcomeStatus `json:"status"`
	Units     int           `json:"units"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"audioDuration"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
}

// Tally is the final account of a batch. Err is set when the batch stopped
// early: cancellation or an unrecoverable invariant violation.
type Tally struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Outcomes  []DocumentOutcome `json:"outcomes"`
	Started   time.Time         `json:"started"`
	Finished  time.Time         `json:"finished"`
	Err       error             `json:"-"`
}

// DocumentRunner is satisfied by *Orchestrator.
type DocumentRunner interface {
	Run(ctx context.Context, source, outputPath string, ref *models.VoiceReference, onProgress models.ProgressFunc) (*Result, error)
}

type BatchOptions struct {
	Bus        *events.EventBus
	Metrics    *Metrics
	OnProgress models.ProgressFunc
}

// BatchDriver runs documents one after another in list order. A failed
// document is recorded and the next one starts.
type BatchDriver struct {
	runner DocumentRunner
	opts   BatchOptions
}

func NewBatchDriver(runner DocumentRunner, opts BatchOptions) *BatchDriver {
	return &BatchDriver{runner: runner, opts: opts}
}

func (b *BatchDriver) Run(ctx context.Context, jobs []Job, ref *models.VoiceReference) Tally {
	tally := Tally{Started: time.Now(), Outcomes: make([]DocumentOutcome, 0, len(jobs))}
	logger.Info("batch started", zap.Int("documents", len(jobs)))

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			tally.Err = err
			break
		}
		b.publish(events.DocumentStarted, map[string]interface{}{
			"source": job.Source,
			"output": job.Output,
			"index":  i,
			"total":  len(jobs),
		})

		begin := time.Now()
		res, err := b.runner.Run(ctx, job.Source, job.Output, ref, b.opts.OnProgress)
		outcome := DocumentOutcome{Source: job.Source, Output: job.Output, Elapsed: time.Since(begin)}
		if res != nil {
			outcome.Title = res.Document.Title
			outcome.Units = len(res.Units)
			outcome.Completed = res.Completed
			outcome.Failed = res.Failed
			outcome.Attempts = res.Attempts
			outcome.Duration = res.Duration
		}

		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			outcome.Status = OutcomeCancelled
			outcome.Output = ""
			tally.Outcomes = append(tally.Outcomes, outcome)
			tally.Err = err
			logger.Warn("batch cancelled", zap.String("source", job.Source))
			break
		}

		if err != nil {
			outcome.Status = OutcomeFailed
			outcome.Output = ""
			outcome.Error = err.Error()
			var pe *PipelineError
			if errors.As(err, &pe) && pe.Document != "" {
				outcome.Title = pe.Document
			}
			tally.Failed++
			b.publish(events.DocumentFailed, map[string]interface{}{
				"source": job.Source,
				"title":  outcome.Title,
				"kind":   string(KindOf(err)),
				"error":  outcome.Error,
			})
			logger.Error("document failed, continuing with next",
				zap.String("source", job.Source),
				zap.Error(err))
		} else {
			outcome.Status = OutcomeSucceeded
			tally.Succeeded++
			b.publish(events.DocumentCompleted, map[string]interface{}{
				"source":    job.Source,
				"title":     outcome.Title,
				"output":    job.Output,
				"completed": outcome.Completed,
				"failed":    outcome.Failed,
			})
		}
		tally.Outcomes = append(tally.Outcomes, outcome)
		b.opts.Metrics.Observe(outcome)

		if errors.Is(err, merger.ErrIndexCollision) {
			tally.Err = err
			logger.Error("unrecoverable error, stopping batch", zap.Error(err))
			break
		}
	}

	tally.Finished = time.Now()
	logger.Info("batch finished",
		zap.Int("succeeded", tally.Succeeded),
		zap.Int("failed", tally.Failed),
		zap.Duration("elapsed", tally.Finished.Sub(tally.Started)),
		zap.Error(tally.Err))
	return tally
}

func (b *BatchDriver) publish(eventType string, data map[string]interface{}) {
	if b.opts.Bus == nil {
		return
	}
	b.opts.Bus.Publish(events.Event{Type: eventType, Data: data, Source: "batch"})
}
