package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/code-100-precent/LingBook/internal/merger"
	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/internal/segmenter"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DocumentReader loads a document from a file path or URL.
type DocumentReader interface {
	Read(ctx context.Context, source string) (*models.Document, error)
}

type Segmenter interface {
	Segment(content string, maxUnitLength int) []models.TextUnit
}

// UnitSynthesizer returns a unit whose status carries the outcome; the error
// is reserved for cancellation.
type UnitSynthesizer interface {
	Synthesize(ctx context.Context, unit models.TextUnit, ref *models.VoiceReference) (*models.AudioUnit, error)
}

// WorkerFactory builds the per-document synthesizer. warn receives
// substitution warnings such as a voice fallback.
type WorkerFactory func(warn models.ProgressFunc) UnitSynthesizer

type AudioMerger interface {
	Merge(ctx context.Context, units []*models.AudioUnit, outputPath string) (*merger.Artifact, error)
}

type Options struct {
	MaxUnitLength int
	// Workers > 1 synthesizes units concurrently; merge order is unaffected.
	Workers       int
	KeepTempFiles bool
}

// Result is the outcome of one successful document run.
type Result struct {
	Document   *models.Document
	Units      []*models.AudioUnit
	OutputPath string
	Completed  int
	Failed     int
	Skipped    int
	Attempts   int
	Duration   time.Duration
}

// Orchestrator runs one document through read, segment, synthesize, merge.
type Orchestrator struct {
	reader    DocumentReader
	segmenter Segmenter
	newWorker WorkerFactory
	merger    AudioMerger
	opts      Options
}

func NewOrchestrator(reader DocumentReader, seg Segmenter, newWorker WorkerFactory, m AudioMerger, opts Options) *Orchestrator {
	if opts.MaxUnitLength <= 0 {
		opts.MaxUnitLength = segmenter.DefaultMaxUnitLength
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Orchestrator{reader: reader, segmenter: seg, newWorker: newWorker, merger: m, opts: opts}
}

// Run converts source into one audio file at outputPath. Document-level
// failures come back as *PipelineError; a cancelled ctx comes back as the
// context error.
func (o *Orchestrator) Run(ctx context.Context, source, outputPath string, ref *models.VoiceReference, onProgress models.ProgressFunc) (*Result, error) {
	rep := newReporter(source, onProgress)
	started := time.Now()

	rep.stage(models.StageReading, percentReading, "reading "+source)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := o.reader.Read(ctx, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, o.fail(rep, nil, source, models.StageReading, KindInput, err)
	}
	rep.rename(doc.Title)
	if err := doc.Transition(models.DocumentProcessing); err != nil {
		return nil, err
	}
	log := logger.Lg.WithOptions(zap.AddCallerSkip(-1)).With(zap.String("document", doc.Title), zap.String("document_id", doc.ID))

	rep.stage(models.StageSegmenting, percentSegmenting, "segmenting text")
	units := o.segmenter.Segment(doc.Content, o.opts.MaxUnitLength)
	if len(units) == 0 {
		return nil, o.fail(rep, doc, doc.Title, models.StageSegmenting, KindSegmentation, ErrNoSegments)
	}
	doc.Units = units
	log.Info("document segmented", zap.Int("units", len(units)), zap.Int("max_unit_length", o.opts.MaxUnitLength))

	rep.stage(models.StageSynthesizing, percentSynthesisStart, fmt.Sprintf("synthesizing %d units", len(units)))
	audio, err := o.synthesize(ctx, rep, units, ref)
	if err != nil {
		o.cleanup(log, audio)
		return nil, err
	}

	res := &Result{Document: doc, Units: audio, OutputPath: outputPath}
	for _, au := range audio {
		res.Attempts += au.Attempts
		if au.Completed() {
			res.Completed++
		} else {
			res.Failed++
		}
	}
	log.Info("synthesis finished", zap.Int("completed", res.Completed), zap.Int("failed", res.Failed))

	rep.stage(models.StageMerging, percentMerging, fmt.Sprintf("merging %d units", res.Completed))
	art, err := o.merger.Merge(ctx, audio, outputPath)
	o.cleanup(log, audio)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, o.fail(rep, doc, doc.Title, models.StageMerging, KindMerge, err)
	}
	res.Skipped = len(art.Skipped)
	res.Duration = art.Duration

	_ = doc.Transition(models.DocumentCompleted)
	rep.stage(models.StageCompleted, percentDone,
		fmt.Sprintf("%d of %d units merged into %s", len(art.Merged), len(units), outputPath))
	log.Info("document completed",
		zap.String("output", outputPath),
		zap.Int("completed", res.Completed),
		zap.Int("failed", res.Failed),
		zap.Duration("audio_duration", res.Duration),
		zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

// synthesize returns one audio unit per text unit, stored by position so
// completion order does not matter. Every unit is attempted regardless of
// earlier failures. On cancellation the units produced so far are returned
// with the context error so their files can be removed.
func (o *Orchestrator) synthesize(ctx context.Context, rep *reporter, units []models.TextUnit, ref *models.VoiceReference) ([]*models.AudioUnit, error) {
	w := o.newWorker(rep.warn)
	out := make([]*models.AudioUnit, len(units))
	total := len(units)

	var mu sync.Mutex
	done := 0
	finish := func(au *models.AudioUnit) {
		mu.Lock()
		defer mu.Unlock()
		done++
		rep.unit(done, total, fmt.Sprintf("unit %d %s", au.Index, au.Status))
	}

	if o.opts.Workers <= 1 {
		for i, u := range units {
			if err := ctx.Err(); err != nil {
				return compact(out), err
			}
			au, err := w.Synthesize(ctx, u, ref)
			out[i] = au
			if err != nil {
				return compact(out), err
			}
			finish(au)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, u := range units {
		if gctx.Err() != nil {
			break
		}
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			au, err := w.Synthesize(gctx, u, ref)
			out[i] = au
			if err != nil {
				return err
			}
			finish(au)
			return nil
		})
	}
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return compact(out), ctxErr
	}
	if err != nil {
		return compact(out), err
	}
	return out, nil
}

func compact(units []*models.AudioUnit) []*models.AudioUnit {
	out := units[:0:0]
	for _, u := range units {
		if u != nil {
			out = append(out, u)
		}
	}
	return out
}

// cleanup removes per-unit files. Failures are logged and ignored.
func (o *Orchestrator) cleanup(log *zap.Logger, units []*models.AudioUnit) {
	if o.opts.KeepTempFiles {
		return
	}
	removed := 0
	for _, au := range units {
		if au == nil || au.FilePath == "" {
			continue
		}
		if err := os.Remove(au.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove temp audio failed", zap.Int("segment_index", au.Index), zap.String("path", au.FilePath), zap.Error(err))
			continue
		}
		removed++
	}
	log.Debug("temp audio removed", zap.Int("files", removed))
}

func (o *Orchestrator) fail(rep *reporter, doc *models.Document, name string, stage models.Stage, kind ErrorKind, err error) error {
	pe := &PipelineError{Document: name, Stage: stage, Kind: kind, Err: err}
	if doc != nil {
		_ = doc.Fail(pe)
	}
	rep.stage(models.StageFailed, 0, pe.Error())
	logger.Error("document failed",
		zap.String("document", name),
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.Error(err))
	return pe
}
