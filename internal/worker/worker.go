package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/cache"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/synthesizer"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes one job's worker.
type Options struct {
	// TempDir receives one audio file per completed unit.
	TempDir string
	// Timeout bounds each synthesis attempt; 0 disables it.
	Timeout time.Duration
	Retry   RetryPolicy
	// RateLimit is synthesis requests per second; 0 means unlimited.
	RateLimit float64
	// Cache keeps resolved voice identities across jobs; optional.
	Cache         cache.Cache
	VoiceCacheTTL time.Duration
	// OnProgress receives warnings such as a voice fallback.
	OnProgress models.ProgressFunc
}

// Worker turns text units into audio units for a single job. Safe for
// concurrent use by several goroutines of that job.
type Worker struct {
	synth   synthesizer.Synthesizer
	opts    Options
	limiter *rate.Limiter
	guard   voiceGuard
}

func New(synth synthesizer.Synthesizer, opts Options) *Worker {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = DefaultBaseDelay
	}
	w := &Worker{synth: synth, opts: opts}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return w
}

// Synthesize produces the audio unit for unit. Synthesis failures are
// recorded on the returned unit; the error is non-nil only when ctx was
// cancelled, in which case the unit is marked failed as well.
func (w *Worker) Synthesize(ctx context.Context, unit models.TextUnit, ref *models.VoiceReference) (*models.AudioUnit, error) {
	au := models.NewAudioUnit(unit)
	if err := ctx.Err(); err != nil {
		_ = au.Fail(err)
		return au, err
	}
	_ = au.Start()

	voice := w.voice(ctx, ref)

	var data []byte
	attempts, err := w.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		actx, cancel := w.attemptContext(ctx)
		defer cancel()

		out, err := w.synth.Synthesize(actx, unit.Text, voice)
		if err == nil && len(out) == 0 {
			err = synthesizer.ErrEmptyAudio
		}
		if err != nil {
			logger.Warn("synthesis attempt failed",
				zap.Int("segment_index", unit.Index),
				zap.Int("attempt", attempt),
				zap.Bool("transient", synthesizer.IsTransient(err)),
				zap.Error(err))
			return err
		}
		data = out
		return nil
	})
	au.Attempts = attempts

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = au.Fail(ctxErr)
		return au, ctxErr
	}
	if err != nil {
		logger.Error("segment synthesis failed",
			zap.Int("segment_index", unit.Index),
			zap.Int("attempts", attempts),
			zap.Error(err))
		_ = au.Fail(err)
		return au, nil
	}

	format := w.synth.Format()
	path, err := w.persist(unit.Index, format.Extension(), data)
	if err != nil {
		logger.Error("persist segment audio failed", zap.Int("segment_index", unit.Index), zap.Error(err))
		_ = au.Fail(err)
		return au, nil
	}
	_ = au.Complete(path, format.Encoding, format.EstimateDuration(len(data)))
	logger.Info("segment synthesized",
		zap.Int("segment_index", unit.Index),
		zap.Int("attempts", attempts),
		zap.String("path", path),
		zap.Duration("duration", au.Duration))
	return au, nil
}

func (w *Worker) persist(index int, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(w.opts.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	name := fmt.Sprintf("segment_%04d_%s.%s", index, strings.ReplaceAll(uuid.NewString(), "-", ""), ext)
	path := filepath.Join(w.opts.TempDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write segment audio: %w", err)
	}
	return path, nil
}

func (w *Worker) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.opts.Timeout > 0 {
		return context.WithTimeout(ctx, w.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (w *Worker) emit(ev models.ProgressEvent) {
	if w.opts.OnProgress != nil {
		w.opts.OnProgress(ev)
	}
}
