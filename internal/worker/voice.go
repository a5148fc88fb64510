package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/synthesizer"
	"go.uber.org/zap"
)

var ErrVoiceCloneUnsupported = errors.New("provider cannot clone voices")

// voiceGuard resolves the job's voice reference at most once. Every unit
// reads the same outcome afterwards, including a failed one.
type voiceGuard struct {
	once  sync.Once
	voice string
	err   error
}

func (g *voiceGuard) get(resolve func() (string, error)) (string, error) {
	g.once.Do(func() {
		g.voice, g.err = resolve()
	})
	return g.voice, g.err
}

// VoiceCacheKey identifies reference audio per provider.
func VoiceCacheKey(provider string, reference []byte) string {
	sum := sha256.Sum256(reference)
	return fmt.Sprintf("voice:%s:%s", provider, hex.EncodeToString(sum[:]))
}

// voice returns the backend identity for ref, or "" for the provider default.
// Resolution failures fall back to the default voice with a warning event.
func (w *Worker) voice(ctx context.Context, ref *models.VoiceReference) string {
	if ref == nil {
		return ""
	}
	v, err := w.guard.get(func() (string, error) {
		return w.resolveVoice(ctx, ref)
	})
	if err != nil {
		return ""
	}
	return v
}

func (w *Worker) resolveVoice(ctx context.Context, ref *models.VoiceReference) (string, error) {
	v, err := w.lookupOrResolve(ctx, ref)
	if err != nil {
		logger.Warn("voice reference resolution failed, using default voice",
			zap.String("provider", w.synth.Provider()),
			zap.String("voice_reference", ref.Name),
			zap.Error(err))
		w.emit(models.ProgressEvent{
			Stage:   models.StageSynthesizing,
			Message: fmt.Sprintf("voice reference %q unavailable, using default voice: %v", ref.Name, err),
			Warning: true,
		})
		return "", err
	}
	logger.Info("voice reference resolved",
		zap.String("provider", w.synth.Provider()),
		zap.String("voice_reference", ref.Name),
		zap.String("voice", v))
	return v, nil
}

func (w *Worker) lookupOrResolve(ctx context.Context, ref *models.VoiceReference) (string, error) {
	resolver, ok := w.synth.(synthesizer.VoiceResolver)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVoiceCloneUnsupported, w.synth.Provider())
	}
	data, err := os.ReadFile(ref.AudioPath)
	if err != nil {
		return "", fmt.Errorf("read voice reference: %w", err)
	}
	if len(data) == 0 {
		return "", synthesizer.ErrEmptyReference
	}

	key := VoiceCacheKey(w.synth.Provider(), data)
	if w.opts.Cache != nil {
		if cached, found := w.opts.Cache.Get(ctx, key); found {
			if s, ok := cached.(string); ok && s != "" {
				logger.Debug("voice identity cache hit", zap.String("key", key))
				return s, nil
			}
		}
	}

	rctx, cancel := w.attemptContext(ctx)
	defer cancel()
	v, err := resolver.ResolveVoice(rctx, data)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errors.New("provider returned an empty voice identity")
	}
	if w.opts.Cache != nil {
		if err := w.opts.Cache.Set(ctx, key, v, w.voiceTTL()); err != nil {
			logger.Warn("voice identity cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

func (w *Worker) voiceTTL() time.Duration {
	if w.opts.VoiceCacheTTL > 0 {
		return w.opts.VoiceCacheTTL
	}
	return 24 * time.Hour
}
