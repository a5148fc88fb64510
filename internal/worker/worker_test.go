package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/cache"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/synthesizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSynth struct {
	mu     sync.Mutex
	calls  int
	voices []string
	fn     func(ctx context.Context, call int, text string) ([]byte, error)
}

func (f *fakeSynth) Provider() string { return "fake" }

func (f *fakeSynth) Format() synthesizer.AudioFormat {
	return synthesizer.AudioFormat{Encoding: "mp3", SampleRate: 24000, Channels: 1, Bitrate: 128000}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, call, text)
	}
	return make([]byte, 16000), nil
}

func (f *fakeSynth) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type cloningSynth struct {
	fakeSynth
	resolves int
	identity string
	err      error
}

func (c *cloningSynth) ResolveVoice(ctx context.Context, ref []byte) (string, error) {
	c.mu.Lock()
	c.resolves++
	c.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return c.identity, c.err
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestWorker(t *testing.T, s synthesizer.Synthesizer, mutate func(*Options)) *Worker {
	t.Helper()
	opts := Options{
		TempDir: t.TempDir(),
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Sleep: noSleep},
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(s, opts)
}

func writeReference(t *testing.T) *models.VoiceReference {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF-reference-audio"), 0o644))
	return &models.VoiceReference{Name: "narrator", AudioPath: path}
}

func TestSynthesizeCompletes(t *testing.T) {
	s := &fakeSynth{}
	w := newTestWorker(t, s, nil)

	au, err := w.Synthesize(context.Background(), models.NewTextUnit(7, "你好。"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.AudioCompleted, au.Status)
	assert.Equal(t, 7, au.Index)
	assert.Equal(t, "你好。", au.SourceText)
	assert.Equal(t, 1, au.Attempts)
	assert.Equal(t, "mp3", au.Encoding)
	assert.Equal(t, time.Second, au.Duration)
	assert.Regexp(t, regexp.MustCompile(`segment_0007_[0-9a-f]{32}\.mp3$`), au.FilePath)

	data, err := os.ReadFile(au.FilePath)
	require.NoError(t, err)
	assert.Len(t, data, 16000)
}

func TestSynthesizeTransientExhausted(t *testing.T) {
	s := &fakeSynth{fn: func(context.Context, int, string) ([]byte, error) {
		return nil, synthesizer.NewTransientError("fake", "connection reset", nil)
	}}
	w := newTestWorker(t, s, nil)

	au, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.AudioFailed, au.Status)
	assert.Equal(t, 3, au.Attempts)
	assert.Equal(t, 3, s.Calls())
	assert.Contains(t, au.Error, "connection reset")
	assert.Empty(t, au.FilePath)
}

func TestSynthesizeApplicationErrorNotRetried(t *testing.T) {
	s := &fakeSynth{fn: func(context.Context, int, string) ([]byte, error) {
		return nil, synthesizer.FromStatus("fake", 400, "bad input")
	}}
	w := newTestWorker(t, s, nil)

	au, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.AudioFailed, au.Status)
	assert.Equal(t, 1, au.Attempts)
}

func TestSynthesizeRecoversAfterTransient(t *testing.T) {
	s := &fakeSynth{fn: func(_ context.Context, call int, _ string) ([]byte, error) {
		if call == 1 {
			return nil, context.DeadlineExceeded
		}
		return []byte("ID3audio"), nil
	}}
	w := newTestWorker(t, s, nil)

	au, err := w.Synthesize(context.Background(), models.NewTextUnit(1, "x"), nil)
	require.NoError(t, err)
	assert.True(t, au.Completed())
	assert.Equal(t, 2, au.Attempts)
}

func TestSynthesizeEmptyAudioFails(t *testing.T) {
	s := &fakeSynth{fn: func(context.Context, int, string) ([]byte, error) { return nil, nil }}
	w := newTestWorker(t, s, nil)

	au, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.AudioFailed, au.Status)
	assert.Equal(t, 1, au.Attempts)
}

func TestSynthesizePerAttemptTimeout(t *testing.T) {
	s := &fakeSynth{fn: func(ctx context.Context, _ int, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	w := newTestWorker(t, s, func(o *Options) { o.Timeout = 10 * time.Millisecond })

	au, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.AudioFailed, au.Status)
	assert.Equal(t, 3, au.Attempts)
}

func TestSynthesizeCancelled(t *testing.T) {
	s := &fakeSynth{}
	w := newTestWorker(t, s, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	au, err := w.Synthesize(ctx, models.NewTextUnit(0, "x"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.AudioFailed, au.Status)
	assert.Equal(t, 0, s.Calls())
}

func TestSynthesizeCancelledMidCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSynth{fn: func(context.Context, int, string) ([]byte, error) {
		cancel()
		return nil, context.Canceled
	}}
	w := newTestWorker(t, s, nil)

	au, err := w.Synthesize(ctx, models.NewTextUnit(0, "x"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.AudioFailed, au.Status)
	assert.Equal(t, 1, s.Calls())
}

func TestVoiceResolvedOnceAcrossUnits(t *testing.T) {
	s := &cloningSynth{identity: "clone-abc"}
	w := newTestWorker(t, s, nil)
	ref := writeReference(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			au, err := w.Synthesize(context.Background(), models.NewTextUnit(i, "x"), ref)
			assert.NoError(t, err)
			assert.True(t, au.Completed())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, s.resolves)
	for _, v := range s.voices {
		assert.Equal(t, "clone-abc", v)
	}
}

func TestVoiceResolutionFailureFallsBack(t *testing.T) {
	prev := logger.Lg
	t.Cleanup(func() { logger.SetLogger(prev) })
	core, logs := observer.New(zapcore.WarnLevel)
	logger.SetLogger(zap.New(core))

	s := &cloningSynth{err: errors.New("clone rejected")}
	var mu sync.Mutex
	var events []models.ProgressEvent
	w := newTestWorker(t, s, func(o *Options) {
		o.OnProgress = func(ev models.ProgressEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}
	})
	ref := writeReference(t)

	for i := 0; i < 3; i++ {
		au, err := w.Synthesize(context.Background(), models.NewTextUnit(i, "x"), ref)
		require.NoError(t, err)
		assert.True(t, au.Completed())
	}

	assert.Equal(t, 1, s.resolves)
	assert.Equal(t, []string{"", "", ""}, s.voices)
	require.Len(t, events, 1)
	assert.True(t, events[0].Warning)
	assert.Equal(t, models.StageSynthesizing, events[0].Stage)
	assert.Contains(t, events[0].Message, "narrator")
	assert.Equal(t, 1, logs.FilterMessage("voice reference resolution failed, using default voice").Len())
}

func TestVoiceFallbackWhenProviderCannotClone(t *testing.T) {
	s := &fakeSynth{}
	warned := 0
	w := newTestWorker(t, s, func(o *Options) {
		o.OnProgress = func(ev models.ProgressEvent) {
			if ev.Warning {
				warned++
			}
		}
	})

	au, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), writeReference(t))
	require.NoError(t, err)
	assert.True(t, au.Completed())
	assert.Equal(t, 1, warned)
	assert.Equal(t, []string{""}, s.voices)
}

func TestVoiceCache(t *testing.T) {
	c, err := cache.NewLocalCache(cache.LocalConfig{MaxSize: 10, DefaultExpiration: time.Hour})
	require.NoError(t, err)
	ref := writeReference(t)
	data, err := os.ReadFile(ref.AudioPath)
	require.NoError(t, err)
	key := VoiceCacheKey("fake", data)

	t.Run("store after resolve", func(t *testing.T) {
		s := &cloningSynth{identity: "clone-fresh"}
		w := newTestWorker(t, s, func(o *Options) { o.Cache = c })
		_, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), ref)
		require.NoError(t, err)

		v, ok := c.Get(context.Background(), key)
		require.True(t, ok)
		assert.Equal(t, "clone-fresh", v)
	})

	t.Run("hit skips resolver", func(t *testing.T) {
		require.NoError(t, c.Set(context.Background(), key, "clone-cached", time.Hour))
		s := &cloningSynth{identity: "clone-other"}
		w := newTestWorker(t, s, func(o *Options) { o.Cache = c })
		_, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), ref)
		require.NoError(t, err)

		assert.Equal(t, 0, s.resolves)
		assert.Equal(t, []string{"clone-cached"}, s.voices)
	})
}

func TestVoiceCacheKey(t *testing.T) {
	a := VoiceCacheKey("zhipu", []byte("a"))
	assert.Regexp(t, `^voice:zhipu:[0-9a-f]{64}$`, a)
	assert.NotEqual(t, a, VoiceCacheKey("fishaudio", []byte("a")))
	assert.NotEqual(t, a, VoiceCacheKey("zhipu", []byte("b")))
}

func TestRateLimiterCancelled(t *testing.T) {
	s := &fakeSynth{}
	w := newTestWorker(t, s, func(o *Options) { o.RateLimit = 0.001 })

	// first call spends the only token
	_, err := w.Synthesize(context.Background(), models.NewTextUnit(0, "x"), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)
	au, err := w.Synthesize(ctx, models.NewTextUnit(1, "y"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.AudioFailed, au.Status)
	assert.Equal(t, 1, s.Calls())
}
