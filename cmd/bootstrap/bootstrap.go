package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/code-100-precent/LingBook/internal/merger"
	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/internal/pipeline"
	"github.com/code-100-precent/LingBook/internal/publish"
	"github.com/code-100-precent/LingBook/internal/reader"
	"github.com/code-100-precent/LingBook/internal/segmenter"
	"github.com/code-100-precent/LingBook/internal/voiceref"
	"github.com/code-100-precent/LingBook/internal/worker"
	"github.com/code-100-precent/LingBook/pkg/cache"
	"github.com/code-100-precent/LingBook/pkg/config"
	"github.com/code-100-precent/LingBook/pkg/events"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/media"
	"github.com/code-100-precent/LingBook/pkg/synthesizer"
	"go.uber.org/zap"
)

const pageFetchTimeout = 30 * time.Second

// App holds every wired component of one process.
type App struct {
	Config       *config.Config
	Cache        cache.Cache
	Synthesizer  synthesizer.Synthesizer
	Media        *media.Toolkit
	Orchestrator *pipeline.Orchestrator
	Batch        *pipeline.BatchDriver
	Metrics      *pipeline.Metrics
	Bus          *events.EventBus
	Voices       *voiceref.Builder
}

// Deps lets callers swap the outside world; zero fields are built from config.
type Deps struct {
	Synthesizer synthesizer.Synthesizer
	Media       *media.Toolkit
	Uploader    publish.Uploader
}

// Setup wires config -> cache -> provider -> worker -> orchestrator -> batch.
// The logger is expected to be initialized already.
func Setup(cfg *config.Config, deps Deps, onProgress models.ProgressFunc) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, dir := range []string{cfg.Paths.TempFolder, cfg.Paths.ReferenceAudioFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	app := &App{Config: cfg, Bus: events.New(), Metrics: pipeline.NewMetrics()}

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	app.Cache = c

	app.Synthesizer = deps.Synthesizer
	if app.Synthesizer == nil {
		if app.Synthesizer, err = synthesizer.New(cfg.Synthesis); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("init synthesizer: %w", err)
		}
	}
	app.Media = deps.Media
	if app.Media == nil {
		app.Media = media.NewToolkit(cfg.Source.FFmpegPath)
	}

	newWorker := func(warn models.ProgressFunc) pipeline.UnitSynthesizer {
		return worker.New(app.Synthesizer, worker.Options{
			TempDir: cfg.Paths.TempFolder,
			Timeout: cfg.Synthesis.Timeout,
			Retry: worker.RetryPolicy{
				MaxAttempts: cfg.Retry.MaxAttempts,
				BaseDelay:   cfg.Retry.BaseDelay,
			},
			RateLimit:     cfg.Pipeline.RateLimit,
			Cache:         app.Cache,
			VoiceCacheTTL: cfg.VoiceCacheTTL,
			OnProgress:    warn,
		})
	}
	m := merger.New(app.Media, media.Format{
		SampleRate: cfg.Pipeline.MergeSampleRate,
		Channels:   cfg.Pipeline.MergeChannels,
		BitDepth:   16,
	})
	app.Orchestrator = pipeline.NewOrchestrator(reader.New(pageFetchTimeout), segmenter.New(), newWorker, m, pipeline.Options{
		MaxUnitLength: cfg.Pipeline.MaxUnitLength,
		Workers:       cfg.Pipeline.Workers,
		KeepTempFiles: cfg.Pipeline.KeepTempFiles,
	})
	app.Batch = pipeline.NewBatchDriver(app.Orchestrator, pipeline.BatchOptions{
		Bus:        app.Bus,
		Metrics:    app.Metrics,
		OnProgress: onProgress,
	})
	app.Bus.Subscribe(events.Wildcard, func(e events.Event) error {
		logger.Debug("document event", zap.String("type", e.Type), zap.Any("data", e.Data))
		return nil
	})

	uploader := deps.Uploader
	if uploader == nil && cfg.Storage.Enabled() {
		uploader = publish.NewLingStorage(cfg.Storage)
	}
	if uploader != nil {
		publish.NewPublisher(uploader, cfg.Storage.Prefix).Subscribe(app.Bus)
	}

	bili := voiceref.NewBilibiliClient(cfg.Source.BilibiliAPIBase, cfg.Source.BilibiliCookie, nil)
	app.Voices = voiceref.NewBuilder(bili, app.Media, cfg.Paths.ReferenceAudioFolder)

	logger.Info("pipeline ready",
		zap.String("provider", app.Synthesizer.Provider()),
		zap.String("cache", cfg.Cache.Type),
		zap.Int("workers", cfg.Pipeline.Workers))
	return app, nil
}

// Close waits for pending event handlers, uploads included, and releases the cache.
func (a *App) Close() error {
	a.Bus.Wait()
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}
