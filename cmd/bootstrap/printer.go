package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/config"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo Print global configuration information
func LogConfigInfo() {
	cfg := config.GlobalConfig
	if cfg == nil {
		logger.Warn("global config not loaded")
		return
	}
	logger.Info("system config load finished", zap.String("mode", cfg.Mode))

	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
		zap.Bool("log_daily", cfg.Log.Daily),
	)

	logger.Info("paths config",
		zap.String("novels_folder", cfg.Paths.NovelsFolder),
		zap.String("output_folder", cfg.Paths.OutputFolder),
		zap.String("reference_audio_folder", cfg.Paths.ReferenceAudioFolder),
		zap.String("temp_folder", cfg.Paths.TempFolder),
	)

	logger.Info("synthesis config",
		zap.String("provider", cfg.Synthesis.Provider),
		zap.String("endpoint", cfg.Synthesis.Endpoint),
		zap.String("model", cfg.Synthesis.Model),
		zap.String("voice", cfg.Synthesis.Voice),
		zap.String("api_key", mask(cfg.Synthesis.APIKey)),
		zap.Duration("timeout", cfg.Synthesis.Timeout),
		zap.Int("max_attempts", cfg.Retry.MaxAttempts),
		zap.Duration("retry_base_delay", cfg.Retry.BaseDelay),
	)

	logger.Info("pipeline config",
		zap.Int("segment_max_length", cfg.Pipeline.MaxUnitLength),
		zap.Int("workers", cfg.Pipeline.Workers),
		zap.Float64("rate_limit", cfg.Pipeline.RateLimit),
		zap.Int("merge_sample_rate", cfg.Pipeline.MergeSampleRate),
		zap.Int("merge_channels", cfg.Pipeline.MergeChannels),
		zap.Bool("keep_temp_files", cfg.Pipeline.KeepTempFiles),
	)

	logger.Info("cache config",
		zap.String("type", cfg.Cache.Type),
		zap.String("redis_addr", cfg.Cache.Redis.Addr),
		zap.Duration("voice_cache_ttl", cfg.VoiceCacheTTL),
	)

	logger.Info("batch config",
		zap.String("schedule", cfg.Schedule.BatchSchedule),
		zap.String("report_file", cfg.Metrics.ReportPath),
		zap.String("metrics_textfile", cfg.Metrics.TextfilePath),
		zap.Bool("bilibili_cookie_set", cfg.Source.BilibiliCookie != ""),
	)
}

// mask keeps the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// PrintBannerFromFile Read file and print
func PrintBannerFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}

// ConsoleProgress renders progress events as one line each.
func ConsoleProgress(w io.Writer) models.ProgressFunc {
	var mu sync.Mutex
	return func(ev models.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		prefix := ""
		if ev.Warning {
			prefix = "\x1b[33mWARN\x1b[0m "
		}
		line := fmt.Sprintf("%s[%5.1f%%] %-12s %s", prefix, ev.Percent, ev.Stage, ev.Document)
		if ev.Total > 0 {
			line += fmt.Sprintf(" (%d/%d)", ev.Current, ev.Total)
		}
		if ev.Message != "" {
			line += " " + ev.Message
		}
		fmt.Fprintln(w, line)
	}
}
