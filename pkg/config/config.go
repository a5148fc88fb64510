package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/code-100-precent/LingBook/internal/publish"
	"github.com/code-100-precent/LingBook/pkg/cache"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/synthesizer"
	"github.com/code-100-precent/LingBook/pkg/utils"
	"github.com/robfig/cron/v3"
)

// Config main configuration structure
type Config struct {
	Mode      string             `env:"MODE"`
	Log       logger.LogConfig   `mapstructure:"log"`
	Paths     PathsConfig        `mapstructure:"paths"`
	Synthesis synthesizer.Config `mapstructure:"synthesis"`
	Retry     RetryConfig        `mapstructure:"retry"`
	Pipeline  PipelineConfig     `mapstructure:"pipeline"`
	Source    SourceConfig       `mapstructure:"source"`
	Cache     cache.Config       `mapstructure:"cache"`
	// how long a resolved voice identity is reused across runs
	VoiceCacheTTL time.Duration  `env:"VOICE_CACHE_TTL"`
	Metrics       MetricsConfig  `mapstructure:"metrics"`
	Schedule      ScheduleConfig `mapstructure:"schedule"`
	// finished audiobooks are uploaded when an API key is set
	Storage publish.Config `mapstructure:"storage"`
}

// PathsConfig input, output and scratch folders
type PathsConfig struct {
	NovelsFolder         string `env:"NOVELS_FOLDER"`
	OutputFolder         string `env:"OUTPUT_FOLDER"`
	ReferenceAudioFolder string `env:"REFERENCE_AUDIO_FOLDER"`
	TempFolder           string `env:"TEMP_FOLDER"`
}

// RetryConfig per-unit synthesis retry policy
type RetryConfig struct {
	MaxAttempts int           `env:"TTS_MAX_ATTEMPTS"`
	BaseDelay   time.Duration `env:"TTS_RETRY_BASE_DELAY"`
}

// PipelineConfig segmentation, synthesis fan-out and merge format
type PipelineConfig struct {
	MaxUnitLength   int     `env:"SEGMENT_MAX_LENGTH"`
	Workers         int     `env:"SYNTHESIS_WORKERS"`
	RateLimit       float64 `env:"SYNTHESIS_RATE_LIMIT"` // requests per second, 0 = unlimited
	MergeSampleRate int     `env:"MERGE_SAMPLE_RATE"`
	MergeChannels   int     `env:"MERGE_CHANNELS"`
	KeepTempFiles   bool    `env:"KEEP_TEMP_FILES"`
}

// SourceConfig voice reference acquisition
type SourceConfig struct {
	BilibiliCookie    string        `env:"BILIBILI_COOKIE"`
	BilibiliAPIBase   string        `env:"BILIBILI_API_BASE"`
	FFmpegPath        string        `env:"FFMPEG_PATH"`
	ReferenceStart    time.Duration `env:"REFERENCE_START"`
	ReferenceDuration time.Duration `env:"REFERENCE_DURATION"`
}

// MetricsConfig optional batch outputs; empty path disables each
type MetricsConfig struct {
	TextfilePath string `env:"METRICS_TEXTFILE"`
	ReportPath   string `env:"REPORT_FILE"`
}

// ScheduleConfig cron expression for repeated batch runs
type ScheduleConfig struct {
	BatchSchedule string `env:"BATCH_SCHEDULE"`
}

var GlobalConfig *Config

func Load() error {
	// 1. Load .env file based on environment (don't error if it doesn't exist, use default values)
	env := os.Getenv("APP_ENV")
	err := utils.LoadEnv(env)
	if err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	// 2. Load global configuration
	GlobalConfig = &Config{
		Mode: getStringOrDefault("MODE", "development"),
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/audiobook.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", false),
		},
		Paths: PathsConfig{
			NovelsFolder:         getStringOrDefault("NOVELS_FOLDER", "./data/novels"),
			OutputFolder:         getStringOrDefault("OUTPUT_FOLDER", "./data/output"),
			ReferenceAudioFolder: getStringOrDefault("REFERENCE_AUDIO_FOLDER", "./data/reference_audio"),
			TempFolder:           getStringOrDefault("TEMP_FOLDER", "./data/temp"),
		},
		Synthesis: synthesizer.Config{
			Provider:        getStringOrDefault("TTS_PROVIDER", synthesizer.ProviderZhipu),
			APIKey:          getStringOrDefault("TTS_API_KEY", ""),
			Endpoint:        getStringOrDefault("TTS_ENDPOINT", ""),
			Model:           getStringOrDefault("TTS_MODEL", ""),
			Voice:           getStringOrDefault("TTS_VOICE", ""),
			Format:          getStringOrDefault("TTS_FORMAT", ""),
			Speed:           getFloatOrDefault("TTS_SPEED", 1.0),
			Timeout:         parseDuration(utils.GetEnv("TTS_TIMEOUT"), 60*time.Second),
			QCloudAppID:     getStringOrDefault("QCLOUD_APP_ID", ""),
			QCloudSecretID:  getStringOrDefault("QCLOUD_SECRET_ID", ""),
			QCloudSecretKey: getStringOrDefault("QCLOUD_SECRET", ""),
			LocalEngine:     getStringOrDefault("LOCAL_TTS_ENGINE", "espeak"),
			Region:          getStringOrDefault("TTS_REGION", ""),
			Language:        getStringOrDefault("TTS_LANGUAGE", ""),
		},
		Retry: RetryConfig{
			MaxAttempts: getIntOrDefault("TTS_MAX_ATTEMPTS", 3),
			BaseDelay:   parseDuration(utils.GetEnv("TTS_RETRY_BASE_DELAY"), 2*time.Second),
		},
		Pipeline: PipelineConfig{
			MaxUnitLength:   getIntOrDefault("SEGMENT_MAX_LENGTH", 500),
			Workers:         getIntOrDefault("SYNTHESIS_WORKERS", 1),
			RateLimit:       getFloatOrDefault("SYNTHESIS_RATE_LIMIT", 0),
			MergeSampleRate: getIntOrDefault("MERGE_SAMPLE_RATE", 44100),
			MergeChannels:   getIntOrDefault("MERGE_CHANNELS", 1),
			KeepTempFiles:   getBoolOrDefault("KEEP_TEMP_FILES", false),
		},
		Source: SourceConfig{
			BilibiliCookie:    getStringOrDefault("BILIBILI_COOKIE", ""),
			BilibiliAPIBase:   getStringOrDefault("BILIBILI_API_BASE", "https://api.bilibili.com"),
			FFmpegPath:        getStringOrDefault("FFMPEG_PATH", "ffmpeg"),
			ReferenceStart:    parseDuration(utils.GetEnv("REFERENCE_START"), 0),
			ReferenceDuration: parseDuration(utils.GetEnv("REFERENCE_DURATION"), 15*time.Second),
		},
		Cache:         loadCacheConfig(),
		VoiceCacheTTL: parseDuration(utils.GetEnv("VOICE_CACHE_TTL"), 24*time.Hour),
		Metrics: MetricsConfig{
			TextfilePath: getStringOrDefault("METRICS_TEXTFILE", ""),
			ReportPath:   getStringOrDefault("REPORT_FILE", ""),
		},
		Schedule: ScheduleConfig{
			BatchSchedule: getStringOrDefault("BATCH_SCHEDULE", ""),
		},
		Storage: publish.Config{
			BaseURL:   getStringOrDefault("LINGSTORAGE_BASE_URL", "https://api.lingstorage.com"),
			APIKey:    getStringOrDefault("LINGSTORAGE_API_KEY", ""),
			APISecret: getStringOrDefault("LINGSTORAGE_API_SECRET", ""),
			Bucket:    getStringOrDefault("LINGSTORAGE_BUCKET", "default"),
			Prefix:    getStringOrDefault("LINGSTORAGE_PREFIX", "audiobooks"),
		},
	}
	return nil
}

var knownProviders = map[string]bool{
	synthesizer.ProviderZhipu:     true,
	synthesizer.ProviderOpenAI:    true,
	synthesizer.ProviderFishAudio: true,
	synthesizer.ProviderQCloud:    true,
	synthesizer.ProviderLocal:     true,
	synthesizer.ProviderPolly:     true,
	synthesizer.ProviderGoogle:    true,
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !knownProviders[strings.ToLower(c.Synthesis.Provider)] {
		return fmt.Errorf("unknown TTS provider %q", c.Synthesis.Provider)
	}
	if err := synthesizer.CheckFormat(c.Synthesis.Format); err != nil {
		return fmt.Errorf("invalid TTS format: %w", err)
	}
	if c.Pipeline.MaxUnitLength <= 0 {
		return errors.New("segment max length must be positive")
	}
	if c.Pipeline.Workers < 1 {
		return errors.New("synthesis workers must be at least 1")
	}
	if c.Pipeline.RateLimit < 0 {
		return errors.New("synthesis rate limit cannot be negative")
	}
	if c.Pipeline.MergeSampleRate <= 0 {
		return errors.New("merge sample rate must be positive")
	}
	if c.Pipeline.MergeChannels != 1 && c.Pipeline.MergeChannels != 2 {
		return fmt.Errorf("merge channels must be 1 or 2, got %d", c.Pipeline.MergeChannels)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("tts max attempts must be at least 1")
	}
	if c.Paths.TempFolder == "" {
		return errors.New("temp folder is required")
	}
	if c.Schedule.BatchSchedule != "" {
		if _, err := cron.ParseStandard(c.Schedule.BatchSchedule); err != nil {
			return fmt.Errorf("invalid batch schedule %q: %w", c.Schedule.BatchSchedule, err)
		}
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault gets integer environment variable value, returns default if empty
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getFloatOrDefault returns default when the value is empty or not a number
func getFloatOrDefault(key string, defaultValue float64) float64 {
	if utils.GetEnv(key) == "" {
		return defaultValue
	}
	if f := utils.GetFloatEnv(key); f != 0 || utils.GetEnv(key) == "0" {
		return f
	}
	return defaultValue
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// loadCacheConfig loads cache configuration with all default values
func loadCacheConfig() cache.Config {
	return cache.Config{
		Type: getStringOrDefault("CACHE_TYPE", cache.KindLocal),
		Redis: cache.RedisConfig{
			Addr:         getStringOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     utils.GetEnv("REDIS_PASSWORD"),
			DB:           int(utils.GetIntEnv("REDIS_DB")),
			PoolSize:     getIntOrDefault("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntOrDefault("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  parseDuration(utils.GetEnv("REDIS_DIAL_TIMEOUT"), 5*time.Second),
			ReadTimeout:  parseDuration(utils.GetEnv("REDIS_READ_TIMEOUT"), 3*time.Second),
			WriteTimeout: parseDuration(utils.GetEnv("REDIS_WRITE_TIMEOUT"), 3*time.Second),
			Prefix:       getStringOrDefault("REDIS_PREFIX", "lingbook:"),
		},
		Local: cache.LocalConfig{
			MaxSize:           getIntOrDefault("LOCAL_CACHE_MAX_SIZE", 1000),
			DefaultExpiration: parseDuration(utils.GetEnv("LOCAL_CACHE_DEFAULT_EXPIRATION"), 24*time.Hour),
			CleanupInterval:   parseDuration(utils.GetEnv("LOCAL_CACHE_CLEANUP_INTERVAL"), 10*time.Minute),
		},
	}
}
