package synthesizer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderZhipu     = "zhipu"
	ProviderOpenAI    = "openai"
	ProviderFishAudio = "fishaudio"
	ProviderQCloud    = "qcloud"
	ProviderLocal     = "local"
	ProviderPolly     = "polly"
	ProviderGoogle    = "google"
)

// Synthesizer turns one piece of text into encoded audio bytes.
// voice may be empty, in which case the provider default is used.
type Synthesizer interface {
	Provider() string
	Format() AudioFormat
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// VoiceResolver is implemented by providers that can clone a voice from
// reference audio. The returned identity is passed back as voice.
type VoiceResolver interface {
	ResolveVoice(ctx context.Context, referenceAudio []byte) (string, error)
}

// AudioFormat is what a provider returns.
type AudioFormat struct {
	Encoding   string // mp3, wav
	SampleRate int
	Channels   int
	BitDepth   int
	Bitrate    int // bits per second, compressed encodings only
}

// Extension is the file extension for persisted audio.
func (f AudioFormat) Extension() string {
	if f.Encoding == "" {
		return "bin"
	}
	return f.Encoding
}

// EstimateDuration derives playing time from the encoded size.
func (f AudioFormat) EstimateDuration(size int) time.Duration {
	if size <= 0 {
		return 0
	}
	switch f.Encoding {
	case "wav", "pcm":
		// 按采样率、声道和位深换算，wav 去掉 44 字节头
		payload := size
		if f.Encoding == "wav" && payload > 44 {
			payload -= 44
		}
		bytesPerSecond := f.SampleRate * f.Channels * f.BitDepth / 8
		if bytesPerSecond <= 0 {
			return 0
		}
		return time.Duration(float64(payload) / float64(bytesPerSecond) * float64(time.Second))
	default:
		// 压缩格式按码率估算
		bitrate := f.Bitrate
		if bitrate <= 0 {
			bitrate = 128000
		}
		return time.Duration(float64(size*8) / float64(bitrate) * float64(time.Second))
	}
}

// CheckFormat accepts the encodings the merger can read back. Raw pcm is
// allowed because the providers offering it wrap it into wav.
func CheckFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "mp3", "wav", "pcm":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Config selects and configures a provider.
type Config struct {
	Provider string        `env:"TTS_PROVIDER"`
	APIKey   string        `env:"TTS_API_KEY"`
	Endpoint string        `env:"TTS_ENDPOINT"`
	Model    string        `env:"TTS_MODEL"`
	Voice    string        `env:"TTS_VOICE"`
	Format   string        `env:"TTS_FORMAT"`
	Speed    float64       `env:"TTS_SPEED"`
	Timeout  time.Duration `env:"TTS_TIMEOUT"`

	QCloudAppID     string `env:"QCLOUD_APP_ID"`
	QCloudSecretID  string `env:"QCLOUD_SECRET_ID"`
	QCloudSecretKey string `env:"QCLOUD_SECRET"`

	LocalEngine string `env:"LOCAL_TTS_ENGINE"`

	// Region and Language apply to the polly and google providers.
	Region   string `env:"TTS_REGION"`
	Language string `env:"TTS_LANGUAGE"`
}

// New builds the provider named in cfg.
func New(cfg Config) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderZhipu, "":
		opt := NewZhipuConfig(cfg.APIKey)
		overlay(&opt.Endpoint, cfg.Endpoint)
		overlay(&opt.Model, cfg.Model)
		overlay(&opt.Voice, cfg.Voice)
		overlay(&opt.Format, cfg.Format)
		if cfg.Speed > 0 {
			opt.Speed = cfg.Speed
		}
		if cfg.Timeout > 0 {
			opt.Timeout = cfg.Timeout
		}
		if opt.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		if err := CheckFormat(opt.Format); err != nil {
			return nil, err
		}
		return NewZhipuService(opt), nil
	case ProviderOpenAI:
		opt := NewOpenAIConfig(cfg.APIKey)
		overlay(&opt.BaseURL, cfg.Endpoint)
		overlay(&opt.Model, cfg.Model)
		overlay(&opt.Voice, cfg.Voice)
		if cfg.Speed > 0 {
			opt.Speed = cfg.Speed
		}
		if opt.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewOpenAIService(opt), nil
	case ProviderFishAudio:
		opt := NewFishAudioConfig(cfg.APIKey, cfg.Voice)
		overlay(&opt.BaseURL, cfg.Endpoint)
		overlay(&opt.Model, cfg.Model)
		overlay(&opt.Format, cfg.Format)
		if cfg.Timeout > 0 {
			opt.Timeout = cfg.Timeout
		}
		if opt.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		if err := CheckFormat(opt.Format); err != nil {
			return nil, err
		}
		return NewFishAudioService(opt), nil
	case ProviderQCloud:
		opt := NewQCloudTTSConfig(cfg.QCloudAppID, cfg.QCloudSecretID, cfg.QCloudSecretKey, cfg.Voice)
		if opt.AppID == 0 || opt.SecretID == "" || opt.SecretKey == "" {
			return nil, fmt.Errorf("%w: qcloud app id, secret id and secret are required", ErrMissingAPIKey)
		}
		return NewQCloudService(opt), nil
	case ProviderLocal:
		opt := NewLocalConfig(cfg.LocalEngine)
		overlay(&opt.Voice, cfg.Voice)
		if cfg.Speed > 0 {
			opt.Speed = cfg.Speed
		}
		svc, err := NewLocalService(opt, nil)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case ProviderPolly:
		opt := NewPollyConfig(cfg.Region)
		overlay(&opt.Voice, cfg.Voice)
		overlay(&opt.LanguageCode, cfg.Language)
		return NewPollyService(context.Background(), opt)
	case ProviderGoogle:
		opt := NewGoogleTTSConfig()
		overlay(&opt.Voice, cfg.Voice)
		overlay(&opt.LanguageCode, cfg.Language)
		if cfg.Speed > 0 {
			opt.Speed = cfg.Speed
		}
		return NewGoogleTTSService(context.Background(), opt)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

func overlay(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
