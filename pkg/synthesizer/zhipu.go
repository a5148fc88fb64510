package synthesizer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/LingBook/pkg/media"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	clonePrefix     = "clone-"
	zhipuSampleRate = 24000
)

// ZhipuConfig GLM-4-Voice speech endpoint settings
type ZhipuConfig struct {
	APIKey   string        `json:"api_key" yaml:"api_key" env:"TTS_API_KEY"`
	Endpoint string        `json:"endpoint" yaml:"endpoint" default:"https://open.bigmodel.cn/api/paas/v4/"`
	Model    string        `json:"model" yaml:"model" default:"glm-4-voice"`
	Voice    string        `json:"voice" yaml:"voice" default:"alloy"`
	Format   string        `json:"format" yaml:"format" default:"mp3"`
	Speed    float64       `json:"speed" yaml:"speed" default:"1.0"`
	Bitrate  int           `json:"bitrate" yaml:"bitrate" default:"128000"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" default:"60s"`
}

func NewZhipuConfig(apiKey string) ZhipuConfig {
	return ZhipuConfig{
		APIKey:   apiKey,
		Endpoint: "https://open.bigmodel.cn/api/paas/v4/",
		Model:    "glm-4-voice",
		Voice:    "alloy",
		Format:   "mp3",
		Speed:    1.0,
		Bitrate:  128000,
		Timeout:  60 * time.Second,
	}
}

type zhipuRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
	Stream         bool    `json:"stream"`
	ReferenceAudio string  `json:"reference_audio,omitempty"`
}

type ZhipuService struct {
	opt    ZhipuConfig
	client *resty.Client
	// clone identity -> base64 reference audio
	references sync.Map
}

func NewZhipuService(opt ZhipuConfig) *ZhipuService {
	client := resty.New().
		SetBaseURL(opt.Endpoint).
		SetAuthToken(opt.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(opt.Timeout)
	return &ZhipuService{opt: opt, client: client}
}

func (z *ZhipuService) Provider() string {
	return ProviderZhipu
}

func (z *ZhipuService) Format() AudioFormat {
	if z.opt.Format == "pcm" {
		// 裸 PCM 会被封装成 WAV 再落盘
		return AudioFormat{Encoding: "wav", SampleRate: zhipuSampleRate, Channels: 1, BitDepth: 16}
	}
	return AudioFormat{Encoding: z.opt.Format, SampleRate: zhipuSampleRate, Channels: 1, BitDepth: 16, Bitrate: z.opt.Bitrate}
}

func (z *ZhipuService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewApplicationError(ProviderZhipu, "", ErrEmptyText)
	}

	req := zhipuRequest{
		Model:          z.opt.Model,
		Input:          text,
		Voice:          z.opt.Voice,
		ResponseFormat: z.opt.Format,
		Speed:          z.opt.Speed,
	}
	if voice != "" {
		if ref, ok := z.references.Load(voice); ok {
			req.ReferenceAudio = ref.(string)
		} else if !strings.HasPrefix(voice, clonePrefix) {
			req.Voice = voice
		}
	}

	resp, err := z.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("audio/speech")
	if err != nil {
		logrus.WithError(err).Warn("zhipu tts: request failed")
		return nil, NewTransientError(ProviderZhipu, "request failed", err)
	}
	if resp.IsError() {
		logrus.WithFields(logrus.Fields{
			"status_code": resp.StatusCode(),
			"body":        resp.String(),
		}).Error("zhipu tts: api error")
		return nil, FromStatus(ProviderZhipu, resp.StatusCode(), resp.String())
	}

	audio := resp.Body()
	if len(audio) == 0 {
		return nil, NewApplicationError(ProviderZhipu, "", ErrEmptyAudio)
	}
	logrus.WithFields(logrus.Fields{
		"provider":   ProviderZhipu,
		"model":      z.opt.Model,
		"text_len":   len([]rune(text)),
		"audio_size": len(audio),
		"cloned":     req.ReferenceAudio != "",
	}).Debug("zhipu tts: synthesis completed")
	if z.opt.Format == "pcm" {
		return media.EncodeWAV(audio, zhipuSampleRate, 1)
	}
	return audio, nil
}

// ResolveVoice registers the reference for cloning; the identity is a
// digest so identical references map to the same voice.
func (z *ZhipuService) ResolveVoice(ctx context.Context, referenceAudio []byte) (string, error) {
	if len(referenceAudio) == 0 {
		return "", ErrEmptyReference
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sum := sha256.Sum256(referenceAudio)
	id := clonePrefix + hex.EncodeToString(sum[:8])
	z.references.Store(id, base64.StdEncoding.EncodeToString(referenceAudio))
	return id, nil
}
