package synthesizer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/code-100-precent/LingBook/pkg/media"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// FishAudioConfig Fish Audio TTS settings
type FishAudioConfig struct {
	APIKey      string        `json:"api_key" yaml:"api_key" env:"TTS_API_KEY"`
	BaseURL     string        `json:"base_url" yaml:"base_url" default:"https://api.fish.audio"`
	ReferenceID string        `json:"reference_id" yaml:"reference_id" default:""` // model id used when no clone is resolved
	Model       string        `json:"model" yaml:"model" default:"s1"`             // s1, speech-1.6, speech-1.5
	SampleRate  int           `json:"sample_rate" yaml:"sample_rate" default:"44100"`
	Format      string        `json:"format" yaml:"format" default:"mp3"` // wav, mp3, pcm
	Temperature float64       `json:"temperature" yaml:"temperature" default:"0.7"`
	TopP        float64       `json:"top_p" yaml:"top_p" default:"0.7"`
	Latency     string        `json:"latency" yaml:"latency" default:"normal"`
	ChunkLength int           `json:"chunk_length" yaml:"chunk_length" default:"300"`
	Normalize   bool          `json:"normalize" yaml:"normalize" default:"true"`
	MP3Bitrate  int           `json:"mp3_bitrate" yaml:"mp3_bitrate" default:"128"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" default:"60s"`
}

type fishAudioRequest struct {
	Text        string  `json:"text"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	Format      string  `json:"format,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	MP3Bitrate  int     `json:"mp3_bitrate,omitempty"`
	ChunkLength int     `json:"chunk_length,omitempty"`
	Normalize   bool    `json:"normalize"`
	Latency     string  `json:"latency,omitempty"`
}

type fishAudioModel struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
	State string `json:"state"`
}

func NewFishAudioConfig(apiKey, referenceID string) FishAudioConfig {
	return FishAudioConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.fish.audio",
		ReferenceID: referenceID,
		Model:       "s1",
		SampleRate:  44100,
		Format:      "mp3",
		Temperature: 0.7,
		TopP:        0.7,
		Latency:     "normal",
		ChunkLength: 300,
		Normalize:   true,
		MP3Bitrate:  128,
		Timeout:     60 * time.Second,
	}
}

type FishAudioService struct {
	opt    FishAudioConfig
	client *resty.Client
}

func NewFishAudioService(opt FishAudioConfig) *FishAudioService {
	client := resty.New().
		SetBaseURL(opt.BaseURL).
		SetAuthToken(opt.APIKey).
		SetTimeout(opt.Timeout)
	return &FishAudioService{opt: opt, client: client}
}

func (fa *FishAudioService) Provider() string {
	return ProviderFishAudio
}

func (fa *FishAudioService) Format() AudioFormat {
	if fa.opt.Format == "pcm" {
		return AudioFormat{Encoding: "wav", SampleRate: fa.opt.SampleRate, Channels: 1, BitDepth: 16}
	}
	return AudioFormat{
		Encoding:   fa.opt.Format,
		SampleRate: fa.opt.SampleRate,
		Channels:   1,
		BitDepth:   16,
		Bitrate:    fa.opt.MP3Bitrate * 1000,
	}
}

func (fa *FishAudioService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewApplicationError(ProviderFishAudio, "", ErrEmptyText)
	}
	// 克隆出的模型 ID 优先于配置的默认模型
	referenceID := fa.opt.ReferenceID
	if voice != "" {
		referenceID = voice
	}

	resp, err := fa.client.R().
		SetContext(ctx).
		SetHeader("model", fa.opt.Model).
		SetBody(fishAudioRequest{
			Text:        text,
			ReferenceID: referenceID,
			Temperature: fa.opt.Temperature,
			TopP:        fa.opt.TopP,
			Format:      fa.opt.Format,
			SampleRate:  fa.opt.SampleRate,
			MP3Bitrate:  fa.opt.MP3Bitrate,
			ChunkLength: fa.opt.ChunkLength,
			Normalize:   fa.opt.Normalize,
			Latency:     fa.opt.Latency,
		}).
		Post("/v1/tts")
	if err != nil {
		logrus.WithError(err).Warn("fishaudio tts: request failed")
		return nil, NewTransientError(ProviderFishAudio, "request failed", err)
	}
	if resp.IsError() {
		logrus.WithFields(logrus.Fields{
			"status_code": resp.StatusCode(),
			"body":        resp.String(),
		}).Error("fishaudio tts: api error")
		return nil, FromStatus(ProviderFishAudio, resp.StatusCode(), resp.String())
	}

	audio := resp.Body()
	if len(audio) == 0 {
		return nil, NewApplicationError(ProviderFishAudio, "", ErrEmptyAudio)
	}
	logrus.WithFields(logrus.Fields{
		"provider":     ProviderFishAudio,
		"model":        fa.opt.Model,
		"reference_id": referenceID,
		"audio_size":   len(audio),
	}).Debug("fishaudio tts: synthesis completed")
	if fa.opt.Format == "pcm" {
		return media.EncodeWAV(audio, fa.opt.SampleRate, 1)
	}
	return audio, nil
}

// ResolveVoice creates a private, fast-trained voice model from the reference
// and returns its id for use as reference_id.
func (fa *FishAudioService) ResolveVoice(ctx context.Context, referenceAudio []byte) (string, error) {
	if len(referenceAudio) == 0 {
		return "", ErrEmptyReference
	}
	var model fishAudioModel
	resp, err := fa.client.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"type":       "tts",
			"title":      fmt.Sprintf("lingbook-%d", time.Now().Unix()),
			"visibility": "private",
			"train_mode": "fast",
		}).
		SetFileReader("voices", "reference.wav", bytes.NewReader(referenceAudio)).
		SetResult(&model).
		Post("/model")
	if err != nil {
		return "", NewTransientError(ProviderFishAudio, "create model", err)
	}
	if resp.IsError() {
		return "", FromStatus(ProviderFishAudio, resp.StatusCode(), resp.String())
	}
	if model.ID == "" {
		return "", NewApplicationError(ProviderFishAudio, "create model returned no id", nil)
	}
	logrus.WithFields(logrus.Fields{
		"model_id": model.ID,
		"state":    model.State,
	}).Info("fishaudio tts: voice model created")
	return model.ID, nil
}
