package synthesizer

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

type OpenAIConfig struct {
	APIKey  string  `json:"api_key" yaml:"api_key" env:"TTS_API_KEY"`
	BaseURL string  `json:"base_url" yaml:"base_url" default:"https://api.openai.com/v1"`
	Model   string  `json:"model" yaml:"model" default:"tts-1"`
	Voice   string  `json:"voice" yaml:"voice" default:"alloy"`
	Speed   float64 `json:"speed" yaml:"speed" default:"1.0"`
}

func NewOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   string(openai.TTSModel1),
		Voice:   string(openai.VoiceAlloy),
		Speed:   1.0,
	}
}

// OpenAIService has no voice cloning; voices are the built-in names.
type OpenAIService struct {
	opt    OpenAIConfig
	client *openai.Client
}

func NewOpenAIService(opt OpenAIConfig) *OpenAIService {
	cfg := openai.DefaultConfig(opt.APIKey)
	if opt.BaseURL != "" {
		cfg.BaseURL = opt.BaseURL
	}
	return &OpenAIService{opt: opt, client: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAIService) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIService) Format() AudioFormat {
	return AudioFormat{Encoding: "mp3", SampleRate: 24000, Channels: 1, BitDepth: 16, Bitrate: 128000}
}

func (o *OpenAIService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewApplicationError(ProviderOpenAI, "", ErrEmptyText)
	}
	if voice == "" {
		voice = o.opt.Voice
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.opt.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          o.opt.Speed,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, NewTransientError(ProviderOpenAI, "read body", err)
	}
	if len(audio) == 0 {
		return nil, NewApplicationError(ProviderOpenAI, "", ErrEmptyAudio)
	}
	logrus.WithFields(logrus.Fields{
		"provider":   ProviderOpenAI,
		"voice":      voice,
		"audio_size": len(audio),
	}).Debug("openai tts: synthesis completed")
	return audio, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		se := FromStatus(ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		se.Err = err
		return se
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		se := FromStatus(ProviderOpenAI, reqErr.HTTPStatusCode, string(reqErr.Body))
		se.Err = err
		return se
	}
	logrus.WithError(err).Warn("openai tts: request failed")
	return NewTransientError(ProviderOpenAI, "request failed", err)
}
