package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// PollyConfig uses the default AWS credential chain.
type PollyConfig struct {
	Region       string `json:"region" yaml:"region" env:"TTS_REGION" default:"ap-northeast-1"`
	Voice        string `json:"voice" yaml:"voice" default:"Zhiyu"`
	Engine       string `json:"engine" yaml:"engine" default:"neural"` // standard, neural, long-form, generative
	LanguageCode string `json:"language_code" yaml:"language_code" default:"cmn-CN"`
	SampleRate   string `json:"sample_rate" yaml:"sample_rate" default:"24000"`
}

func NewPollyConfig(region string) PollyConfig {
	if region == "" {
		region = "ap-northeast-1"
	}
	return PollyConfig{
		Region:       region,
		Voice:        string(types.VoiceIdZhiyu),
		Engine:       string(types.EngineNeural),
		LanguageCode: string(types.LanguageCodeCmnCn),
		SampleRate:   "24000",
	}
}

type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyService synthesizes with Amazon Polly. Voices are Polly voice ids.
type PollyService struct {
	opt    PollyConfig
	client pollyAPI
	logger *logrus.Entry
}

func NewPollyService(ctx context.Context, opt PollyConfig) (*PollyService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opt.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newPollyService(opt, polly.NewFromConfig(cfg)), nil
}

func newPollyService(opt PollyConfig, client pollyAPI) *PollyService {
	return &PollyService{
		opt:    opt,
		client: client,
		logger: logrus.WithField("provider", ProviderPolly),
	}
}

func (p *PollyService) Provider() string {
	return ProviderPolly
}

func (p *PollyService) Format() AudioFormat {
	return AudioFormat{Encoding: "mp3", SampleRate: 24000, Channels: 1, BitDepth: 16, Bitrate: 48000}
}

func (p *PollyService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewApplicationError(ProviderPolly, "", ErrEmptyText)
	}
	if voice == "" {
		voice = p.opt.Voice
	}

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(voice),
		Engine:       types.Engine(p.opt.Engine),
		LanguageCode: types.LanguageCode(p.opt.LanguageCode),
		OutputFormat: types.OutputFormatMp3,
		SampleRate:   aws.String(p.opt.SampleRate),
		TextType:     types.TextTypeText,
	})
	if err != nil {
		return nil, classifyPollyError(err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, NewTransientError(ProviderPolly, "read audio stream", err)
	}
	if len(audio) == 0 {
		return nil, NewApplicationError(ProviderPolly, "", ErrEmptyAudio)
	}
	p.logger.WithFields(logrus.Fields{
		"voice":      voice,
		"characters": out.RequestCharacters,
		"audio_size": len(audio),
	}).Debug("polly tts: synthesis completed")
	return audio, nil
}

var pollyTransientCodes = map[string]bool{
	"ThrottlingException":      true,
	"ServiceFailureException":  true,
	"ServiceUnavailable":       true,
	"RequestTimeout":           true,
	"RequestTimeoutException":  true,
	"TooManyRequestsException": true,
}

func classifyPollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && pollyTransientCodes[apiErr.ErrorCode()] {
		return NewTransientError(ProviderPolly, apiErr.ErrorCode(), err)
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		se := FromStatus(ProviderPolly, respErr.HTTPStatusCode(), "")
		if errors.As(err, &apiErr) {
			se.Message = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		}
		se.Err = err
		return se
	}
	if errors.As(err, &apiErr) {
		return NewApplicationError(ProviderPolly, apiErr.ErrorCode(), err)
	}
	logrus.WithError(err).Warn("polly tts: request failed")
	return NewTransientError(ProviderPolly, "request failed", err)
}
