package synthesizer

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GoogleTTSConfig uses application default credentials.
type GoogleTTSConfig struct {
	LanguageCode string  `json:"language_code" yaml:"language_code" default:"cmn-CN"`
	Voice        string  `json:"voice" yaml:"voice" default:"cmn-CN-Wavenet-A"`
	SampleRate   int     `json:"sample_rate" yaml:"sample_rate" default:"24000"`
	Speed        float64 `json:"speed" yaml:"speed" default:"1.0"`
}

func NewGoogleTTSConfig() GoogleTTSConfig {
	return GoogleTTSConfig{
		LanguageCode: "cmn-CN",
		Voice:        "cmn-CN-Wavenet-A",
		SampleRate:   24000,
		Speed:        1.0,
	}
}

type googleTTSAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// GoogleTTSService requests LINEAR16, which Google returns as a complete WAV file.
type GoogleTTSService struct {
	opt    GoogleTTSConfig
	client googleTTSAPI
	logger *logrus.Entry
}

func NewGoogleTTSService(ctx context.Context, opt GoogleTTSConfig) (*GoogleTTSService, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create google tts client: %w", err)
	}
	return newGoogleTTSService(opt, client), nil
}

func newGoogleTTSService(opt GoogleTTSConfig, client googleTTSAPI) *GoogleTTSService {
	return &GoogleTTSService{
		opt:    opt,
		client: client,
		logger: logrus.WithField("provider", ProviderGoogle),
	}
}

func (g *GoogleTTSService) Provider() string {
	return ProviderGoogle
}

func (g *GoogleTTSService) Format() AudioFormat {
	return AudioFormat{Encoding: "wav", SampleRate: g.opt.SampleRate, Channels: 1, BitDepth: 16}
}

func (g *GoogleTTSService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewApplicationError(ProviderGoogle, "", ErrEmptyText)
	}
	if voice == "" {
		voice = g.opt.Voice
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.opt.LanguageCode,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(g.opt.SampleRate),
			SpeakingRate:    g.opt.Speed,
		},
	})
	if err != nil {
		return nil, classifyGoogleError(err)
	}
	audio := resp.GetAudioContent()
	if len(audio) == 0 {
		return nil, NewApplicationError(ProviderGoogle, "", ErrEmptyAudio)
	}
	g.logger.WithFields(logrus.Fields{
		"voice":      voice,
		"audio_size": len(audio),
	}).Debug("google tts: synthesis completed")
	return audio, nil
}

func classifyGoogleError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return NewTransientError(ProviderGoogle, "request failed", err)
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return NewTransientError(ProviderGoogle, st.Code().String()+": "+st.Message(), err)
	default:
		return NewApplicationError(ProviderGoogle, st.Code().String()+": "+st.Message(), err)
	}
}
