package synthesizer

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/code-100-precent/LingBook/pkg/media"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/tencentcloud/tencentcloud-speech-sdk-go/common"
	"github.com/tencentcloud/tencentcloud-speech-sdk-go/tts"
)

// QCloudTTSConfig tencent cloud tts config
type QCloudTTSConfig struct {
	AppID      int64  `json:"appId" yaml:"app_id" env:"QCLOUD_APP_ID"`
	SecretID   string `json:"secretId" yaml:"secret_id" env:"QCLOUD_SECRET_ID"`
	SecretKey  string `json:"secret" yaml:"secret" env:"QCLOUD_SECRET"`
	VoiceType  int64  `json:"voiceType" yaml:"voice_type" default:"1005"`
	SampleRate int    `json:"sampleRate" yaml:"sample_rate" default:"16000"`
	Channels   int    `json:"channels" yaml:"channels" default:"1"`
}

func (opt QCloudTTSConfig) String() string {
	return fmt.Sprintf("QCloudTTSConfig{AppID: %d, SecretID: %s, VoiceType: %d, SampleRate: %d}",
		opt.AppID, opt.SecretID, opt.VoiceType, opt.SampleRate)
}

func NewQCloudTTSConfig(appID, secretID, secretKey, voice string) QCloudTTSConfig {
	appIDVal, _ := strconv.ParseInt(strings.TrimSpace(appID), 10, 64)
	voiceType := cast.ToInt64(voice)
	if voiceType == 0 {
		voiceType = 1005
	}
	return QCloudTTSConfig{
		AppID:      appIDVal,
		SecretID:   secretID,
		SecretKey:  secretKey,
		VoiceType:  voiceType,
		SampleRate: 16000,
		Channels:   1,
	}
}

// QCloudService synthesizes PCM with the Tencent SDK and wraps it as WAV.
type QCloudService struct {
	opt QCloudTTSConfig
}

func NewQCloudService(opt QCloudTTSConfig) *QCloudService {
	return &QCloudService{opt: opt}
}

func (qs *QCloudService) Provider() string {
	return ProviderQCloud
}

func (qs *QCloudService) Format() AudioFormat {
	return AudioFormat{Encoding: "wav", SampleRate: qs.opt.SampleRate, Channels: qs.opt.Channels, BitDepth: 16}
}

func (qs *QCloudService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewApplicationError(ProviderQCloud, "", ErrEmptyText)
	}
	voiceType := qs.opt.VoiceType
	if v, err := cast.ToInt64E(voice); err == nil && v > 0 {
		voiceType = v
	}

	listener := &qcloudSpeechSynthesisListener{}
	credential := common.NewCredential(qs.opt.SecretID, qs.opt.SecretKey)
	synth := tts.NewSpeechSynthesizer(qs.opt.AppID, credential, listener)
	synth.VoiceType = voiceType
	synth.SampleRate = int64(qs.opt.SampleRate)
	synth.Codec = "pcm"

	// the SDK call is blocking and has no context
	done := make(chan error, 1)
	go func() {
		if err := synth.Synthesis(text); err != nil {
			done <- NewTransientError(ProviderQCloud, "synthesis", err)
			return
		}
		if err := synth.Wait(); err != nil {
			done <- NewTransientError(ProviderQCloud, "wait", err)
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
	}

	pcm, failErr := listener.result()
	if failErr != nil {
		return nil, NewApplicationError(ProviderQCloud, "synthesis failed", failErr)
	}
	if len(pcm) == 0 {
		return nil, NewApplicationError(ProviderQCloud, "", ErrEmptyAudio)
	}
	return media.EncodeWAV(pcm, qs.opt.SampleRate, qs.opt.Channels)
}

type qcloudSpeechSynthesisListener struct {
	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

func (q *qcloudSpeechSynthesisListener) result() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Bytes(), q.err
}

func (q *qcloudSpeechSynthesisListener) OnCancel(*tts.SpeechSynthesisResponse) {
	logrus.Info("qcloud tts: cancel")
}

func (q *qcloudSpeechSynthesisListener) OnComplete(*tts.SpeechSynthesisResponse) {
	logrus.Debug("qcloud tts: complete")
}

func (q *qcloudSpeechSynthesisListener) OnFail(_ *tts.SpeechSynthesisResponse, err error) {
	logrus.WithError(err).Error("qcloud tts: fail")
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

func (q *qcloudSpeechSynthesisListener) OnMessage(resp *tts.SpeechSynthesisResponse) {
	q.mu.Lock()
	q.buf.Write(resp.Data)
	q.mu.Unlock()
}
