package synthesizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateDuration(t *testing.T) {
	mp3 := AudioFormat{Encoding: "mp3", Bitrate: 128000}
	assert.Equal(t, time.Second, mp3.EstimateDuration(16000))
	assert.Equal(t, 2500*time.Millisecond, mp3.EstimateDuration(40000))

	noBitrate := AudioFormat{Encoding: "mp3"}
	assert.Equal(t, time.Second, noBitrate.EstimateDuration(16000))

	wav := AudioFormat{Encoding: "wav", SampleRate: 16000, Channels: 1, BitDepth: 16}
	assert.Equal(t, time.Second, wav.EstimateDuration(44+32000))

	assert.Zero(t, mp3.EstimateDuration(0))
	assert.Equal(t, "mp3", mp3.Extension())
	assert.Equal(t, "bin", AudioFormat{}.Extension())
}

func TestNewFactory(t *testing.T) {
	s, err := New(Config{Provider: "zhipu", APIKey: "k", Voice: "tongtong", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, ProviderZhipu, s.Provider())
	_, ok := s.(VoiceResolver)
	assert.True(t, ok)

	s, err = New(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, s.Provider())
	_, ok = s.(VoiceResolver)
	assert.False(t, ok)

	s, err = New(Config{Provider: "fishaudio", APIKey: "k", Voice: "model-1"})
	require.NoError(t, err)
	assert.Equal(t, ProviderFishAudio, s.Provider())

	s, err = New(Config{Provider: "qcloud", QCloudAppID: "1300000000", QCloudSecretID: "id", QCloudSecretKey: "key", Voice: "101001"})
	require.NoError(t, err)
	assert.Equal(t, "wav", s.Format().Encoding)

	s, err = New(Config{Provider: "polly", Region: "us-east-1", Voice: "Zhiyu"})
	require.NoError(t, err)
	assert.Equal(t, ProviderPolly, s.Provider())

	_, err = New(Config{Provider: "zhipu"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{Provider: "qcloud"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{Provider: "nope"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestQCloudConfig(t *testing.T) {
	opt := NewQCloudTTSConfig("1300000000", "sid", "skey", "")
	assert.Equal(t, int64(1300000000), opt.AppID)
	assert.Equal(t, int64(1005), opt.VoiceType)
	assert.Contains(t, opt.String(), "VoiceType: 1005")
	assert.NotContains(t, opt.String(), "skey")
}
