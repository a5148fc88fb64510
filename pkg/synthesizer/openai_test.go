package synthesizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAISynthesize(t *testing.T) {
	var fail int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		if fail != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(fail)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts-1", body["model"])
		assert.Equal(t, "nova", body["voice"])
		assert.Equal(t, "mp3", body["response_format"])
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	opt := NewOpenAIConfig("sk-test")
	opt.BaseURL = srv.URL + "/v1"
	svc := NewOpenAIService(opt)

	audio, err := svc.Synthesize(context.Background(), "hello", "nova")
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(audio))

	fail = http.StatusBadRequest
	_, err = svc.Synthesize(context.Background(), "hello", "nova")
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	fail = http.StatusBadGateway
	_, err = svc.Synthesize(context.Background(), "hello", "nova")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
