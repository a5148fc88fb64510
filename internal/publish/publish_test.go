package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/code-100-precent/LingBook/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memUploader) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func TestKey(t *testing.T) {
	p := NewPublisher(&memUploader{}, "/audiobooks/")
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "audiobooks/2026-03-01/book.wav", p.Key("/data/out/book.wav", at))

	bare := NewPublisher(&memUploader{}, "")
	assert.Equal(t, "2026-03-01/book.wav", bare.Key("book.wav", at))
}

func TestPublish(t *testing.T) {
	file := filepath.Join(t.TempDir(), "book.wav")
	require.NoError(t, os.WriteFile(file, []byte("RIFF"), 0o644))

	up := &memUploader{}
	url, err := NewPublisher(up, "ab").Publish(context.Background(), file)
	require.NoError(t, err)
	assert.Contains(t, url, "https://cdn.example.com/ab/")
	require.Len(t, up.objects, 1)
	for _, data := range up.objects {
		assert.Equal(t, []byte("RIFF"), data)
	}

	_, err = NewPublisher(up, "").Publish(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	boom := errors.New("bucket full")
	_, err = NewPublisher(&memUploader{err: boom}, "").Publish(context.Background(), file)
	assert.ErrorIs(t, err, boom)
}

func TestSubscribeUploadsCompletedDocuments(t *testing.T) {
	file := filepath.Join(t.TempDir(), "book.wav")
	require.NoError(t, os.WriteFile(file, []byte("RIFF"), 0o644))

	up := &memUploader{}
	bus := events.New()
	NewPublisher(up, "ab").Subscribe(bus)

	bus.Publish(events.Event{Type: events.DocumentCompleted, Data: map[string]interface{}{"output": file}})
	bus.Publish(events.Event{Type: events.DocumentFailed, Data: map[string]interface{}{"source": "x.txt"}})
	bus.Publish(events.Event{Type: events.DocumentCompleted, Data: map[string]interface{}{}})
	bus.Wait()

	assert.Len(t, up.objects, 1)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{APIKey: "k"}.Enabled())
}
