package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	lingstorage "github.com/LingByte/lingstorage-sdk-go"
	"github.com/code-100-precent/LingBook/pkg/events"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"go.uber.org/zap"
)

// Config addresses the LingStorage bucket audiobooks are pushed to.
type Config struct {
	BaseURL   string `env:"LINGSTORAGE_BASE_URL"`
	APIKey    string `env:"LINGSTORAGE_API_KEY"`
	APISecret string `env:"LINGSTORAGE_API_SECRET"`
	Bucket    string `env:"LINGSTORAGE_BUCKET"`
	// Prefix is prepended to every object key.
	Prefix string `env:"LINGSTORAGE_PREFIX"`
}

// Enabled reports whether uploads are configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// Uploader stores one object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader) (string, error)
}

type lingStore struct {
	client *lingstorage.Client
	bucket string
}

// NewLingStorage uploads through the LingStorage SDK.
func NewLingStorage(cfg Config) Uploader {
	return &lingStore{
		client: lingstorage.NewClient(&lingstorage.Config{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
		bucket: cfg.Bucket,
	}
}

func (s *lingStore) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := s.client.UploadFromReader(&lingstorage.UploadFromReaderRequest{
		Reader:   r,
		Bucket:   s.bucket,
		Filename: key,
		Key:      key,
	})
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// Publisher pushes finished audiobooks to object storage.
type Publisher struct {
	uploader Uploader
	prefix   string
	timeout  time.Duration
}

func NewPublisher(uploader Uploader, prefix string) *Publisher {
	return &Publisher{uploader: uploader, prefix: strings.Trim(prefix, "/"), timeout: 10 * time.Minute}
}

// Key is the object key for a local artifact: <prefix>/<yyyy-mm-dd>/<file name>.
func (p *Publisher) Key(localPath string, at time.Time) string {
	return path.Join(p.prefix, at.Format("2006-01-02"), filepath.Base(localPath))
}

// Publish uploads localPath and returns its URL.
func (p *Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	key := p.Key(localPath, time.Now())
	url, err := p.uploader.Upload(ctx, key, f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	logger.Info("audiobook published", zap.String("path", localPath), zap.String("key", key), zap.String("url", url))
	return url, nil
}

// Subscribe uploads the output of every completed document. Handlers run
// asynchronously; bus.Wait drains pending uploads.
func (p *Publisher) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.DocumentCompleted, func(e events.Event) error {
		output, _ := e.Data["output"].(string)
		if output == "" {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		_, err := p.Publish(ctx, output)
		return err
	})
}
