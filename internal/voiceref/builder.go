package voiceref

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/media"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidSource = errors.New("voice reference source is neither a bilibili video nor an audio file")

const (
	referenceSampleRate = 16000
	referenceChannels   = 1
)

// AudioTool is the audio I/O the builder needs: trimming and duration probing.
type AudioTool interface {
	Clip(ctx context.Context, input, output string, opts media.ClipOptions) error
	Duration(path string) (time.Duration, error)
}

// Request selects the source and the window used as the voice sample.
// A zero Duration keeps everything after Start.
type Request struct {
	Source      string
	Name        string
	Start       time.Duration
	Duration    time.Duration
	Description string
}

// Builder turns a video or audio file into a VoiceReference.
type Builder struct {
	bili  *BilibiliClient
	audio AudioTool
	dir   string
}

func NewBuilder(bili *BilibiliClient, audio AudioTool, dir string) *Builder {
	return &Builder{bili: bili, audio: audio, dir: dir}
}

func (b *Builder) Build(ctx context.Context, req Request) (*models.VoiceReference, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return nil, ErrInvalidSource
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reference dir: %w", err)
	}

	var (
		input       string
		name        = req.Name
		description = req.Description
		sourceURL   string
	)
	if fi, err := os.Stat(source); err == nil && !fi.IsDir() {
		input = source
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		}
		if description == "" {
			description = "Voice reference from file: " + source
		}
	} else if _, ok := ExtractBVID(source); ok && b.bili != nil {
		path, info, err := b.bili.ExtractAudio(ctx, source, b.dir)
		if err != nil {
			return nil, err
		}
		input, sourceURL = path, source
		if name == "" {
			name = info.BVID
		}
		if description == "" {
			description = "Voice reference from Bilibili video: " + source
		}
	} else {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSource, source)
	}

	out := filepath.Join(b.dir, fmt.Sprintf("%s_%s.wav", sanitize(name), strings.ReplaceAll(uuid.NewString(), "-", "")))
	err := b.audio.Clip(ctx, input, out, media.ClipOptions{
		Start:      req.Start,
		Duration:   req.Duration,
		SampleRate: referenceSampleRate,
		Channels:   referenceChannels,
	})
	if err != nil {
		return nil, fmt.Errorf("trim voice reference: %w", err)
	}
	dur, err := b.audio.Duration(out)
	if err != nil {
		return nil, fmt.Errorf("probe voice reference: %w", err)
	}

	ref := &models.VoiceReference{
		Name:        name,
		AudioPath:   out,
		SourceURL:   sourceURL,
		Duration:    dur,
		Description: description,
	}
	logger.Info("voice reference created",
		zap.String("name", ref.Name),
		zap.String("path", ref.AudioPath),
		zap.Duration("duration", ref.Duration))
	return ref, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
