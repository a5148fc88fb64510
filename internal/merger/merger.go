package merger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/media"
	"github.com/go-audio/audio"
	"go.uber.org/zap"
)

var (
	ErrNoValidAudio   = errors.New("no valid audio segments to merge")
	ErrIndexCollision = errors.New("audio unit index collision")
)

// AudioReader is the part of the audio I/O capability the merger needs.
type AudioReader interface {
	ReadFile(path string) (*audio.IntBuffer, error)
}

// Artifact describes a finished merge.
type Artifact struct {
	Path     string
	Merged   []int
	Skipped  []int
	Duration time.Duration
}

type Merger struct {
	io     AudioReader
	format media.Format
}

// New returns a merger writing format; a zero format means media.CanonicalFormat.
func New(reader AudioReader, format media.Format) *Merger {
	if format.SampleRate == 0 {
		format.SampleRate = media.CanonicalFormat.SampleRate
	}
	if format.Channels == 0 {
		format.Channels = media.CanonicalFormat.Channels
	}
	if format.BitDepth == 0 {
		format.BitDepth = media.CanonicalFormat.BitDepth
	}
	return &Merger{io: reader, format: format}
}

// Merge writes the completed units in index order to outputPath as one WAV
// stream. Units whose files are missing or unreadable are skipped with a
// warning; nothing is written when no unit is usable.
func (m *Merger) Merge(ctx context.Context, units []*models.AudioUnit, outputPath string) (*Artifact, error) {
	ordered, err := completedInOrder(units)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, ErrNoValidAudio
	}

	partial := outputPath + ".partial"
	var w *media.WAVWriter
	abort := func() {
		if w != nil {
			_ = w.Close()
		}
		_ = os.Remove(partial)
	}

	art := &Artifact{Path: outputPath}
	for _, u := range ordered {
		if err := ctx.Err(); err != nil {
			abort()
			return nil, err
		}
		if _, err := os.Stat(u.FilePath); err != nil {
			logger.Warn("segment audio file missing, skipping",
				zap.Int("segment_index", u.Index),
				zap.String("path", u.FilePath),
				zap.Error(err))
			art.Skipped = append(art.Skipped, u.Index)
			continue
		}
		buf, err := m.io.ReadFile(u.FilePath)
		if err != nil {
			logger.Warn("segment audio unreadable, skipping",
				zap.Int("segment_index", u.Index),
				zap.String("path", u.FilePath),
				zap.Error(err))
			art.Skipped = append(art.Skipped, u.Index)
			continue
		}
		if w == nil {
			if w, err = media.NewWAVWriter(partial, m.format); err != nil {
				return nil, fmt.Errorf("create output: %w", err)
			}
		}
		if err := w.Write(buf); err != nil {
			abort()
			return nil, fmt.Errorf("append segment %d: %w", u.Index, err)
		}
		art.Merged = append(art.Merged, u.Index)
		logger.Debug("segment merged",
			zap.Int("segment_index", u.Index),
			zap.Int("frames", w.Frames()))
	}

	if w == nil {
		return nil, ErrNoValidAudio
	}
	art.Duration = w.Duration()
	if err := w.Close(); err != nil {
		_ = os.Remove(partial)
		return nil, fmt.Errorf("finalize output: %w", err)
	}
	if err := os.Rename(partial, outputPath); err != nil {
		_ = os.Remove(partial)
		return nil, fmt.Errorf("move output into place: %w", err)
	}

	logger.Info("audio merged",
		zap.String("output", outputPath),
		zap.Int("segments", len(art.Merged)),
		zap.Int("skipped", len(art.Skipped)),
		zap.Stringer("format", m.format),
		zap.Duration("duration", art.Duration))
	return art, nil
}

// completedInOrder filters to completed units sorted by index. Two units
// claiming one index is a programming error upstream.
func completedInOrder(units []*models.AudioUnit) ([]*models.AudioUnit, error) {
	seen := make(map[int]struct{}, len(units))
	out := make([]*models.AudioUnit, 0, len(units))
	for _, u := range units {
		if u == nil {
			continue
		}
		if u.Index < 0 {
			return nil, fmt.Errorf("%w: negative index %d", ErrIndexCollision, u.Index)
		}
		if _, dup := seen[u.Index]; dup {
			return nil, fmt.Errorf("%w: index %d appears twice", ErrIndexCollision, u.Index)
		}
		seen[u.Index] = struct{}{}
		if u.Completed() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
