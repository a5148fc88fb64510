package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-audio/audio"
)

// ClipOptions selects a window of the input and the output layout.
type ClipOptions struct {
	Start      time.Duration
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// Toolkit is the audio I/O capability: decode, probe, and ffmpeg-backed
// trimming and conversion.
type Toolkit struct {
	ffmpegPath string
	runner     CommandRunner
}

func NewToolkit(ffmpegPath string) *Toolkit {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Toolkit{ffmpegPath: ffmpegPath, runner: ExecRunner{}}
}

// NewToolkitWithRunner is used by tests to fake ffmpeg.
func NewToolkitWithRunner(ffmpegPath string, runner CommandRunner) *Toolkit {
	t := NewToolkit(ffmpegPath)
	if runner != nil {
		t.runner = runner
	}
	return t
}

func (t *Toolkit) ReadFile(path string) (*audio.IntBuffer, error) {
	return DecodeFile(path)
}

func (t *Toolkit) Duration(path string) (time.Duration, error) {
	return ProbeDuration(path)
}

// Clip trims input to the window in opts and writes 16-bit PCM WAV to output.
func (t *Toolkit) Clip(ctx context.Context, input, output string, opts ClipOptions) error {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}

	args := []string{"-hide_banner", "-nostdin", "-y"}
	if opts.Start > 0 {
		args = append(args, "-ss", seconds(opts.Start))
	}
	if opts.Duration > 0 {
		args = append(args, "-t", seconds(opts.Duration))
	}
	args = append(args,
		"-i", input,
		"-vn",
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-c:a", "pcm_s16le",
		output,
	)

	if _, err := t.runner.Run(ctx, t.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg clip %s: %w", filepath.Base(input), err)
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output for %s", filepath.Base(input))
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
