package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	audiowav "github.com/go-audio/wav"
	"github.com/youpy/go-wav"
)

// WAVWriter appends buffers of any layout to a WAV file in a fixed format.
type WAVWriter struct {
	file   *os.File
	enc    *audiowav.Encoder
	format Format
	frames int
}

func NewWAVWriter(path string, format Format) (*WAVWriter, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &WAVWriter{
		file:   f,
		enc:    audiowav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, 1),
		format: format,
	}, nil
}

// Write converts buf to the writer's format and appends it.
func (w *WAVWriter) Write(buf *audio.IntBuffer) error {
	conv := Convert(buf, w.format)
	if len(conv.Data) == 0 {
		return nil
	}
	if err := w.enc.Write(conv); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	w.frames += len(conv.Data) / w.format.Channels
	return nil
}

func (w *WAVWriter) Frames() int {
	return w.frames
}

func (w *WAVWriter) Duration() time.Duration {
	return time.Duration(w.frames) * time.Second / time.Duration(w.format.SampleRate)
}

// Close finalizes the RIFF header and closes the file.
func (w *WAVWriter) Close() error {
	err := w.enc.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// EncodeWAV wraps raw little-endian 16-bit PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("media: invalid channel count %d", channels)
	}
	frameSize := 2 * channels
	numSamples := len(pcm) / frameSize
	samples := make([]wav.Sample, numSamples)
	for i := range samples {
		for c := 0; c < channels; c++ {
			off := i*frameSize + c*2
			samples[i].Values[c] = int(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
	}

	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(numSamples), uint16(channels), uint32(sampleRate), 16)
	if err := w.WriteSamples(samples); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
