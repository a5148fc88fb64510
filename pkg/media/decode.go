package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/youpy/go-wav"
)

// DecodeFile reads a WAV or MP3 file into 16-bit interleaved samples.
func DecodeFile(path string) (*audio.IntBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func Decode(data []byte) (*audio.IntBuffer, error) {
	switch Sniff(data) {
	case ContainerWAV:
		return DecodeWAV(data)
	case ContainerMP3:
		return DecodeMP3(data)
	}
	return nil, ErrUnsupportedFormat
}

// DecodeWAV handles PCM WAV with one or two channels.
func DecodeWAV(data []byte) (*audio.IntBuffer, error) {
	r := wav.NewReader(bytes.NewReader(data))
	f, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("wav format: %w", err)
	}
	if f.AudioFormat != 1 {
		return nil, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, f.AudioFormat)
	}
	channels := int(f.NumChannels)
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	}

	out := make([]int, 0, len(data)/2)
	for {
		samples, err := r.ReadSamples()
		for _, s := range samples {
			for ch := 0; ch < channels; ch++ {
				out = append(out, to16(r.IntValue(s, uint(ch)), int(f.BitsPerSample)))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wav samples: %w", err)
		}
	}

	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: int(f.SampleRate)},
		Data:           out,
		SourceBitDepth: 16,
	}, nil
}

func to16(v, bits int) int {
	switch bits {
	case 8:
		// unsigned
		return (v - 128) << 8
	case 24:
		return v >> 8
	case 32:
		return v >> 16
	}
	return v
}

// DecodeMP3 always yields stereo; the decoder upmixes mono streams.
func DecodeMP3(data []byte) (*audio.IntBuffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decoder: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: d.SampleRate()},
		Data:           pcm16ToInts(pcm),
		SourceBitDepth: 16,
	}, nil
}

func pcm16ToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// ProbeDuration reports the playing time of a WAV or MP3 file.
func ProbeDuration(path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	switch Sniff(data) {
	case ContainerWAV:
		return wav.NewReader(bytes.NewReader(data)).Duration()
	case ContainerMP3:
		d, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("mp3 decoder: %w", err)
		}
		// 4 bytes per stereo 16-bit frame
		frames := d.Length() / 4
		if frames <= 0 || d.SampleRate() <= 0 {
			return 0, ErrEmptyAudio
		}
		return time.Duration(frames) * time.Second / time.Duration(d.SampleRate()), nil
	}
	return 0, ErrUnsupportedFormat
}

// BufferDuration is the playing time of buf.
func BufferDuration(buf *audio.IntBuffer) time.Duration {
	if buf == nil || buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return 0
	}
	frames := len(buf.Data) / buf.Format.NumChannels
	return time.Duration(frames) * time.Second / time.Duration(buf.Format.SampleRate)
}
