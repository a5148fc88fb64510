package media

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("media: unsupported audio container")
	ErrEmptyAudio        = errors.New("media: no audio samples")
)

// Format describes interleaved PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// CanonicalFormat is what merged audiobooks are written in.
var CanonicalFormat = Format{SampleRate: 44100, Channels: 1, BitDepth: 16}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("media: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 || f.Channels > 2 {
		return fmt.Errorf("media: invalid channel count %d", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("media: unsupported bit depth %d", f.BitDepth)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// Container sniffs the first bytes of an audio file.
type Container string

const (
	ContainerWAV     Container = "wav"
	ContainerMP3     Container = "mp3"
	ContainerUnknown Container = ""
)

func Sniff(data []byte) Container {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ContainerWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	}
	return ContainerUnknown
}
