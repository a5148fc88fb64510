package media

import "github.com/go-audio/audio"

// Resample converts interleaved samples between sample rates with linear
// interpolation. Output frame count is floor(frames*to/from).
func Resample(samples []int, channels, fromRate, toRate int) []int {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || channels <= 0 || len(samples) < channels {
		return samples
	}
	frames := len(samples) / channels
	outFrames := int(int64(frames) * int64(toRate) / int64(fromRate))
	ratio := float64(fromRate) / float64(toRate)

	out := make([]int, outFrames*channels)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= frames {
			next = frames - 1
		}
		for c := 0; c < channels; c++ {
			a := samples[idx*channels+c]
			b := samples[next*channels+c]
			out[i*channels+c] = int(float64(a)*(1-frac) + float64(b)*frac)
		}
	}
	return out
}

// Remix changes the channel layout: averaging down to mono, duplicating up from mono.
func Remix(samples []int, from, to int) []int {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}
	frames := len(samples) / from
	out := make([]int, frames*to)
	for i := 0; i < frames; i++ {
		frame := samples[i*from : (i+1)*from]
		if to == 1 {
			sum := 0
			for _, v := range frame {
				sum += v
			}
			out[i] = sum / from
			continue
		}
		for c := 0; c < to; c++ {
			out[i*to+c] = frame[c%from]
		}
	}
	return out
}

// Convert returns buf in the target layout. buf is left untouched.
func Convert(buf *audio.IntBuffer, target Format) *audio.IntBuffer {
	if buf == nil || buf.Format == nil {
		return &audio.IntBuffer{Format: &audio.Format{NumChannels: target.Channels, SampleRate: target.SampleRate}, SourceBitDepth: target.BitDepth}
	}
	data := Remix(buf.Data, buf.Format.NumChannels, target.Channels)
	data = Resample(data, target.Channels, buf.Format.SampleRate, target.SampleRate)
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: target.Channels, SampleRate: target.SampleRate},
		Data:           data,
		SourceBitDepth: target.BitDepth,
	}
}
