// Package audio provides the in-memory audio representation used across
// Cadenza: decoding, resampling, time-range slicing, and a minimal
// uncompressed WAV container codec.
//
// The central type is [Buffer]: float32 samples per channel plus a sample
// rate. Buffers are immutable once built; slices are independent copies, not
// views, so a slice never couples its lifetime to the parent buffer.
package audio

import "time"

// CanonicalRate is the sample rate every buffer is resampled to before it
// crosses the transcription or pitch-tracking boundary. 16 kHz mono bounds
// payload size and keeps pitch-tracking behaviour uniform across sources.
const CanonicalRate = 16000

// Buffer holds decoded audio: one float32 sample slice per channel, all of
// equal length, in the range [-1, 1], plus the sample rate in Hz.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NumSamples returns the per-channel sample count.
func (b *Buffer) NumSamples() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// Duration returns the buffer length as a [time.Duration].
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.NumSamples()) / float64(b.SampleRate) * float64(time.Second))
}

// Mono returns a single mono sample slice: channel 0 for mono buffers, the
// per-frame channel average otherwise. The result is a fresh slice for
// multi-channel buffers and the underlying channel slice for mono ones;
// callers must treat it as read-only either way.
func (b *Buffer) Mono() []float32 {
	if len(b.Channels) == 0 {
		return nil
	}
	if len(b.Channels) == 1 {
		return b.Channels[0]
	}
	n := b.NumSamples()
	mono := make([]float32, n)
	for i := range n {
		var sum float32
		for _, ch := range b.Channels {
			sum += ch[i]
		}
		mono[i] = sum / float32(len(b.Channels))
	}
	return mono
}

// Slice extracts the time range [start, start+duration) as an independent
// copy. It returns nil when start lies at or beyond the buffer end or when
// the computed sample length is not positive; callers treat nil as "no data
// for this range", not as an error. Ranges that run past the end are clipped.
func (b *Buffer) Slice(start, duration float64) *Buffer {
	total := b.NumSamples()
	startSample := int(start * float64(b.SampleRate))
	if startSample >= total || startSample < 0 {
		return nil
	}
	endSample := startSample + int(duration*float64(b.SampleRate))
	if endSample > total {
		endSample = total
	}
	if endSample-startSample <= 0 {
		return nil
	}

	out := &Buffer{
		SampleRate: b.SampleRate,
		Channels:   make([][]float32, len(b.Channels)),
	}
	for i, ch := range b.Channels {
		cp := make([]float32, endSample-startSample)
		copy(cp, ch[startSample:endSample])
		out.Channels[i] = cp
	}
	return out
}
