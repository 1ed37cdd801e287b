package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// pcmToFloat32 converts 16-bit signed little-endian PCM bytes to float32
// samples in [-1, 1]. The scale mirrors [float32ToPCM]: 32768 on the
// negative side, 32767 on the non-negative side, so a decode/encode cycle
// reproduces the original PCM words exactly. A trailing odd byte is
// silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		if sample < 0 {
			samples[i] = float32(sample) / 32768.0
		} else {
			samples[i] = float32(sample) / 32767.0
		}
	}
	return samples
}

// float32ToPCM converts float32 samples to 16-bit signed little-endian PCM.
// Samples are clamped to [-1, 1], scaled asymmetrically (32768 on the
// negative side, 32767 on the non-negative side), then rounded to the
// nearest integer. Rounding (rather than truncation) keeps the conversion an
// exact inverse of [pcmToFloat32] despite float32 rounding error.
func float32ToPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 32768))
		} else {
			v = int16(math.Round(float64(s) * 32767))
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}

// FromPCM16 builds a Buffer from raw 16-bit signed little-endian PCM bytes,
// as returned by speech APIs that emit headerless PCM. A trailing partial
// frame is dropped.
func FromPCM16(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	frameSize := 2 * channels
	pcm = pcm[:len(pcm)/frameSize*frameSize]
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   deinterleave(pcmToFloat32(pcm), channels),
	}, nil
}

// deinterleave splits interleaved float32 samples into per-channel slices.
func deinterleave(samples []float32, channels int) [][]float32 {
	if channels <= 1 {
		return [][]float32{samples}
	}
	frames := len(samples) / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := range frames {
		for ch := range out {
			out[ch][i] = samples[i*channels+ch]
		}
	}
	return out
}

// interleave merges per-channel slices into a single interleaved slice.
// All channels must have equal length.
func interleave(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		cp := make([]float32, len(channels[0]))
		copy(cp, channels[0])
		return cp
	}
	frames := len(channels[0])
	out := make([]float32, frames*len(channels))
	for i := range frames {
		for ch := range channels {
			out[i*len(channels)+ch] = channels[ch][i]
		}
	}
	return out
}
