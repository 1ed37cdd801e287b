package audio

// Resample converts b to the target sample rate and channel count using
// linear interpolation. Channel mixdown (or duplication) happens during the
// resampling pass so stereo input is never resampled per channel when the
// target is mono. When b already matches the target, it is returned
// unchanged (zero allocation).
//
// Interpolation quality is deliberately modest: the consumers of resampled
// audio are a pitch tracker and a speech recogniser, neither of which
// benefits from a windowed-sinc kernel.
func Resample(b *Buffer, targetRate, targetChannels int) *Buffer {
	if targetRate <= 0 || targetChannels <= 0 {
		return b
	}
	if b.SampleRate == targetRate && b.NumChannels() == targetChannels {
		return b
	}

	// Step 1: channel conversion first when reducing, so the rate pass
	// touches the minimum number of channels.
	src := b.Channels
	if len(src) != targetChannels {
		src = convertChannels(b, targetChannels)
	}

	// Step 2: rate conversion per channel.
	if b.SampleRate == targetRate {
		return &Buffer{SampleRate: targetRate, Channels: src}
	}
	out := make([][]float32, len(src))
	for i, ch := range src {
		out[i] = resampleChannel(ch, b.SampleRate, targetRate)
	}
	return &Buffer{SampleRate: targetRate, Channels: out}
}

// convertChannels mixes down to mono by per-frame averaging, or duplicates
// mono across the target channel count. Other conversions take channel 0.
func convertChannels(b *Buffer, target int) [][]float32 {
	if target == 1 {
		return [][]float32{b.Mono()}
	}
	if b.NumChannels() == 1 {
		out := make([][]float32, target)
		for i := range out {
			cp := make([]float32, len(b.Channels[0]))
			copy(cp, b.Channels[0])
			out[i] = cp
		}
		return out
	}
	out := make([][]float32, target)
	for i := range out {
		src := b.Channels[0]
		if i < b.NumChannels() {
			src = b.Channels[i]
		}
		cp := make([]float32, len(src))
		copy(cp, src)
		out[i] = cp
	}
	return out
}

// resampleChannel linearly interpolates one channel from srcRate to dstRate.
func resampleChannel(src []float32, srcRate, dstRate int) []float32 {
	if len(src) == 0 {
		return nil
	}
	dstSamples := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := src[srcIdx]
		s1 := s0
		if srcIdx+1 < len(src) {
			s1 = src[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
