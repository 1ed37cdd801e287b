package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/cadenza-app/cadenza/pkg/audio"
)

// makePCM16 builds little-endian PCM bytes from int16 samples.
func makePCM16(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:i*2+2], uint16(s))
	}
	return b
}

// sineBuffer builds a mono buffer with a pure sine wave at freq Hz.
func sineBuffer(freq float64, rate, n int) *audio.Buffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return &audio.Buffer{SampleRate: rate, Channels: [][]float32{samples}}
}

// --- WAV codec ---

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	pcm := makePCM16([]int16{0, 1, -1, 100, -100, 16384, -16384, 32767, -32768})
	wav := audio.WrapPCM(pcm, 16000, 1)

	buf, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if buf.SampleRate != 16000 {
		t.Errorf("SampleRate=%d, want 16000", buf.SampleRate)
	}
	if buf.NumChannels() != 1 {
		t.Errorf("NumChannels=%d, want 1", buf.NumChannels())
	}
	if buf.NumSamples() != 9 {
		t.Errorf("NumSamples=%d, want 9", buf.NumSamples())
	}

	// Re-encoding must reproduce the original container byte for byte.
	if got := audio.EncodeWAV(buf); !bytes.Equal(got, wav) {
		t.Error("encode(decode(wav)) differs from original wav bytes")
	}
}

func TestWAVRoundTrip_Stereo(t *testing.T) {
	t.Parallel()

	pcm := makePCM16([]int16{1000, -1000, 2000, -2000, 3000, -3000, 4000, -4000})
	wav := audio.WrapPCM(pcm, 44100, 2)

	buf, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if buf.NumChannels() != 2 || buf.NumSamples() != 4 {
		t.Fatalf("got %d channels x %d samples, want 2x4", buf.NumChannels(), buf.NumSamples())
	}
	if got := audio.EncodeWAV(buf); !bytes.Equal(got, wav) {
		t.Error("stereo round trip differs")
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	t.Parallel()

	for name, data := range map[string][]byte{
		"empty":     nil,
		"short":     []byte("RIFF"),
		"signature": bytes.Repeat([]byte{0x42}, 64),
	} {
		if _, err := audio.DecodeWAV(data); err == nil {
			t.Errorf("%s: DecodeWAV accepted invalid input", name)
		}
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	pcm := makePCM16([]int16{42, -42})
	wav := audio.WrapPCM(pcm, 8000, 1)

	// Splice a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 0x04, 0x00, 0x00, 0x00, 'I', 'N', 'F', 'O')
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)
	binary.LittleEndian.PutUint32(spliced[4:8], uint32(len(spliced)-8))

	buf, err := audio.DecodeWAV(spliced)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if buf.NumSamples() != 2 {
		t.Errorf("NumSamples=%d, want 2", buf.NumSamples())
	}
}

// --- Slice ---

func TestSlice_Bounds(t *testing.T) {
	t.Parallel()

	buf := sineBuffer(220, 16000, 16000) // 1s

	for name, tc := range map[string]struct {
		start, dur float64
		wantNil    bool
		wantLen    int
	}{
		"within":        {start: 0.25, dur: 0.5, wantLen: 8000},
		"clippedAtEnd":  {start: 0.75, dur: 1.0, wantLen: 4000},
		"startAtEnd":    {start: 1.0, dur: 0.5, wantNil: true},
		"startPastEnd":  {start: 2.0, dur: 0.5, wantNil: true},
		"zeroDuration":  {start: 0.1, dur: 0, wantNil: true},
		"negativeSpan":  {start: 0.1, dur: -1, wantNil: true},
		"negativeStart": {start: -0.5, dur: 0.2, wantNil: true},
	} {
		got := buf.Slice(tc.start, tc.dur)
		if tc.wantNil {
			if got != nil {
				t.Errorf("%s: got %d samples, want nil", name, got.NumSamples())
			}
			continue
		}
		if got == nil {
			t.Errorf("%s: got nil, want %d samples", name, tc.wantLen)
			continue
		}
		if got.NumSamples() != tc.wantLen {
			t.Errorf("%s: got %d samples, want %d", name, got.NumSamples(), tc.wantLen)
		}
	}
}

func TestSlice_IsIndependentCopy(t *testing.T) {
	t.Parallel()

	buf := sineBuffer(220, 16000, 1600)
	sl := buf.Slice(0, 0.05)
	if sl == nil {
		t.Fatal("Slice returned nil")
	}
	sl.Channels[0][0] = 99
	if buf.Channels[0][0] == 99 {
		t.Error("mutating a slice wrote through to the parent buffer")
	}
}

// --- Resample ---

func TestResample_RateAndMixdown(t *testing.T) {
	t.Parallel()

	left := make([]float32, 48000)
	right := make([]float32, 48000)
	for i := range left {
		left[i] = 0.5
		right[i] = -0.5
	}
	buf := &audio.Buffer{SampleRate: 48000, Channels: [][]float32{left, right}}

	out := audio.Resample(buf, audio.CanonicalRate, 1)
	if out.SampleRate != audio.CanonicalRate {
		t.Errorf("SampleRate=%d, want %d", out.SampleRate, audio.CanonicalRate)
	}
	if out.NumChannels() != 1 {
		t.Fatalf("NumChannels=%d, want 1", out.NumChannels())
	}
	if out.NumSamples() != 16000 {
		t.Errorf("NumSamples=%d, want 16000", out.NumSamples())
	}
	// L+R average to zero.
	for i, s := range out.Channels[0] {
		if math.Abs(float64(s)) > 1e-6 {
			t.Fatalf("sample %d = %v, want 0 after mixdown", i, s)
		}
	}
}

func TestResample_NoopReturnsSameBuffer(t *testing.T) {
	t.Parallel()

	buf := sineBuffer(220, 16000, 1600)
	if out := audio.Resample(buf, 16000, 1); out != buf {
		t.Error("matching-format resample must return the input unchanged")
	}
}

func TestResample_PreservesSineFrequency(t *testing.T) {
	t.Parallel()

	// A 200 Hz sine resampled 48k → 16k must still cross zero ~400 times/s.
	buf := sineBuffer(200, 48000, 48000)
	out := audio.Resample(buf, 16000, 1)

	crossings := 0
	mono := out.Channels[0]
	for i := 1; i < len(mono); i++ {
		if (mono[i-1] < 0) != (mono[i] < 0) {
			crossings++
		}
	}
	if crossings < 380 || crossings > 420 {
		t.Errorf("zero crossings = %d, want ~400", crossings)
	}
}
