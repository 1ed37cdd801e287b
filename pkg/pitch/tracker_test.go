package pitch_test

import (
	"math"
	"testing"

	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/pitch"
)

func sineBuffer(freq float64, amplitude float64, seconds float64, rate int) *audio.Buffer {
	n := int(seconds * float64(rate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return &audio.Buffer{SampleRate: rate, Channels: [][]float32{samples}}
}

func TestTrack_Sine(t *testing.T) {
	t.Parallel()

	for _, freq := range []float64{110, 220, 440, 880} {
		buf := sineBuffer(freq, 0.5, 0.5, audio.CanonicalRate)
		contour := pitch.New().Track(buf)
		if len(contour) == 0 {
			t.Fatalf("Track(%gHz sine) returned empty contour", freq)
		}
		for i, got := range contour {
			if got == 0 {
				t.Errorf("frame %d of %gHz sine marked unvoiced", i, freq)
				continue
			}
			if rel := math.Abs(got-freq) / freq; rel > 0.02 {
				t.Errorf("frame %d of %gHz sine: got %.2fHz (%.1f%% off)", i, freq, got, rel*100)
			}
		}
	}
}

func TestTrack_Silence(t *testing.T) {
	t.Parallel()

	buf := &audio.Buffer{
		SampleRate: audio.CanonicalRate,
		Channels:   [][]float32{make([]float32, audio.CanonicalRate / 2)},
	}
	for i, got := range pitch.New().Track(buf) {
		if got != 0 {
			t.Errorf("frame %d of silence: got %.2fHz, want 0", i, got)
		}
	}
}

func TestTrack_QuietUnderGate(t *testing.T) {
	t.Parallel()

	// Amplitude well below the RMS gate must read as unvoiced.
	buf := sineBuffer(220, 0.005, 0.25, audio.CanonicalRate)
	for i, got := range pitch.New().Track(buf) {
		if got != 0 {
			t.Errorf("frame %d of sub-gate sine: got %.2fHz, want 0", i, got)
		}
	}
}

func TestTrack_OutOfVocalRange(t *testing.T) {
	t.Parallel()

	// 30Hz is below the plausible vocal range; frames must be unvoiced
	// rather than reported as a wrong octave.
	buf := sineBuffer(30, 0.5, 0.5, audio.CanonicalRate)
	for i, got := range pitch.New().Track(buf) {
		if got != 0 {
			t.Errorf("frame %d of 30Hz sine: got %.2fHz, want 0", i, got)
		}
	}
}

func TestTrack_ShortBuffer(t *testing.T) {
	t.Parallel()

	buf := &audio.Buffer{
		SampleRate: audio.CanonicalRate,
		Channels:   [][]float32{make([]float32, 100)},
	}
	if got := pitch.New().Track(buf); got != nil {
		t.Errorf("Track(short buffer) = %v, want nil", got)
	}
}

func TestTrack_FrameCount(t *testing.T) {
	t.Parallel()

	buf := sineBuffer(220, 0.5, 0.5, audio.CanonicalRate)
	contour := pitch.New().Track(buf)
	want := (buf.NumSamples()-pitch.DefaultWindowSize)/pitch.DefaultHopSize + 1
	if len(contour) != want {
		t.Errorf("Track returned %d frames, want %d", len(contour), want)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	c := pitch.Contour{100, 0, 150, 200, 0}
	got := pitch.Normalize(c)

	if got[1] != 0 || got[4] != 0 {
		t.Errorf("Normalize moved silence sentinels: %v", got)
	}
	if got[3] != 1 {
		t.Errorf("max frame = %v, want 1", got[3])
	}
	if got[0] <= 0 || got[0] > 1e-5 {
		t.Errorf("min frame = %v, want small positive floor", got[0])
	}
	if math.Abs(got[2]-0.5) > 1e-9 {
		t.Errorf("mid frame = %v, want 0.5", got[2])
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	c := pitch.Contour{100, 0, 150, 200, 0, 175}
	once := pitch.Normalize(c)
	twice := pitch.Normalize(once)
	for i := range once {
		if math.Abs(once[i]-twice[i]) > 1e-6 {
			t.Errorf("frame %d: Normalize not idempotent: %v then %v", i, once[i], twice[i])
		}
	}
}

func TestNormalize_Degenerate(t *testing.T) {
	t.Parallel()

	flat := pitch.Normalize(pitch.Contour{220, 0, 220})
	if flat[0] != 1 || flat[2] != 1 || flat[1] != 0 {
		t.Errorf("Normalize(flat contour) = %v, want voiced frames at 1", flat)
	}

	silent := pitch.Contour{0, 0, 0}
	if got := pitch.Normalize(silent); len(got) != 3 || got[0] != 0 || got[1] != 0 || got[2] != 0 {
		t.Errorf("Normalize(silent contour) = %v, want unchanged", got)
	}
}
