// Package pitch estimates a fundamental-frequency contour from a mono audio
// slice using windowed autocorrelation.
//
// The tracker slides a fixed window over the signal at 50% hop. Each window
// is analysed independently: silent windows are gated out on RMS energy, the
// remainder are trimmed to their stable core, autocorrelated across all lags,
// and the dominant lag past the zero-lag peak is refined with parabolic
// interpolation for sub-sample precision.
//
// A [Contour] reserves 0 as the "unvoiced/silent at this frame" sentinel —
// consumers must never treat 0 as a literal frequency.
package pitch

import (
	"math"

	"github.com/cadenza-app/cadenza/pkg/audio"
)

// Default analysis parameters. The vocal range bounds cover everything from
// a low male voice to a high child's voice; values outside it are treated as
// octave errors or noise and re-emitted as silence.
const (
	// DefaultWindowSize is the analysis window length in samples.
	DefaultWindowSize = 1024

	// DefaultHopSize is the window advance in samples (50% overlap).
	DefaultHopSize = 512

	// DefaultNoiseGate is the RMS energy below which a window is unvoiced.
	DefaultNoiseGate = 0.01

	// DefaultTrimThreshold is the magnitude below which window edges are
	// trimmed before autocorrelation.
	DefaultTrimThreshold = 0.2

	// DefaultMinHz and DefaultMaxHz bound the plausible vocal range.
	DefaultMinHz = 50.0
	DefaultMaxHz = 1000.0
)

// Contour is an ordered sequence of fundamental-frequency estimates in Hz,
// one per analysis hop. 0 means no voiced pitch in that frame.
type Contour []float64

// Option is a functional option for configuring a [Tracker].
type Option func(*Tracker)

// WithWindow overrides the analysis window and hop sizes.
func WithWindow(windowSize, hopSize int) Option {
	return func(t *Tracker) {
		t.windowSize = windowSize
		t.hopSize = hopSize
	}
}

// WithNoiseGate overrides the RMS gate below which a frame is unvoiced.
func WithNoiseGate(rms float64) Option {
	return func(t *Tracker) { t.noiseGate = rms }
}

// WithVocalRange overrides the plausible frequency range in Hz.
func WithVocalRange(minHz, maxHz float64) Option {
	return func(t *Tracker) {
		t.minHz = minHz
		t.maxHz = maxHz
	}
}

// Tracker computes pitch contours. It is read-only after construction and
// safe for concurrent use; each Track call is an independent, stateless pass.
type Tracker struct {
	windowSize    int
	hopSize       int
	noiseGate     float64
	trimThreshold float64
	minHz         float64
	maxHz         float64
}

// New returns a [Tracker] with the default parameters, adjusted by opts.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		windowSize:    DefaultWindowSize,
		hopSize:       DefaultHopSize,
		noiseGate:     DefaultNoiseGate,
		trimThreshold: DefaultTrimThreshold,
		minHz:         DefaultMinHz,
		maxHz:         DefaultMaxHz,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Hop returns the window advance in samples. Contour entry i covers the
// window starting at sample i*Hop().
func (t *Tracker) Hop() int { return t.hopSize }

// Track computes the pitch contour of buf's mono signal: one entry per hop,
// 0 for unvoiced frames. Multi-channel buffers are mixed down first. A
// buffer shorter than one window yields an empty contour.
func (t *Tracker) Track(buf *audio.Buffer) Contour {
	if buf == nil || buf.SampleRate <= 0 {
		return nil
	}
	mono := buf.Mono()
	if len(mono) < t.windowSize {
		return nil
	}

	frames := (len(mono)-t.windowSize)/t.hopSize + 1
	contour := make(Contour, frames)
	for f := range frames {
		window := mono[f*t.hopSize : f*t.hopSize+t.windowSize]
		contour[f] = t.estimate(window, buf.SampleRate)
	}
	return contour
}

// estimate returns the fundamental frequency of one window, or 0.
func (t *Tracker) estimate(window []float32, sampleRate int) float64 {
	if rms(window) < t.noiseGate {
		return 0
	}

	trimmed := trim(window, t.trimThreshold)
	if len(trimmed) < 4 {
		return 0
	}

	ac := autocorrelate(trimmed)
	minLag := int(float64(sampleRate) / t.maxHz)
	maxLag := int(float64(sampleRate) / t.minHz)
	period := dominantLag(ac, minLag, maxLag)
	if period <= 0 {
		return 0
	}

	freq := float64(sampleRate) / period
	if freq < t.minHz || freq > t.maxHz {
		return 0
	}
	return freq
}

// rms computes the root-mean-square energy of the window.
func rms(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(window)))
}

// trim cuts the window from both ends to the first and last sample whose
// magnitude exceeds threshold, focusing the autocorrelation on the stable
// part of the waveform.
func trim(window []float32, threshold float64) []float32 {
	lo := 0
	for lo < len(window) && math.Abs(float64(window[lo])) < threshold {
		lo++
	}
	hi := len(window)
	for hi > lo && math.Abs(float64(window[hi-1])) < threshold {
		hi--
	}
	return window[lo:hi]
}

// autocorrelate computes the unbiased autocorrelation of x across all lags:
// each lag's sum of products is divided by the number of terms so long lags
// are not penalised for having fewer overlapping samples.
func autocorrelate(x []float32) []float64 {
	n := len(x)
	ac := make([]float64, n)
	for lag := range n {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += float64(x[i]) * float64(x[i+lag])
		}
		ac[lag] = sum / float64(n-lag)
	}
	return ac
}

// dominantLag finds the fundamental period estimate in an autocorrelation
// sequence. It skips past the zero-lag peak to the first local minimum, then
// searches lags within [minLag, maxLag]. Among the peaks there it prefers
// the EARLIEST one within a small tolerance of the global maximum: for a
// periodic signal the correlation repeats at every multiple of the true
// period with near-equal height, and a raw argmax can land an octave (or
// more) low. The winner is refined with parabolic interpolation. Returns -1
// when no usable peak exists.
func dominantLag(ac []float64, minLag, maxLag int) float64 {
	// First local minimum marks the end of the zero-lag peak.
	dip := 1
	for dip < len(ac)-1 && ac[dip] > ac[dip+1] {
		dip++
	}
	if dip < minLag {
		dip = minLag
	}
	if maxLag > len(ac)-2 {
		maxLag = len(ac) - 2
	}
	if dip >= maxLag {
		return -1
	}

	var best float64
	for i := dip; i <= maxLag; i++ {
		if ac[i] > best {
			best = ac[i]
		}
	}
	if best <= 0 {
		return -1
	}

	const peakTolerance = 0.9
	for i := dip + 1; i <= maxLag; i++ {
		if ac[i] >= ac[i-1] && ac[i] >= ac[i+1] && ac[i] >= peakTolerance*best {
			return refinePeak(ac, i)
		}
	}
	return -1
}

// refinePeak applies parabolic interpolation around the peak lag for
// sub-sample precision.
func refinePeak(ac []float64, peak int) float64 {
	if peak <= 0 || peak >= len(ac)-1 {
		return float64(peak)
	}
	y0, y1, y2 := ac[peak-1], ac[peak], ac[peak+1]
	denom := y0 - 2*y1 + y2
	if denom == 0 {
		return float64(peak)
	}
	shift := 0.5 * (y0 - y2) / denom
	// A degenerate fit can throw the vertex far from the sampled peak;
	// keep the refinement within half a lag.
	if shift > 0.5 || shift < -0.5 {
		return float64(peak)
	}
	return float64(peak) + shift
}

// Normalize rescales the voiced (non-zero) entries of c to [0, 1] by
// min-max scaling over their own span, so two contours of different absolute
// pitch are comparable by shape alone. The 0 silence sentinel is preserved:
// the frame at the span minimum is emitted as a small positive floor rather
// than 0, which also makes Normalize idempotent up to floating-point
// tolerance. An all-zero contour is returned unchanged. This is a lossy
// display transform, not a substitute for time alignment.
func Normalize(c Contour) Contour {
	const voicedFloor = 1e-6

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range c {
		if v == 0 {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		// No voiced frames.
		return c
	}

	out := make(Contour, len(c))
	span := hi - lo
	for i, v := range c {
		if v == 0 {
			continue
		}
		if span == 0 {
			out[i] = 1
			continue
		}
		scaled := (v - lo) / span
		if scaled < voicedFloor {
			scaled = voicedFloor
		}
		out[i] = scaled
	}
	return out
}
