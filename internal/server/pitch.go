package server

import (
	"net/http"
	"time"

	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/pitch"
)

// pitchResponse carries the contour of an uploaded recording. HopSeconds is
// the time distance between adjacent contour entries after resampling to the
// canonical analysis rate.
type pitchResponse struct {
	SampleRate int           `json:"sample_rate"`
	HopSeconds float64       `json:"hop_seconds"`
	Contour    pitch.Contour `json:"contour"`
	Normalized pitch.Contour `json:"normalized"`
}

// handlePitch extracts the pitch contour from a WAV request body. The raw
// contour is in Hz with 0 marking unvoiced frames; the normalized contour is
// min-max scaled over the voiced frames for curve comparison.
func (s *Server) handlePitch(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "decode audio: %v", err)
		return
	}
	buf = audio.Resample(buf, audio.CanonicalRate, 1)

	tracker := s.tracker.Load()
	start := time.Now()
	contour := tracker.Track(buf)
	s.metrics.PitchTrackDuration.Record(r.Context(), time.Since(start).Seconds())

	if contour == nil {
		contour = pitch.Contour{}
	}
	writeJSON(w, http.StatusOK, pitchResponse{
		SampleRate: audio.CanonicalRate,
		HopSeconds: float64(tracker.Hop()) / audio.CanonicalRate,
		Contour:    contour,
		Normalized: pitch.Normalize(contour),
	})
}
