package server

import (
	"net/http"
	"time"

	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/provider/tts"
)

type referenceAudioRequest struct {
	// Text is the segment text to synthesize.
	Text string `json:"text"`

	// VoiceID selects a provider voice. Empty uses the provider default.
	VoiceID string `json:"voice_id,omitempty"`

	// Speed adjusts the speaking rate; 0 means the provider default. Slowed
	// speech helps early shadowing passes.
	Speed float64 `json:"speed,omitempty"`
}

// handleReferenceAudio synthesizes the reference track for a segment and
// returns it as a canonical-rate mono WAV body.
func (s *Server) handleReferenceAudio(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusServiceUnavailable, "no text-to-speech provider configured")
		return
	}

	var req referenceAudioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	voice := tts.VoiceProfile{ID: req.VoiceID, SpeedFactor: req.Speed}
	start := time.Now()
	buf, err := s.tts.Synthesize(r.Context(), req.Text, voice)
	if err != nil {
		writeError(w, http.StatusBadGateway, "synthesize reference: %v", err)
		return
	}
	if buf == nil || buf.NumSamples() == 0 {
		writeError(w, http.StatusBadGateway, "provider returned no audio")
		return
	}
	s.metrics.SynthesizeDuration.Record(r.Context(), time.Since(start).Seconds())

	buf = audio.Resample(buf, audio.CanonicalRate, 1)
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.EncodeWAV(buf))
}

func (s *Server) handleReferenceVoices(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusServiceUnavailable, "no text-to-speech provider configured")
		return
	}
	voices, err := s.tts.ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "list voices: %v", err)
		return
	}
	if voices == nil {
		voices = []tts.VoiceProfile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}
