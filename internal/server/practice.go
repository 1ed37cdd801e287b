package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/cadenza-app/cadenza/internal/practice"
	"github.com/cadenza-app/cadenza/pkg/audio"
)

// scoreRequest describes one practice take. The reference side is either the
// inline Reference text or a stored segment addressed by TranscriptID plus
// SegmentID. The learner side is either the already-recognised Heard text or
// the take's audio: a WAV upload or the Opus packets captured by the
// recording widget.
type scoreRequest struct {
	TranscriptID string `json:"transcript_id"`
	SegmentID    string `json:"segment_id"`
	Reference    string `json:"reference"`

	Heard string `json:"heard"`

	// AudioWAV is a base64-encoded WAV recording of the take.
	AudioWAV []byte `json:"audio_wav,omitempty"`

	// OpusPackets are base64-encoded Opus frames in capture order.
	OpusPackets  [][]byte `json:"opus_packets,omitempty"`
	OpusChannels int      `json:"opus_channels,omitempty"`

	// Language is the BCP-47 recognition language for the audio path.
	Language string `json:"language,omitempty"`
}

type scoreResponse struct {
	Reference string         `json:"reference"`
	Heard     string         `json:"heard"`
	Score     practice.Score `json:"score"`
}

func (s *Server) handlePracticeScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reference, ok := s.resolveReference(w, r, &req)
	if !ok {
		return
	}
	heard, ok := s.resolveHeard(w, r, &req)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{
		Reference: reference,
		Heard:     heard,
		Score:     s.scorer.Score(reference, heard),
	})
}

// resolveReference returns the reference text, loading the stored segment
// when no inline text was given.
func (s *Server) resolveReference(w http.ResponseWriter, r *http.Request, req *scoreRequest) (string, bool) {
	if req.Reference != "" {
		return req.Reference, true
	}
	if req.TranscriptID == "" || req.SegmentID == "" {
		writeError(w, http.StatusBadRequest, "reference text or transcript_id and segment_id are required")
		return "", false
	}

	t, err := s.store.GetTranscript(r.Context(), req.TranscriptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load transcript: %v", err)
		return "", false
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "transcript %q not found", req.TranscriptID)
		return "", false
	}
	for _, seg := range t.Segments {
		if seg.ID == req.SegmentID {
			return seg.Text, true
		}
	}
	writeError(w, http.StatusNotFound, "segment %q not found in transcript %q", req.SegmentID, req.TranscriptID)
	return "", false
}

// resolveHeard returns the recognised take text, transcribing uploaded audio
// when no text was given.
func (s *Server) resolveHeard(w http.ResponseWriter, r *http.Request, req *scoreRequest) (string, bool) {
	if req.Heard != "" {
		return req.Heard, true
	}

	var (
		buf *audio.Buffer
		err error
	)
	switch {
	case len(req.AudioWAV) > 0:
		buf, err = audio.DecodeWAV(req.AudioWAV)
	case len(req.OpusPackets) > 0:
		channels := req.OpusChannels
		if channels <= 0 {
			channels = 1
		}
		buf, err = audio.DecodePackets(req.OpusPackets, channels)
	default:
		writeError(w, http.StatusBadRequest, "heard text, audio_wav, or opus_packets are required")
		return "", false
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "decode take audio: %v", err)
		return "", false
	}

	if s.stt == nil {
		writeError(w, http.StatusServiceUnavailable, "no speech-to-text provider configured")
		return "", false
	}

	buf = audio.Resample(buf, audio.CanonicalRate, 1)
	start := time.Now()
	spans, err := s.stt.Transcribe(r.Context(), buf, req.Language)
	if err != nil {
		writeError(w, http.StatusBadGateway, "transcribe take: %v", err)
		return "", false
	}
	s.metrics.TranscribeDuration.Record(r.Context(), time.Since(start).Seconds())

	var b strings.Builder
	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String(), true
}
