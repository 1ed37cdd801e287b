package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cadenza-app/cadenza/internal/store"
	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/caption"
)

// Caption input formats accepted by POST /v1/transcripts. An empty format
// tries the cue parser first and falls back to the free-text heuristics.
const (
	formatCues     = "cues"
	formatFreeText = "freetext"
)

type createTranscriptRequest struct {
	// ID is the caller-assigned transcript identifier. Generated when empty.
	ID string `json:"id"`

	Title          string `json:"title"`
	SourceLanguage string `json:"source_language"`

	// Format selects the caption parser: "cues", "freetext", or empty for
	// auto-detection.
	Format string `json:"format"`

	// Captions is the raw caption text.
	Captions string `json:"captions"`
}

func (s *Server) handleCreateTranscript(w http.ResponseWriter, r *http.Request) {
	var req createTranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	norm := s.normalizer.Load()
	var segments []caption.Segment
	format := req.Format
	switch format {
	case formatCues:
		segments = norm.Parse(req.Captions)
	case formatFreeText:
		segments = norm.ParseFreeText(req.Captions)
	case "":
		format = formatCues
		segments = norm.Parse(req.Captions)
		if len(segments) == 0 {
			format = formatFreeText
			segments = norm.ParseFreeText(req.Captions)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown caption format %q", req.Format)
		return
	}
	s.metrics.CaptionParseDuration.Record(r.Context(), time.Since(start).Seconds())
	s.metrics.RecordSegmentsParsed(r.Context(), format, len(segments))

	t := &store.Transcript{
		ID:             req.ID,
		Title:          req.Title,
		SourceLanguage: req.SourceLanguage,
		Segments:       segments,
	}
	if t.ID == "" {
		t.ID = newID("tr")
	}

	if err := s.store.SaveTranscript(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "save transcript: %v", err)
		return
	}

	saved, err := s.store.GetTranscript(r.Context(), t.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "reload transcript: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleTranscribeAudio builds a transcript from a WAV upload when no caption
// file exists. Transcript metadata rides in query parameters since the body
// is the audio itself.
func (s *Server) handleTranscribeAudio(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "no speech-to-text provider configured")
		return
	}

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

	start := time.Now()
	segments, err := s.transcriber.SegmentAudio(r.Context(), buf)
	if err != nil {
		writeError(w, http.StatusBadGateway, "transcribe audio: %v", err)
		return
	}
	s.metrics.TranscribeDuration.Record(r.Context(), time.Since(start).Seconds())

	t := &store.Transcript{
		ID:             r.URL.Query().Get("id"),
		Title:          r.URL.Query().Get("title"),
		SourceLanguage: r.URL.Query().Get("source_language"),
		Segments:       segments,
	}
	if t.ID == "" {
		t.ID = newID("tr")
	}

	if err := s.store.SaveTranscript(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "save transcript: %v", err)
		return
	}
	saved, err := s.store.GetTranscript(r.Context(), t.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "reload transcript: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.GetTranscript(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load transcript: %v", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "transcript %q not found", id)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListTranscripts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list transcripts: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": infos})
}

func (s *Server) handleDeleteTranscript(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTranscript(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "delete transcript: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearchSegments(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	opts := store.SearchOpts{TranscriptID: r.URL.Query().Get("transcript")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		opts.Limit = limit
	}

	results, err := s.store.SearchSegments(r.Context(), q, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search segments: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// newID returns a prefixed random identifier, e.g. "tr-9f86d081a2b3c4d5".
func newID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "-" + hex.EncodeToString(b[:])
}
