// Package server exposes the transcript pipeline over HTTP.
//
// Routes:
//
//	POST   /v1/transcripts            captions in, normalized transcript out
//	POST   /v1/transcripts/audio      WAV in, transcript segmented via STT
//	GET    /v1/transcripts            transcript listing
//	GET    /v1/transcripts/{id}       single transcript, segments included
//	DELETE /v1/transcripts/{id}
//	GET    /v1/segments/search        text search over stored segments
//	POST   /v1/pitch                  WAV in, pitch contour out
//	POST   /v1/translate              start a translation job
//	GET    /v1/translate/{job}        job snapshot
//	GET    /v1/translate/{job}/ws     live progress stream (WebSocket)
//	POST   /v1/practice/score         take vs reference similarity
//	POST   /v1/reference/audio        synthesized reference WAV
//	GET    /v1/reference/voices       available synthesis voices
//
// plus /healthz, /readyz and /metrics. All JSON errors share the shape
// {"error": "..."}.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadenza-app/cadenza/internal/health"
	"github.com/cadenza-app/cadenza/internal/observe"
	"github.com/cadenza-app/cadenza/internal/practice"
	"github.com/cadenza-app/cadenza/internal/store"
	"github.com/cadenza-app/cadenza/internal/transcribe"
	"github.com/cadenza-app/cadenza/internal/translate"
	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/pitch"
	"github.com/cadenza-app/cadenza/pkg/provider/stt"
	"github.com/cadenza-app/cadenza/pkg/provider/tts"
)

// maxBodyBytes caps request bodies. Audio uploads dominate; a one-minute
// 16 kHz mono WAV is under 2 MB, so this leaves generous headroom.
const maxBodyBytes = 32 << 20

// Config carries the subsystems a [Server] serves. Store is the only
// required field; nil pipeline components are replaced with defaults, and
// nil providers disable the routes that need them (those routes answer 503).
type Config struct {
	Store        store.Store
	Normalizer   *caption.Normalizer
	Tracker      *pitch.Tracker
	Orchestrator *translate.Orchestrator
	Transcriber  *transcribe.Transcriber
	Scorer       *practice.Scorer
	TTS          tts.Provider
	STT          stt.Provider
	Metrics      *observe.Metrics
	Health       *health.Handler
}

// Server is the HTTP boundary of the pipeline. It owns no goroutines other
// than running translation jobs; construct once and serve via [Server.Routes].
// The normalizer and tracker are swappable at runtime through [Server.Reconfigure].
type Server struct {
	store       store.Store
	normalizer  atomic.Pointer[caption.Normalizer]
	tracker     atomic.Pointer[pitch.Tracker]
	transcriber *transcribe.Transcriber
	scorer      *practice.Scorer
	tts         tts.Provider
	stt         stt.Provider
	metrics     *observe.Metrics
	health      *health.Handler
	jobs        *jobManager
}

// New wires a [Server] from cfg, filling defaults for nil components.
func New(cfg Config) *Server {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = caption.New()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = pitch.New()
	}
	if cfg.Orchestrator == nil {
		cfg.Orchestrator = translate.New(nil)
	}
	if cfg.Scorer == nil {
		cfg.Scorer = practice.NewScorer()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}

	s := &Server{
		store:       cfg.Store,
		transcriber: cfg.Transcriber,
		scorer:      cfg.Scorer,
		tts:         cfg.TTS,
		stt:         cfg.STT,
		metrics:     cfg.Metrics,
		health:      cfg.Health,
		jobs:        newJobManager(cfg.Store, cfg.Orchestrator, cfg.Metrics),
	}
	s.normalizer.Store(cfg.Normalizer)
	s.tracker.Store(cfg.Tracker)
	return s
}

// Reconfigure swaps the runtime-tunable pipeline components. Nil arguments
// leave the current component in place. Translation jobs already running keep
// the orchestrator they started with.
func (s *Server) Reconfigure(n *caption.Normalizer, t *pitch.Tracker, o *translate.Orchestrator) {
	if n != nil {
		s.normalizer.Store(n)
	}
	if t != nil {
		s.tracker.Store(t)
	}
	if o != nil {
		s.jobs.setOrchestrator(o)
	}
}

// Routes returns the full handler tree, wrapped in the observability
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/transcripts", s.handleCreateTranscript)
	mux.HandleFunc("POST /v1/transcripts/audio", s.handleTranscribeAudio)
	mux.HandleFunc("GET /v1/transcripts", s.handleListTranscripts)
	mux.HandleFunc("GET /v1/transcripts/{id}", s.handleGetTranscript)
	mux.HandleFunc("DELETE /v1/transcripts/{id}", s.handleDeleteTranscript)
	mux.HandleFunc("GET /v1/segments/search", s.handleSearchSegments)

	mux.HandleFunc("POST /v1/pitch", s.handlePitch)

	mux.HandleFunc("POST /v1/translate", s.handleStartTranslation)
	mux.HandleFunc("GET /v1/translate/{job}", s.handleTranslationJob)
	mux.HandleFunc("GET /v1/translate/{job}/ws", s.handleTranslationStream)

	mux.HandleFunc("POST /v1/practice/score", s.handlePracticeScore)

	mux.HandleFunc("POST /v1/reference/audio", s.handleReferenceAudio)
	mux.HandleFunc("GET /v1/reference/voices", s.handleReferenceVoices)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status. Encoding failures are logged by
// the middleware via the status recorder; nothing more can be sent by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// decodeJSON reads the request body into dst. On failure it writes a 400 and
// returns false; handlers should return immediately.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

// readBody slurps a raw (non-JSON) request body such as a WAV upload.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", maxErr.Limit)
		} else {
			writeError(w, http.StatusBadRequest, "read request body: %v", err)
		}
		return nil, false
	}
	return data, true
}
