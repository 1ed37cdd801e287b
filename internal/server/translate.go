package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/cadenza-app/cadenza/internal/translate"
)

type startTranslationRequest struct {
	TranscriptID   string `json:"transcript_id"`
	TargetLanguage string `json:"target_language"`
}

func (s *Server) handleStartTranslation(w http.ResponseWriter, r *http.Request) {
	var req startTranslationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TranscriptID == "" || req.TargetLanguage == "" {
		writeError(w, http.StatusBadRequest, "transcript_id and target_language are required")
		return
	}

	t, err := s.store.GetTranscript(r.Context(), req.TranscriptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load transcript: %v", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "transcript %q not found", req.TranscriptID)
		return
	}

	job := s.jobs.Start(r.Context(), t, req.TargetLanguage)
	writeJSON(w, http.StatusAccepted, jobStatus{
		JobID:          job.id,
		TranscriptID:   t.ID,
		TargetLanguage: req.TargetLanguage,
		State:          jobRunning,
		Total:          len(t.Segments),
	})
}

func (s *Server) handleTranslationJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job")
	job := s.jobs.Get(id)
	if job == nil {
		writeError(w, http.StatusNotFound, "translation job %q not found", id)
		return
	}
	writeJSON(w, http.StatusOK, job.snapshot())
}

// handleTranslationStream upgrades to a WebSocket and streams one JSON
// [jobStatus] per settled batch. Slow readers receive conflated snapshots;
// the final snapshot is always sent before the connection closes normally.
func (s *Server) handleTranslationStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job")
	job := s.jobs.Get(id)
	if job == nil {
		writeError(w, http.StatusNotFound, "translation job %q not found", id)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ch, cancel := job.subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "job complete")
				return
			}
			if err := writeProgress(ctx, conn, job, p); err != nil {
				return
			}
		}
	}
}

func writeProgress(ctx context.Context, conn *websocket.Conn, job *translationJob, p translate.Progress) error {
	state := jobRunning
	if p.Completed == p.Total {
		state = jobDone
	}
	data, err := json.Marshal(jobStatus{
		JobID:          job.id,
		TranscriptID:   job.transcriptID,
		TargetLanguage: job.targetLanguage,
		State:          state,
		Completed:      p.Completed,
		Total:          p.Total,
		Failed:         p.Failed,
		Segments:       p.Segments,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
