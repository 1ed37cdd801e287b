package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cadenza-app/cadenza/internal/server"
	"github.com/cadenza-app/cadenza/internal/translate"
	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/provider/llm"
	llmmock "github.com/cadenza-app/cadenza/pkg/provider/llm/mock"
)

type jobStatusBody struct {
	JobID          string            `json:"job_id"`
	TranscriptID   string            `json:"transcript_id"`
	TargetLanguage string            `json:"target_language"`
	State          string            `json:"state"`
	Completed      int               `json:"completed"`
	Total          int               `json:"total"`
	Failed         int               `json:"failed"`
	Segments       []caption.Segment `json:"segments"`
}

// echoTranslator answers every batch with "fr:" prefixed source lines, in
// order, as the bare JSON array the system prompt asks for.
func echoTranslator() *llmmock.Provider {
	return &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			content := req.Messages[len(req.Messages)-1].Content
			var out []string
			for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
				if _, text, ok := strings.Cut(line, ". "); ok {
					out = append(out, "fr:"+text)
				}
			}
			data, err := json.Marshal(out)
			if err != nil {
				return nil, err
			}
			return &llm.CompletionResponse{Content: string(data)}, nil
		},
	}
}

// perSegmentPolicy forces one top-level batch per segment so tests observe
// multiple progress snapshots.
func perSegmentPolicy() translate.Policy {
	p := translate.DefaultPolicy()
	p.MaxBatchSegments = 1
	p.MaxAttempts = 1
	p.BatchTimeout = 5 * time.Second
	p.BackoffUnit = time.Millisecond
	return p
}

func waitForJob(t *testing.T, url string) jobStatusBody {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := get(t, url)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("job status = %d, want 200", resp.StatusCode)
		}
		var body jobStatusBody
		decodeBody(t, resp, &body)
		if body.State == "done" {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("translation job did not finish in time")
	return jobStatusBody{}
}

func TestStartTranslation_Validation(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, server.Config{})

	resp := postJSON(t, ts.URL+"/v1/translate", map[string]any{"transcript_id": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing target_language: status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/v1/translate", map[string]any{
		"transcript_id":   "nope",
		"target_language": "fr",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown transcript: status = %d, want 404", resp.StatusCode)
	}
}

func TestTranslation_JobLifecycle(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, server.Config{
		Orchestrator: translate.New(echoTranslator(), translate.WithPolicy(perSegmentPolicy())),
	})
	createTranscript(t, ts.URL, "tr-fr")

	resp := postJSON(t, ts.URL+"/v1/translate", map[string]any{
		"transcript_id":   "tr-fr",
		"target_language": "fr",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", resp.StatusCode)
	}
	var started jobStatusBody
	decodeBody(t, resp, &started)
	if started.JobID == "" || started.Total != 2 || started.State != "running" {
		t.Fatalf("unexpected start response: %+v", started)
	}

	final := waitForJob(t, ts.URL+"/v1/translate/"+started.JobID)
	if final.Completed != 2 || final.Failed != 0 {
		t.Errorf("final = completed %d failed %d, want 2/0", final.Completed, final.Failed)
	}
	if len(final.Segments) != 2 {
		t.Fatalf("final has %d segments, want 2", len(final.Segments))
	}
	if final.Segments[0].Translation != "fr:The rain in Spain." {
		t.Errorf("translation 0 = %q", final.Segments[0].Translation)
	}

	// The resolved translations must have landed in the store.
	tResp := get(t, ts.URL+"/v1/transcripts/tr-fr")
	var tr struct {
		TargetLanguage string            `json:"target_language"`
		Segments       []caption.Segment `json:"segments"`
	}
	decodeBody(t, tResp, &tr)
	if tr.TargetLanguage != "fr" {
		t.Errorf("stored target language = %q, want fr", tr.TargetLanguage)
	}
	if tr.Segments[1].Translation != "fr:Stays mainly in the plain." {
		t.Errorf("stored translation 1 = %q", tr.Segments[1].Translation)
	}
}

func TestTranslation_NoProviderStampsFallback(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, server.Config{})
	createTranscript(t, ts.URL, "tr-nofallback")

	resp := postJSON(t, ts.URL+"/v1/translate", map[string]any{
		"transcript_id":   "tr-nofallback",
		"target_language": "de",
	})
	var started jobStatusBody
	decodeBody(t, resp, &started)

	final := waitForJob(t, ts.URL+"/v1/translate/"+started.JobID)
	if final.Completed != 2 {
		t.Errorf("completed = %d, want 2", final.Completed)
	}
	for i, seg := range final.Segments {
		if seg.Translation != translate.FallbackTranslation {
			t.Errorf("segment %d translation = %q, want fallback sentinel", i, seg.Translation)
		}
	}
}

func TestTranslationJob_NotFound(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, server.Config{})

	if resp := get(t, ts.URL+"/v1/translate/job-9999"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("snapshot status = %d, want 404", resp.StatusCode)
	}
	if resp := get(t, ts.URL+"/v1/translate/job-9999/ws"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("stream status = %d, want 404", resp.StatusCode)
	}
}

func TestTranslation_ProgressStream(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, server.Config{
		Orchestrator: translate.New(echoTranslator(), translate.WithPolicy(perSegmentPolicy())),
	})
	createTranscript(t, ts.URL, "tr-stream")

	resp := postJSON(t, ts.URL+"/v1/translate", map[string]any{
		"transcript_id":   "tr-stream",
		"target_language": "fr",
	})
	var started jobStatusBody
	decodeBody(t, resp, &started)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/translate/" + started.JobID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.CloseNow()

	var (
		last     jobStatusBody
		received int
		lastDone int
	)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("stream ended abnormally: %v", err)
			}
			break
		}
		var ev jobStatusBody
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad stream payload: %v", err)
		}
		if ev.Completed < lastDone {
			t.Errorf("progress went backwards: %d after %d", ev.Completed, lastDone)
		}
		lastDone = ev.Completed
		last = ev
		received++
	}

	if received == 0 {
		t.Fatal("stream delivered no snapshots")
	}
	if last.State != "done" || last.Completed != 2 || last.Total != 2 {
		t.Errorf("last snapshot = %+v, want done 2/2", last)
	}
	if last.Segments[1].Translation != "fr:Stays mainly in the plain." {
		t.Errorf("last snapshot translation = %q", last.Segments[1].Translation)
	}
}
