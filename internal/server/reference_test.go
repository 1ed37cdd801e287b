package server_test

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/cadenza-app/cadenza/internal/server"
	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/provider/tts"
	ttsmock "github.com/cadenza-app/cadenza/pkg/provider/tts/mock"
)

// synthBuffer is a short 24 kHz mono buffer standing in for provider output.
func synthBuffer() *audio.Buffer {
	samples := make([]float32, 24000)
	for i := range samples {
		samples[i] = 0.25
	}
	return &audio.Buffer{SampleRate: 24000, Channels: [][]float32{samples}}
}

func TestReferenceAudio_ReturnsCanonicalWAV(t *testing.T) {
	t.Parallel()
	provider := &ttsmock.Provider{SynthesizeResult: synthBuffer()}
	ts, _ := newTestServer(t, server.Config{TTS: provider})

	resp := postJSON(t, ts.URL+"/v1/reference/audio", map[string]any{
		"text":     "The rain in Spain.",
		"voice_id": "nova",
		"speed":    0.8,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("response is not WAV: %v", err)
	}
	if buf.SampleRate != audio.CanonicalRate {
		t.Errorf("sample rate = %d, want %d", buf.SampleRate, audio.CanonicalRate)
	}
	if buf.NumChannels() != 1 {
		t.Errorf("channels = %d, want 1", buf.NumChannels())
	}

	if len(provider.SynthesizeCalls) != 1 {
		t.Fatalf("synthesize calls = %d, want 1", len(provider.SynthesizeCalls))
	}
	call := provider.SynthesizeCalls[0]
	if call.Text != "The rain in Spain." {
		t.Errorf("synthesized text = %q", call.Text)
	}
	if call.Voice.ID != "nova" || call.Voice.SpeedFactor != 0.8 {
		t.Errorf("voice = %+v", call.Voice)
	}
}

func TestReferenceAudio_NoProvider(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, server.Config{})

	resp := postJSON(t, ts.URL+"/v1/reference/audio", map[string]any{"text": "hello"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestReferenceAudio_RequiresText(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, server.Config{TTS: &ttsmock.Provider{}})

	resp := postJSON(t, ts.URL+"/v1/reference/audio", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestReferenceAudio_ProviderError(t *testing.T) {
	t.Parallel()
	provider := &ttsmock.Provider{SynthesizeErr: errors.New("voice not found")}
	ts, _ := newTestServer(t, server.Config{TTS: provider})

	resp := postJSON(t, ts.URL+"/v1/reference/audio", map[string]any{"text": "hello"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestReferenceVoices(t *testing.T) {
	t.Parallel()
	provider := &ttsmock.Provider{
		ListVoicesResult: []tts.VoiceProfile{
			{ID: "nova", Name: "Nova"},
			{ID: "onyx", Name: "Onyx"},
		},
	}
	ts, _ := newTestServer(t, server.Config{TTS: provider})

	resp := get(t, ts.URL+"/v1/reference/voices")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Voices []tts.VoiceProfile `json:"voices"`
	}
	decodeBody(t, resp, &body)
	if len(body.Voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(body.Voices))
	}
	if body.Voices[0].ID != "nova" {
		t.Errorf("voice 0 = %+v", body.Voices[0])
	}
}
