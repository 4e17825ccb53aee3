package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "left.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWhisperClient_Transcribe(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.MultipartForm.Value
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "Hello there.",
			"language": "en",
			"duration": 2.5,
			"segments": [{"start": 0.1, "end": 1.2, "text": " Hello there.", "avg_logprob": -0.3, "no_speech_prob": 0.01}],
			"words": [
				{"word": " Hello", "start": 0.1, "end": 0.5, "probability": 0.91},
				{"word": " there", "start": 0.6, "end": 1.2, "probability": 0.88}
			]
		}`))
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "large-v3", 5*time.Second)
	resp, err := wc.Transcribe(context.Background(), writeAudio(t), DefaultTranscribeOpts())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got := form["response_format"]; len(got) != 1 || got[0] != "verbose_json" {
		t.Errorf("response_format = %v", got)
	}
	if got := form["timestamp_granularities[]"]; len(got) != 2 {
		t.Errorf("timestamp_granularities = %v, want segment and word", got)
	}
	if got := form["beam_size"]; len(got) != 1 || got[0] != "5" {
		t.Errorf("beam_size = %v", got)
	}
	var vad map[string]float64
	if err := json.Unmarshal([]byte(form["vad_parameters"][0]), &vad); err != nil {
		t.Fatalf("vad_parameters: %v", err)
	}
	if vad["threshold"] != 0.6 || vad["min_silence_duration_ms"] != 220 || vad["speech_pad_ms"] != 80 {
		t.Errorf("vad_parameters = %v", vad)
	}

	if resp.Duration != 2.5 || resp.Language != "en" {
		t.Errorf("duration=%v language=%q", resp.Duration, resp.Language)
	}
	if len(resp.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(resp.Segments))
	}
	// Top-level words are attached to the segment they fall in.
	if len(resp.Segments[0].Words) != 2 {
		t.Errorf("segment words = %d, want 2", len(resp.Segments[0].Words))
	}
	if resp.Segments[0].AvgLogprob == nil || *resp.Segments[0].AvgLogprob != -0.3 {
		t.Errorf("avg_logprob = %v", resp.Segments[0].AvgLogprob)
	}
}

func TestWhisperClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "", time.Second)
	_, err := wc.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{})
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Errorf("err = %v, want status 503", err)
	}
}

func TestWhisperClient_MissingFile(t *testing.T) {
	wc := NewWhisperClient("http://127.0.0.1:0", "", time.Second)
	if _, err := wc.Transcribe(context.Background(), "/nonexistent.wav", TranscribeOpts{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestElevenLabsClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("xi-api-key = %q", r.Header.Get("xi-api-key"))
		}
		r.ParseMultipartForm(1 << 20)
		if got := r.FormValue("tag_audio_events"); got != "true" {
			t.Errorf("tag_audio_events = %q", got)
		}
		if got := r.FormValue("keyterms"); got != `[{"text":"Acme"},{"text":"Jane"}]` {
			t.Errorf("keyterms = %q", got)
		}
		w.Write([]byte(`{
			"language_code": "eng",
			"text": "ha (laughter)",
			"words": [
				{"text": "ha", "type": "word", "start": 0.0, "end": 0.3, "logprob": -0.1},
				{"text": " ", "type": "spacing", "start": 0.3, "end": 0.4},
				{"text": "(laughter)", "type": "audio_event", "start": 0.4, "end": 1.4}
			]
		}`))
	}))
	defer srv.Close()

	el := NewElevenLabsClient("secret", "scribe_v1", "Acme", 5*time.Second)
	el.endpoint = srv.URL

	resp, err := el.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{Hotwords: "Jane"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(resp.Words) != 2 {
		t.Fatalf("words = %d, want 2 (spacing dropped)", len(resp.Words))
	}
	if resp.Words[0].Probability == nil || math.Abs(*resp.Words[0].Probability-math.Exp(-0.1)) > 1e-9 {
		t.Errorf("word 0 probability = %v", resp.Words[0].Probability)
	}
	if !resp.Words[1].Event {
		t.Error("audio_event should be tagged Event")
	}
	if resp.Duration != 1.4 {
		t.Errorf("duration = %v, want 1.4", resp.Duration)
	}
}

type stubProvider struct {
	calls atomic.Int32
	fail  string
	delay time.Duration
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-1" }

func (s *stubProvider) Transcribe(ctx context.Context, path string, _ TranscribeOpts) (*Response, error) {
	s.calls.Add(1)
	if path == s.fail {
		return nil, errors.New("boom")
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Response{Text: path}, nil
}

func TestTranscribeChannels(t *testing.T) {
	p := &stubProvider{}
	out, err := TranscribeChannels(context.Background(), p, "left.wav", "right.wav", TranscribeOpts{})
	if err != nil {
		t.Fatalf("TranscribeChannels: %v", err)
	}
	if out.Left.Text != "left.wav" || out.Right.Text != "right.wav" {
		t.Errorf("left=%q right=%q", out.Left.Text, out.Right.Text)
	}
	if p.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", p.calls.Load())
	}
}

func TestTranscribeChannels_FailureCancelsSibling(t *testing.T) {
	p := &stubProvider{fail: "right.wav", delay: 10 * time.Second}

	start := time.Now()
	out, err := TranscribeChannels(context.Background(), p, "left.wav", "right.wav", TranscribeOpts{})
	if err == nil {
		t.Fatal("expected error")
	}
	if out != nil {
		t.Error("expected no partial result")
	}
	if !strings.Contains(err.Error(), "right channel") {
		t.Errorf("err = %v, want right channel failure", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("sibling request was not cancelled")
	}
}
