package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snarg/callscribe/internal/events"
)

// readEvent reads one SSE frame (lines up to a blank line), skipping comments.
func readEvent(t *testing.T, sc *bufio.Scanner) map[string]string {
	t.Helper()
	frame := map[string]string{}
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(frame) > 0 {
				return frame
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		k, v, _ := strings.Cut(line, ": ")
		frame[k] = v
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return nil
}

func TestStreamEvents(t *testing.T) {
	bus := events.NewBus(16)
	bus.Publish("transcript", map[string]string{"input": "old.m4a"})
	lastID := bus.ReplaySince("", events.Filter{})[0].ID
	bus.Publish("failed", map[string]string{"input": "missed.m4a"})

	srv := httptest.NewServer(newTestRouter(ServerOptions{Events: bus}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/events/stream", nil)
	req.Header.Set("Last-Event-ID", lastID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	sc := bufio.NewScanner(resp.Body)

	// Replayed event first.
	got := readEvent(t, sc)
	if got["event"] != "failed" || !strings.Contains(got["data"], "missed.m4a") {
		t.Errorf("replayed frame = %v", got)
	}

	// Then live events, once the subscription is registered.
	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	bus.Publish("transcript", map[string]string{"input": "new.m4a"})
	got = readEvent(t, sc)
	if got["event"] != "transcript" || !strings.Contains(got["data"], "new.m4a") || got["id"] == "" {
		t.Errorf("live frame = %v", got)
	}
}

func TestStreamEvents_NotConfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(ServerOptions{}).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/events/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
