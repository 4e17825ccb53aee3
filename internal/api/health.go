package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/snarg/callscribe/internal/recording"
	"github.com/snarg/callscribe/internal/watch"
)

// HealthChecker pings the transcript index.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnChecker reports broker connectivity.
type ConnChecker interface {
	IsConnected() bool
}

// QueueSource exposes worker pool state.
type QueueSource interface {
	Stats() recording.QueueStats
}

// WatcherSource exposes inbox watcher state.
type WatcherSource interface {
	Status() watch.Status
}

type HealthResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Checks        map[string]string     `json:"checks"`
	Queue         *recording.QueueStats `json:"queue,omitempty"`
}

type HealthHandler struct {
	db        HealthChecker
	mqtt      ConnChecker
	queue     QueueSource
	watcher   WatcherSource
	version   string
	startTime time.Time
}

func NewHealthHandler(db HealthChecker, mqtt ConnChecker, queue QueueSource, watcher WatcherSource, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		queue:     queue,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

// ServeHTTP reports unhealthy (503) only when the index is unreachable. A
// lost broker or a stopped watcher degrades the status but still serves 200.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// Database check
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := h.db.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// Inbox watcher check
	if h.watcher != nil {
		ws := h.watcher.Status()
		checks["file_watcher"] = ws.Status
		if ws.Status == "stopped" {
			degrade()
		}
	} else {
		checks["file_watcher"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.queue != nil {
		qs := h.queue.Stats()
		resp.Queue = &qs
		if qs.Capacity > 0 && qs.Pending >= qs.Capacity {
			checks["queue"] = "full"
			degrade()
		} else {
			checks["queue"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
