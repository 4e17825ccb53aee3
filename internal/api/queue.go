package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type QueueHandler struct {
	queue   QueueSource
	watcher WatcherSource
}

func NewQueueHandler(queue QueueSource, watcher WatcherSource) *QueueHandler {
	return &QueueHandler{queue: queue, watcher: watcher}
}

func (h *QueueHandler) Routes(r chi.Router) {
	r.Get("/api/v1/queue", h.GetQueue)
}

// GetQueue returns worker pool counters and, when watching, inbox counters.
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		WriteError(w, http.StatusServiceUnavailable, "recording queue not running")
		return
	}
	resp := map[string]any{
		"queue": h.queue.Stats(),
	}
	if h.watcher != nil {
		resp["watcher"] = h.watcher.Status()
	}
	WriteJSON(w, http.StatusOK, resp)
}
