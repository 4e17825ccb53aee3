package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/snarg/callscribe/internal/database"
	"github.com/snarg/callscribe/internal/storage"
)

// TranscriptSource is the read side of the transcript index.
type TranscriptSource interface {
	ListTranscripts(ctx context.Context, filter database.TranscriptFilter) ([]database.TranscriptAPI, int, error)
	SearchTranscripts(ctx context.Context, query string, filter database.TranscriptFilter) ([]database.TranscriptSearchHit, int, error)
	GetTranscript(ctx context.Context, id uuid.UUID) (*database.TranscriptAPI, error)
}

type TranscriptsHandler struct {
	db TranscriptSource
}

func NewTranscriptsHandler(db TranscriptSource) *TranscriptsHandler {
	return &TranscriptsHandler{db: db}
}

func (h *TranscriptsHandler) Routes(r chi.Router) {
	r.Route("/api/v1/transcripts", func(r chi.Router) {
		r.Use(h.requireIndex)
		r.Get("/", h.ListTranscripts)
		r.Get("/{id}", h.GetTranscript)
		r.Get("/{id}/lrc", h.GetTranscriptLRC)
	})
}

func (h *TranscriptsHandler) requireIndex(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.db == nil {
			WriteErrorDetail(w, http.StatusServiceUnavailable, "transcript index not configured", "set DATABASE_URL to enable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListTranscripts lists indexed transcripts newest first, or runs a
// full-text search when q is given.
func (h *TranscriptsHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseTranscriptFilter(w, r)
	if !ok {
		return
	}

	if q, ok := QueryString(r, "q"); ok && strings.TrimSpace(q) != "" {
		hits, total, err := h.db.SearchTranscripts(r.Context(), q, filter)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to search transcripts")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"query":       q,
			"transcripts": hits,
			"total":       total,
			"limit":       filter.Limit,
			"offset":      filter.Offset,
		})
		return
	}

	rows, total, err := h.db.ListTranscripts(r.Context(), filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcripts": rows,
		"total":       total,
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

// GetTranscript returns one transcript with its dialogue lines.
func (h *TranscriptsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// GetTranscriptLRC returns the rendered transcript file as stored.
func (h *TranscriptsHandler) GetTranscriptLRC(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", storage.ContentTypeLRC)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(t.Body))
}

func (h *TranscriptsHandler) lookup(w http.ResponseWriter, r *http.Request) (*database.TranscriptAPI, bool) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid transcript id", err.Error())
		return nil, false
	}
	t, err := h.db.GetTranscript(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "transcript not found")
		return nil, false
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load transcript")
		return nil, false
	}
	return t, true
}

func parseTranscriptFilter(w http.ResponseWriter, r *http.Request) (database.TranscriptFilter, bool) {
	var filter database.TranscriptFilter

	p, err := ParsePagination(r)
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid pagination", err.Error())
		return filter, false
	}
	filter.Limit = p.Limit
	filter.Offset = p.Offset

	if v, ok := QueryString(r, "speaker"); ok {
		filter.Speaker = v
	}
	for _, tp := range []struct {
		name string
		dst  **time.Time
	}{
		{"start_time", &filter.StartTime},
		{"end_time", &filter.EndTime},
	} {
		t, ok, err := QueryTime(r, tp.name)
		if err != nil {
			WriteErrorDetail(w, http.StatusBadRequest, "invalid time filter", err.Error())
			return filter, false
		}
		if ok {
			*tp.dst = &t
		}
	}
	return filter, true
}
