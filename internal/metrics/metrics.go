package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callscribe"

// HTTP metrics, recorded by InstrumentHandler.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by route and status.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency. Event streams are excluded.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})

	SSEClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sse_clients",
		Help:      "Open event stream connections.",
	})
)

// Recording counters (incremented by the recording processor).
var (
	RecordingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_total",
		Help:      "Recordings processed, by outcome.",
	}, []string{"outcome"})

	RecordingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recording_stage_duration_seconds",
		Help:      "Time spent per processing stage.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms → ~7min
	}, []string{"stage"})

	DialogueLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dialogue_lines_total",
		Help:      "Transcript lines written, by kind.",
	}, []string{"kind"})

	SpeakerNameSourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "speaker_name_source_total",
		Help:      "How the other party's display name was resolved.",
	}, []string{"source"})

	NotificationsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_failed_total",
		Help:      "Completion notifications that could not be published.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SSEClients,
		RecordingsTotal,
		RecordingDuration,
		DialogueLinesTotal,
		SpeakerNameSourceTotal,
		NotificationsFailedTotal,
	)
}

// InstrumentHandler records request counts and latency per chi route
// pattern, so IDs in paths do not become label values.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		if sw.streamed {
			return
		}
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the status code and whether the handler flushed,
// which only the event stream does.
type statusWriter struct {
	http.ResponseWriter
	status   int
	streamed bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	w.streamed = true
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
