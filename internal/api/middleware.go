package api

import (
	"log/slog"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// flushRecorder wraps a statusRecorder whose underlying writer can
// flush. The recorder must only advertise http.Flusher when the
// wrapped writer does, or the SSE handler would stream into a buffer
// that never reaches the client.
type flushRecorder struct {
	*statusRecorder
	flusher http.Flusher
}

func (r *flushRecorder) Flush() {
	r.flusher.Flush()
}

// LogRequests returns middleware that logs every request with its
// status and duration
func LogRequests(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		var ww http.ResponseWriter = rec
		if f, ok := w.(http.Flusher); ok {
			ww = &flushRecorder{statusRecorder: rec, flusher: f}
		}

		next.ServeHTTP(ww, r)

		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
