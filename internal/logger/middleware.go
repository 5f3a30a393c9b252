package logger

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPMiddleware logs one line per HTTP request with method, path, status,
// bytes written and duration. Used by the status API's router.
type HTTPMiddleware struct {
	log    Logger
	nextID atomic.Int64
}

// NewHTTPMiddleware builds middleware logging through log.
func NewHTTPMiddleware(log Logger) *HTTPMiddleware {
	return &HTTPMiddleware{log: log}
}

// Handler wraps next, satisfying mux.MiddlewareFunc.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", m.nextID.Add(1))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.log.WithFields(map[string]interface{}{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"bytes":      rec.bytes,
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
		}).Debug("http request")
	})
}

// statusRecorder captures the status code and byte count a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}
