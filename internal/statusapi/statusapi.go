// Package statusapi exposes read-only diagnostics for the archiving
// pipeline over HTTP: queue depth, per-log rotation state, and stage retry
// counts. It is a view onto the pipeline, never a control surface.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/logentries/s3archiver/internal/logger"
)

// Snapshot is the data the archiver exposes about itself at a point in
// time. Source supplies one on demand via SnapshotFunc.
type Snapshot struct {
	QueueDepth         int            `json:"queue_depth"`
	QueueCapacity      int            `json:"queue_capacity"`
	CompressionPending int            `json:"compression_pending"`
	UploadPending      int            `json:"upload_pending"`
	Logs               map[string]Log `json:"logs"`
}

// Log is the per-log-name state surfaced by the status endpoint.
type Log struct {
	StagingPath string `json:"staging_path"`
	Token       string `json:"token"`
	Size        int64  `json:"size"`
	FirstMsgTS  *int64 `json:"first_msg_ts"`
}

// SnapshotFunc is supplied by the backend; it must be safe to call
// concurrently with pipeline operation.
type SnapshotFunc func() Snapshot

// Server is an HTTP surface for Snapshot data.
type Server struct {
	log      logger.Logger
	snapshot SnapshotFunc
	httpSrv  *http.Server
}

// NewServer builds a status server bound to addr (e.g. ":8090") that calls
// snapshot to answer /status requests.
func NewServer(addr string, snapshot SnapshotFunc, log logger.Logger) *Server {
	s := &Server{log: log, snapshot: snapshot}

	r := mux.NewRouter()
	r.Use(logger.NewHTTPMiddleware(log).Handler)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe runs the HTTP server until it errors or is shut down.
// Matches the standard *http.Server contract: returns http.ErrServerClosed
// on a clean Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("failed to encode status response")
	}
}
