// Package api exposes the read-only HTTP inspection surface: health,
// queue status, queue details, and Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xXKillerNoobYT/ticketd/internal/logging"
	"github.com/xXKillerNoobYT/ticketd/internal/scheduler"
	"github.com/xXKillerNoobYT/ticketd/internal/telemetry"
)

// Server wires HTTP handlers over the scheduler's inspection contract.
type Server struct {
	sched  *scheduler.Scheduler
	logger *logging.Logger
}

// New constructs the inspection server.
func New(sched *scheduler.Scheduler, logger *logging.Logger) *Server {
	return &Server{sched: sched, logger: logger}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/status", s.handleStatus)
	r.Get("/queue", s.handleQueue)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.sched.GetQueueStatus())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.sched.GetQueueDetails())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnf("write_response_failed error=%v", err)
	}
}
