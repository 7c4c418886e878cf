package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/todosync/internal/core/domain"
)

// ReconcileEnqueuer accepts single-entity reconciliation requests.
type ReconcileEnqueuer interface {
	Push(ctx context.Context, source domain.SourceID, todoID uint64) (string, error)
}

// Server exposes the operational endpoints: liveness, a detailed status
// dump, Prometheus metrics, and the reconcile trigger.
type Server struct {
	monitor *Monitor
	queue   ReconcileEnqueuer
	srv     *http.Server
	log     *slog.Logger
}

// NewServer creates the health server on addr. queue may be nil when
// reconciliation is disabled.
func NewServer(addr string, monitor *Monitor, queue ReconcileEnqueuer) *Server {
	s := &Server{
		monitor: monitor,
		queue:   queue,
		log:     slog.Default().With("component", "health-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/reconcile", s.handleReconcile)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.log.Info("health server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.monitor.Healthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"time":    time.Now().UTC(),
		"sources": s.monitor.Snapshot(),
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reconciliation disabled"})
		return
	}

	var req struct {
		Source string `json:"source"`
		TodoID uint64 `json:"todo_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source and todo_id required"})
		return
	}

	jobID, err := s.queue.Push(r.Context(), domain.SourceID(req.Source), req.TodoID)
	if err != nil {
		s.log.Error("enqueue reconcile failed", "source", req.Source, "todo", req.TodoID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  jobID,
		"source":  req.Source,
		"todo_id": req.TodoID,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
