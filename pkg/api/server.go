// Package api exposes the thin HTTP control surface over the run
// controller: start, stop, status, liveness and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jihwankim/telesim/pkg/logging"
	"github.com/jihwankim/telesim/pkg/metrics"
	"github.com/jihwankim/telesim/pkg/repair"
	"github.com/jihwankim/telesim/pkg/sim"
	"github.com/jihwankim/telesim/pkg/store"
)

// stopCeiling bounds how long a /stop call waits for the drain.
const stopCeiling = 5 * time.Second

// Server serves the control endpoints.
type Server struct {
	ctrl          *sim.Controller
	store         store.Store
	log           *logging.Logger
	allowedOrigin string
}

// New builds a server over the controller.
func New(ctrl *sim.Controller, st store.Store, log *logging.Logger, allowedOrigin string) *Server {
	return &Server{
		ctrl:          ctrl,
		store:         st,
		log:           log,
		allowedOrigin: allowedOrigin,
	}
}

// Router returns the chi router with all control routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/status", s.handleStatus)
	r.Post("/start", s.handleStart)
	r.Post("/stop", s.handleStop)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info("control surface listening", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// statusResponse is the shared response shape for status, start and stop.
type statusResponse struct {
	OK             bool               `json:"ok"`
	Producer       sim.ProducerStatus `json:"producer"`
	Scheduler      repair.Status      `json:"scheduler"`
	PersistedCount *int64             `json:"persistedCount"`
}

// errorResponse is the error shape for all endpoints.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(r.Context(), w, s.ctrl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req sim.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	snap, err := s.ctrl.Start(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sim.ErrInvalidArgument) {
			status = http.StatusBadRequest
		} else if errors.Is(err, sim.ErrResource) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err)
		return
	}
	s.writeStatus(r.Context(), w, snap)
}

// handleStop races the cooperative drain against a ceiling so the HTTP call
// never hangs; the drain continues in the background on timeout.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	done := make(chan sim.Snapshot, 1)
	go func() {
		done <- s.ctrl.Stop(context.Background())
	}()

	select {
	case snap := <-done:
		s.writeStatus(r.Context(), w, snap)
	case <-time.After(stopCeiling):
		s.log.Warn("stop exceeded ceiling, responding with current status")
		s.writeStatus(r.Context(), w, s.ctrl.Status())
	}
}

// writeStatus renders the shared response shape. persistedCount is the
// repair count for the active run, null when idle or when the count query
// fails.
func (s *Server) writeStatus(ctx context.Context, w http.ResponseWriter, snap sim.Snapshot) {
	resp := statusResponse{
		OK:        true,
		Producer:  snap.Producer,
		Scheduler: snap.Scheduler,
	}

	if runID := s.ctrl.CurrentRunID(); runID != "" {
		if n, err := s.store.CountRepairs(ctx, runID); err == nil {
			resp.PersistedCount = &n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{OK: false, Error: err.Error()})
}
