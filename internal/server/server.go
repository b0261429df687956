// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/graph"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/metrics"
)

const maxRequestBody = 1 << 20

// Submitter is the pipeline as seen by the HTTP layer.
type Submitter interface {
	Submit(ctx context.Context, req graph.Request) (*graph.Outcome, error)
	Capabilities() []graph.Capability
	Workflows() []graph.WorkflowDefinition
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	svc    Submitter
	checks map[string]Pinger
	logger *zap.Logger
	router *mux.Router
}

type Option func(*Server)

// WithHealthCheck adds a named dependency to /health.
func WithHealthCheck(name string, p Pinger) Option {
	return func(s *Server) { s.checks[name] = p }
}

func New(svc Submitter, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{svc: svc, checks: map[string]Pinger{}, logger: logging.OrNop(logger)}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()
	router.HandleFunc("/submit", s.instrument("/submit", s.handleSubmit)).Methods("POST")
	router.HandleFunc("/capabilities", s.instrument("/capabilities", s.handleCapabilities)).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())
	s.router = router
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within 30 seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("agentgate server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server exited")
	return nil
}

type errorResponse struct {
	Error     string   `json:"error"`
	Available []string `json:"available_capabilities,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) int {
	var req graph.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
	}

	out, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		resp := errorResponse{Error: err.Error()}
		var ue *apperr.UnroutableRequestError
		if errors.As(err, &ue) {
			resp.Available = ue.Available
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("submission failed", zap.String("capability", string(req.Capability)), zap.Error(err))
		}
		return writeJSON(w, status, resp)
	}
	return writeJSON(w, http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrUnroutable), errors.Is(err, apperr.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrTask):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) int {
	return writeJSON(w, http.StatusOK, map[string]any{
		"capabilities": s.svc.Capabilities(),
		"workflows":    s.svc.Workflows(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "healthy"}
	for name, p := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := p.Ping(ctx); err != nil {
			health[name] = "disconnected"
		} else {
			health[name] = "connected"
		}
		cancel()
	}
	writeJSON(w, http.StatusOK, health)
}

// instrument records request count and latency for a handler that returns
// its status code.
func (s *Server) instrument(endpoint string, h func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := h(w, r)
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
	return status
}
