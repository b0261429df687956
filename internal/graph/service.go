package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/metrics"
)

// Service is the caller-facing surface: route, then run the bound executor.
type Service struct {
	router    *Router
	executors map[string]*Executor
	logger    *zap.Logger
}

// NewService checks that every routable workflow has an executor.
func NewService(router *Router, executors []*Executor, logger *zap.Logger) (*Service, error) {
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	byName := make(map[string]*Executor, len(executors))
	for _, e := range executors {
		byName[e.Definition().Name] = e
	}
	for _, def := range router.Workflows() {
		if _, ok := byName[def.Name]; !ok {
			return nil, fmt.Errorf("no executor bound to workflow %s", def.Name)
		}
	}
	return &Service{router: router, executors: byName, logger: logging.OrNop(logger)}, nil
}

// Capabilities lists what Submit can route.
func (s *Service) Capabilities() []Capability { return s.router.Capabilities() }

// Workflows lists the workflows Submit can run.
func (s *Service) Workflows() []WorkflowDefinition { return s.router.Workflows() }

// Submit routes req and runs its workflow. An unroutable request returns
// *apperr.UnroutableRequestError before any workflow runs.
func (s *Service) Submit(ctx context.Context, req Request) (*Outcome, error) {
	def, err := s.router.Route(req)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(req.Capability), "unroutable").Inc()
		s.logger.Info("unroutable request", zap.String("capability", string(req.Capability)))
		return nil, err
	}
	if err := req.Validate(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(req.Capability), "invalid").Inc()
		return nil, err
	}

	out, err := s.executors[def.Name].Run(ctx, req)
	metrics.SubmissionsTotal.WithLabelValues(string(req.Capability), submissionStatus(out, err)).Inc()
	return out, err
}

func submissionStatus(out *Outcome, err error) string {
	switch {
	case err == nil:
		return string(out.Report.OverallVerdict)
	case errors.Is(err, apperr.ErrTask):
		return "task_error"
	default:
		return "error"
	}
}
