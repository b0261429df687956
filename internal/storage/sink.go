package storage

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/metrics"
)

// Recorder is anything that accepts evaluation reports.
type Recorder interface {
	Record(report evaluation.EvaluationReport)
}

// LogSink writes each report as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger)}
}

func (s *LogSink) Record(r evaluation.EvaluationReport) {
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("workflow", r.Workflow),
		zap.String("capability", r.Capability),
		zap.String("verdict", string(r.OverallVerdict)),
		zap.String("recommendation", r.Recommendation),
		zap.Int("rule", r.Rule),
	}
	if r.Similarity != nil {
		fields = append(fields, zap.Float64("similarity", r.Similarity.Score))
	}
	if r.Hallucination != nil {
		fields = append(fields,
			zap.Bool("has_hallucination", r.Hallucination.HasHallucination),
			zap.Float64("judge_confidence", r.Hallucination.Confidence),
			zap.Strings("flagged_claims", r.Hallucination.FlaggedClaims))
	}
	if r.ValidationError != "" {
		fields = append(fields, zap.String("validation_error", r.ValidationError))
	}
	s.logger.Info("evaluation report", fields...)
}

// MultiSink records to every sink in order.
type MultiSink []Recorder

func (m MultiSink) Record(r evaluation.EvaluationReport) {
	for _, s := range m {
		s.Record(r)
	}
}

// AsyncSink hands reports to a background worker. Record never blocks: when
// the buffer is full the report is dropped and counted.
type AsyncSink struct {
	next   Recorder
	ch     chan evaluation.EvaluationReport
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncSink starts the worker. buffer <= 0 means 64.
func NewAsyncSink(next Recorder, buffer int, logger *zap.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 64
	}
	s := &AsyncSink{
		next:   next,
		ch:     make(chan evaluation.EvaluationReport, buffer),
		logger: logging.OrNop(logger),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for r := range s.ch {
		s.next.Record(r)
	}
}

func (s *AsyncSink) Record(r evaluation.EvaluationReport) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(r, "sink closed")
		return
	}
	select {
	case s.ch <- r:
	default:
		s.drop(r, "buffer full")
	}
}

func (s *AsyncSink) drop(r evaluation.EvaluationReport, why string) {
	metrics.SinkDroppedTotal.Inc()
	s.logger.Warn("dropping evaluation report", zap.String("run_id", r.RunID), zap.String("reason", why))
}

// Close stops accepting reports and waits for buffered ones to be recorded.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}
