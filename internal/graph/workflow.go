package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/metrics"
)

// Executor runs one workflow: its task stage, then its validation stage.
// It holds no per-run state and is safe for concurrent use.
type Executor struct {
	def    WorkflowDefinition
	task   Task
	scorer Scorer
	judge  Judge
	gate   evaluation.Gate

	sink         Sink
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	onTransition func(runID string, from, to RunState)
}

type ExecutorOption func(*Executor)

// WithSink sets where evaluation reports are recorded.
func WithSink(s Sink) ExecutorOption {
	return func(e *Executor) { e.sink = s }
}

func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logging.OrNop(l) }
}

// WithTransitionHook is called on every state change of every run.
func WithTransitionHook(fn func(runID string, from, to RunState)) ExecutorOption {
	return func(e *Executor) { e.onTransition = fn }
}

// WithClock overrides time.Now for report timestamps.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) ExecutorOption {
	return func(e *Executor) { e.newID = fn }
}

// NewExecutor binds a workflow to its collaborators.
func NewExecutor(def WorkflowDefinition, task Task, scorer Scorer, judge Judge, gate evaluation.Gate, opts ...ExecutorOption) (*Executor, error) {
	switch {
	case def.Name == "" || def.TaskStage() == "" || def.ValidationStage() == "":
		return nil, fmt.Errorf("workflow definition needs a name and two stages")
	case task == nil:
		return nil, fmt.Errorf("workflow %s: task is required", def.Name)
	case scorer == nil || judge == nil:
		return nil, fmt.Errorf("workflow %s: scorer and judge are required", def.Name)
	}

	e := &Executor{
		def:    def,
		task:   task,
		scorer: scorer,
		judge:  judge,
		gate:   gate,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("workflow", def.Name))
	return e, nil
}

// Definition returns the workflow this executor runs.
func (e *Executor) Definition() WorkflowDefinition { return e.def }

// run is the state of a single execution.
type run struct {
	id      string
	req     Request
	state   RunState
	history []RunState

	evidence   evaluation.EvidencePair
	taskResult StageResult
	valResult  StageResult
	report     evaluation.EvaluationReport
}

type node struct {
	state RunState
	stage string
	fn    func(context.Context, *run) error
}

// Run executes the workflow for req. It returns a complete outcome, or a
// *apperr.StageError naming the stage that failed.
func (e *Executor) Run(ctx context.Context, req Request) (*Outcome, error) {
	r := &run{id: e.newID(), req: req, state: StatePending, history: []RunState{StatePending}}
	log := e.logger.With(zap.String("run_id", r.id), zap.String("capability", string(req.Capability)))

	nodes := []node{
		{StateRunningTask, e.def.TaskStage(), e.taskNode},
		{StateRunningValidation, e.def.ValidationStage(), e.validationNode},
	}
	for _, n := range nodes {
		e.transition(log, r, n.state)
		start := time.Now()
		err := n.fn(ctx, r)
		metrics.StageDuration.WithLabelValues(e.def.Name, n.stage).Observe(time.Since(start).Seconds())
		if err != nil {
			e.transition(log, r, StateErrored)
			log.Warn("workflow stage failed", zap.String("stage", n.stage), zap.Error(err))
			return nil, &apperr.StageError{Workflow: e.def.Name, Stage: n.stage, Err: err}
		}
	}
	e.transition(log, r, StateDone)

	return &Outcome{
		RunID:            r.id,
		Workflow:         e.def.Name,
		Capability:       req.Capability,
		TaskResult:       r.taskResult,
		ValidationResult: r.valResult,
		Report:           r.report,
		Transitions:      r.history,
	}, nil
}

func (e *Executor) transition(log *zap.Logger, r *run, to RunState) {
	from := r.state
	r.state = to
	r.history = append(r.history, to)
	log.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	if e.onTransition != nil {
		e.onTransition(r.id, from, to)
	}
}

func (e *Executor) taskNode(ctx context.Context, r *run) error {
	out, err := e.task.Execute(ctx, r.req)
	if err != nil {
		r.taskResult = StageResult{StageName: e.def.TaskStage(), Status: StatusError, ErrorDetail: err.Error()}
		return apperr.NewTaskError(e.def.TaskStage(), err)
	}

	payload := make(map[string]any, len(out.Payload)+1)
	for k, v := range out.Payload {
		payload[k] = v
	}
	if _, ok := payload["result"]; !ok {
		payload["result"] = out.Evidence.ProducedArtifact
	}
	r.evidence = out.Evidence
	r.taskResult = StageResult{StageName: e.def.TaskStage(), Status: StatusOK, Payload: payload}
	return nil
}

// validationNode runs both checks concurrently. Neither cancels the other;
// the gate sees both outcomes.
func (e *Executor) validationNode(ctx context.Context, r *run) error {
	candidate, reference := r.evidence.ProducedArtifact, r.evidence.SourceMaterial

	var (
		in  evaluation.GateInput
		g   errgroup.Group
		sim evaluation.SimilarityResult
		hv  evaluation.HallucinationVerdict
	)
	g.Go(func() error {
		var err error
		sim, err = e.scorer.Score(ctx, candidate, reference)
		in.SimilarityErr = err
		return nil
	})
	g.Go(func() error {
		var err error
		hv, err = e.judge.Judge(ctx, candidate, reference)
		in.JudgeErr = err
		return nil
	})
	_ = g.Wait()

	if err := fatal(in.SimilarityErr, in.JudgeErr); err != nil {
		r.valResult = StageResult{StageName: e.def.ValidationStage(), Status: StatusError, ErrorDetail: err.Error()}
		return err
	}
	if in.SimilarityErr == nil {
		in.Similarity = &sim
	}
	if in.JudgeErr == nil {
		in.Hallucination = &hv
	}

	report := e.gate.Decide(evaluation.ReportMeta{
		RunID:      r.id,
		Workflow:   e.def.Name,
		Capability: string(r.req.Capability),
		CreatedAt:  e.now().UTC(),
	}, in)
	r.report = report
	r.valResult = StageResult{
		StageName: e.def.ValidationStage(),
		Status:    StatusOK,
		Payload: map[string]any{
			"overall_verdict": string(report.OverallVerdict),
			"recommendation":  report.Recommendation,
			"rule":            report.Rule,
			"reason":          report.Reason,
		},
	}

	metrics.VerdictsTotal.WithLabelValues(e.def.Name, string(report.OverallVerdict)).Inc()
	fields := []zap.Field{
		zap.String("run_id", r.id),
		zap.String("verdict", string(report.OverallVerdict)),
		zap.Int("rule", report.Rule),
		zap.String("reason", report.Reason),
	}
	if report.OverallVerdict == evaluation.VerdictEscalate {
		e.logger.Warn("validation inconclusive, escalating", append(fields, zap.String("validation_error", report.ValidationError))...)
	} else {
		e.logger.Info("validation verdict", fields...)
	}

	if e.sink != nil {
		e.sink.Record(report)
	}
	return nil
}

// fatal returns the check errors that are not expected inconclusive outcomes,
// joined when both checks failed that way.
func fatal(simErr, judgeErr error) error {
	var errs []error
	if simErr != nil && !apperr.IsEscalatable(simErr) {
		errs = append(errs, simErr)
	}
	if judgeErr != nil && !apperr.IsEscalatable(judgeErr) {
		errs = append(errs, judgeErr)
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
