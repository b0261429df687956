package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
)

type fakeScorer struct {
	score float64
	err   error
	calls atomic.Int32
}

func (f *fakeScorer) Score(context.Context, string, string) (evaluation.SimilarityResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return evaluation.SimilarityResult{}, f.err
	}
	return evaluation.NewSimilarityResult(f.score, evaluation.DefaultSimilarityThreshold), nil
}

type fakeJudge struct {
	verdict evaluation.HallucinationVerdict
	err     error
	calls   atomic.Int32
}

func (f *fakeJudge) Judge(context.Context, string, string) (evaluation.HallucinationVerdict, error) {
	f.calls.Add(1)
	return f.verdict, f.err
}

type recordingSink struct {
	mu      sync.Mutex
	reports []evaluation.EvaluationReport
}

func (s *recordingSink) Record(r evaluation.EvaluationReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

// letterEmbedder counts letters, so identical texts embed identically.
type letterEmbedder struct{}

func (letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 26)
	for _, c := range text {
		if c >= 'a' && c <= 'z' {
			v[c-'a']++
		}
	}
	return v, nil
}

type scriptedGenerator string

func (g scriptedGenerator) Generate(context.Context, string, string, float32) (string, error) {
	return string(g), nil
}

func staticTask(artifact, source string) Task {
	return TaskFunc(func(context.Context, Request) (TaskOutput, error) {
		return TaskOutput{
			Evidence: evaluation.EvidencePair{ProducedArtifact: artifact, SourceMaterial: source},
			Payload:  map[string]any{"source_len": len(source)},
		}, nil
	})
}

type transitions struct {
	mu     sync.Mutex
	states []RunState
}

func (tr *transitions) hook(_ string, _, to RunState) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.states = append(tr.states, to)
}

func newTestExecutor(t *testing.T, task Task, scorer Scorer, judge Judge, opts ...ExecutorOption) *Executor {
	t.Helper()
	opts = append([]ExecutorOption{WithExecutorLogger(zaptest.NewLogger(t))}, opts...)
	e, err := NewExecutor(summarizationWorkflow, task, scorer, judge, evaluation.NewGate(evaluation.DefaultHighConfidence), opts...)
	require.NoError(t, err)
	return e
}

func TestExecutor_IdenticalTextsPass(t *testing.T) {
	text := "the eiffel tower is a wrought iron lattice tower in paris"
	scorer, err := evaluation.NewSimilarityScorer(letterEmbedder{}, evaluation.DefaultSimilarityThreshold, time.Second)
	require.NoError(t, err)
	judge, err := evaluation.NewHallucinationJudge(
		scriptedGenerator(`{"has_hallucination": false, "confidence": 0.97, "flagged_claims": []}`), nil)
	require.NoError(t, err)

	sink := &recordingSink{}
	tr := &transitions{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := newTestExecutor(t, staticTask(text, text), scorer, judge,
		WithSink(sink), WithTransitionHook(tr.hook), WithClock(func() time.Time { return fixed }),
		WithRunIDs(func() string { return "run-1" }))

	out, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, 1.0, out.Report.Similarity.Score)
	assert.Equal(t, evaluation.VerdictPass, out.Report.OverallVerdict)
	assert.Equal(t, "accept", out.Report.Recommendation)
	assert.Equal(t, fixed, out.Report.CreatedAt)
	assert.Equal(t, StatusOK, out.TaskResult.Status)
	assert.Equal(t, text, out.TaskResult.Payload["result"])
	assert.Equal(t, StatusOK, out.ValidationResult.Status)
	assert.Equal(t, []RunState{StatePending, StateRunningTask, StateRunningValidation, StateDone}, out.Transitions)
	assert.Equal(t, []RunState{StateRunningTask, StateRunningValidation, StateDone}, tr.states)

	require.Len(t, sink.reports, 1)
	assert.Equal(t, out.Report, sink.reports[0])
}

func TestExecutor_HallucinationWithLowSimilarityIsCritical(t *testing.T) {
	scorer := &fakeScorer{score: 0.5}
	judge := &fakeJudge{verdict: evaluation.HallucinationVerdict{
		HasHallucination: true, Confidence: 0.9, FlaggedClaims: []string{"built in 1999"},
	}}
	e := newTestExecutor(t, staticTask("built in 1999", "completed in 1889"), scorer, judge)

	out, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
	require.NoError(t, err)
	assert.Equal(t, evaluation.VerdictFailCritical, out.Report.OverallVerdict)
	assert.Equal(t, "reject, do not retry automatically", out.Report.Recommendation)
	assert.Equal(t, evaluation.RuleBothFail, out.Report.Rule)
}

func TestExecutor_JudgeParseErrorEscalates(t *testing.T) {
	scorer := &fakeScorer{score: 0.95}
	judge := &fakeJudge{err: apperr.ErrJudgeParse}
	e := newTestExecutor(t, staticTask("a", "b"), scorer, judge)

	out, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
	require.NoError(t, err)
	assert.Equal(t, evaluation.VerdictEscalate, out.Report.OverallVerdict)
	assert.Equal(t, "route to human review", out.Report.Recommendation)
	assert.Nil(t, out.Report.Hallucination)
	assert.NotNil(t, out.Report.Similarity)
	assert.Contains(t, out.Report.ValidationError, "could not be parsed")
}

func TestExecutor_ExpectedValidationErrorsEscalate(t *testing.T) {
	tests := []struct {
		name     string
		simErr   error
		judgeErr error
	}{
		{"empty input", apperr.ErrEmptyInput, apperr.ErrEmptyInput},
		{"judge rate limited", nil, &apperr.RateLimitedError{Attempts: 3, Err: apperr.ErrRateLimited}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &fakeJudge{err: tt.judgeErr}
			e := newTestExecutor(t, staticTask("a", "b"), &fakeScorer{score: 0.9, err: tt.simErr}, judge)

			out, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
			require.NoError(t, err)
			assert.Equal(t, evaluation.VerdictEscalate, out.Report.OverallVerdict)
		})
	}
}

func TestExecutor_TaskErrorSkipsValidation(t *testing.T) {
	scorer, judge := &fakeScorer{score: 1}, &fakeJudge{}
	sink := &recordingSink{}
	tr := &transitions{}
	failing := TaskFunc(func(context.Context, Request) (TaskOutput, error) {
		return TaskOutput{}, errors.New("pdf has no pages")
	})
	e := newTestExecutor(t, failing, scorer, judge, WithSink(sink), WithTransitionHook(tr.hook))

	out, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperr.ErrTask)
	assert.Contains(t, err.Error(), "pdf has no pages")

	var se *apperr.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, summarizationWorkflow.TaskStage(), se.Stage)

	assert.Zero(t, scorer.calls.Load())
	assert.Zero(t, judge.calls.Load())
	assert.Empty(t, sink.reports)
	assert.Equal(t, []RunState{StateRunningTask, StateErrored}, tr.states)
}

func TestExecutor_FatalValidationError(t *testing.T) {
	tr := &transitions{}
	sink := &recordingSink{}
	judge := &fakeJudge{err: errors.Join(apperr.ErrGeneration, errors.New("503 from backend"))}
	scorer := &fakeScorer{score: 0.9}
	e := newTestExecutor(t, staticTask("a", "b"), scorer, judge, WithSink(sink), WithTransitionHook(tr.hook))

	_, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrGeneration)
	assert.NotErrorIs(t, err, apperr.ErrTask)

	var se *apperr.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, summarizationWorkflow.ValidationStage(), se.Stage)
	assert.Equal(t, int32(1), scorer.calls.Load())
	assert.Empty(t, sink.reports)
	assert.Equal(t, []RunState{StateRunningTask, StateRunningValidation, StateErrored}, tr.states)
}

func TestExecutor_TimeoutIsFatal(t *testing.T) {
	scorer := &fakeScorer{err: apperr.Timeout("embed", context.DeadlineExceeded)}
	e := newTestExecutor(t, staticTask("a", "b"), scorer, &fakeJudge{})

	_, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
	assert.ErrorIs(t, err, apperr.ErrTimeout)
}

func TestExecutor_ValidatesEveryRun(t *testing.T) {
	scorer, judge := &fakeScorer{score: 0.9}, &fakeJudge{}
	e := newTestExecutor(t, staticTask("same", "same"), scorer, judge)

	for i := 0; i < 3; i++ {
		_, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), scorer.calls.Load())
	assert.Equal(t, int32(3), judge.calls.Load())
}

func TestExecutor_ChecksRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	blocking := &blockingChecks{release: release, started: &started}
	e := newTestExecutor(t, staticTask("a", "b"), blocking, blocking)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), Request{Capability: CapabilitySummarizeDocument})
		done <- err
	}()

	require.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-done)
}

type blockingChecks struct {
	release <-chan struct{}
	started *atomic.Int32
}

func (b *blockingChecks) Score(context.Context, string, string) (evaluation.SimilarityResult, error) {
	b.started.Add(1)
	<-b.release
	return evaluation.NewSimilarityResult(1, 0.7), nil
}

func (b *blockingChecks) Judge(context.Context, string, string) (evaluation.HallucinationVerdict, error) {
	b.started.Add(1)
	<-b.release
	return evaluation.HallucinationVerdict{Confidence: 1}, nil
}

func TestNewExecutor_Validation(t *testing.T) {
	gate := evaluation.NewGate(0.8)
	_, err := NewExecutor(WorkflowDefinition{}, staticTask("a", "b"), &fakeScorer{}, &fakeJudge{}, gate)
	assert.Error(t, err)
	_, err = NewExecutor(apiFetchingWorkflow, nil, &fakeScorer{}, &fakeJudge{}, gate)
	assert.Error(t, err)
	_, err = NewExecutor(apiFetchingWorkflow, staticTask("a", "b"), nil, &fakeJudge{}, gate)
	assert.Error(t, err)
}
