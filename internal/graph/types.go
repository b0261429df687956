// Package graph routes requests to workflows and runs each workflow as a
// task stage followed by a validation stage.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
)

// Capability is what a request asks the system to do.
type Capability string

const (
	CapabilityWeather           Capability = "weather"
	CapabilityExchangeRate      Capability = "exchange_rate"
	CapabilitySummarizeDocument Capability = "summarize_document"
	CapabilityDetectLanguage    Capability = "detect_language"
)

// Request is immutable once submitted. Param values are strings or numbers.
type Request struct {
	Capability Capability     `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
}

// Validate checks that every param value is a string or a number.
func (r Request) Validate() error {
	if strings.TrimSpace(string(r.Capability)) == "" {
		return fmt.Errorf("%w: capability is required", apperr.ErrInvalid)
	}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := paramString(r.Params[k]); !ok {
			return fmt.Errorf("%w: param %q must be a string or a number, got %T", apperr.ErrInvalid, k, r.Params[k])
		}
	}
	return nil
}

// Param returns the named param as a trimmed string. Numbers are formatted
// without a trailing exponent.
func (r Request) Param(key string) string {
	s, _ := paramString(r.Params[key])
	return strings.TrimSpace(s)
}

// ParamOr returns Param(key), or def when the param is absent or blank.
func (r Request) ParamOr(key, def string) string {
	if s := r.Param(key); s != "" {
		return s
	}
	return def
}

func paramString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

// WorkflowDefinition is an ordered pair of stages: task, then validation.
type WorkflowDefinition struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stages      [2]string `json:"stages"`
}

func (w WorkflowDefinition) TaskStage() string       { return w.Stages[0] }
func (w WorkflowDefinition) ValidationStage() string { return w.Stages[1] }

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StatusOK    StageStatus = "ok"
	StatusError StageStatus = "error"
)

// StageResult is created once per stage and never modified afterwards.
type StageResult struct {
	StageName   string         `json:"stage_name"`
	Status      StageStatus    `json:"status"`
	Payload     map[string]any `json:"payload,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// TaskOutput is what a task stage hands to validation. Evidence.SourceMaterial
// must be exactly the material the task consumed.
type TaskOutput struct {
	Evidence evaluation.EvidencePair
	Payload  map[string]any
}

// Task is the collaborator bound to a workflow's task stage.
type Task interface {
	Execute(ctx context.Context, req Request) (TaskOutput, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, req Request) (TaskOutput, error)

func (f TaskFunc) Execute(ctx context.Context, req Request) (TaskOutput, error) { return f(ctx, req) }

// Scorer is the similarity check.
type Scorer interface {
	Score(ctx context.Context, candidate, reference string) (evaluation.SimilarityResult, error)
}

// Judge is the hallucination check.
type Judge interface {
	Judge(ctx context.Context, candidate, reference string) (evaluation.HallucinationVerdict, error)
}

// Sink receives every evaluation report. Record must return promptly.
type Sink interface {
	Record(report evaluation.EvaluationReport)
}

// RunState is a state of the executor state machine.
type RunState string

const (
	StatePending           RunState = "PENDING"
	StateRunningTask       RunState = "RUNNING_TASK"
	StateRunningValidation RunState = "RUNNING_VALIDATION"
	StateDone              RunState = "DONE"
	StateErrored           RunState = "ERRORED"
)

// Outcome is the result of a run that reached DONE.
type Outcome struct {
	RunID            string                      `json:"run_id"`
	Workflow         string                      `json:"workflow"`
	Capability       Capability                  `json:"capability"`
	TaskResult       StageResult                 `json:"task_result"`
	ValidationResult StageResult                 `json:"validation_result"`
	Report           evaluation.EvaluationReport `json:"evaluation_report"`
	Transitions      []RunState                  `json:"transitions"`
}
