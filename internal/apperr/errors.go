// Package apperr holds the error taxonomy shared by the pipeline stages.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Wrapped errors must stay matchable with errors.Is.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrGeneration  = errors.New("generation failed")
	ErrTimeout     = errors.New("timeout")
	ErrEmptyInput  = errors.New("empty input")
	ErrJudgeParse  = errors.New("judge response could not be parsed")
	ErrUnroutable  = errors.New("unroutable request")
	ErrTask        = errors.New("task failed")
	ErrInvalid     = errors.New("invalid request")
)

// RateLimitedError is returned once the backoff controller has given up.
type RateLimitedError struct {
	Attempts int
	Err      error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// UnroutableRequestError names the capability that could not be routed and
// the ones that could.
type UnroutableRequestError struct {
	Capability string
	Available  []string
}

func (e *UnroutableRequestError) Error() string {
	return fmt.Sprintf("no workflow for capability %q (available: %s)",
		e.Capability, strings.Join(e.Available, ", "))
}

func (e *UnroutableRequestError) Is(target error) bool { return target == ErrUnroutable }

// TaskError is a task-stage failure. A run that hits one is never validated.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

func (e *TaskError) Is(target error) bool { return target == ErrTask }

// NewTaskError wraps err as a TaskError unless it already is one.
func NewTaskError(task string, err error) error {
	var te *TaskError
	if errors.As(err, &te) {
		return err
	}
	return &TaskError{Task: task, Err: err}
}

// StageError identifies which stage of which workflow stopped a run.
type StageError struct {
	Workflow string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("workflow %s: stage %s: %v", e.Workflow, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Timeout converts a context deadline into ErrTimeout, keeping the operation
// name. Other errors are returned unchanged.
func Timeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return err
}

// IsEscalatable reports whether a validation-stage error is an expected
// inconclusive outcome rather than a fatal fault.
func IsEscalatable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrJudgeParse)
}
