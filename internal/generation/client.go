// Package generation wraps the external text-generation service. The Client
// owns retry and backoff; backends only perform a single call and classify
// its failure.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 30 * time.Second
	DefaultTimeout     = 2 * time.Minute
)

// Prompt is one generation request.
type Prompt struct {
	Text              string
	SystemInstruction string
	Temperature       float32
}

// Backend performs exactly one call to a generation service. Rate limiting
// must be reported as apperr.ErrRateLimited and every other failure as
// apperr.ErrGeneration.
type Backend interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Model() string
}

// Generator is what stages depend on.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string, temperature float32) (string, error)
}

// RetryPolicy configures the backoff controller.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at 30s: waits of 30s and 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.BaseDelay << uint(p.MaxAttempts),
	}
	b.Reset()
	return b
}

// RetryState lives for one Generate call.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithBackoffNotify is called before every backoff sleep with the attempt
// that just failed and the delay about to be taken.
func WithBackoffNotify(fn func(state RetryState, delay time.Duration)) Option {
	return func(c *Client) { c.onBackoff = fn }
}

// Client is safe for concurrent use.
type Client struct {
	backend   Backend
	policy    RetryPolicy
	timeout   time.Duration
	logger    *zap.Logger
	onBackoff func(RetryState, time.Duration)
}

// NewClient returns a Client. A zero policy falls back to DefaultRetryPolicy.
func NewClient(backend Backend, policy RetryPolicy, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("generation backend is required")
	}
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.MaxAttempts < 0 || policy.BaseDelay < 0 {
		return nil, fmt.Errorf("invalid retry policy: %+v", policy)
	}
	c := &Client{
		backend: backend,
		policy:  policy,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the backend's model name.
func (c *Client) Model() string { return c.backend.Model() }

// Generate calls the backend, retrying only on rate limiting.
func (c *Client) Generate(ctx context.Context, prompt, systemInstruction string, temperature float32) (string, error) {
	p := Prompt{Text: prompt, SystemInstruction: systemInstruction, Temperature: temperature}
	state := RetryState{MaxAttempts: c.policy.MaxAttempts, BaseDelay: c.policy.BaseDelay}

	op := func() (string, error) {
		state.Attempt++
		text, err := c.attempt(ctx, p)
		switch {
		case err == nil:
			metrics.GenerationAttemptsTotal.WithLabelValues("success").Inc()
			return text, nil
		case errors.Is(err, apperr.ErrRateLimited):
			metrics.GenerationAttemptsTotal.WithLabelValues("rate_limited").Inc()
			return "", err
		default:
			metrics.GenerationAttemptsTotal.WithLabelValues("error").Inc()
			return "", backoff.Permanent(err)
		}
	}

	notify := func(err error, delay time.Duration) {
		c.logger.Warn("rate limit hit, backing off",
			zap.String("model", c.backend.Model()),
			zap.Int("attempt", state.Attempt),
			zap.Int("max_attempts", state.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		if c.onBackoff != nil {
			c.onBackoff(state, delay)
		}
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.policy.backOff()),
		backoff.WithMaxTries(uint(state.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if errors.Is(err, apperr.ErrRateLimited) {
			return "", &apperr.RateLimitedError{Attempts: state.Attempt, Err: err}
		}
		return "", apperr.Timeout("generate", err)
	}
	return text, nil
}

func (c *Client) attempt(ctx context.Context, p Prompt) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.backend.Complete(attemptCtx, p)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("generate with %s: %w", c.backend.Model(), apperr.ErrTimeout)
		}
		if errors.Is(err, apperr.ErrRateLimited) || errors.Is(err, apperr.ErrGeneration) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", apperr.ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned an empty completion", apperr.ErrGeneration, c.backend.Model())
	}
	return text, nil
}
