// Package resilient wraps an LLM service with rate limiting, per-attempt
// timeouts and retries with exponential backoff.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// Default configuration values.
const (
	DefaultTimeout       = domain.DefaultLLMTimeout
	DefaultMaxRetries    = domain.DefaultLLMMaxRetries
	DefaultBaseDelay     = 200 * time.Millisecond
	DefaultMaxDelay      = 5 * time.Second
	DefaultMaxRetryAfter = 30 * time.Second
)

// Outcome labels passed to the Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// Observer receives the outcome and total duration of every Generate call.
type Observer func(outcome string, elapsed time.Duration)

// Config holds the retry policy.
type Config struct {
	// Timeout bounds each attempt (default: 60s).
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Negative disables retries.
	MaxRetries int

	// RequestsPerSecond rate-limits attempts. Zero disables the limit.
	RequestsPerSecond float64

	// BaseDelay is the first backoff delay (default: 200ms).
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay (default: 5s).
	MaxDelay time.Duration

	// Observer is notified after every call. Optional.
	Observer Observer
}

// LLMService decorates another LLM service.
type LLMService struct {
	driven.LLMService

	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
	observer   Observer

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wraps next with the given policy.
func New(next driven.LLMService, cfg Config) *LLMService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	s := &LLMService{
		LLMService: next,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		observer:   cfg.Observer,
		sleep:      sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

// Generate calls the wrapped service until it succeeds, a permanent error
// occurs or the retries are used up. Failures wrap domain.ErrLLMUnavailable
// together with the last cause. Cancellation of ctx is returned as is.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			d := s.delay(attempt-1, lastErr)
			logger.Debug("llm: attempt %d failed, retrying in %s: %v", attempt, d, lastErr)
			if err := s.sleep(ctx, d); err != nil {
				s.observe(OutcomeCancelled, start)
				return "", err
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.observe(OutcomeCancelled, start)
				return "", fmt.Errorf("rate limit wait: %w", err)
			}
		}

		out, err := s.attempt(ctx, prompt, opts)
		if err == nil {
			s.observe(OutcomeSuccess, start)
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.observe(OutcomeCancelled, start)
			return "", ctxErr
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}

	s.observe(OutcomeFailure, start)
	return "", fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, lastErr)
}

func (s *LLMService) attempt(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.LLMService.Generate(attemptCtx, prompt, opts)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("attempt timed out after %s: %w", s.timeout, context.DeadlineExceeded)
	}
	return out, err
}

// delay returns the wait before retry n (zero-based). A provider
// Retry-After longer than the backoff wins, up to DefaultMaxRetryAfter.
func (s *LLMService) delay(n int, cause error) time.Duration {
	d := s.maxDelay
	if n < 32 {
		d = min(s.baseDelay<<n, s.maxDelay)
	}

	var pe *domain.ProviderError
	if errors.As(cause, &pe) && pe.RetryAfter > d {
		d = min(pe.RetryAfter, DefaultMaxRetryAfter)
	}
	return d
}

func (s *LLMService) observe(outcome string, start time.Time) {
	if s.observer != nil {
		s.observer(outcome, time.Since(start))
	}
}

// retryable reports whether err may succeed on another attempt.
// Provider errors are retried only when temporary.
func retryable(err error) bool {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}
	return !errors.Is(err, domain.ErrConfig) && !errors.Is(err, domain.ErrInvalidInput)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
