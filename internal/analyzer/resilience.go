package analyzer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Runner wraps an Analyzer with exponential backoff retry and circuit
// breaker protection. Only spawn failures are retried and only spawn
// failures feed the breaker: a non-zero analyzer exit is the audit's
// verdict, not a health signal.
type Runner struct {
	analyzer Analyzer
	cb       *gobreaker.CircuitBreaker
	retry    RetryConfig
}

// NewRunner creates a resilient runner around an analyzer.
func NewRunner(a Analyzer, retryCfg RetryConfig) *Runner {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analyzer",
		MaxRequests: 3, // Allow 3 test requests in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip circuit after 5 consecutive spawn failures
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("event=breaker_state name=%s from=%s to=%s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Cancellation is not analyzer failure
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return !errors.Is(err, ErrSpawn)
		},
	})

	return &Runner{analyzer: a, cb: cb, retry: retryCfg}
}

// Run executes the audit, retrying spawn failures with exponential backoff.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	var result Result

	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		_, err := r.cb.Execute(func() (interface{}, error) {
			res, runErr := r.analyzer.Run(ctx, req)
			// Keep partial output for failure reporting
			result = res
			return res, runErr
		})
		if err == nil {
			return nil
		}

		// Circuit is open - don't retry
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}

		// Context cancelled - stop retrying
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		// The analyzer ran and failed: that verdict stands
		if !errors.Is(err, ErrSpawn) {
			return backoff.Permanent(err)
		}

		return err
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = r.retry.InitialInterval
	backoffPolicy.MaxInterval = r.retry.MaxInterval
	backoffPolicy.MaxElapsedTime = r.retry.MaxElapsedTime
	backoffPolicy.Multiplier = r.retry.Multiplier
	backoffPolicy.RandomizationFactor = r.retry.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(backoffPolicy, ctx))
	return result, err
}
