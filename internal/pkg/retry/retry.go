// Package retry wraps retry-go with the exponential backoff policy used for
// every outbound call to the embedding, generation and vector store providers.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

type Policy struct {
	// Name is used in log lines only.
	Name        string
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Retryable decides whether a failed attempt may be repeated. Nil means
	// every error is transient.
	Retryable func(error) bool
}

func DefaultPolicy(name string) Policy {
	return Policy{
		Name:        name,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}
}

// Delay returns the wait before retry number n (0 based).
func (p Policy) Delay(n uint) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs op until it succeeds, returns a non retryable error, the attempt
// ceiling is reached or ctx is done. It reports how many attempts were made and
// the error of the last one.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (uint, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		// retry-go treats 0 as unlimited
		maxAttempts = 1
	}

	var (
		attempts uint
		lastErr  error
	)
	err := retrygo.Do(
		func() error {
			attempts++
			lastErr = op(ctx)
			return lastErr
		},
		retrygo.Context(ctx),
		retrygo.Attempts(maxAttempts),
		retrygo.DelayType(func(n uint, _ error, _ *retrygo.Config) time.Duration {
			return p.Delay(n)
		}),
		retrygo.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return p.Retryable == nil || p.Retryable(err)
		}),
		retrygo.LastErrorOnly(true),
		retrygo.OnRetry(func(n uint, err error) {
			// also called after the final attempt, when nothing follows
			if n+1 >= maxAttempts {
				return
			}
			slog.Warn("retrying call",
				"call", p.Name,
				"attempt", n+1,
				"max_attempts", maxAttempts,
				"error", err,
			)
		}),
	)
	if err == nil {
		return attempts, nil
	}
	if lastErr != nil {
		return attempts, lastErr
	}
	return attempts, err
}
