// Package retry provides the backoff policy applied to source requests.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/errors"
)

// Policy defines retry behavior
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// OnRetry is called before each backoff sleep with the attempt number
	// (starting at 1) that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewPolicy creates a new retry policy with exponential backoff
func NewPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
	}
}

// DefaultPolicy returns the source request policy: 8 attempts, waits
// growing exponentially from 4s and capped at 10s.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  8,
		InitialDelay: 4 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// FromConfig builds a policy from the retry section of the configuration.
func FromConfig(cfg config.RetryConfig) *Policy {
	p := NewPolicy(cfg.MaxAttempts, cfg.InitialDelay, cfg.MaxDelay)
	if cfg.Multiplier > 0 {
		p.Multiplier = cfg.Multiplier
	}
	p.RandomizeFactor = cfg.RandomizeFactor
	return p
}

// Execute runs fn, retrying every error except context cancellation.
func (p *Policy) Execute(ctx context.Context, fn func() error) error {
	return p.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs fn with retry only if shouldRetry accepts the
// error. Context cancellation is never retried.
func (p *Policy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if errors.IsCancellation(err) || ctx.Err() != nil {
			return err
		}

		if !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == maxAttempts-1 {
			break
		}

		delay := p.calculateDelay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		// Wait with context cancellation
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// calculateDelay calculates the delay for a given attempt
func (p *Policy) calculateDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	// Apply randomization factor (jitter)
	if p.RandomizeFactor > 0 {
		delta := delay * p.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta

		delay = minDelay + (rand.Float64() * (maxDelay - minDelay)) //nolint:gosec // jitter only
	}

	return time.Duration(delay)
}

// Clone creates a copy of the retry policy
func (p *Policy) Clone() *Policy {
	c := *p
	return &c
}

// WithOnRetry returns a new policy calling hook before every backoff
func (p *Policy) WithOnRetry(hook func(attempt int, err error, delay time.Duration)) *Policy {
	policy := p.Clone()
	policy.OnRetry = hook
	return policy
}
