package pipeline

import (
	"context"
	"fmt"
	"time"
)

// BackoffPolicy computes exponential delays between retry attempts. The
// zero value is not usable; construct via NewBackoffPolicy.
type BackoffPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewBackoffPolicy builds a policy with the given attempt cap and base
// delay. Delays double per attempt: base, 2*base, 4*base, ...
func NewBackoffPolicy(maxAttempts int, baseDelay time.Duration) BackoffPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return BackoffPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts returns the attempt cap.
func (p BackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Delay returns the wait before retrying after the given zero-based attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.baseDelay << uint(attempt)
}

// Sleep blocks for the attempt's delay or until the context finishes.
func (p BackoffPolicy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff wait: %w", ctx.Err())
	}
}
