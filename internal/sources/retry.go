package sources

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often and how patiently a fetch is retried.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff returns the wait before the given retry (1 = first retry).
	Backoff func(retry int) time.Duration
}

// DefaultRetryPolicy makes 3 attempts, waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Second)}
}

// LinearBackoff waits step, 2*step, 3*step, ...
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration {
		return time.Duration(retry) * step
	}
}

// NoBackoff retries immediately.
func NoBackoff(int) time.Duration { return 0 }

// policyBackOff adapts a RetryPolicy to backoff.BackOff.
type policyBackOff struct {
	policy  RetryPolicy
	retries int
}

func (p *policyBackOff) NextBackOff() time.Duration {
	p.retries++
	if p.retries >= p.policy.MaxAttempts {
		return backoff.Stop
	}
	if p.policy.Backoff == nil {
		return 0
	}
	return p.policy.Backoff(p.retries)
}

func (p *policyBackOff) Reset() { p.retries = 0 }
