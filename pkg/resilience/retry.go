package resilience

import "time"

// RetryPolicy is a linear backoff: attempt n waits n × Backoff, and no
// attempt beyond MaxRetries is made.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Allows reports whether the 1-based attempt is within budget.
func (r RetryPolicy) Allows(attempt int) bool {
	return attempt >= 1 && attempt <= r.MaxRetries
}

// Delay returns the wait before the 1-based attempt.
func (r RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * r.Backoff
}
