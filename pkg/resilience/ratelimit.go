package resilience

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/procura/pkg/errorsx"
)

// RateLimitError is returned when an upstream answers 429. RetryAfter is
// zero when the upstream gave no hint.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limit"
	}
	if e.Provider != "" {
		return e.Provider + ": " + msg
	}
	return msg
}

// Unwrap exposes the agent_rate_limit reason to errorsx.Reason.
func (e RateLimitError) Unwrap() error {
	return errorsx.ReasonedError{Reason: errorsx.ReasonAgentRateLimit}
}

func IsRateLimit(err error) bool {
	return errors.As(err, new(RateLimitError))
}

// RetryAfter returns the upstream hint carried by a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		return 0, false
	}
	return rl.RetryAfter, true
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. Unparseable and past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(v)
	if err != nil || !at.After(now) {
		return 0
	}
	return at.Sub(now)
}
