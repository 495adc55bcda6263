package resilience

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/harunnryd/procura/pkg/errorsx"
)

func TestRetryPolicyLinearDelay(t *testing.T) {
	p := NewRetryPolicy(3, 500*time.Millisecond)
	want := []time.Duration{500 * time.Millisecond, time.Second, 1500 * time.Millisecond}
	for i, d := range want {
		attempt := i + 1
		if !p.Allows(attempt) {
			t.Fatalf("attempt %d should be allowed", attempt)
		}
		if got := p.Delay(attempt); got != d {
			t.Fatalf("attempt %d delay %v, want %v", attempt, got, d)
		}
	}
	if p.Allows(4) {
		t.Fatalf("attempt 4 exceeds max")
	}
	if p.Allows(0) {
		t.Fatalf("attempt 0 is not a retry")
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := NewRetryPolicy(0, 0)
	if p.MaxRetries != 5 || p.Backoff != time.Second {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

func TestIsRateLimit(t *testing.T) {
	err := fmt.Errorf("invoke: %w", RateLimitError{Provider: "agents", Message: "slow down"})
	if !IsRateLimit(err) {
		t.Fatalf("expected wrapped rate limit")
	}
	if IsRateLimit(fmt.Errorf("other")) {
		t.Fatalf("plain error is not a rate limit")
	}
	if (RateLimitError{}).Error() != "rate limit" {
		t.Fatalf("unexpected default message")
	}
	if !errorsx.HasReason(err, errorsx.ReasonAgentRateLimit) {
		t.Fatalf("expected agent_rate_limit reason, got %s", errorsx.Reason(err))
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"7", 7 * time.Second},
		{"-3", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tc := range cases {
		if got := ParseRetryAfter(tc.in, now); got != tc.want {
			t.Fatalf("ParseRetryAfter(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	err := fmt.Errorf("invoke: %w", RateLimitError{RetryAfter: 2 * time.Second})
	if d, ok := RetryAfter(err); !ok || d != 2*time.Second {
		t.Fatalf("expected 2s hint, got %v %v", d, ok)
	}
	if _, ok := RetryAfter(RateLimitError{}); ok {
		t.Fatalf("expected no hint")
	}
}
