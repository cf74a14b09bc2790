package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, DefaultPolicy(), func(ctx context.Context) Attempt {
		calls++
		return Attempt{}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesRetryableThenSucceeds(t *testing.T) {
	calls := 0
	policy := Policy{MaxRetries: 3, Base: 1.0, MaxWait: time.Millisecond, Jitter: false}
	err := Do(context.Background(), nil, policy, func(ctx context.Context) Attempt {
		calls++
		if calls < 3 {
			return Attempt{Err: errors.New("boom"), Retryable: true}
		}
		return Attempt{}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, DefaultPolicy(), func(ctx context.Context) Attempt {
		calls++
		return Attempt{Err: errors.New("client error"), Retryable: false}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	policy := Policy{MaxRetries: 2, Base: 1.0, MaxWait: time.Millisecond, Jitter: false}
	calls := 0
	err := Do(context.Background(), nil, policy, func(ctx context.Context) Attempt {
		calls++
		return Attempt{Err: errors.New("still failing"), Retryable: true}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls (1 initial + 2 retries), got %d", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		status int
		net    bool
		want   bool
	}{
		{status: 0, net: true, want: true},
		{status: 500, net: false, want: true},
		{status: 429, net: false, want: true},
		{status: 404, net: false, want: false},
		{status: 200, net: false, want: false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.status, tc.net); got != tc.want {
			t.Errorf("IsRetryable(%d, %v) = %v, want %v", tc.status, tc.net, got, tc.want)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	d, ok := RetryAfter("5")
	if !ok || d != 5*time.Second {
		t.Fatalf("got (%v, %v), want (5s, true)", d, ok)
	}
	if _, ok := RetryAfter(""); ok {
		t.Fatal("expected no Retry-After for empty header")
	}
	if _, ok := RetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"); ok {
		t.Fatal("date-form Retry-After should not parse")
	}
}
