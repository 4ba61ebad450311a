package genai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		attempt     int
		initial     time.Duration
		max         time.Duration
		maxExpected time.Duration
	}{
		{"first attempt (no delay)", 0, time.Second, 10 * time.Second, 0},
		{"first retry", 1, time.Second, 10 * time.Second, time.Second},
		{"second retry", 2, time.Second, 10 * time.Second, 2 * time.Second},
		{"capped at max", 10, time.Second, 5 * time.Second, 5 * time.Second},
		{"huge attempt does not overflow", 200, time.Second, 5 * time.Second, 5 * time.Second},
		{"negative attempt", -1, time.Second, 10 * time.Second, 0},
		{"zero initial delay", 1, 0, 10 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for range 20 {
				got := CalculateBackoff(tt.attempt, tt.initial, tt.max)
				if got < 0 || got > tt.maxExpected {
					t.Errorf("CalculateBackoff(%d, %v, %v) = %v, want in [0, %v]",
						tt.attempt, tt.initial, tt.max, got, tt.maxExpected)
				}
			}
		})
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()

	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep(cancelled) = %v, want context.Canceled", err)
	}
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	transient := &LLMError{Err: errors.New("busy"), StatusCode: http.StatusServiceUnavailable}
	permanent := &LLMError{Err: errors.New("bad"), StatusCode: http.StatusBadRequest}
	quota := errors.New("quota exceeded")

	tests := []struct {
		name      string
		attempts  int
		errs      []error // returned by successive calls; nil means success
		wantCalls int
		wantErr   error
	}{
		{"success first try", 3, []error{nil}, 1, nil},
		{"success after transient", 3, []error{transient, transient, nil}, 3, nil},
		{"exhausted", 3, []error{transient, transient, transient}, 3, transient},
		{"permanent stops", 3, []error{permanent}, 1, permanent},
		{"fallback stops", 3, []error{quota}, 1, quota},
		{"zero attempts still calls once", 0, []error{transient}, 1, transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls, retries := 0, 0
			err := WithRetry(context.Background(), fastRetry(tt.attempts),
				func(int, error) { retries++ },
				func() error {
					e := tt.errs[calls]
					calls++
					return e
				})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if retries != max(calls-1, 0) {
				t.Errorf("onRetry called %d times for %d calls", retries, calls)
			}
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithRetry(ctx, fastRetry(3), nil, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("fn called %d times on a cancelled context", calls)
	}
}

func TestWithRetry_InsufficientBudget(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	limited := &LLMError{Err: errors.New("slow down"), StatusCode: http.StatusTooManyRequests, RetryAfter: time.Hour}
	calls := 0
	err := WithRetry(ctx, fastRetry(5), nil, func() error {
		calls++
		return limited
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 when Retry-After exceeds the deadline", calls)
	}
	if !errors.Is(err, limited) {
		t.Errorf("err = %v, want the last call error", err)
	}
}

func TestHasSufficientBudget(t *testing.T) {
	t.Parallel()

	if !HasSufficientBudget(context.Background(), time.Hour) {
		t.Error("no deadline should mean unlimited budget")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if !HasSufficientBudget(ctx, time.Second) {
		t.Error("1s should fit in a 1m budget")
	}
	if HasSufficientBudget(ctx, time.Hour) {
		t.Error("1h should not fit in a 1m budget")
	}
}
