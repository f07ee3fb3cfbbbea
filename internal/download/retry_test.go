package download_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shuttle/internal/download"
)

func TestRetryDelayDoubles(t *testing.T) {
	policy := download.RetryPolicy{BaseDelay: 100 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for n, w := range want {
		if got := policy.Delay(n); got != w {
			t.Fatalf("Delay(%d) = %s, want %s", n, got, w)
		}
	}
}

func TestRetryDelayAddsBoundedJitter(t *testing.T) {
	var seen int64
	policy := download.RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxJitter: time.Second,
		Jitter: func(n int64) int64 {
			seen = n
			return n - 1
		},
	}
	got := policy.Delay(1)
	if seen != int64(time.Second) {
		t.Fatalf("jitter bound = %d", seen)
	}
	if want := 200*time.Millisecond + time.Second - 1; got != want {
		t.Fatalf("Delay(1) = %s, want %s", got, want)
	}

	policy.Jitter = nil
	for range 50 {
		d := policy.Delay(0)
		if d < 100*time.Millisecond || d >= 1100*time.Millisecond {
			t.Fatalf("Delay outside [base, base+jitter): %s", d)
		}
	}
}

func TestRetryDoBurstLength(t *testing.T) {
	policy := download.RetryPolicy{MaxRetries: 3}
	calls := 0
	boom := errors.New("boom")
	err := policy.Do(context.Background(), func(_ context.Context, attempt int) error {
		if attempt != calls {
			t.Fatalf("attempt = %d, want %d", attempt, calls)
		}
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 1 attempt plus 3 retries, got %d calls", calls)
	}
}

func TestRetryDoStopsOnSuccess(t *testing.T) {
	policy := download.RetryPolicy{MaxRetries: 5}
	calls := 0
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryDoCancelInterruptsBackoff(t *testing.T) {
	policy := download.RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context, int) error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backoff did not observe cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before cancel, got %d", calls)
	}
}
