package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hostline-ai/hostline/internal/resilience"
)

var errBackend = errors.New("backend down")

func failingBreaker(t *testing.T, cooldown time.Duration) *resilience.Breaker {
	t.Helper()
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "test",
		TripAfter:   3,
		Cooldown:    cooldown,
		ProbeBudget: 2,
	})
	for range 3 {
		if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("Do() error = %v, want errBackend", err)
		}
	}
	return b
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := failingBreaker(t, time.Hour)

	if got := b.State(); got != resilience.BreakerOpen {
		t.Fatalf("state after trip = %v, want open", got)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("Do() while open = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{TripAfter: 3})

	for range 10 {
		_ = b.Do(func() error { return errBackend })
		_ = b.Do(func() error { return errBackend })
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("Do() error: %v", err)
		}
	}
	if got := b.State(); got != resilience.BreakerClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()
	b := failingBreaker(t, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if got := b.State(); got != resilience.BreakerProbing {
		t.Fatalf("state after cooldown = %v, want probing", got)
	}
	for range 2 {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe Do() error: %v", err)
		}
	}
	if got := b.State(); got != resilience.BreakerClosed {
		t.Fatalf("state after probes = %v, want closed", got)
	}
}

func TestBreaker_ReopensOnFailedProbe(t *testing.T) {
	t.Parallel()
	b := failingBreaker(t, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe Do() = %v, want errBackend", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("Do() after failed probe = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := failingBreaker(t, time.Hour)

	b.Reset()
	if got := b.State(); got != resilience.BreakerClosed {
		t.Fatalf("state after Reset = %v, want closed", got)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Do() after Reset error: %v", err)
	}
}
