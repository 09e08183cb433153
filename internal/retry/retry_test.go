package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forPelevin/vertclip/internal/failure"
)

func TestDo_RetriesProviderErrors(t *testing.T) {
	calls := 0
	var waits []time.Duration
	err := Do(context.Background(), Policy{
		Attempts: 3,
		Backoff:  time.Millisecond,
		OnRetry:  func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) },
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return failure.Wrap(failure.ErrProvider, "titles", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(waits) != 2 || waits[0] != time.Millisecond || waits[1] != 2*time.Millisecond {
		t.Fatalf("unexpected backoff sequence: %v", waits)
	}
}

func TestDo_DoesNotRetryInputOrTransform(t *testing.T) {
	for _, marker := range []error{failure.ErrInput, failure.ErrTransform} {
		calls := 0
		err := Do(context.Background(), Policy{Attempts: 5}, func(context.Context) error {
			calls++
			return failure.Wrap(marker, "op", nil)
		})
		if !errors.Is(err, marker) {
			t.Fatalf("expected %v, got %v", marker, err)
		}
		if calls != 1 {
			t.Fatalf("%v: expected a single call, got %d", marker, calls)
		}
	}
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 2}, func(context.Context) error {
		calls++
		return failure.Wrap(failure.ErrProvider, "scene analysis", nil)
	})
	if !errors.Is(err, failure.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_TimeoutSurfacesAsProviderError(t *testing.T) {
	err := Do(context.Background(), Policy{Attempts: 1, Timeout: 5 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, failure.ErrProvider) {
		t.Fatalf("expected timeout to be a provider error, got %v", err)
	}
}

func TestDelay_Capped(t *testing.T) {
	p := Policy{Backoff: time.Second, MaxBackoff: 3 * time.Second}
	if got := p.delay(4); got != 3*time.Second {
		t.Fatalf("expected capped delay, got %v", got)
	}
}
