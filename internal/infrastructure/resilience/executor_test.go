package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func retryableClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(fastConfig())
	calls := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, retryableClassifier)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	exec := NewExecutor(fastConfig())
	calls := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("permanent")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestExecuteReturnsLastErrorAfterBudget(t *testing.T) {
	exec := NewExecutor(fastConfig())
	want := errors.New("still failing")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		return want
	}, retryableClassifier)
	if !errors.Is(err, want) {
		t.Fatalf("expected last error, got %v", err)
	}
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	exec := NewExecutor(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := exec.Execute(ctx, "op", func(context.Context) error {
		calls++
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no attempts after cancellation, got %d", calls)
	}
}
