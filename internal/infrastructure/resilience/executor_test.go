package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastRetries(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{Policies: map[string]Policy{"openai": fastRetries(3)}})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "openai.analyze_text", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{Policies: map[string]Policy{"openai": fastRetries(3)}})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "openai.analyze_text", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteAppliesPolicyPerFamily(t *testing.T) {
	exec := NewExecutor(Config{Policies: map[string]Policy{
		"openai": fastRetries(3),
		"nats":   EventPolicy(),
	}})
	retryAll := func(error) ErrorClassification {
		return ErrorClassification{Retryable: true}
	}
	errDown := errors.New("down")

	calls := map[string]int{}
	for _, op := range []string{"openai.analyze_image", "nats.publish"} {
		_ = exec.Execute(context.Background(), op, func(context.Context) error {
			calls[op]++
			return errDown
		}, retryAll)
	}
	if calls["openai.analyze_image"] != 3 {
		t.Fatalf("provider calls should retry 3 times, got %d", calls["openai.analyze_image"])
	}
	if calls["nats.publish"] != 1 {
		t.Fatalf("event publishes must never retry, got %d", calls["nats.publish"])
	}
}

func TestProviderPolicyClampsAttempts(t *testing.T) {
	exec := NewExecutor(Config{Policies: map[string]Policy{"openai": ProviderPolicy(0, false)}})

	policy := exec.PolicyFor("openai.analyze_text")
	if policy.MaxAttempts != 1 || policy.Breaker {
		t.Fatalf("unexpected provider policy %+v", policy)
	}
	if got := exec.PolicyFor("storage.save"); !got.Breaker || got.MaxAttempts != 1 {
		t.Fatalf("unknown families fall back to the default policy, got %+v", got)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{Policies: map[string]Policy{"openai": {
		MaxAttempts:             1,
		Breaker:                 true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}}})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "openai.analyze_text", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "openai.analyze_text", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}

	// Breakers are per operation: image analysis is unaffected.
	if err := exec.Execute(context.Background(), "openai.analyze_image", func(context.Context) error {
		return nil
	}, classifier); err != nil {
		t.Fatalf("expected image analysis to pass, got %v", err)
	}
}

func TestExecuteReportsBreakerTransitions(t *testing.T) {
	var transitions []string
	exec := NewExecutor(Config{
		Policies: map[string]Policy{"openai": {
			MaxAttempts:             1,
			Breaker:                 true,
			BreakerMinRequests:      1,
			BreakerFailureRatio:     1,
			BreakerOpenTimeout:      time.Minute,
			BreakerHalfOpenMaxCalls: 1,
		}},
		OnStateChange: func(operation, from, to string) {
			transitions = append(transitions, operation+":"+from+"->"+to)
		},
	})

	errDown := errors.New("provider down")
	_ = exec.Execute(context.Background(), "openai.analyze_text", func(context.Context) error {
		return errDown
	}, nil)

	if len(transitions) != 1 || transitions[0] != "openai.analyze_text:closed->open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	if err := exec.Execute(context.Background(), "openai.analyze_text", func(context.Context) error {
		return nil
	}, nil); !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(Config{Policies: map[string]Policy{"openai": fastRetries(3)}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "openai.analyze_text", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run with a cancelled context")
	}
}
