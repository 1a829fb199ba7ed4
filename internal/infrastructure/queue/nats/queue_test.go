package nats

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/infrastructure/resilience"
)

func TestEventRoundTripKeepsOutcomeAndPages(t *testing.T) {
	pages := 3
	event := domain.AnalysisEvent{
		ID:           "evt-1",
		Outcome:      domain.OutcomeScannedPDF,
		ContentKind:  domain.ContentPDF,
		Filename:     "laudo.pdf",
		SizeBytes:    2048,
		Pages:        &pages,
		DocumentType: domain.DocumentTypeExam,
		OccurredAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	payload, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	got, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if got.Outcome != domain.OutcomeScannedPDF || got.Pages == nil || *got.Pages != 3 {
		t.Fatalf("unexpected decoded event %+v", got)
	}
	if !got.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("occurred_at changed: %v", got.OccurredAt)
	}
}

func TestDecodeEventRejectsMissingID(t *testing.T) {
	if _, err := decodeEvent([]byte(`{"outcome":"analyzed"}`)); err == nil {
		t.Fatalf("expected error for event without id")
	}
	if _, err := decodeEvent([]byte(`not-json`)); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}

func TestDispatchLogsHandlerFailures(t *testing.T) {
	var buf bytes.Buffer
	q := &Queue{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	var seen string
	q.dispatch(context.Background(), []byte(`{"id":"evt-9","outcome":"refused"}`), func(_ context.Context, event domain.AnalysisEvent) error {
		seen = event.ID
		return errors.New("db down")
	})
	if seen != "evt-9" {
		t.Fatalf("handler not invoked, seen=%q", seen)
	}
	if !strings.Contains(buf.String(), "analysis_event_handler_failed") {
		t.Fatalf("expected handler failure log, got %s", buf.String())
	}
}

func TestDispatchSkipsUndecodableMessages(t *testing.T) {
	var buf bytes.Buffer
	q := &Queue{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	called := false
	q.dispatch(context.Background(), []byte(`{`), func(context.Context, domain.AnalysisEvent) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("handler must not run for undecodable payloads")
	}
	if !strings.Contains(buf.String(), "analysis_event_decode_failed") {
		t.Fatalf("expected decode failure log, got %s", buf.String())
	}
}

func TestPublishErrorMapping(t *testing.T) {
	if err := publishError(nats.ErrConnectionClosed); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("closed connection should be temporary, got %v", err)
	}
	if err := publishError(gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open breaker should be temporary, got %v", err)
	}
	if err := publishError(nats.ErrMaxPayload); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("oversized event should be invalid input, got %v", err)
	}
	plain := errors.New("unexpected")
	if err := publishError(plain); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("unknown errors must not be temporary")
	}
}

func TestClassifyPublishErrorNeverRetries(t *testing.T) {
	for _, err := range []error{nats.ErrNoServers, nats.ErrTimeout, nats.ErrMaxPayload, context.Canceled} {
		if classifyPublishError(err).Retryable {
			t.Fatalf("%v must not be retried", err)
		}
	}
	if !classifyPublishError(nats.ErrNoServers).RecordFailure {
		t.Fatalf("broker outage must count towards the breaker")
	}
	if classifyPublishError(nats.ErrMaxPayload).RecordFailure {
		t.Fatalf("oversized events must not trip the breaker")
	}
}

func TestPublishUsesEventPolicy(t *testing.T) {
	exec := resilience.NewExecutor(resilience.Config{Policies: map[string]resilience.Policy{
		"nats": resilience.EventPolicy(),
	}})
	if policy := exec.PolicyFor(operationPublish); policy.MaxAttempts != 1 || !policy.Breaker {
		t.Fatalf("unexpected publish policy %+v", policy)
	}
}
