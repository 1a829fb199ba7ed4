package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/infrastructure/resilience"
)

const operationPublish = "nats.publish"

// brokerUnavailable reports errors that say the broker cannot be reached right now.
func brokerUnavailable(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, nats.ErrDisconnected)
}

// classifyPublishError never asks for a retry: the analysis response has already been
// decided when an event goes out. Only broker outages count towards the breaker; an
// oversized or malformed event is our own fault and says nothing about broker health.
func classifyPublishError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{RecordFailure: brokerUnavailable(err)}
}

func publishError(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case resilience.IsCircuitOpen(err), brokerUnavailable(err):
		return domain.WrapError(domain.ErrTemporary, operationPublish, err)
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		return domain.WrapError(domain.ErrInvalidInput, operationPublish, err)
	default:
		return err
	}
}
