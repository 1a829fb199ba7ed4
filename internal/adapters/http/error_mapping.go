package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/dualsaude/docreader/internal/core/domain"
)

const (
	detailInternal        = "Erro interno ao processar o documento."
	detailProviderFailure = "Falha ao analisar com IA. Tente novamente mais tarde."
	detailTemporary       = "Serviço de IA temporariamente indisponível. Tente novamente em instantes."
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrEmptyPayload):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotConfigured):
		return http.StatusNotImplemented
	case domain.IsKind(err, domain.ErrRefused):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrProviderFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorDetail never exposes the error chain of upstream or internal failures.
func errorDetail(status int, err error) string {
	if msg, ok := domain.UserMessage(err); ok && (status < 500 || status == http.StatusNotImplemented) {
		return msg
	}
	switch status {
	case http.StatusBadGateway:
		return detailProviderFailure
	case http.StatusServiceUnavailable:
		return detailTemporary
	case http.StatusNotImplemented:
		return "Serviço não configurado."
	}
	if status < 500 {
		return http.StatusText(status)
	}
	return detailInternal
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"status", status,
		"error", err.Error(),
	}
	if status >= 500 {
		slog.ErrorContext(r.Context(), "request_failed", attrs...)
	} else {
		slog.InfoContext(r.Context(), "request_rejected", attrs...)
	}
	writeJSON(w, status, map[string]string{"detail": errorDetail(status, err)})
}
