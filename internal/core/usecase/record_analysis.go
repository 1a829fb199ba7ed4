package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/core/ports"
)

// RecordAnalysisUseCase turns analysis events into audit records.
type RecordAnalysisUseCase struct {
	store ports.AnalysisRecordStore
	now   func() time.Time
}

func NewRecordAnalysisUseCase(store ports.AnalysisRecordStore) *RecordAnalysisUseCase {
	return &RecordAnalysisUseCase{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (uc *RecordAnalysisUseCase) Record(ctx context.Context, event domain.AnalysisEvent) error {
	if event.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record analysis", errors.New("event id is empty"))
	}
	if event.DocumentType == "" {
		event.DocumentType = domain.DocumentTypeUndefined
	}
	now := uc.now()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	return uc.store.Save(ctx, domain.AnalysisRecord{AnalysisEvent: event, RecordedAt: now})
}

func (uc *RecordAnalysisUseCase) ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	if limit < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list analyses",
			domain.NewUserError(domain.ErrInvalidInput, "limit deve ser um inteiro positivo."))
	}
	return uc.store.ListRecent(ctx, limit)
}
