package ports

import (
	"context"

	"github.com/dualsaude/docreader/internal/core/domain"
)

// DocumentAnalyzer is the inbound contract for one exam/prescription analysis request.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisEnvelope, error)
}

// AnalysisRecorder is the inbound contract for persisting analysis events off the queue.
type AnalysisRecorder interface {
	Record(ctx context.Context, event domain.AnalysisEvent) error
}

// AnalysisHistory is the inbound read model for recorded analyses.
type AnalysisHistory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error)
}
