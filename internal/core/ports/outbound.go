package ports

import (
	"context"
	"io"

	"github.com/dualsaude/docreader/internal/core/domain"
)

// ContentSniffer decides how an upload should be processed.
type ContentSniffer interface {
	Sniff(upload domain.Upload) domain.ContentProfile
}

// PDFTextExtractor pulls selectable text out of a PDF byte stream.
type PDFTextExtractor interface {
	Extract(ctx context.Context, data []byte) (domain.ExtractionResult, error)
}

// DocumentClassifier decides between exam and prescription.
type DocumentClassifier interface {
	ResolveHint(hint string) (domain.DocumentType, error)
	Classify(filename, text string, override domain.DocumentType) domain.ClassificationDecision
}

// DocumentInterpreter calls the external language model.
type DocumentInterpreter interface {
	AnalyzeText(ctx context.Context, text string, docType domain.DocumentType) (domain.ParsedAnalysis, error)
	AnalyzeImage(ctx context.Context, image []byte, mimeType string, docType domain.DocumentType) (domain.ParsedAnalysis, error)
}

// ObjectStorage archives uploaded documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EventPublisher publishes analysis events.
type EventPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, event domain.AnalysisEvent) error
}

// EventSubscriber consumes analysis events until ctx is done.
type EventSubscriber interface {
	SubscribeAnalysisCompleted(ctx context.Context, handler func(context.Context, domain.AnalysisEvent) error) error
}

// AnalysisRecordStore persists analysis audit records.
type AnalysisRecordStore interface {
	Save(ctx context.Context, record domain.AnalysisRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error)
}

// AnalysisObserver receives per-request outcomes for metrics.
type AnalysisObserver interface {
	ObserveAnalysis(kind domain.ContentKind, docType domain.DocumentType, outcome string)
}
