package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dualsaude/docreader/internal/core/domain"
)

type snifferFake struct {
	profile domain.ContentProfile
	calls   int
}

func (f *snifferFake) Sniff(domain.Upload) domain.ContentProfile {
	f.calls++
	return f.profile
}

type extractorFake struct {
	result domain.ExtractionResult
	err    error
	calls  int
}

func (f *extractorFake) Extract(context.Context, []byte) (domain.ExtractionResult, error) {
	f.calls++
	return f.result, f.err
}

// classifierFake mimics the rule table just enough for orchestration tests.
type classifierFake struct{}

func (classifierFake) ResolveHint(hint string) (domain.DocumentType, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "", nil
	}
	if t, ok := domain.ParseDocumentType(hint); ok {
		return t, nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "resolve document type",
		domain.NewUserError(domain.ErrInvalidInput, fmt.Sprintf("document_type inválido: %q. Use 'exame' ou 'receita'.", hint)))
}

func (classifierFake) Classify(filename, text string, override domain.DocumentType) domain.ClassificationDecision {
	if override.Valid() {
		return domain.ClassificationDecision{Type: override, Source: domain.ClassifiedByOverride}
	}
	if strings.Contains(strings.ToLower(filename), "receita") {
		return domain.ClassificationDecision{Type: domain.DocumentTypePrescription, Source: domain.ClassifiedByFilename, Matched: "receita"}
	}
	if strings.Contains(strings.ToLower(text), "hemograma") {
		return domain.ClassificationDecision{Type: domain.DocumentTypeExam, Source: domain.ClassifiedByText, Matched: "hemograma"}
	}
	return domain.ClassificationDecision{}
}

type interpreterFake struct {
	result     domain.ParsedAnalysis
	err        error
	textCalls  int
	imageCalls int
	lastText   string
	lastMime   string
	lastType   domain.DocumentType
}

func (f *interpreterFake) AnalyzeText(_ context.Context, text string, docType domain.DocumentType) (domain.ParsedAnalysis, error) {
	f.textCalls++
	f.lastText = text
	f.lastType = docType
	return f.resultFor(docType)
}

func (f *interpreterFake) AnalyzeImage(_ context.Context, _ []byte, mimeType string, docType domain.DocumentType) (domain.ParsedAnalysis, error) {
	f.imageCalls++
	f.lastMime = mimeType
	f.lastType = docType
	return f.resultFor(docType)
}

func (f *interpreterFake) resultFor(docType domain.DocumentType) (domain.ParsedAnalysis, error) {
	if f.err != nil {
		return domain.ParsedAnalysis{}, f.err
	}
	parsed := f.result
	if parsed.Status == "" {
		parsed = domain.ParsedAnalysis{
			Result: domain.AnalysisResult{Resumo: "Resultado dentro da normalidade."},
			Status: domain.ParseStatusParsed,
		}
	}
	parsed.Result.Normalize(docType)
	return parsed, nil
}

type storageFake struct {
	saved map[string][]byte
	err   error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[key] = raw
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.AnalysisEvent
	err    error
}

func (f *publisherFake) PublishAnalysisCompleted(_ context.Context, event domain.AnalysisEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type observation struct {
	kind    domain.ContentKind
	docType domain.DocumentType
	outcome string
}

type observerFake struct {
	seen []observation
}

func (f *observerFake) ObserveAnalysis(kind domain.ContentKind, docType domain.DocumentType, outcome string) {
	f.seen = append(f.seen, observation{kind: kind, docType: docType, outcome: outcome})
}

type recordStoreFake struct {
	saved     []domain.AnalysisRecord
	err       error
	listLimit int
	list      []domain.AnalysisRecord
}

func (f *recordStoreFake) Save(_ context.Context, record domain.AnalysisRecord) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, record)
	return nil
}

func (f *recordStoreFake) ListRecent(_ context.Context, limit int) ([]domain.AnalysisRecord, error) {
	f.listLimit = limit
	return f.list, f.err
}
