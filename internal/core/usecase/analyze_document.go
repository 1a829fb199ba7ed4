package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/core/ports"
)

// MinPayloadBytes is the smallest upload treated as content rather than a truncated read.
const MinPayloadBytes = 5

const (
	msgMissingInput    = "Arquivo obrigatório (file/pdf/arquivo/documento) ou texto."
	msgNotConfigured   = "Serviço de IA não configurado no servidor (OPENAI_API_KEY ausente ou AI_PROVIDER=off)."
	msgEmptyPayload    = "Arquivo vazio ou inválido."
	msgUnsupported     = "Formato não suportado. Envie PDF (texto) ou imagem JPG/PNG/WEBP."
	msgOutOfScope      = "Documento recusado: a IA só lê EXAMES e RECEITAS. Envie apenas esses documentos."
	msgScannedPDF      = "PDF recebido, mas não foi possível extrair texto."
	msgAnalysisDone    = "Análise concluída com sucesso."
	defaultFilename    = "documento"
	archivePrefix      = "exames"
	maxArchiveBaseName = 60
)

// Outcomes reported to the observer for requests that end in an error.
const (
	observedRejected = "rejected"
	observedFailed   = "failed"
)

type AnalyzeDocumentOptions struct {
	ProviderConfigured bool
	MaxUploadBytes     int64
	// ImageDefaultType labels images whose filename carries no signal.
	ImageDefaultType domain.DocumentType
	ArchiveUploads   bool
}

// AnalyzeDocumentUseCase runs one upload or text through sniffing, extraction,
// classification and model analysis.
type AnalyzeDocumentUseCase struct {
	sniffer     ports.ContentSniffer
	extractor   ports.PDFTextExtractor
	classifier  ports.DocumentClassifier
	interpreter ports.DocumentInterpreter
	opts        AnalyzeDocumentOptions

	storage   ports.ObjectStorage
	publisher ports.EventPublisher
	observer  ports.AnalysisObserver
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewAnalyzeDocumentUseCase(
	sniffer ports.ContentSniffer,
	extractor ports.PDFTextExtractor,
	classifier ports.DocumentClassifier,
	interpreter ports.DocumentInterpreter,
	opts AnalyzeDocumentOptions,
) *AnalyzeDocumentUseCase {
	if !opts.ImageDefaultType.Valid() {
		opts.ImageDefaultType = domain.DocumentTypeExam
	}
	return &AnalyzeDocumentUseCase{
		sniffer:     sniffer,
		extractor:   extractor,
		classifier:  classifier,
		interpreter: interpreter,
		opts:        opts,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// WithArchive stores accepted uploads when ArchiveUploads is set.
func (uc *AnalyzeDocumentUseCase) WithArchive(storage ports.ObjectStorage) *AnalyzeDocumentUseCase {
	uc.storage = storage
	return uc
}

func (uc *AnalyzeDocumentUseCase) WithPublisher(publisher ports.EventPublisher) *AnalyzeDocumentUseCase {
	uc.publisher = publisher
	return uc
}

func (uc *AnalyzeDocumentUseCase) WithObserver(observer ports.AnalysisObserver) *AnalyzeDocumentUseCase {
	uc.observer = observer
	return uc
}

func (uc *AnalyzeDocumentUseCase) WithLogger(logger *slog.Logger) *AnalyzeDocumentUseCase {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

// analysisRun accumulates what is known about one request as it moves through the pipeline.
type analysisRun struct {
	kind         domain.ContentKind
	mimeType     string
	filename     string
	sizeBytes    int
	pages        *int
	source       *string
	docType      domain.DocumentType
	classifiedBy domain.ClassificationSource
	parseStatus  domain.ParseStatus
	archiveKey   string
}

func (uc *AnalyzeDocumentUseCase) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisEnvelope, error) {
	text := strings.TrimSpace(req.Text)
	hasUpload := req.Upload != nil
	if !hasUpload && text == "" {
		return nil, uc.reject("", domain.ErrInvalidInput, msgMissingInput)
	}

	run := &analysisRun{
		filename: resolveFilename(req),
		source:   optionalString(req.Source),
	}

	if !uc.opts.ProviderConfigured {
		return nil, uc.reject("", domain.ErrNotConfigured, msgNotConfigured)
	}

	if hasUpload {
		run.sizeBytes = req.Upload.Size()
		if run.sizeBytes < MinPayloadBytes {
			return nil, uc.reject("", domain.ErrEmptyPayload, msgEmptyPayload)
		}
	} else {
		run.kind = domain.ContentText
		run.sizeBytes = len(text)
	}
	if uc.opts.MaxUploadBytes > 0 && int64(run.sizeBytes) > uc.opts.MaxUploadBytes {
		return nil, uc.reject(run.kind, domain.ErrPayloadTooLarge,
			fmt.Sprintf("Arquivo excede o limite de %d MB.", uc.opts.MaxUploadBytes/(1<<20)))
	}

	override, err := uc.classifier.ResolveHint(req.DocumentTypeHint)
	if err != nil {
		uc.observe(run.kind, "", observedRejected)
		return nil, err
	}

	if !hasUpload {
		return uc.analyzeText(ctx, run, text, override)
	}

	profile := uc.sniffer.Sniff(*req.Upload)
	run.kind = profile.Kind
	switch profile.Kind {
	case domain.ContentPDF:
		uc.archive(ctx, run, req.Upload, ".pdf")
		return uc.analyzePDF(ctx, run, req.Upload.Data, override)
	case domain.ContentImage:
		run.mimeType = profile.MimeType
		uc.archive(ctx, run, req.Upload, imageExtension(profile.MimeType))
		return uc.analyzeImage(ctx, run, req.Upload.Data, override)
	default:
		return nil, uc.reject(domain.ContentUnsupported, domain.ErrUnsupportedMedia, msgUnsupported)
	}
}

func (uc *AnalyzeDocumentUseCase) analyzeText(ctx context.Context, run *analysisRun, text string, override domain.DocumentType) (*domain.AnalysisEnvelope, error) {
	decision := uc.classifier.Classify(run.filename, text, override)
	if !decision.Determined() {
		return nil, uc.refuse(ctx, run, msgOutOfScope)
	}
	run.docType = decision.Type
	run.classifiedBy = decision.Source

	parsed, err := uc.interpreter.AnalyzeText(ctx, text, run.docType)
	if err != nil {
		return nil, uc.providerError(run, "analyze text", err)
	}
	return uc.complete(ctx, run, parsed)
}

func (uc *AnalyzeDocumentUseCase) analyzePDF(ctx context.Context, run *analysisRun, data []byte, override domain.DocumentType) (*domain.AnalysisEnvelope, error) {
	extraction, err := uc.extractor.Extract(ctx, data)
	if err != nil {
		uc.observe(run.kind, "", observedFailed)
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	pages := extraction.Pages
	run.pages = &pages

	if strings.TrimSpace(extraction.Text) == "" {
		return uc.scannedPDF(ctx, run, extraction, override), nil
	}

	decision := uc.classifier.Classify(run.filename, extraction.Text, override)
	if !decision.Determined() {
		return nil, uc.refuse(ctx, run, msgOutOfScope)
	}
	run.docType = decision.Type
	run.classifiedBy = decision.Source

	parsed, err := uc.interpreter.AnalyzeText(ctx, extraction.Text, run.docType)
	if err != nil {
		return nil, uc.providerError(run, "analyze pdf text", err)
	}
	return uc.complete(ctx, run, parsed)
}

// scannedPDF answers a PDF without extractable text with a 200 carrying a
// refusal-shaped analysis, so the caller can resend it as an image.
func (uc *AnalyzeDocumentUseCase) scannedPDF(ctx context.Context, run *analysisRun, extraction domain.ExtractionResult, override domain.DocumentType) *domain.AnalysisEnvelope {
	run.docType = domain.DocumentTypeUndefined
	if decision := uc.classifier.Classify(run.filename, "", override); decision.Determined() {
		run.docType = decision.Type
		run.classifiedBy = decision.Source
	}

	uc.logger.InfoContext(ctx, "pdf_without_text",
		"filename", run.filename,
		"pages", extraction.Pages,
		"extraction_status", string(extraction.Status),
	)

	analysis := domain.NewRefusal(run.docType, "", domain.ScannedPDFReason)
	uc.observe(run.kind, run.docType, string(domain.OutcomeScannedPDF))
	uc.publish(ctx, run, domain.OutcomeScannedPDF, domain.ScannedPDFReason, "")
	return uc.envelope(run, msgScannedPDF, analysis)
}

func (uc *AnalyzeDocumentUseCase) analyzeImage(ctx context.Context, run *analysisRun, data []byte, override domain.DocumentType) (*domain.AnalysisEnvelope, error) {
	decision := uc.classifier.Classify(run.filename, "", override)
	if decision.Determined() {
		run.docType = decision.Type
		run.classifiedBy = decision.Source
	} else {
		run.docType = uc.opts.ImageDefaultType
		run.classifiedBy = domain.ClassifiedByDefault
	}

	parsed, err := uc.interpreter.AnalyzeImage(ctx, data, run.mimeType, run.docType)
	if err != nil {
		return nil, uc.providerError(run, "analyze image", err)
	}
	return uc.complete(ctx, run, parsed)
}

func (uc *AnalyzeDocumentUseCase) complete(ctx context.Context, run *analysisRun, parsed domain.ParsedAnalysis) (*domain.AnalysisEnvelope, error) {
	run.parseStatus = parsed.Status
	if parsed.Status != domain.ParseStatusParsed {
		uc.logger.WarnContext(ctx, "analysis_output_degraded",
			"parse_status", string(parsed.Status),
			"document_type", string(run.docType),
		)
	}

	if parsed.Result.Recusa {
		return nil, uc.refuse(ctx, run, parsed.Result.RefusalReason())
	}

	uc.observe(run.kind, run.docType, string(domain.OutcomeAnalyzed))
	uc.publish(ctx, run, domain.OutcomeAnalyzed, "", parsed.Result.Resumo)
	return uc.envelope(run, msgAnalysisDone, parsed.Result), nil
}

func (uc *AnalyzeDocumentUseCase) envelope(run *analysisRun, message string, analysis domain.AnalysisResult) *domain.AnalysisEnvelope {
	return &domain.AnalysisEnvelope{
		OK:      true,
		Message: message,
		Meta: domain.AnalysisMeta{
			Filename:     run.filename,
			SizeBytes:    run.sizeBytes,
			Pages:        run.pages,
			Source:       run.source,
			DocumentType: run.docType,
			ContentType:  run.mimeType,
			ClassifiedBy: run.classifiedBy,
		},
		Analysis: analysis,
	}
}

// refuse reports an out-of-scope document. The reason is passed to the caller verbatim.
func (uc *AnalyzeDocumentUseCase) refuse(ctx context.Context, run *analysisRun, reason string) error {
	docType := run.docType
	if docType == "" {
		docType = domain.DocumentTypeUndefined
	}
	uc.observe(run.kind, docType, string(domain.OutcomeRefused))
	run.docType = docType
	uc.publish(ctx, run, domain.OutcomeRefused, reason, "")
	return domain.WrapError(domain.ErrRefused, "analyze document", domain.NewUserError(domain.ErrRefused, reason))
}

func (uc *AnalyzeDocumentUseCase) reject(kind domain.ContentKind, errKind error, message string) error {
	uc.observe(kind, "", observedRejected)
	return domain.WrapError(errKind, "analyze document", domain.NewUserError(errKind, message))
}

func (uc *AnalyzeDocumentUseCase) providerError(run *analysisRun, operation string, err error) error {
	uc.observe(run.kind, run.docType, observedFailed)
	if errors.Is(err, context.Canceled) ||
		domain.IsKind(err, domain.ErrTemporary) ||
		domain.IsKind(err, domain.ErrProviderFailure) ||
		domain.IsKind(err, domain.ErrNotConfigured) {
		return err
	}
	return domain.WrapError(domain.ErrProviderFailure, operation, err)
}

func (uc *AnalyzeDocumentUseCase) observe(kind domain.ContentKind, docType domain.DocumentType, outcome string) {
	if uc.observer == nil {
		return
	}
	uc.observer.ObserveAnalysis(kind, docType, outcome)
}

func (uc *AnalyzeDocumentUseCase) publish(ctx context.Context, run *analysisRun, outcome domain.AnalysisOutcome, refusal, summary string) {
	if uc.publisher == nil {
		return
	}
	event := domain.AnalysisEvent{
		ID:           uc.newID(),
		Outcome:      outcome,
		ContentKind:  run.kind,
		Filename:     run.filename,
		SizeBytes:    run.sizeBytes,
		Pages:        run.pages,
		DocumentType: run.docType,
		ClassifiedBy: run.classifiedBy,
		ParseStatus:  run.parseStatus,
		RefusalCause: refusal,
		ArchiveKey:   run.archiveKey,
		Summary:      summary,
		OccurredAt:   uc.now(),
	}
	if run.source != nil {
		event.Source = *run.source
	}
	// The caller already has its answer; a lost event only costs an audit row.
	if err := uc.publisher.PublishAnalysisCompleted(context.WithoutCancel(ctx), event); err != nil {
		uc.logger.ErrorContext(ctx, "analysis_event_publish_failed", "event_id", event.ID, "outcome", string(outcome), "error", err)
	}
}

func (uc *AnalyzeDocumentUseCase) archive(ctx context.Context, run *analysisRun, upload *domain.Upload, ext string) {
	if !uc.opts.ArchiveUploads || uc.storage == nil {
		return
	}
	key := archiveKey(uc.now(), run.filename, uc.newID(), ext)
	if err := uc.storage.Save(ctx, key, bytes.NewReader(upload.Data)); err != nil {
		uc.logger.ErrorContext(ctx, "upload_archive_failed", "key", key, "error", err)
		return
	}
	run.archiveKey = key
}

func resolveFilename(req domain.AnalysisRequest) string {
	if name := strings.TrimSpace(req.OriginalFilename); name != "" {
		return name
	}
	if req.Upload != nil {
		if name := strings.TrimSpace(req.Upload.Filename); name != "" {
			return name
		}
	}
	return defaultFilename
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// archiveKey builds exames/YYYY/MM/<safe-name>_<10 hex chars><ext>.
func archiveKey(now time.Time, filename, id, fallbackExt string) string {
	ext := strings.ToLower(path.Ext(filename))
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(filename, "\\", "/")), path.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = fallbackExt
	}

	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 10 {
		suffix = suffix[:10]
	}
	return fmt.Sprintf("%s/%04d/%02d/%s_%s%s", archivePrefix, now.Year(), int(now.Month()), safeName(base), suffix, ext)
}

func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
		if b.Len() >= maxArchiveBaseName {
			break
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return defaultFilename
	}
	return out
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
