package domain

import (
	"strings"
	"time"
)

const (
	DefaultRefusalReason = "Documento recusado."
	ScannedPDFReason     = "O PDF parece escaneado (imagem) ou não possui texto. " +
		"Envie um PDF exportado do sistema (texto selecionável) ou envie a imagem legível do exame/receita."
)

// AnalysisResult is the structured interpretation returned to callers.
type AnalysisResult struct {
	TipoDocumento          DocumentType `json:"tipo_documento"`
	Resumo                 string       `json:"resumo"`
	PontosAtencao          []string     `json:"pontos_atencao"`
	Orientacoes            []string     `json:"orientacoes"`
	QuandoProcurarUrgencia []string     `json:"quando_procurar_urgencia"`
	PerguntasParaMedico    []string     `json:"perguntas_para_medico"`
	Recusa                 bool         `json:"recusa"`
	MotivoRecusa           *string      `json:"motivo_recusa"`
}

// Normalize enforces the result invariants: a refusal has no informational lists and
// always a reason; a regular analysis is labelled with the resolved document type.
func (r *AnalysisResult) Normalize(docType DocumentType) {
	if r.Recusa {
		r.PontosAtencao = []string{}
		r.Orientacoes = []string{}
		r.QuandoProcurarUrgencia = []string{}
		r.PerguntasParaMedico = []string{}
		if r.MotivoRecusa == nil || strings.TrimSpace(*r.MotivoRecusa) == "" {
			reason := DefaultRefusalReason
			r.MotivoRecusa = &reason
		}
		if !r.TipoDocumento.Valid() {
			r.TipoDocumento = DocumentTypeUndefined
		}
		return
	}

	r.MotivoRecusa = nil
	if docType.Valid() {
		r.TipoDocumento = docType
	}
	if !r.TipoDocumento.Valid() {
		r.TipoDocumento = DocumentTypeExam
	}
	r.PontosAtencao = nonNil(r.PontosAtencao)
	r.Orientacoes = nonNil(r.Orientacoes)
	r.QuandoProcurarUrgencia = nonNil(r.QuandoProcurarUrgencia)
	r.PerguntasParaMedico = nonNil(r.PerguntasParaMedico)
}

// RefusalReason returns the stated reason of a refusal, or the default one.
func (r AnalysisResult) RefusalReason() string {
	if r.MotivoRecusa != nil && strings.TrimSpace(*r.MotivoRecusa) != "" {
		return strings.TrimSpace(*r.MotivoRecusa)
	}
	return DefaultRefusalReason
}

// NewRefusal builds a refusal-shaped result.
func NewRefusal(docType DocumentType, summary, reason string) AnalysisResult {
	result := AnalysisResult{
		TipoDocumento: docType,
		Resumo:        summary,
		Recusa:        true,
		MotivoRecusa:  &reason,
	}
	result.Normalize(docType)
	return result
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// ParseStatus tells how a raw model output turned into an AnalysisResult.
type ParseStatus string

const (
	ParseStatusParsed    ParseStatus = "parsed"
	ParseStatusEmpty     ParseStatus = "empty"
	ParseStatusMalformed ParseStatus = "malformed"
)

type ParsedAnalysis struct {
	Result AnalysisResult
	Status ParseStatus
}

type AnalysisOutcome string

const (
	OutcomeAnalyzed   AnalysisOutcome = "analyzed"
	OutcomeScannedPDF AnalysisOutcome = "scanned_pdf"
	OutcomeRefused    AnalysisOutcome = "refused"
)

// AnalysisMeta describes the request that produced an analysis.
type AnalysisMeta struct {
	Filename     string               `json:"filename"`
	SizeBytes    int                  `json:"size_bytes"`
	Pages        *int                 `json:"pages"`
	Source       *string              `json:"source"`
	DocumentType DocumentType         `json:"document_type"`
	ContentType  string               `json:"content_type,omitempty"`
	ClassifiedBy ClassificationSource `json:"classified_by,omitempty"`
}

// AnalysisEnvelope is the success response for a document analysis.
type AnalysisEnvelope struct {
	OK       bool           `json:"ok"`
	Message  string         `json:"message"`
	Meta     AnalysisMeta   `json:"meta"`
	Analysis AnalysisResult `json:"analysis"`
}

// AnalysisEvent is emitted once per completed request.
type AnalysisEvent struct {
	ID           string               `json:"id"`
	Outcome      AnalysisOutcome      `json:"outcome"`
	ContentKind  ContentKind          `json:"content_kind"`
	Filename     string               `json:"filename"`
	SizeBytes    int                  `json:"size_bytes"`
	Pages        *int                 `json:"pages,omitempty"`
	Source       string               `json:"source,omitempty"`
	DocumentType DocumentType         `json:"document_type"`
	ClassifiedBy ClassificationSource `json:"classified_by,omitempty"`
	ParseStatus  ParseStatus          `json:"parse_status,omitempty"`
	RefusalCause string               `json:"refusal_reason,omitempty"`
	ArchiveKey   string               `json:"archive_key,omitempty"`
	Summary      string               `json:"summary,omitempty"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// AnalysisRecord is the persisted audit form of an AnalysisEvent.
type AnalysisRecord struct {
	AnalysisEvent
	RecordedAt time.Time `json:"recorded_at"`
}
