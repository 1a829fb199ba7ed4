package domain

import (
	"errors"
	"testing"
)

func TestNormalizeRefusalClearsListsAndSetsReason(t *testing.T) {
	result := AnalysisResult{
		TipoDocumento: "outro",
		Resumo:        "x",
		PontosAtencao: []string{"a"},
		Orientacoes:   []string{"b"},
		Recusa:        true,
	}
	result.Normalize(DocumentTypeExam)

	if result.MotivoRecusa == nil || *result.MotivoRecusa != DefaultRefusalReason {
		t.Fatalf("expected default refusal reason, got %v", result.MotivoRecusa)
	}
	if len(result.PontosAtencao) != 0 || len(result.Orientacoes) != 0 {
		t.Fatalf("expected empty lists on refusal, got %+v", result)
	}
	if result.PerguntasParaMedico == nil || result.QuandoProcurarUrgencia == nil {
		t.Fatalf("expected non-nil lists on refusal")
	}
	if result.TipoDocumento != DocumentTypeUndefined {
		t.Fatalf("expected indefinido for refusal, got %q", result.TipoDocumento)
	}
}

func TestNormalizeNonRefusalForcesSupportedType(t *testing.T) {
	reason := "stale"
	result := AnalysisResult{TipoDocumento: "indefinido", MotivoRecusa: &reason}
	result.Normalize(DocumentTypePrescription)

	if result.TipoDocumento != DocumentTypePrescription {
		t.Fatalf("expected receita, got %q", result.TipoDocumento)
	}
	if result.MotivoRecusa != nil {
		t.Fatalf("expected nil refusal reason")
	}
	if result.PontosAtencao == nil || result.Orientacoes == nil {
		t.Fatalf("expected lists to be non-nil")
	}
}

func TestParseDocumentType(t *testing.T) {
	if got, ok := ParseDocumentType(" Exame "); !ok || got != DocumentTypeExam {
		t.Fatalf("expected exame, got %q ok=%v", got, ok)
	}
	if _, ok := ParseDocumentType("indefinido"); ok {
		t.Fatalf("indefinido must not be a supported type")
	}
}

func TestUserErrorKeepsKind(t *testing.T) {
	err := WrapError(ErrRefused, "analyze", NewUserError(ErrRefused, "fora do escopo"))
	if !IsKind(err, ErrRefused) {
		t.Fatalf("expected refused kind")
	}
	msg, ok := UserMessage(err)
	if !ok || msg != "fora do escopo" {
		t.Fatalf("expected user message, got %q ok=%v", msg, ok)
	}
	if _, ok := UserMessage(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no user message")
	}
}
