package openai

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dualsaude/docreader/internal/core/domain"
)

func TestParseAnalysisEmptyOutput(t *testing.T) {
	got := ParseAnalysis("  \n\t ", domain.DocumentTypeExam)
	if got.Status != domain.ParseStatusEmpty {
		t.Fatalf("expected empty status, got %s", got.Status)
	}
	if got.Result.Recusa || got.Result.Resumo != emptyResponseSummary {
		t.Fatalf("unexpected result %+v", got.Result)
	}
	if got.Result.TipoDocumento != domain.DocumentTypeExam {
		t.Fatalf("expected exame, got %q", got.Result.TipoDocumento)
	}
}

func TestParseAnalysisMalformedKeepsRawPrefix(t *testing.T) {
	raw := "Desculpe, " + strings.Repeat("x", 3000)
	got := ParseAnalysis(raw, domain.DocumentTypePrescription)
	if got.Status != domain.ParseStatusMalformed {
		t.Fatalf("expected malformed status, got %s", got.Status)
	}
	if len([]rune(got.Result.Resumo)) != maxDegradedSummaryChars {
		t.Fatalf("expected %d-char summary, got %d", maxDegradedSummaryChars, len([]rune(got.Result.Resumo)))
	}
	if got.Result.Recusa || got.Result.PontosAtencao == nil || len(got.Result.PontosAtencao) != 0 {
		t.Fatalf("expected non-refusal with empty lists, got %+v", got.Result)
	}
}

func TestParseAnalysisSchemaViolationIsMalformed(t *testing.T) {
	got := ParseAnalysis(`{"resumo": "ok", "pontos_atencao": [1, 2]}`, domain.DocumentTypeExam)
	if got.Status != domain.ParseStatusMalformed {
		t.Fatalf("expected malformed status, got %s", got.Status)
	}
}

func TestParseAnalysisExtractsFencedJSON(t *testing.T) {
	raw := "```json\n{\"resumo\":\"Glicose elevada\",\"pontos_atencao\":[\"Glicose 130\"],\"recusa\":false}\n```"
	got := ParseAnalysis(raw, domain.DocumentTypeExam)
	if got.Status != domain.ParseStatusParsed {
		t.Fatalf("expected parsed status, got %s", got.Status)
	}
	if got.Result.Resumo != "Glicose elevada" || len(got.Result.PontosAtencao) != 1 {
		t.Fatalf("unexpected result %+v", got.Result)
	}
	if got.Result.Orientacoes == nil {
		t.Fatalf("missing lists must become empty lists")
	}
}

func TestParseAnalysisRefusalInvariant(t *testing.T) {
	raw := `{"tipo_documento":"indefinido","resumo":"","pontos_atencao":["não deveria"],"recusa":true,"motivo_recusa":null}`
	got := ParseAnalysis(raw, domain.DocumentTypeExam)
	if !got.Result.Recusa {
		t.Fatalf("expected refusal")
	}
	if got.Result.MotivoRecusa == nil || *got.Result.MotivoRecusa == "" {
		t.Fatalf("refusal must carry a reason")
	}
	if len(got.Result.PontosAtencao) != 0 {
		t.Fatalf("refusal must have empty lists, got %+v", got.Result.PontosAtencao)
	}
}

func TestParseAnalysisNonRefusalUsesResolvedType(t *testing.T) {
	got := ParseAnalysis(`{"tipo_documento":"pedido_exame","resumo":"ok","recusa":false}`, domain.DocumentTypeExam)
	if got.Result.TipoDocumento != domain.DocumentTypeExam {
		t.Fatalf("expected exame, got %q", got.Result.TipoDocumento)
	}
}

func TestParseAnalysisIsDeterministic(t *testing.T) {
	inputs := []string{
		`{"resumo":"a","orientacoes":["b"],"recusa":false}`,
		"texto livre sem json",
		"",
		`{"recusa":true,"motivo_recusa":"É um boleto."}`,
	}
	for _, raw := range inputs {
		first := ParseAnalysis(raw, domain.DocumentTypePrescription)
		second := ParseAnalysis(raw, domain.DocumentTypePrescription)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("non-deterministic parse for %q: %+v vs %+v", raw, first, second)
		}
	}
}

func TestTruncateRunesKeepsValidUTF8(t *testing.T) {
	if got := truncateRunes("ação", 2); got != "aç" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
