package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dualsaude/docreader/internal/core/domain"
)

const (
	maxDegradedSummaryChars = 2000
	emptyResponseSummary    = "Não foi possível gerar análise (resposta vazia)."
)

const analysisSchema = `{
  "type": "object",
  "anyOf": [{"required": ["resumo"]}, {"required": ["recusa"]}],
  "properties": {
    "tipo_documento": {"type": ["string", "null"]},
    "resumo": {"type": ["string", "null"]},
    "pontos_atencao": {"$ref": "#/definitions/list"},
    "orientacoes": {"$ref": "#/definitions/list"},
    "quando_procurar_urgencia": {"$ref": "#/definitions/list"},
    "perguntas_para_medico": {"$ref": "#/definitions/list"},
    "recusa": {"type": "boolean"},
    "motivo_recusa": {"type": ["string", "null"]}
  },
  "definitions": {
    "list": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("analysis.json", strings.NewReader(analysisSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("analysis.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// ParseAnalysis turns raw model output into a well-formed result. It is deterministic
// and never fails: empty output and unusable output become synthesized results.
func ParseAnalysis(raw string, docType domain.DocumentType) domain.ParsedAnalysis {
	content := strings.TrimSpace(raw)
	if content == "" {
		result := domain.AnalysisResult{TipoDocumento: docType, Resumo: emptyResponseSummary}
		result.Normalize(docType)
		return domain.ParsedAnalysis{Result: result, Status: domain.ParseStatusEmpty}
	}

	candidate, ok := decodeCandidate(content)
	if !ok {
		candidate, ok = decodeCandidate(extractJSONObject(content))
	}
	if !ok {
		return degraded(content, docType)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(candidate, &result); err != nil {
		return degraded(content, docType)
	}
	result.Normalize(docType)
	return domain.ParsedAnalysis{Result: result, Status: domain.ParseStatusParsed}
}

// decodeCandidate accepts text that is a single JSON object matching the analysis schema.
func decodeCandidate(text string) ([]byte, bool) {
	data := []byte(text)
	decoder := json.NewDecoder(bytes.NewReader(data))
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, false
	}
	if decoder.More() {
		return nil, false
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, false
	}
	if err := schema.Validate(value); err != nil {
		return nil, false
	}
	return data, true
}

func degraded(content string, docType domain.DocumentType) domain.ParsedAnalysis {
	result := domain.AnalysisResult{
		TipoDocumento: docType,
		Resumo:        truncateRunes(content, maxDegradedSummaryChars),
	}
	result.Normalize(docType)
	return domain.ParsedAnalysis{Result: result, Status: domain.ParseStatusMalformed}
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
