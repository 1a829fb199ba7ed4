package openai

import (
	"fmt"
	"strings"

	"github.com/dualsaude/docreader/internal/core/domain"
)

// MaxPromptChars bounds the document text embedded in a prompt.
const MaxPromptChars = 25000

func documentLabel(docType domain.DocumentType) string {
	if docType == domain.DocumentTypePrescription {
		return "RECEITA MÉDICA"
	}
	return "EXAME (resultado ou pedido de exame)"
}

func buildSystemPrompt(docType domain.DocumentType) string {
	label := documentLabel(docType)
	return strings.TrimSpace(fmt.Sprintf(`
Você é a enfermeira virtual da Dual GR e orienta pacientes em português do Brasil.
Você só analisa documentos do tipo %[1]s. Se o conteúdo não for claramente %[1]s, recuse.

Regras:
- Nunca dê diagnóstico definitivo nem altere prescrições.
- Não interprete outros documentos (boletos, contratos, documentos pessoais, atestados).
- Havendo sinais de urgência ou emergência, oriente buscar atendimento imediato.
- Use linguagem simples e direta.
- Responda somente com um objeto JSON, sem texto fora dele.

Formato da resposta:
{
  "tipo_documento": "%[2]s",
  "resumo": "string",
  "pontos_atencao": ["string"],
  "orientacoes": ["string"],
  "quando_procurar_urgencia": ["string"],
  "perguntas_para_medico": ["string"],
  "recusa": false,
  "motivo_recusa": null
}

Se o documento NÃO for %[1]s, responda:
{
  "tipo_documento": "indefinido",
  "resumo": "",
  "pontos_atencao": [],
  "orientacoes": [],
  "quando_procurar_urgencia": [],
  "perguntas_para_medico": [],
  "recusa": true,
  "motivo_recusa": "explique em uma frase por que o documento foi recusado"
}
`, label, docType))
}

func buildTextPrompt(text string) string {
	return "TEXTO EXTRAÍDO DO DOCUMENTO:\n\"\"\"\n" + truncateRunes(text, MaxPromptChars) + "\n\"\"\""
}

func buildImagePrompt(docType domain.DocumentType) string {
	return fmt.Sprintf("Analise a imagem anexada, que deveria ser %s. Leia apenas o que estiver legível.", documentLabel(docType))
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
