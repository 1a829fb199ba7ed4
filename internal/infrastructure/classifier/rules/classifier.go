package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dualsaude/docreader/internal/core/domain"
)

//go:embed rules.yaml
var defaultTable []byte

const (
	SourceFilename = "filename"
	SourceText     = "text"
)

type Rule struct {
	Name     string              `yaml:"name"`
	Type     domain.DocumentType `yaml:"type"`
	Source   string              `yaml:"source"`
	Keywords []string            `yaml:"keywords"`
	AllOf    [][]string          `yaml:"all_of"`
}

type Table struct {
	Hints map[domain.DocumentType][]string `yaml:"hints"`
	Rules []Rule                           `yaml:"rules"`
}

// LoadTable reads a rule table from path, or the built-in one when path is empty.
func LoadTable(path string) (Table, error) {
	raw := defaultTable
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Table{}, fmt.Errorf("read classifier rules: %w", err)
		}
		raw = data
	}
	return ParseTable(raw)
}

func ParseTable(raw []byte) (Table, error) {
	var table Table
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return Table{}, fmt.Errorf("parse classifier rules: %w", err)
	}
	if len(table.Rules) == 0 {
		return Table{}, fmt.Errorf("classifier rules: no rules defined")
	}

	for i := range table.Rules {
		rule := &table.Rules[i]
		if !rule.Type.Valid() {
			return Table{}, fmt.Errorf("classifier rule %q: unsupported type %q", rule.Name, rule.Type)
		}
		if rule.Source != SourceFilename && rule.Source != SourceText {
			return Table{}, fmt.Errorf("classifier rule %q: unsupported source %q", rule.Name, rule.Source)
		}
		if len(rule.Keywords) == 0 && len(rule.AllOf) == 0 {
			return Table{}, fmt.Errorf("classifier rule %q: keywords or all_of required", rule.Name)
		}
		for k, kw := range rule.Keywords {
			rule.Keywords[k] = Fold(kw)
		}
		for g := range rule.AllOf {
			for k, kw := range rule.AllOf[g] {
				rule.AllOf[g][k] = Fold(kw)
			}
		}
	}
	return table, nil
}

// Classifier resolves the document type of an upload from an ordered rule table.
type Classifier struct {
	rules []Rule
	hints map[string]domain.DocumentType
}

func New(table Table) *Classifier {
	hints := make(map[string]domain.DocumentType)
	for docType, aliases := range table.Hints {
		hints[string(docType)] = docType
		for _, alias := range aliases {
			hints[foldHint(alias)] = docType
		}
	}
	// canonical labels are always accepted
	hints[string(domain.DocumentTypeExam)] = domain.DocumentTypeExam
	hints[string(domain.DocumentTypePrescription)] = domain.DocumentTypePrescription

	return &Classifier{
		rules: table.Rules,
		hints: hints,
	}
}

// ResolveHint maps a caller-supplied document_type to a supported type.
// A blank hint resolves to the empty type.
func (c *Classifier) ResolveHint(hint string) (domain.DocumentType, error) {
	if strings.TrimSpace(hint) == "" {
		return "", nil
	}
	if docType, ok := c.hints[foldHint(hint)]; ok {
		return docType, nil
	}
	return "", domain.WrapError(
		domain.ErrInvalidInput,
		"resolve document type",
		domain.NewUserError(domain.ErrInvalidInput, fmt.Sprintf("document_type inválido: %q. Use 'exame' ou 'receita'.", strings.TrimSpace(hint))),
	)
}

// Classify returns override when it is a supported type, otherwise the first rule hit.
func (c *Classifier) Classify(filename, text string, override domain.DocumentType) domain.ClassificationDecision {
	if override.Valid() {
		return domain.ClassificationDecision{Type: override, Source: domain.ClassifiedByOverride}
	}

	subjects := map[string]string{
		SourceFilename: Fold(filename),
		SourceText:     Fold(text),
	}
	tokenSets := make(map[string]map[string]struct{}, len(subjects))

	for _, rule := range c.rules {
		haystack := subjects[rule.Source]
		if haystack == "" {
			continue
		}

		if len(rule.AllOf) > 0 {
			set, ok := tokenSets[rule.Source]
			if !ok {
				set = tokens(haystack)
				tokenSets[rule.Source] = set
			}
			if matched, ok := matchAllOf(set, rule.AllOf); ok {
				return domain.ClassificationDecision{Type: rule.Type, Source: domain.ClassifiedByHeuristic, Matched: matched}
			}
			continue
		}

		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(haystack, kw) {
				return domain.ClassificationDecision{Type: rule.Type, Source: sourceTag(rule.Source), Matched: kw}
			}
		}
	}
	return domain.ClassificationDecision{}
}

func matchAllOf(set map[string]struct{}, groups [][]string) (string, bool) {
	hits := make([]string, 0, len(groups))
	for _, group := range groups {
		found := ""
		for _, kw := range group {
			if _, ok := set[kw]; ok {
				found = kw
				break
			}
		}
		if found == "" {
			return "", false
		}
		hits = append(hits, found)
	}
	return strings.Join(hits, "+"), true
}

func sourceTag(source string) domain.ClassificationSource {
	if source == SourceFilename {
		return domain.ClassifiedByFilename
	}
	return domain.ClassifiedByText
}
