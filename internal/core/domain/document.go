package domain

import "strings"

type DocumentType string

const (
	DocumentTypeExam         DocumentType = "exame"
	DocumentTypePrescription DocumentType = "receita"
	// DocumentTypeUndefined only appears on refusal-shaped results.
	DocumentTypeUndefined DocumentType = "indefinido"
)

func (t DocumentType) Valid() bool {
	return t == DocumentTypeExam || t == DocumentTypePrescription
}

func (t DocumentType) String() string {
	return string(t)
}

// ParseDocumentType checks a value against the two supported labels without aliasing.
func ParseDocumentType(value string) (DocumentType, bool) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(value)))
	return t, t.Valid()
}

type ContentKind string

const (
	ContentPDF         ContentKind = "pdf"
	ContentImage       ContentKind = "image"
	ContentText        ContentKind = "text"
	ContentUnsupported ContentKind = "unsupported"
)

// ContentProfile is the sniffer verdict for an upload.
type ContentProfile struct {
	Kind     ContentKind
	MimeType string
}

// Upload is an uploaded payload as received from a caller.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
}

func (u *Upload) Size() int {
	if u == nil {
		return 0
	}
	return len(u.Data)
}

// AnalysisRequest is everything a caller may send for one analysis.
type AnalysisRequest struct {
	Upload           *Upload
	Text             string
	Source           string
	OriginalFilename string
	DocumentTypeHint string
}

type ExtractionStatus string

const (
	ExtractionText      ExtractionStatus = "text"
	ExtractionEmpty     ExtractionStatus = "empty"
	ExtractionMalformed ExtractionStatus = "malformed"
)

// ExtractionResult holds text recovered from a PDF and its page count.
// Text is empty exactly when no page yielded extractable text.
type ExtractionResult struct {
	Text   string
	Pages  int
	Status ExtractionStatus
}

type ClassificationSource string

const (
	ClassifiedByOverride  ClassificationSource = "override"
	ClassifiedByFilename  ClassificationSource = "filename"
	ClassifiedByText      ClassificationSource = "text"
	ClassifiedByHeuristic ClassificationSource = "heuristic"
	ClassifiedByDefault   ClassificationSource = "default"
)

// ClassificationDecision is the classifier verdict. An empty Type means indeterminate.
type ClassificationDecision struct {
	Type    DocumentType
	Source  ClassificationSource
	Matched string
}

func (d ClassificationDecision) Determined() bool {
	return d.Type.Valid()
}
