package httpadapter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dualsaude/docreader/internal/core/domain"
)

// uploadFieldAliases lists the accepted names of the file field, in priority order.
var uploadFieldAliases = []string{"file", "pdf", "arquivo", "documento"}

const (
	multipartMemory = 32 << 20
	// intakeOverhead covers multipart framing, form fields and base64 expansion.
	intakeOverhead = 1 << 20
)

// jsonIntake is the JSON form of an analysis request; file aliases carry base64 content.
type jsonIntake struct {
	File             string `json:"file"`
	PDF              string `json:"pdf"`
	Arquivo          string `json:"arquivo"`
	Documento        string `json:"documento"`
	Filename         string `json:"filename"`
	ContentType      string `json:"content_type"`
	Text             string `json:"text"`
	Source           string `json:"source"`
	OriginalFilename string `json:"original_filename"`
	DocumentType     string `json:"document_type"`
}

func (j jsonIntake) field(alias string) string {
	switch alias {
	case "file":
		return j.File
	case "pdf":
		return j.PDF
	case "arquivo":
		return j.Arquivo
	case "documento":
		return j.Documento
	default:
		return ""
	}
}

// readAnalysisRequest resolves the request body into a single canonical AnalysisRequest.
func readAnalysisRequest(w http.ResponseWriter, r *http.Request, maxUploadBytes int64) (domain.AnalysisRequest, error) {
	if maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes*4/3+intakeOverhead)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return readMultipart(r)
	case "application/json":
		return readJSON(r)
	default:
		if err := r.ParseForm(); err != nil {
			return domain.AnalysisRequest{}, intakeReadError(err)
		}
		return domain.AnalysisRequest{
			Text:             r.PostFormValue("text"),
			Source:           strings.TrimSpace(r.PostFormValue("source")),
			OriginalFilename: r.PostFormValue("original_filename"),
			DocumentTypeHint: r.PostFormValue("document_type"),
		}, nil
	}
}

func readMultipart(r *http.Request) (domain.AnalysisRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return domain.AnalysisRequest{}, intakeReadError(err)
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	req := domain.AnalysisRequest{
		Text:             r.PostFormValue("text"),
		Source:           strings.TrimSpace(r.PostFormValue("source")),
		OriginalFilename: r.PostFormValue("original_filename"),
		DocumentTypeHint: r.PostFormValue("document_type"),
	}

	header := pickUploadHeader(r.MultipartForm)
	if header == nil {
		return req, nil
	}
	file, err := header.Open()
	if err != nil {
		return domain.AnalysisRequest{}, intakeReadError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.AnalysisRequest{}, intakeReadError(err)
	}
	req.Upload = &domain.Upload{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}
	return req, nil
}

// pickUploadHeader returns the first non-empty aliased file part, or the first
// present one when all are empty so the caller can report an empty upload.
func pickUploadHeader(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	var firstPresent *multipart.FileHeader
	for _, alias := range uploadFieldAliases {
		headers := form.File[alias]
		if len(headers) == 0 {
			continue
		}
		if headers[0].Size > 0 {
			return headers[0]
		}
		if firstPresent == nil {
			firstPresent = headers[0]
		}
	}
	return firstPresent
}

func readJSON(r *http.Request) (domain.AnalysisRequest, error) {
	var body jsonIntake
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.AnalysisRequest{}, intakeReadError(err)
		}
		return domain.AnalysisRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode json intake",
			domain.NewUserError(domain.ErrInvalidInput, "JSON inválido."))
	}

	req := domain.AnalysisRequest{
		Text:             body.Text,
		Source:           strings.TrimSpace(body.Source),
		OriginalFilename: body.OriginalFilename,
		DocumentTypeHint: body.DocumentType,
	}

	for _, alias := range uploadFieldAliases {
		encoded := strings.TrimSpace(body.field(alias))
		if encoded == "" {
			continue
		}
		data, contentType, err := decodeBase64Payload(encoded)
		if err != nil {
			return domain.AnalysisRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode json intake",
				domain.NewUserError(domain.ErrInvalidInput, fmt.Sprintf("Conteúdo base64 inválido no campo '%s'.", alias)))
		}
		if contentType == "" {
			contentType = strings.TrimSpace(body.ContentType)
		}
		req.Upload = &domain.Upload{Data: data, ContentType: contentType, Filename: strings.TrimSpace(body.Filename)}
		break
	}
	return req, nil
}

// decodeBase64Payload accepts plain base64 or a data URL.
func decodeBase64Payload(encoded string) ([]byte, string, error) {
	var contentType string
	if strings.HasPrefix(encoded, "data:") {
		meta, payload, ok := strings.Cut(strings.TrimPrefix(encoded, "data:"), ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("unsupported data url")
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		encoded = payload
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, "", err
		}
	}
	return data, contentType, nil
}

// intakeReadError maps body read failures: an oversized body is 413, anything else
// (including a client that disconnected mid-upload) is an empty/invalid upload.
func intakeReadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return domain.WrapError(domain.ErrPayloadTooLarge, "read upload",
			domain.NewUserError(domain.ErrPayloadTooLarge, "Arquivo excede o tamanho máximo permitido."))
	}
	return domain.WrapError(domain.ErrEmptyPayload, "read upload",
		domain.NewUserError(domain.ErrEmptyPayload, "Arquivo vazio ou inválido."))
}
