package sniffer

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dualsaude/docreader/internal/core/domain"
)

const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWEBP = "image/webp"
)

var pdfSignature = []byte("%PDF")

// allowedImages maps accepted declared types to the canonical one sent downstream.
var allowedImages = map[string]string{
	"image/jpeg":  MimeJPEG,
	"image/jpg":   MimeJPEG,
	"image/pjpeg": MimeJPEG,
	"image/png":   MimePNG,
	"image/webp":  MimeWEBP,
}

var imageExtensions = map[string]string{
	".jpg":  MimeJPEG,
	".jpeg": MimeJPEG,
	".jpe":  MimeJPEG,
	".jfif": MimeJPEG,
	".png":  MimePNG,
	".webp": MimeWEBP,
}

var genericTypes = map[string]struct{}{
	"application/octet-stream": {},
	"binary/octet-stream":      {},
	"application/unknown":      {},
}

// Sniffer tells PDFs and supported images apart from everything else.
type Sniffer struct{}

func New() *Sniffer {
	return &Sniffer{}
}

func (s *Sniffer) Sniff(upload domain.Upload) domain.ContentProfile {
	if bytes.HasPrefix(upload.Data, pdfSignature) {
		return domain.ContentProfile{Kind: domain.ContentPDF, MimeType: MimePDF}
	}

	declared := baseMediaType(upload.ContentType)
	if canonical, ok := allowedImages[declared]; ok {
		return image(canonical)
	}
	if _, generic := genericTypes[declared]; declared != "" && !generic {
		return unsupported(declared)
	}

	detected := mimetype.Detect(upload.Data).String()
	if canonical, ok := allowedImages[baseMediaType(detected)]; ok {
		return image(canonical)
	}
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if canonical, ok := imageExtensions[ext]; ok {
		return image(canonical)
	}
	// Nothing identifies the upload: camera apps often send bare JPEG bytes.
	if ext == "" && baseMediaType(detected) == "application/octet-stream" {
		return image(MimeJPEG)
	}
	return unsupported(detected)
}

func baseMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType, _, _ = strings.Cut(value, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func image(mimeType string) domain.ContentProfile {
	return domain.ContentProfile{Kind: domain.ContentImage, MimeType: mimeType}
}

func unsupported(mimeType string) domain.ContentProfile {
	return domain.ContentProfile{Kind: domain.ContentUnsupported, MimeType: mimeType}
}
