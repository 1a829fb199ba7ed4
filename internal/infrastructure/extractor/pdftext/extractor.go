package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dualsaude/docreader/internal/core/domain"
)

const pageSeparator = "\n\n"

var pageObjectPattern = regexp.MustCompile(`/Type\s*/Page\b`)

// pageSource is the slice of a parsed PDF the extractor needs.
type pageSource interface {
	NumPage() int
	PageText(index int) (string, error)
}

type readerSource struct {
	reader *pdf.Reader
}

func (s readerSource) NumPage() int {
	return s.reader.NumPage()
}

func (s readerSource) PageText(index int) (string, error) {
	page := s.reader.Page(index)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func openReader(data []byte) (pageSource, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return readerSource{reader: reader}, nil
}

// Extractor pulls selectable text out of PDF uploads page by page.
type Extractor struct {
	open   func(data []byte) (pageSource, error)
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		open:   openReader,
		logger: logger,
	}
}

// Extract never fails on broken PDFs: unreadable structure yields empty text and a
// best-effort page count. The error return is reserved for context cancellation.
func (e *Extractor) Extract(ctx context.Context, data []byte) (domain.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractionResult{}, err
	}

	source, err := e.safeOpen(data)
	if err != nil {
		pages := countPageObjects(data)
		e.logger.Warn("pdf_unreadable", "error", err, "pages_estimate", pages)
		return domain.ExtractionResult{Pages: pages, Status: domain.ExtractionMalformed}, nil
	}

	total, err := safePageCount(source)
	if err != nil {
		pages := countPageObjects(data)
		e.logger.Warn("pdf_page_count_failed", "error", err, "pages_estimate", pages)
		return domain.ExtractionResult{Pages: pages, Status: domain.ExtractionMalformed}, nil
	}

	parts := make([]string, 0, total)
	failed := 0
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return domain.ExtractionResult{}, err
		}
		text, err := safePageText(source, i)
		if err != nil {
			failed++
			e.logger.Debug("pdf_page_extract_failed", "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	result := domain.ExtractionResult{
		Text:  strings.TrimSpace(strings.Join(parts, pageSeparator)),
		Pages: total,
	}
	switch {
	case result.Text != "":
		result.Status = domain.ExtractionText
	case failed == total && total > 0:
		result.Status = domain.ExtractionMalformed
	default:
		result.Status = domain.ExtractionEmpty
	}
	return result, nil
}

func (e *Extractor) safeOpen(data []byte) (source pageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			source, err = nil, fmt.Errorf("pdf open panic: %v", r)
		}
	}()
	return e.open(data)
}

func safePageCount(source pageSource) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdf page count panic: %v", r)
		}
	}()
	n = source.NumPage()
	if n < 0 {
		n = 0
	}
	return n, nil
}

func safePageText(source pageSource, index int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf page %d panic: %v", index, r)
		}
	}()
	return source.PageText(index)
}

// countPageObjects estimates the page total of a PDF the parser rejected.
func countPageObjects(data []byte) int {
	return len(pageObjectPattern.FindAllIndex(data, -1))
}
