package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/core/ports"
)

const (
	serverName    = "docreader"
	serverVersion = "v1.0.0"
	sourceMCP     = "mcp"

	defaultHistoryLimit = 20
	// maxFileBytes caps local reads; the analyzer applies the configured upload limit on top.
	maxFileBytes = 64 << 20
)

type AnalyzeTextRequest struct {
	Text         string `json:"text" mcp:"Document text (exam result or prescription)"`
	DocumentType string `json:"document_type,omitempty" mcp:"Optional document type: exame or receita"`
}

type AnalyzeFileRequest struct {
	Path         string `json:"path" mcp:"Local path of a PDF or image file"`
	DocumentType string `json:"document_type,omitempty" mcp:"Optional document type: exame or receita"`
}

type ListRecentRequest struct {
	Limit int `json:"limit,omitempty" mcp:"Maximum number of records (default: 20)"`
}

// Tools exposes the analysis pipeline to MCP clients.
type Tools struct {
	analyzer ports.DocumentAnalyzer
	history  ports.AnalysisHistory
	logger   *slog.Logger
}

// NewTools builds the tool set. history may be nil.
func NewTools(analyzer ports.DocumentAnalyzer, history ports.AnalysisHistory, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{analyzer: analyzer, history: history, logger: logger}
}

// NewServer registers every tool on a fresh MCP server.
func (t *Tools) NewServer() *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false))

	textTool := mcp.NewTool(
		"analyze_document_text",
		mcp.WithDescription("Analyze the text of a medical exam or prescription and return a patient-friendly summary"),
		mcp.WithString("text", mcp.Description("Document text (exam result or prescription)"), mcp.Required()),
		mcp.WithString("document_type", mcp.Description("Optional document type: exame or receita")),
	)
	s.AddTool(textTool, mcp.NewTypedToolHandler(t.AnalyzeText))

	fileTool := mcp.NewTool(
		"analyze_document_file",
		mcp.WithDescription("Analyze a local PDF or image of a medical exam or prescription"),
		mcp.WithString("path", mcp.Description("Local path of a PDF or image file"), mcp.Required()),
		mcp.WithString("document_type", mcp.Description("Optional document type: exame or receita")),
	)
	s.AddTool(fileTool, mcp.NewTypedToolHandler(t.AnalyzeFile))

	if t.history != nil {
		historyTool := mcp.NewTool(
			"list_recent_analyses",
			mcp.WithDescription("List the most recently recorded analyses"),
			mcp.WithNumber("limit", mcp.Description("Maximum number of records (default: 20)")),
		)
		s.AddTool(historyTool, mcp.NewTypedToolHandler(t.ListRecent))
	}
	return s
}

func (t *Tools) AnalyzeText(ctx context.Context, _ mcp.CallToolRequest, params AnalyzeTextRequest) (*mcp.CallToolResult, error) {
	return t.analyze(ctx, domain.AnalysisRequest{
		Text:             params.Text,
		Source:           sourceMCP,
		DocumentTypeHint: params.DocumentType,
	})
}

func (t *Tools) AnalyzeFile(ctx context.Context, _ mcp.CallToolRequest, params AnalyzeFileRequest) (*mcp.CallToolResult, error) {
	path := strings.TrimSpace(params.Path)
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}
	data, err := readLimited(path)
	if err != nil {
		t.logger.Warn("mcp_file_read_failed", "path", path, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
	}
	filename := filepath.Base(path)
	return t.analyze(ctx, domain.AnalysisRequest{
		Upload:           &domain.Upload{Data: data, Filename: filename},
		Source:           sourceMCP,
		OriginalFilename: filename,
		DocumentTypeHint: params.DocumentType,
	})
}

func (t *Tools) ListRecent(ctx context.Context, _ mcp.CallToolRequest, params ListRecentRequest) (*mcp.CallToolResult, error) {
	if t.history == nil {
		return mcp.NewToolResultError("history is not configured"), nil
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	records, err := t.history.ListRecent(ctx, limit)
	if err != nil {
		return t.toolError(err), nil
	}
	return jsonResult(map[string]any{"count": len(records), "items": records})
}

func (t *Tools) analyze(ctx context.Context, req domain.AnalysisRequest) (*mcp.CallToolResult, error) {
	envelope, err := t.analyzer.Analyze(ctx, req)
	if err != nil {
		return t.toolError(err), nil
	}
	return jsonResult(envelope)
}

// toolError reports client-safe messages as tool errors; internal details stay in the log.
func (t *Tools) toolError(err error) *mcp.CallToolResult {
	if msg, ok := domain.UserMessage(err); ok {
		return mcp.NewToolResultError(msg)
	}
	t.logger.Error("mcp_tool_failed", "error", err)
	switch {
	case domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError("Serviço de IA temporariamente indisponível. Tente novamente em instantes.")
	case domain.IsKind(err, domain.ErrProviderFailure):
		return mcp.NewToolResultError("Falha ao analisar com IA. Tente novamente mais tarde.")
	default:
		return mcp.NewToolResultError("Erro interno ao processar o documento.")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileBytes {
		return nil, errors.New("file too large")
	}
	return data, nil
}
