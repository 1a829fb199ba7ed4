package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dualsaude/docreader/internal/config"
	"github.com/dualsaude/docreader/internal/core/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AIProvider:               "off",
		AIRetryMaxAttempts:       1,
		AITimeoutSeconds:         5,
		ImageDefaultDocumentType: "exame",
		MaxUploadMB:              15,
		StorageDriver:            "local",
		LocalStoragePath:         t.TempDir(),
		NATSSubject:              "documents.analyzed",
	}
}

func TestNewWiresAnalyzerWithoutOptionalBackends(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ArchiveUploads = true

	app, err := New(context.Background(), cfg, quietLogger(), "api")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Analyzer == nil || app.Metrics == nil {
		t.Fatalf("expected analyzer and metrics to be wired")
	}
	if app.History != nil {
		t.Fatalf("history must stay nil without POSTGRES_DSN")
	}

	_, err = app.Analyzer.Analyze(context.Background(), domain.AnalysisRequest{Text: "HEMOGRAMA"})
	if !domain.IsKind(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured with AI_PROVIDER=off, got %v", err)
	}
}

func TestNewRejectsAuthWithoutSecret(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AuthRequired = true

	if _, err := New(context.Background(), cfg, quietLogger(), "api"); err == nil {
		t.Fatalf("expected error when auth is required without a secret")
	}
}

func TestNewRejectsInvalidImageDefault(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ImageDefaultDocumentType = "laudo"

	_, err := New(context.Background(), cfg, quietLogger(), "api")
	if err == nil || !strings.Contains(err.Error(), "IMAGE_DEFAULT_DOCUMENT_TYPE") {
		t.Fatalf("expected image default error, got %v", err)
	}
}

func TestNewRejectsUnknownStorageDriver(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ArchiveUploads = true
	cfg.StorageDriver = "ftp"

	_, err := New(context.Background(), cfg, quietLogger(), "api")
	if err == nil || !strings.Contains(err.Error(), "STORAGE_DRIVER") {
		t.Fatalf("expected storage driver error, got %v", err)
	}
}

func TestNewRejectsMissingRulesFile(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ClassifierRulesPath = t.TempDir() + "/missing.yaml"

	if _, err := New(context.Background(), cfg, quietLogger(), "api"); err == nil {
		t.Fatalf("expected error for missing rules file")
	}
}

func TestNewWorkerRequiresBackends(t *testing.T) {
	cfg := baseConfig(t)
	if _, err := NewWorker(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatalf("expected error without NATS_URL")
	}

	cfg.NATSURL = "nats://127.0.0.1:4222"
	_, err := NewWorker(context.Background(), cfg, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "POSTGRES_DSN") {
		t.Fatalf("expected POSTGRES_DSN error, got %v", err)
	}
}
