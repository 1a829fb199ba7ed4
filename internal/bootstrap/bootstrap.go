package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dualsaude/docreader/internal/config"
	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/core/ports"
	"github.com/dualsaude/docreader/internal/core/usecase"
	"github.com/dualsaude/docreader/internal/infrastructure/classifier/rules"
	"github.com/dualsaude/docreader/internal/infrastructure/extractor/pdftext"
	"github.com/dualsaude/docreader/internal/infrastructure/llm/openai"
	"github.com/dualsaude/docreader/internal/infrastructure/queue/nats"
	"github.com/dualsaude/docreader/internal/infrastructure/repository/postgres"
	"github.com/dualsaude/docreader/internal/infrastructure/resilience"
	"github.com/dualsaude/docreader/internal/infrastructure/sniffer"
	"github.com/dualsaude/docreader/internal/infrastructure/storage/localfs"
	"github.com/dualsaude/docreader/internal/infrastructure/storage/s3store"
	"github.com/dualsaude/docreader/internal/observability/metrics"
)

// App holds everything the API and MCP entrypoints serve.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Analyzer ports.DocumentAnalyzer
	// History is nil unless POSTGRES_DSN is set.
	History ports.AnalysisHistory

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthRequired && strings.TrimSpace(cfg.AuthJWTSecret) == "" {
		return nil, errors.New("AUTH_REQUIRED is set but AUTH_JWT_SECRET is empty")
	}

	table, err := rules.LoadTable(cfg.ClassifierRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}
	imageDefault, ok := domain.ParseDocumentType(cfg.ImageDefaultDocumentType)
	if !ok {
		return nil, fmt.Errorf("invalid IMAGE_DEFAULT_DOCUMENT_TYPE %q", cfg.ImageDefaultDocumentType)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	executor := resilience.NewExecutor(resilience.Config{
		Policies: map[string]resilience.Policy{
			"openai": resilience.ProviderPolicy(cfg.AIRetryMaxAttempts, cfg.AIBreakerEnabled),
			"nats":   resilience.EventPolicy(),
		},
		Logger:        logger,
		OnStateChange: httpMetrics.ObserveBreakerTransition,
	})
	interpreter := openai.New(openai.Options{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.AITemperature,
		Timeout:     time.Duration(cfg.AITimeoutSeconds) * time.Second,
		Executor:    executor,
		Observer:    httpMetrics,
	})

	analyzer := usecase.NewAnalyzeDocumentUseCase(
		sniffer.New(),
		pdftext.NewExtractor(logger),
		rules.New(table),
		interpreter,
		usecase.AnalyzeDocumentOptions{
			ProviderConfigured: cfg.ProviderConfigured(),
			MaxUploadBytes:     cfg.MaxUploadBytes(),
			ImageDefaultType:   imageDefault,
			ArchiveUploads:     cfg.ArchiveUploads,
		},
	).WithObserver(httpMetrics).WithLogger(logger)

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.ArchiveUploads {
		storage, err := newStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		analyzer.WithArchive(storage)
	}

	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
			ClientName:         "docreader-" + service,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
		analyzer.WithPublisher(queue)
	}

	var history ports.AnalysisHistory
	if cfg.PostgresDSN != "" {
		db, repo, err := openRepository(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		history = usecase.NewRecordAnalysisUseCase(repo)
	}

	logger.Info("bootstrap_ready",
		"provider_configured", cfg.ProviderConfigured(),
		"archive", cfg.ArchiveUploads,
		"storage_driver", cfg.StorageDriver,
		"events", cfg.NATSURL != "",
		"history", history != nil,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  httpMetrics,
		Analyzer: analyzer,
		History:  history,
		closeFn:  closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker holds the event recorder side: it needs both NATS and Postgres.
type Worker struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.WorkerMetrics
	Queue    ports.EventSubscriber
	Recorder ports.AnalysisRecorder

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NATSURL == "" {
		return nil, errors.New("worker requires NATS_URL")
	}
	if cfg.PostgresDSN == "" {
		return nil, errors.New("worker requires POSTGRES_DSN")
	}

	db, repo, err := openRepository(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Logger:     logger,
		ClientName: "docreader-worker",
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &Worker{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.NewWorkerMetrics("worker"),
		Queue:    queue,
		Recorder: usecase.NewRecordAnalysisUseCase(repo),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func openRepository(ctx context.Context, dsn string) (*sql.DB, *postgres.AnalysisRepository, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewAnalysisRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

func newStorage(cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageDriver {
	case "", "local":
		return localfs.New(cfg.LocalStoragePath)
	case "s3":
		return s3store.New(s3store.Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKeyID:  cfg.S3AccessKeyID,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
