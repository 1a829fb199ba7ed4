package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	APIPort           string
	LogLevel          string
	APIMaxConnections int
	APIRateLimitRPS   float64
	APIRateLimitBurst int

	// Backpressure bounds concurrent analyses; extra requests wait briefly, then get 503.
	APIBackpressureMaxInFlight int
	APIBackpressureWaitMS      int

	AIProvider         string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	AITemperature      float64
	AITimeoutSeconds   int
	AIRetryMaxAttempts int
	AIBreakerEnabled   bool

	ImageDefaultDocumentType string
	ClassifierRulesPath      string
	MaxUploadMB              int

	ArchiveUploads   bool
	StorageDriver    string
	LocalStoragePath string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKeyID    string
	S3SecretKey      string
	S3UsePathStyle   bool

	NATSURL     string
	NATSSubject string

	PostgresDSN string

	AuthJWTSecret string
	AuthRequired  bool

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:           mustEnv("API_PORT", "8080"),
		LogLevel:          mustEnv("LOG_LEVEL", "info"),
		APIMaxConnections: mustEnvInt("API_MAX_CONNECTIONS", 256),
		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 10),

		APIBackpressureMaxInFlight: mustEnvInt("API_BACKPRESSURE_MAX_IN_FLIGHT", 32),
		APIBackpressureWaitMS:      mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),

		AIProvider:         strings.ToLower(mustEnv("AI_PROVIDER", "openai")),
		OpenAIAPIKey:       mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      mustEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:        mustEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AITemperature:      mustEnvFloat("AI_TEMPERATURE", 0.2),
		AITimeoutSeconds:   mustEnvInt("AI_TIMEOUT_SECONDS", 60),
		AIRetryMaxAttempts: mustEnvInt("AI_RETRY_MAX_ATTEMPTS", 1),
		AIBreakerEnabled:   mustEnvBool("AI_BREAKER_ENABLED", true),

		ImageDefaultDocumentType: mustEnv("IMAGE_DEFAULT_DOCUMENT_TYPE", "exame"),
		ClassifierRulesPath:      mustEnv("CLASSIFIER_RULES_PATH", ""),
		MaxUploadMB:              mustEnvInt("MAX_UPLOAD_MB", 15),

		ArchiveUploads:   mustEnvBool("ARCHIVE_UPLOADS", false),
		StorageDriver:    strings.ToLower(mustEnv("STORAGE_DRIVER", "local")),
		LocalStoragePath: mustEnv("LOCAL_STORAGE_PATH", "./storage"),
		S3Bucket:         mustEnv("S3_BUCKET", ""),
		S3Region:         mustEnv("S3_REGION", "auto"),
		S3Endpoint:       mustEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:    mustEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      mustEnv("S3_SECRET_ACCESS_KEY", ""),
		S3UsePathStyle:   mustEnvBool("S3_USE_PATH_STYLE", false),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "documents.analyzed"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		AuthJWTSecret: mustEnv("AUTH_JWT_SECRET", ""),
		AuthRequired:  mustEnvBool("AUTH_REQUIRED", false),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// ProviderConfigured reports whether the analysis provider can be called at all.
func (c Config) ProviderConfigured() bool {
	return c.AIProvider != "off" && strings.TrimSpace(c.OpenAIAPIKey) != ""
}

func (c Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func mustEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
