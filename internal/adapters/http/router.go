package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dualsaude/docreader/internal/config"
	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/core/ports"
	"github.com/dualsaude/docreader/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg      config.Config
	analyzer ports.DocumentAnalyzer
	history  ports.AnalysisHistory
	metrics  *metrics.HTTPServerMetrics
	openAPI  []byte
}

// NewRouter wires the HTTP surface. history and httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	analyzer ports.DocumentAnalyzer,
	history ports.AnalysisHistory,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	doc, err := loadOpenAPIDocument(context.Background())
	if err != nil {
		slog.Error("openapi_document_invalid", "error", err)
		doc = []byte(`{}`)
	}
	return &Router{
		cfg:      cfg,
		analyzer: analyzer,
		history:  history,
		metrics:  httpMetrics,
		openAPI:  doc,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rt.health)
	mux.HandleFunc("GET /openapi.json", openAPIHandler(rt.openAPI))
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	analyze := rt.protected(backpressureMiddleware(
		http.HandlerFunc(rt.analyzeDocument),
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
	))
	mux.Handle("POST /api/pedidos-exame/ler", analyze)
	mux.Handle("POST /api/pedidos_exame/ler", analyze)
	if rt.history != nil {
		mux.Handle("GET /api/pedidos-exame/historico", rt.protected(http.HandlerFunc(rt.listAnalyses)))
	}

	var handler http.Handler = rateLimitMiddleware(mux, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) protected(next http.Handler) http.Handler {
	return jwtAuthMiddleware(next, rt.cfg.AuthJWTSecret, rt.cfg.AuthRequired)
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"provider_configured": rt.cfg.ProviderConfigured(),
	})
}

func (rt *Router) analyzeDocument(w http.ResponseWriter, r *http.Request) {
	req, err := readAnalysisRequest(w, r, rt.cfg.MaxUploadBytes())
	if err != nil {
		writeError(w, r, err)
		return
	}

	envelope, err := rt.analyzer.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (rt *Router) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse limit",
				domain.NewUserError(domain.ErrInvalidInput, "limit deve ser um inteiro positivo.")))
			return
		}
		limit = n
	}

	records, err := rt.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(records),
		"items": records,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
