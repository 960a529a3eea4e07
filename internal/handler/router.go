package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"xdp-service/internal/middleware"
	"xdp-service/internal/protocol"
	"xdp-service/pkg/httputil"
)

// HealthChecker は依存先の疎通を確認する。
type HealthChecker func(ctx context.Context) error

// RouterConfig はルーターの設定。
type RouterConfig struct {
	Tokens    middleware.TokenParser
	RateLimit float64
	RateBurst int
	Health    HealthChecker
}

// NewRouter はルーターを生成する。
func NewRouter(h *MessageHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", health(cfg.Health))
	r.Handle("/metrics", promhttp.Handler())

	// ルート定義
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Logger)
		r.Use(middleware.Authenticate(cfg.Tokens))
		r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
		r.Post(protocol.MessagePath, h.HandleMessage)
	})

	return otelhttp.NewHandler(r, "xdp-domain-service")
}

func health(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				httputil.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
