package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/readon/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CronSecret        string
	Logger            *slog.Logger

	// ヘルスチェック
	HealthChecker HealthChecker

	// ニュース
	NewsService NewsServiceInterface

	// cron（nilの場合はエンドポイントを登録しない）
	Refresher RefreshRunner

	// /metrics（nilの場合は登録しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → Logging → SecurityHeaders → CORS → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- レート制限外のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	newsHandler := NewNewsHandler(deps.NewsService)

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/api/categories", newsHandler.ListCategories)
		r.Get("/api/news/{category}", newsHandler.GetCategory)
		r.Get("/api/articles", newsHandler.GetArticle)
		r.Get("/api/search", newsHandler.Search)

		if deps.Refresher != nil {
			cronHandler := NewCronHandler(deps.Refresher, logger)
			r.Route("/api/cron", func(r chi.Router) {
				r.Use(middleware.NewCronAuthMiddleware(deps.CronSecret))
				r.Get("/fetch-news", cronHandler.FetchNews)
				r.Post("/fetch-news", cronHandler.FetchNews)
			})
		}
	})

	return r
}
