package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/readon/internal/config"
	"github.com/hitoshi/readon/internal/database"
	"github.com/hitoshi/readon/internal/metrics"
	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/newsapi"
	"github.com/hitoshi/readon/internal/repository"
	"github.com/hitoshi/readon/internal/security"
	"github.com/hitoshi/readon/internal/worker/refresh"
)

// newProvider は設定に応じた上流ニュースプロバイダを生成する。
// HTTPクライアントはSSRFガード付きで、上流呼び出しはmcに計測される。
func newProvider(cfg *config.Config, mc metrics.MetricsCollector, logger *slog.Logger) (newsapi.Provider, error) {
	guard := security.NewURLGuard()
	client := newsapi.NewClient(
		guard.NewUpstreamClient(cfg.FetchTimeout),
		newsapi.WithLogger(logger),
		newsapi.WithRateLimit(cfg.UpstreamRatePerMin),
		newsapi.WithMaxRetries(cfg.UpstreamMaxRetries),
		newsapi.WithMaxBodySize(cfg.FetchMaxSize),
		newsapi.WithRecorder(mc),
	)

	provider, err := newsapi.New(client, newsapi.NewNormalizer(nil), newsapi.Options{
		Name:     cfg.NewsProvider,
		APIKey:   cfg.NewsAPIKey,
		BaseURL:  cfg.NewsAPIBaseURL,
		RSSFeeds: cfg.RSSFeeds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create news provider: %w", err)
	}
	return provider, nil
}

// newRunLock はREDIS_URLが設定されていればRedisの分散ロックを、
// なければプロセス内で何もしないロックを返す。戻り値のcloseは必ず呼び出すこと。
func newRunLock(cfg *config.Config) (refresh.RunLock, func() error, error) {
	if cfg.RedisURL == "" {
		return refresh.NoopLock{}, func() error { return nil }, nil
	}

	lock, err := refresh.NewRedisLockFromURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create refresh lock: %w", err)
	}
	return lock, lock.Close, nil
}

// newRefreshJob はリフレッシュジョブとその依存を組み立てる。
func newRefreshJob(
	cfg *config.Config,
	db *sql.DB,
	provider newsapi.Provider,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) (*refresh.Job, func() error, error) {
	selector, err := refresh.NewSelector(
		cfg.RefreshStrategy,
		model.CategorySlugs(),
		cfg.RefreshBatchSize,
		repository.NewPostgresCronStateRepo(db),
	)
	if err != nil {
		return nil, nil, err
	}

	lock, closeLock, err := newRunLock(cfg)
	if err != nil {
		return nil, nil, err
	}

	job := refresh.NewJob(
		provider,
		repository.NewPostgresDocumentRepo(db),
		selector,
		lock,
		mc,
		logger,
		refresh.Options{
			Country:       cfg.NewsCountry,
			Language:      cfg.NewsLanguage,
			PageSize:      cfg.NewsPageSize,
			MaxPages:      cfg.RefreshMaxPages,
			MaxConcurrent: cfg.RefreshMaxConcurrent,
		},
	)
	return job, closeLock, nil
}

// openDatabase はPostgreSQLに接続し、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
