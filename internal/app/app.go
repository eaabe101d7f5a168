package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/readon/internal/config"
	"github.com/hitoshi/readon/internal/database"
	"github.com/hitoshi/readon/internal/handler"
	"github.com/hitoshi/readon/internal/logger"
	"github.com/hitoshi/readon/internal/metrics"
	"github.com/hitoshi/readon/internal/middleware"
	"github.com/hitoshi/readon/internal/news"
	"github.com/hitoshi/readon/internal/repository"
	"github.com/hitoshi/readon/internal/worker/refresh"
)

// output はread/bookmarksコマンドの表示先。
var output io.Writer = os.Stdout

// Init はサーバー・ワーカー用の初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// InitClient はクライアント側コマンド用の初期化を行う。
func InitClient(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)
	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	if cmd.isClientCommand() {
		cfg, err := InitClient(w)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		switch cmd {
		case CommandRead:
			return runRead(ctx, cfg, rest)
		case CommandBookmark:
			return runBookmark(ctx, cfg, rest)
		default:
			return runBookmarks(ctx, cfg)
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("provider", cfg.NewsProvider),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandRefresh:
		return runRefresh(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newRegistry はGo/プロセスメトリクスを含むPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. 上流プロバイダとサービスの初期化
	provider, err := newProvider(cfg, collector, slog.Default())
	if err != nil {
		return err
	}

	newsService := news.NewService(
		repository.NewPostgresDocumentRepo(db),
		provider,
		slog.Default(),
		news.Options{
			LiveFallback: cfg.LiveFallback,
			WriteThrough: cfg.RemoteWriteThrough,
			Country:      cfg.NewsCountry,
			Language:     cfg.NewsLanguage,
			PageSize:     cfg.NewsPageSize,
		},
	)

	// 4. cronエンドポイント用のリフレッシュジョブ
	job, closeLock, err := newRefreshJob(cfg, db, provider, collector, slog.Default())
	if err != nil {
		return err
	}
	defer closeLock()

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CronSecret:        cfg.CronSecret,
		Logger:            slog.Default(),
		NewsService:       newsService,
		Refresher:         job,
		MetricsHandler:    metrics.Handler(reg),
	})

	// 6. HTTPサーバーの起動
	// cronエンドポイントはジョブ完了まで同期で応答するため、WriteTimeoutを長めに取る
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.CronSecret == "" {
		slog.Warn("CRON_SECRET is not set; /api/cron/fetch-news is unauthenticated")
	}

	return serveUntilSignal(server)
}

// serveUntilSignal はHTTPサーバーを起動し、SIGINT/SIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}

	slog.Info("shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// REFRESH_SCHEDULEのcron式に従ってリフレッシュジョブを実行し、
// 別ポートで/metricsを公開する。SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	provider, err := newProvider(cfg, collector, slog.Default())
	if err != nil {
		return err
	}

	job, closeLock, err := newRefreshJob(cfg, db, provider, collector, slog.Default())
	if err != nil {
		return err
	}
	defer closeLock()

	scheduler, err := refresh.NewScheduler(job, slog.Default(), cfg.RefreshSchedule)
	if err != nil {
		return err
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// メトリクスサーバー
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.String("schedule", cfg.RefreshSchedule),
		slog.String("strategy", cfg.RefreshStrategy),
		slog.Int("max_concurrent", cfg.RefreshMaxConcurrent),
		slog.Time("next_run", scheduler.Next(time.Now())),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, true)

	slog.Info("worker stopped gracefully")
	return nil
}

// runRefresh はリフレッシュジョブを1回だけ実行する。
// 外部のcronやCIから起動する用途を想定する。
func runRefresh(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := newProvider(cfg, metrics.Noop{}, slog.Default())
	if err != nil {
		return err
	}

	job, closeLock, err := newRefreshJob(cfg, db, provider, metrics.Noop{}, slog.Default())
	if err != nil {
		return err
	}
	defer closeLock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	slog.Info("refresh completed",
		slog.String("run_id", result.RunID),
		slog.Int("batch_index", result.BatchIndex),
		slog.Any("refreshed", result.Refreshed),
		slog.Any("empty", result.Empty),
		slog.Any("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	res, err := database.Migrate(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from", uint64(res.Before)),
		slog.Uint64("version", uint64(res.Version)),
		slog.Uint64("latest", uint64(res.Latest)),
		slog.Bool("applied", res.Applied()),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
