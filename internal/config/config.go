package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Upstream news provider
	NewsProvider       string
	NewsAPIKey         string
	NewsAPIBaseURL     string
	NewsCountry        string
	NewsLanguage       string
	NewsPageSize       int
	RSSFeeds           map[string]string
	UpstreamRatePerMin int
	UpstreamMaxRetries int

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Refresh job
	RefreshStrategy      string
	RefreshBatchSize     int
	RefreshMaxPages      int
	RefreshMaxConcurrent int
	RefreshSchedule      string
	RedisURL             string
	CronSecret           string

	// Read path
	LiveFallback       bool
	RemoteWriteThrough bool

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort        string
	MetricsPort       string
	CORSAllowedOrigin string

	// Client
	LocalStorePath string
	APIBaseURL     string

	// Logging
	LogLevel string
}

// Load はサーバー・ワーカー用のConfigを環境変数から読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := load()

	// Required fields
	var missing []string

	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.NewsAPIKey == "" && cfg.NewsProvider != "rss" {
		missing = append(missing, "NEWS_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validateSchedule(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient はオフラインリーダー（read/bookmarkコマンド）用のConfigを読み込む。
// 必須環境変数はない。
func LoadClient() (*Config, error) {
	cfg := load()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() *Config {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NewsAPIKey = os.Getenv("NEWS_API_KEY")

	// Optional fields with defaults
	cfg.NewsProvider = getEnvString("NEWS_PROVIDER", "newsdata")
	cfg.NewsAPIBaseURL = getEnvString("NEWS_API_BASE_URL", "")
	cfg.NewsCountry = getEnvString("NEWS_COUNTRY", "us")
	cfg.NewsLanguage = getEnvString("NEWS_LANGUAGE", "en")
	cfg.NewsPageSize = getEnvInt("NEWS_PAGE_SIZE", 10)
	cfg.RSSFeeds = getEnvMap("RSS_FEEDS")
	cfg.UpstreamRatePerMin = getEnvInt("UPSTREAM_RATE_PER_MINUTE", 30)
	cfg.UpstreamMaxRetries = getEnvInt("UPSTREAM_MAX_RETRIES", 1)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.RefreshStrategy = getEnvString("REFRESH_STRATEGY", "rotation")
	cfg.RefreshBatchSize = getEnvInt("REFRESH_BATCH_SIZE", 3)
	cfg.RefreshMaxPages = getEnvInt("REFRESH_MAX_PAGES", 2)
	cfg.RefreshMaxConcurrent = getEnvInt("REFRESH_MAX_CONCURRENT", 4)
	cfg.RefreshSchedule = getEnvString("REFRESH_SCHEDULE", "0 */2 * * *")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.CronSecret = getEnvString("CRON_SECRET", "")
	cfg.LiveFallback = getEnvBool("LIVE_FALLBACK", true)
	cfg.RemoteWriteThrough = getEnvBool("REMOTE_WRITE_THROUGH", false)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LocalStorePath = getEnvString("LOCAL_STORE_PATH", "readon.db")
	cfg.APIBaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "http://localhost:8080"), "/")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg
}

// validate は列挙値の設定を検証する。
func (c *Config) validate() error {
	switch c.NewsProvider {
	case "newsdata", "gnews", "rss":
	default:
		return fmt.Errorf("unsupported NEWS_PROVIDER: %q", c.NewsProvider)
	}

	switch c.RefreshStrategy {
	case "rotation", "parity", "all":
	default:
		return fmt.Errorf("unsupported REFRESH_STRATEGY: %q", c.RefreshStrategy)
	}

	return nil
}

// ScheduleParser はREFRESH_SCHEDULEの解釈に使うcronパーサー（標準の5フィールド形式）。
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// validateSchedule はREFRESH_SCHEDULEを検証する。
// parityはUTCの時の偶奇でカテゴリの半分を選ぶため、偶数時と奇数時の両方で
// 実行されないスケジュールでは片方の半分が一度も更新されない。
func (c *Config) validateSchedule() error {
	schedule, err := ScheduleParser.Parse(c.RefreshSchedule)
	if err != nil {
		return fmt.Errorf("invalid REFRESH_SCHEDULE %q: %w", c.RefreshSchedule, err)
	}
	if c.RefreshStrategy == "parity" && !firesInBothHourParities(schedule) {
		return fmt.Errorf("REFRESH_STRATEGY=parity requires a REFRESH_SCHEDULE that runs in both even and odd UTC hours, got %q", c.RefreshSchedule)
	}
	return nil
}

// firesInBothHourParities はスケジュールが1週間のうちに偶数時と奇数時の両方で実行されるかを返す。
func firesInBothHourParities(schedule cron.Schedule) bool {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := t.AddDate(0, 0, 7)

	var seen [2]bool
	for {
		t = schedule.Next(t)
		if t.IsZero() || t.After(end) {
			return false
		}
		seen[t.Hour()%2] = true
		if seen[0] && seen[1] {
			return true
		}
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvMap は "slug=url,slug=url" 形式の環境変数をマップとして読み込む。
// 形式が不正な要素は無視する。
func getEnvMap(key string) map[string]string {
	result := make(map[string]string)
	v := os.Getenv(key)
	if v == "" {
		return result
	}
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || val == "" {
			continue
		}
		result[k] = val
	}
	return result
}
