// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// カテゴリ更新の結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 上流クライアントやリフレッシュジョブから利用する。
type MetricsCollector interface {
	RecordCategoryRefresh(category, outcome string)
	RecordRefreshRun(outcome string, duration time.Duration)
	RecordUpstreamStatus(provider string, statusCode int)
	RecordUpstreamLatency(provider string, duration time.Duration)
	RecordArticlesStored(category string, count int)
	RecordArticlesRejected(reason string, count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	categoryRefresh  *prometheus.CounterVec
	refreshRuns      *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
	lastRunSuccess   prometheus.Gauge
	upstreamStatus   *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	articlesStored   *prometheus.CounterVec
	articlesRejected *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		categoryRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readon_category_refresh_total",
			Help: "カテゴリ別・結果別のニュース更新数",
		}, []string{"category", "outcome"}),
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readon_refresh_runs_total",
			Help: "リフレッシュジョブの実行回数",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readon_refresh_duration_seconds",
			Help:    "リフレッシュジョブ1回の所要時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "readon_refresh_last_success_timestamp_seconds",
			Help: "最後に成功したリフレッシュジョブの完了時刻（UNIX秒）",
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readon_upstream_http_status_total",
			Help: "上流APIのHTTPステータスコード別レスポンス数",
		}, []string{"provider", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readon_upstream_latency_seconds",
			Help:    "上流API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		articlesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readon_articles_stored_total",
			Help: "ドキュメントストアに書き込んだ記事の合計数",
		}, []string{"category"}),
		articlesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readon_articles_rejected_total",
			Help: "正規化で除外した記事の理由別合計数",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.categoryRefresh,
		c.refreshRuns,
		c.refreshDuration,
		c.lastRunSuccess,
		c.upstreamStatus,
		c.upstreamLatency,
		c.articlesStored,
		c.articlesRejected,
	)

	return c
}

// RecordCategoryRefresh はカテゴリ単位の更新結果を記録する。
func (c *Collector) RecordCategoryRefresh(category, outcome string) {
	c.categoryRefresh.WithLabelValues(category, outcome).Inc()
}

// RecordRefreshRun はジョブ1回分の結果と所要時間を記録する。
func (c *Collector) RecordRefreshRun(outcome string, duration time.Duration) {
	c.refreshRuns.WithLabelValues(outcome).Inc()
	c.refreshDuration.Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		c.lastRunSuccess.SetToCurrentTime()
	}
}

// RecordUpstreamStatus は上流APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(provider string, statusCode int) {
	c.upstreamStatus.WithLabelValues(provider, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は上流API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(provider string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordArticlesStored は書き込んだ記事数を記録する。
func (c *Collector) RecordArticlesStored(category string, count int) {
	c.articlesStored.WithLabelValues(category).Add(float64(count))
}

// RecordArticlesRejected は除外した記事数を記録する。
func (c *Collector) RecordArticlesRejected(reason string, count int) {
	c.articlesRejected.WithLabelValues(reason).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカーモードで単独のメトリクスサーバーとして使用する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Noop は何も記録しないMetricsCollector。
type Noop struct{}

func (Noop) RecordCategoryRefresh(string, string) {}
func (Noop) RecordRefreshRun(string, time.Duration) {}
func (Noop) RecordUpstreamStatus(string, int) {}
func (Noop) RecordUpstreamLatency(string, time.Duration) {}
func (Noop) RecordArticlesStored(string, int) {}
func (Noop) RecordArticlesRejected(string, int) {}
