// Package refresh はリモートドキュメントストアのニュースを上流APIから更新するジョブを提供する。
// カテゴリ選択、並列取得、実行ロック、cronスケジューラを含む。
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/readon/internal/metrics"
	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/newsapi"
	"github.com/hitoshi/readon/internal/repository"
)

// Options はジョブの上流問い合わせ条件と並列度の設定。
type Options struct {
	Country       string
	Language      string
	PageSize      int
	MaxPages      int
	MaxConcurrent int
}

// RunResult はジョブ1回分の実行結果。
type RunResult struct {
	RunID      string
	BatchIndex int
	Categories []string
	Refreshed  []string // 書き込みを行ったカテゴリ
	Empty      []string // 有効な記事が0件で書き込みをスキップしたカテゴリ
	Failed     []string // 上流取得または書き込みに失敗したカテゴリ
	Duration   time.Duration
}

// Job はカテゴリのバッチを上流APIから取得し、カテゴリ単位のドキュメントを置き換える。
type Job struct {
	provider newsapi.Provider
	docs     repository.DocumentRepository
	selector Selector
	lock     RunLock
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
// lockがnilの場合はNoopLock、mcがnilの場合はmetrics.Noopを使用する。
func NewJob(
	provider newsapi.Provider,
	docs repository.DocumentRepository,
	selector Selector,
	lock RunLock,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Job {
	if lock == nil {
		lock = NoopLock{}
	}
	if mc == nil {
		mc = metrics.Noop{}
	}
	if opts.Country == "" {
		opts.Country = "us"
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Job{
		provider: provider,
		docs:     docs,
		selector: selector,
		lock:     lock,
		metrics:  mc,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Run はジョブを1回実行する。
// カテゴリ単位の失敗はログとメトリクスに記録して握りつぶし、ジョブ自体を実行できない場合のみエラーを返す。
// 別の実行がロックを保持している場合はErrRunInProgressを返す。
func (j *Job) Run(ctx context.Context) (*RunResult, error) {
	start := j.now()
	result := &RunResult{RunID: uuid.NewString()}
	logger := j.logger.With(slog.String("run_id", result.RunID))

	lease, err := j.lock.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			logger.Warn("リフレッシュジョブは既に実行中のためスキップします")
			return nil, err
		}
		j.metrics.RecordRefreshRun(metrics.OutcomeFailure, time.Since(start))
		return nil, err
	}
	defer func() {
		// 呼び出し元のキャンセル後も解放できるよう独立したコンテキストを使う
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Error("実行ロックの解放に失敗しました", slog.String("error", err.Error()))
		}
	}()

	batch, err := j.selector.Select(ctx, start)
	if err != nil {
		j.metrics.RecordRefreshRun(metrics.OutcomeFailure, time.Since(start))
		return nil, fmt.Errorf("select categories: %w", err)
	}
	result.BatchIndex = batch.Index
	result.Categories = batch.Categories

	logger.Info("リフレッシュジョブを開始します",
		slog.Int("batch_index", batch.Index),
		slog.Any("categories", batch.Categories),
		slog.String("provider", j.provider.Name()),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, j.opts.MaxConcurrent)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, category := range batch.Categories {
		wg.Add(1)
		sem <- struct{}{}

		go func(category string) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := j.refreshCategory(ctx, logger, category)
			j.metrics.RecordCategoryRefresh(category, outcome)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case metrics.OutcomeSuccess:
				result.Refreshed = append(result.Refreshed, category)
			case metrics.OutcomeEmpty:
				result.Empty = append(result.Empty, category)
			default:
				result.Failed = append(result.Failed, category)
			}
		}(category)
	}

	wg.Wait()

	sort.Strings(result.Refreshed)
	sort.Strings(result.Empty)
	sort.Strings(result.Failed)

	if err := j.selector.Commit(ctx, batch, start); err != nil {
		j.metrics.RecordRefreshRun(metrics.OutcomeFailure, time.Since(start))
		return result, err
	}

	result.Duration = j.now().Sub(start)
	j.metrics.RecordRefreshRun(metrics.OutcomeSuccess, result.Duration)

	logger.Info("リフレッシュジョブが完了しました",
		slog.Int("batch_index", batch.Index),
		slog.Int("refreshed", len(result.Refreshed)),
		slog.Int("empty", len(result.Empty)),
		slog.Int("failed", len(result.Failed)),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)

	return result, nil
}

// refreshCategory は1カテゴリ分の取得と書き込みを行い、結果ラベルを返す。
func (j *Job) refreshCategory(ctx context.Context, logger *slog.Logger, category string) string {
	articles, err := j.fetchCategory(ctx, logger, category)
	if err != nil {
		logger.Error("カテゴリのニュース取得に失敗しました",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return metrics.OutcomeFailure
	}

	if len(articles) == 0 {
		// 空の結果で既存のドキュメントを上書きしない
		logger.Warn("有効な記事がないため書き込みをスキップします",
			slog.String("category", category),
		)
		return metrics.OutcomeEmpty
	}

	doc := &model.RemoteCategoryDocument{
		Articles:  articles,
		FetchedAt: model.FormatTimestamp(j.now()),
	}
	if err := j.docs.PutCategoryDocument(ctx, category, doc); err != nil {
		logger.Error("カテゴリのドキュメント書き込みに失敗しました",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return metrics.OutcomeFailure
	}

	j.metrics.RecordArticlesStored(category, len(articles))
	logger.Info("カテゴリのドキュメントを更新しました",
		slog.String("category", category),
		slog.Int("article_count", len(articles)),
		slog.String("fetched_at", doc.FetchedAt),
	)
	return metrics.OutcomeSuccess
}

// fetchCategory は1ページ目と、継続トークンがあれば後続ページを取得し、URLで重複排除した記事を返す。
// 2ページ目以降の失敗は取得済みの記事を保持したまま打ち切る。
func (j *Job) fetchCategory(ctx context.Context, logger *slog.Logger, category string) ([]model.Article, error) {
	q := newsapi.Query{
		Categories: []string{category},
		Country:    j.opts.Country,
		Language:   j.opts.Language,
		Size:       j.opts.PageSize,
	}

	page, err := j.provider.FetchPage(ctx, q)
	if err != nil {
		return nil, err
	}
	j.recordRejected(page)
	articles := page.Articles

	for n := 2; n <= j.opts.MaxPages && page.NextPage != ""; n++ {
		q.Page = page.NextPage
		next, err := j.provider.FetchPage(ctx, q)
		if err != nil {
			logger.Warn("後続ページの取得に失敗したため取得済みの記事のみ使用します",
				slog.String("category", category),
				slog.Int("page", n),
				slog.String("error", err.Error()),
			)
			break
		}
		j.recordRejected(next)
		articles = append(articles, next.Articles...)
		page = next
	}

	return model.DedupeArticles(articles), nil
}

func (j *Job) recordRejected(page *newsapi.Page) {
	for reason, n := range page.Rejected {
		if n > 0 {
			j.metrics.RecordArticlesRejected(string(reason), n)
		}
	}
}
