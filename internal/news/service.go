// Package news はサーバー側のニュース読み取り機能を提供する。
// カテゴリ単位のドキュメント取得、URLによる記事検索、上流APIへのライブ検索を含む。
package news

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/newsapi"
	"github.com/hitoshi/readon/internal/repository"
	"github.com/hitoshi/readon/internal/security"
)

// Options は読み取りパスの動作設定。
type Options struct {
	// LiveFallback はドキュメント未作成のカテゴリを上流APIから直接取得するかどうか。
	LiveFallback bool
	// WriteThrough はライブ取得した結果をドキュメントストアに書き込むかどうか。
	// falseの場合、ドキュメントを書き込むのはリフレッシュジョブのみ。
	WriteThrough bool
	Country      string
	Language     string
	PageSize     int
}

// Service はニュースの読み取りサービス。
type Service struct {
	docs     repository.DocumentRepository
	provider newsapi.Provider
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// providerがnilの場合、ライブ取得と検索は利用できない。
func NewService(
	docs repository.DocumentRepository,
	provider newsapi.Provider,
	logger *slog.Logger,
	opts Options,
) *Service {
	return &Service{
		docs:     docs,
		provider: provider,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// CategoryResult はGetCategoryの戻り値。
type CategoryResult struct {
	Articles  []model.Article
	FetchedAt string
	// Live は上流APIから直接取得した結果かどうか。
	Live bool
}

// CategoryInfo はカテゴリ一覧の要素。
type CategoryInfo struct {
	Name      string
	Slug      string
	FetchedAt string // ドキュメント未作成の場合は空
}

// SearchQuery はSearchの検索条件。
type SearchQuery struct {
	Query      string
	Categories []string
	Country    string
	Language   string
	Page       string
}

// SearchResult はSearchの戻り値。
type SearchResult struct {
	Results  []model.Article
	NextPage string
}

// GetCategory はカテゴリのドキュメントを公開日時の降順で返す。
// ドキュメントが未作成の場合、LiveFallbackが有効なら上流APIから取得しfetchedAtを現在時刻とする。
func (s *Service) GetCategory(ctx context.Context, slug string) (*CategoryResult, error) {
	if !model.IsValidCategory(slug) {
		return nil, model.NewInvalidCategoryError(slug)
	}

	doc, err := s.docs.GetCategoryDocument(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("get category document: %w", err)
	}

	if doc != nil && len(doc.Articles) > 0 {
		articles := append([]model.Article(nil), doc.Articles...)
		model.SortByPublishedDesc(articles)
		return &CategoryResult{Articles: articles, FetchedAt: doc.FetchedAt}, nil
	}

	if !s.opts.LiveFallback || s.provider == nil {
		return nil, model.NewCategoryNotCachedError(slug)
	}

	return s.fetchLive(ctx, slug)
}

// fetchLive は上流APIから1ページ分を取得する。
func (s *Service) fetchLive(ctx context.Context, slug string) (*CategoryResult, error) {
	page, err := s.provider.FetchPage(ctx, newsapi.Query{
		Categories: []string{slug},
		Country:    s.opts.Country,
		Language:   s.opts.Language,
		Size:       s.opts.PageSize,
	})
	if err != nil {
		s.logger.Error("ライブ取得に失敗しました",
			slog.String("category", slug),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(slug)
	}

	articles := model.DedupeArticles(page.Articles)
	if len(articles) == 0 {
		return nil, model.NewCategoryNotCachedError(slug)
	}
	model.SortByPublishedDesc(articles)

	result := &CategoryResult{
		Articles:  articles,
		FetchedAt: model.FormatTimestamp(s.now()),
		Live:      true,
	}

	if s.opts.WriteThrough {
		doc := &model.RemoteCategoryDocument{Articles: articles, FetchedAt: result.FetchedAt}
		if err := s.docs.PutCategoryDocument(ctx, slug, doc); err != nil {
			// 書き込み失敗は読み取り結果に影響させない
			s.logger.Warn("ライブ取得結果の書き込みに失敗しました",
				slog.String("category", slug),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("ドキュメント未作成のカテゴリをライブ取得しました",
		slog.String("category", slug),
		slog.Int("article_count", len(articles)),
		slog.Bool("write_through", s.opts.WriteThrough),
	)

	return result, nil
}

// FetchCategory はカテゴリのドキュメントを返す。オフラインリーダーのリモートソースとして使用する。
func (s *Service) FetchCategory(ctx context.Context, slug string) (*model.RemoteCategoryDocument, error) {
	res, err := s.GetCategory(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &model.RemoteCategoryDocument{Articles: res.Articles, FetchedAt: res.FetchedAt}, nil
}

// FindArticleByURL は全カテゴリのドキュメントからURLが一致する記事を返す。
func (s *Service) FindArticleByURL(ctx context.Context, rawURL string) (*model.Article, error) {
	if err := security.ValidateArticleURL(rawURL); err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	article, err := s.docs.FindArticleByURL(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("find article by url: %w", err)
	}
	if article == nil {
		return nil, model.NewArticleNotFoundError(rawURL)
	}
	return article, nil
}

// Search は上流APIにキーワード・カテゴリで問い合わせる。
func (s *Service) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if q.Query == "" && len(q.Categories) == 0 {
		return nil, model.NewInvalidSearchError("q と categories がどちらも指定されていません")
	}
	for _, c := range q.Categories {
		if !model.IsValidCategory(c) {
			return nil, model.NewInvalidCategoryError(c)
		}
	}
	if s.provider == nil {
		return nil, model.NewFetchFailedError("上流APIが設定されていません")
	}

	query := newsapi.Query{
		Query:      q.Query,
		Categories: q.Categories,
		Country:    orDefault(q.Country, s.opts.Country),
		Language:   orDefault(q.Language, s.opts.Language),
		Page:       q.Page,
		Size:       s.opts.PageSize,
	}

	page, err := s.provider.FetchPage(ctx, query)
	if err != nil {
		s.logger.Error("検索に失敗しました",
			slog.String("query", q.Query),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError("検索")
	}

	return &SearchResult{
		Results:  model.DedupeArticles(page.Articles),
		NextPage: page.NextPage,
	}, nil
}

// ListCategories はカテゴリ一覧をドキュメントのfetchedAt付きで返す。
func (s *Service) ListCategories(ctx context.Context) ([]CategoryInfo, error) {
	fetched, err := s.docs.ListFetchedAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fetched at: %w", err)
	}

	result := make([]CategoryInfo, 0, len(model.Categories))
	for _, c := range model.Categories {
		result = append(result, CategoryInfo{
			Name:      c.Name,
			Slug:      c.Slug,
			FetchedAt: fetched[c.Slug],
		})
	}
	return result, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
