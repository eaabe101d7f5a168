package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/news"
)

// NewsServiceInterface はニュースハンドラーが必要とするサービスインターフェース。
type NewsServiceInterface interface {
	GetCategory(ctx context.Context, slug string) (*news.CategoryResult, error)
	FindArticleByURL(ctx context.Context, url string) (*model.Article, error)
	Search(ctx context.Context, q news.SearchQuery) (*news.SearchResult, error)
	ListCategories(ctx context.Context) ([]news.CategoryInfo, error)
}

// NewsHandler はニュース読み取りAPIのHTTPハンドラー。
type NewsHandler struct {
	service NewsServiceInterface
}

// NewNewsHandler はNewsHandlerを生成する。
func NewNewsHandler(service NewsServiceInterface) *NewsHandler {
	return &NewsHandler{service: service}
}

// --- レスポンス型 ---

type categoryResponse struct {
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	FetchedAt *string `json:"fetchedAt"`
}

type categoriesResponse struct {
	Categories []categoryResponse `json:"categories"`
}

// newsResponse はカテゴリのニュース一覧のレスポンス。
// nextPageはドキュメント単位の配信のため常にnull。
type newsResponse struct {
	Articles  []model.Article `json:"articles"`
	FetchedAt string          `json:"fetchedAt"`
	NextPage  *string         `json:"nextPage"`
}

type searchResponse struct {
	Results  []model.Article `json:"results"`
	NextPage *string         `json:"nextPage"`
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/categories
func (h *NewsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	infos, err := h.service.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := categoriesResponse{Categories: make([]categoryResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Categories = append(resp.Categories, categoryResponse{
			Name:      info.Name,
			Slug:      info.Slug,
			FetchedAt: nullableString(info.FetchedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCategory はカテゴリのニュース一覧を返す。
// GET /api/news/{category}
func (h *NewsHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "category")

	result, err := h.service.GetCategory(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newsResponse{
		Articles:  result.Articles,
		FetchedAt: result.FetchedAt,
	})
}

// GetArticle はURLが一致する記事を返す。
// GET /api/articles?url=...
func (h *NewsHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.service.FindArticleByURL(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// Search は上流APIでニュースを検索する。
// GET /api/search?q=&categories=&country=&language=&page=
func (h *NewsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	result, err := h.service.Search(r.Context(), news.SearchQuery{
		Query:      strings.TrimSpace(query.Get("q")),
		Categories: splitList(query.Get("categories")),
		Country:    query.Get("country"),
		Language:   query.Get("language"),
		Page:       query.Get("page"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := result.Results
	if results == nil {
		results = []model.Article{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:  results,
		NextPage: nullableString(result.NextPage),
	})
}

// splitList はカンマ区切りの値を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
