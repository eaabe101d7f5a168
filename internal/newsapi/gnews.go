package newsapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const defaultGNewsBaseURL = "https://gnews.io/api/v4"

var gnewsFields = FieldMap{
	Title:       "title",
	URL:         "url",
	Description: "description",
	Content:     "content",
	ImageURL:    "image",
	PublishedAt: "publishedAt",
	SourceName:  "source.name",
	SourceURL:   "source.url",
}

// gnewsCategories はカテゴリスラッグとGNewsのトピック名の対応。
// 記載のないスラッグはそのまま渡す。
var gnewsCategories = map[string]string{
	"top":      "general",
	"politics": "nation",
}

// GNews はGNewsのtop-headlines/searchエンドポイントのプロバイダ。
type GNews struct {
	client     *Client
	normalizer *Normalizer
	apiKey     string
	baseURL    string
}

// NewGNews はGNewsプロバイダを生成する。baseURLが空なら既定のエンドポイントを使う。
func NewGNews(client *Client, normalizer *Normalizer, apiKey, baseURL string) *GNews {
	if baseURL == "" {
		baseURL = defaultGNewsBaseURL
	}
	return &GNews{
		client:     client,
		normalizer: normalizer,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name はプロバイダ名を返す。
func (p *GNews) Name() string { return ProviderGNews }

type gnewsResponse struct {
	TotalArticles int              `json:"totalArticles"`
	Articles      []map[string]any `json:"articles"`
}

// FetchPage は1ページ分の記事を取得する。
// GNewsは継続トークンを返さないため、totalArticlesから次のページ番号を算出する。
func (p *GNews) FetchPage(ctx context.Context, q Query) (*Page, error) {
	page := 1
	if q.Page != "" {
		n, err := strconv.Atoi(q.Page)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid gnews page token: %q", q.Page)
		}
		page = n
	}
	size := q.Size
	if size <= 0 {
		size = 10
	}

	path := "/top-headlines"
	if q.Query != "" {
		path = "/search"
	}
	reqURL, err := url.Parse(p.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	params := reqURL.Query()
	params.Set("apikey", p.apiKey)
	params.Set("max", strconv.Itoa(size))
	if q.Language != "" {
		params.Set("lang", q.Language)
	}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.Query != "" {
		params.Set("q", q.Query)
	} else {
		params.Set("category", gnewsCategory(q.Category()))
	}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	reqURL.RawQuery = params.Encode()

	var resp gnewsResponse
	if err := p.client.GetJSON(ctx, p.Name(), reqURL.String(), &resp); err != nil {
		return nil, err
	}

	articles, rejected := p.normalizer.NormalizeAll(resp.Articles, gnewsFields)

	result := &Page{Articles: articles, Rejected: rejected}
	if len(resp.Articles) > 0 && page*size < resp.TotalArticles {
		result.NextPage = strconv.Itoa(page + 1)
	}
	return result, nil
}

func gnewsCategory(slug string) string {
	if c, ok := gnewsCategories[slug]; ok {
		return c
	}
	return slug
}
