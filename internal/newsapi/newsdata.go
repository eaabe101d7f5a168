package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const defaultNewsdataEndpoint = "https://newsdata.io/api/1/news"

var newsdataFields = FieldMap{
	Title:       "title",
	URL:         "link",
	Description: "description",
	Content:     "content",
	ImageURL:    "image_url",
	PublishedAt: "pubDate",
	SourceName:  "source_id",
	SourceURL:   "source_url",
}

// Newsdata はNewsdata.ioのlatest newsエンドポイントのプロバイダ。
type Newsdata struct {
	client     *Client
	normalizer *Normalizer
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewNewsdata はNewsdataプロバイダを生成する。baseURLが空なら既定のエンドポイントを使う。
func NewNewsdata(client *Client, normalizer *Normalizer, apiKey, baseURL string) *Newsdata {
	endpoint := defaultNewsdataEndpoint
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/api/1/news"
	}
	return &Newsdata{client: client, normalizer: normalizer, apiKey: apiKey, endpoint: endpoint}
}

// Name はプロバイダ名を返す。
func (p *Newsdata) Name() string { return ProviderNewsdata }

type newsdataResponse struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"`
	Results      json.RawMessage `json:"results"`
	NextPage     *string         `json:"nextPage"`
}

// FetchPage は1ページ分の記事を取得する。
func (p *Newsdata) FetchPage(ctx context.Context, q Query) (*Page, error) {
	reqURL, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	params := reqURL.Query()
	params.Set("apikey", p.apiKey)
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if len(q.Categories) > 0 {
		params.Set("category", strings.Join(q.Categories, ","))
	}
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}
	if q.Query != "" {
		params.Set("q", q.Query)
	}
	if q.Page != "" {
		params.Set("page", q.Page)
	}
	reqURL.RawQuery = params.Encode()

	var resp newsdataResponse
	if err := p.client.GetJSON(ctx, p.Name(), reqURL.String(), &resp); err != nil {
		return nil, err
	}

	if resp.Status != "" && resp.Status != "success" {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(resp.Results, &payload)
		return nil, &permanentError{err: fmt.Errorf("newsdata returned status %q: %s", resp.Status, payload.Message)}
	}

	var records []map[string]any
	if len(resp.Results) > 0 && string(resp.Results) != "null" {
		if err := json.Unmarshal(resp.Results, &records); err != nil {
			return nil, &permanentError{err: fmt.Errorf("newsdata results is not an array: %w", err)}
		}
	}

	articles, rejected := p.normalizer.NormalizeAll(records, newsdataFields)

	page := &Page{Articles: articles, Rejected: rejected}
	if resp.NextPage != nil {
		page.NextPage = *resp.NextPage
	}
	return page, nil
}
