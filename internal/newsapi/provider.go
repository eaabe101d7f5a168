// Package newsapi は上流ニュースAPI（Newsdata.io、GNews）とRSSフィードから
// 記事を取得し、正規化済みのmodel.Articleに変換するプロバイダを提供する。
package newsapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/readon/internal/model"
)

// プロバイダ名
const (
	ProviderNewsdata = "newsdata"
	ProviderGNews    = "gnews"
	ProviderRSS      = "rss"
)

// Query は上流APIへの問い合わせ条件。
type Query struct {
	Query      string   // キーワード（空ならカテゴリのトップニュース）
	Categories []string // カテゴリスラッグ
	Country    string
	Language   string
	Page       string // 前回のPage.NextPage。空なら1ページ目
	Size       int
}

// Category は問い合わせ対象の先頭カテゴリを返す。未指定ならDefaultCategory。
func (q Query) Category() string {
	for _, c := range q.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return model.DefaultCategory
}

// Page は上流APIの1ページ分の取得結果。
type Page struct {
	Articles []model.Article
	// NextPage は次ページの継続トークン。次ページがない場合は空。
	NextPage string
	// Rejected は正規化で除外した記事数を理由別に保持する。
	Rejected map[RejectReason]int
}

// Provider は上流ニュースソースを表す。
type Provider interface {
	// Name はメトリクス・ログ用のプロバイダ名を返す。
	Name() string
	// FetchPage は1ページ分の記事を取得し正規化する。
	FetchPage(ctx context.Context, q Query) (*Page, error)
}

// Options はプロバイダ生成時の設定。
type Options struct {
	Name     string
	APIKey   string
	BaseURL  string            // 空ならプロバイダ既定のエンドポイント
	RSSFeeds map[string]string // rssのみ: カテゴリ → フィードURL
}

// New は設定に応じたProviderを生成する。
func New(client *Client, normalizer *Normalizer, opts Options) (Provider, error) {
	switch opts.Name {
	case ProviderNewsdata:
		return NewNewsdata(client, normalizer, opts.APIKey, opts.BaseURL), nil
	case ProviderGNews:
		return NewGNews(client, normalizer, opts.APIKey, opts.BaseURL), nil
	case ProviderRSS:
		if len(opts.RSSFeeds) == 0 {
			return nil, fmt.Errorf("rss provider requires RSS_FEEDS")
		}
		return NewRSS(client, normalizer, opts.RSSFeeds), nil
	default:
		return nil, fmt.Errorf("unsupported news provider: %q", opts.Name)
	}
}
