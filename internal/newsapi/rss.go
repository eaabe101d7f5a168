package newsapi

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

var rssFields = FieldMap{
	Title:       "title",
	URL:         "link",
	Description: "description",
	Content:     "content",
	ImageURL:    "image",
	PublishedAt: "published",
	SourceName:  "source_name",
	SourceURL:   "source_url",
}

const feedAccept = "application/rss+xml, application/atom+xml, application/xml, text/xml, */*"

// RSS はカテゴリごとのRSS/Atomフィードを上流ソースとするプロバイダ。
// APIキー不要で、継続トークンは返さない。
// 設定されたURLがHTMLページの場合は、headのフィードリンクを自動検出して以後はそちらを取得する。
type RSS struct {
	client     *Client
	normalizer *Normalizer
	feeds      map[string]string

	mu       sync.Mutex
	resolved map[string]string // カテゴリ → 検出済みフィードURL
}

// NewRSS はRSSプロバイダを生成する。feedsはカテゴリスラッグからフィード（またはサイト）URLへの対応。
func NewRSS(client *Client, normalizer *Normalizer, feeds map[string]string) *RSS {
	return &RSS{
		client:     client,
		normalizer: normalizer,
		feeds:      feeds,
		resolved:   make(map[string]string),
	}
}

// Name はプロバイダ名を返す。
func (p *RSS) Name() string { return ProviderRSS }

// FetchPage はカテゴリのフィードを取得し、Query.Queryが指定されていれば
// タイトル・説明文に含むものだけに絞り込む。
func (p *RSS) FetchPage(ctx context.Context, q Query) (*Page, error) {
	category := q.Category()
	body, err := p.fetchFeed(ctx, category)
	if err != nil {
		return nil, err
	}

	// gofeed.Parserは呼び出しごとに生成する
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &permanentError{err: err}
	}

	keyword := strings.ToLower(strings.TrimSpace(q.Query))
	records := make([]map[string]any, 0, len(feed.Items))
	for _, item := range feed.Items {
		if keyword != "" &&
			!strings.Contains(strings.ToLower(item.Title), keyword) &&
			!strings.Contains(strings.ToLower(item.Description), keyword) {
			continue
		}
		records = append(records, itemRecord(feed, item))
		if q.Size > 0 && len(records) >= q.Size {
			break
		}
	}

	articles, rejected := p.normalizer.NormalizeAll(records, rssFields)
	return &Page{Articles: articles, Rejected: rejected}, nil
}

// fetchFeed はカテゴリのフィード本文を取得する。
func (p *RSS) fetchFeed(ctx context.Context, category string) ([]byte, error) {
	p.mu.Lock()
	feedURL, ok := p.resolved[category]
	p.mu.Unlock()
	if ok {
		return p.client.Get(ctx, p.Name(), feedURL, feedAccept)
	}

	pageURL, ok := p.feeds[category]
	if !ok {
		return nil, fmt.Errorf("no RSS feed configured for category %q", category)
	}

	body, err := p.client.Get(ctx, p.Name(), pageURL, feedAccept)
	if err != nil || !looksLikeHTML(body) {
		return body, err
	}

	feedURL, ok = pickFeedLink(discoverFeedLinks(body, pageURL), pageURL)
	if !ok {
		return nil, &permanentError{err: fmt.Errorf("no feed link found at %s", pageURL)}
	}

	body, err = p.client.Get(ctx, p.Name(), feedURL, feedAccept)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.resolved[category] = feedURL
	p.mu.Unlock()
	return body, nil
}

// itemRecord はフィード項目を正規化用のレコードに変換する。
func itemRecord(feed *gofeed.Feed, item *gofeed.Item) map[string]any {
	rec := map[string]any{
		"title":       item.Title,
		"link":        item.Link,
		"description": item.Description,
		"content":     item.Content,
		"published":   item.Published,
		"source_name": feed.Title,
		"source_url":  feed.Link,
	}
	if item.PublishedParsed != nil {
		rec["published"] = item.PublishedParsed.UTC().Format(time.RFC3339)
	}
	if item.Image != nil && item.Image.URL != "" {
		rec["image"] = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				rec["image"] = enc.URL
				break
			}
		}
	}
	return rec
}
