// Package model はドメインモデルを定義する。
package model

import (
	"time"
)

// 上流APIが値を返さなかった場合に補完するデフォルト値。
const (
	DefaultDescription = "No description available."
	DefaultImageURL    = "https://placehold.co/600x400.png"
	DefaultSourceName  = "Unknown Source"
	DefaultSourceURL   = "#"

	// RemovedTitle は上流APIが削除済み記事に設定するタイトル。
	RemovedTitle = "[Removed]"
)

// timestampLayout はfetchedAt/updatedAtで使用するISO-8601形式（ミリ秒、UTC）。
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Source は記事の配信元を表す。
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Article は正規化済みのニュース記事を表す。
// URLが自然キーであり、同一URLの記事は同一エンティティとして扱う。
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	ImageURL    string `json:"imageUrl"`
	PublishedAt string `json:"publishedAt"` // ISO-8601
	Source      Source `json:"source"`
}

// CategoryCacheEntry はローカルストアの記事行を表す。
// 主キーはURLのため、1記事は最後に保存されたカテゴリにのみ紐付く。
type CategoryCacheEntry struct {
	URL       string  `json:"url"`
	Article   Article `json:"article"`
	Category  string  `json:"category"`
	Timestamp int64   `json:"timestamp"` // 書き込み時刻（epoch ms）
}

// CacheMetadata はローカルストアのカテゴリ単位メタデータを表す。
// FetchedAtはリモートストアが報告したバッチ取得時刻であり、鮮度判定の基準となる。
type CacheMetadata struct {
	Category  string `json:"category"`
	FetchedAt string `json:"fetchedAt"`
}

// RemoteCategoryDocument はリモートドキュメントストアのカテゴリ単位ドキュメント。
// Articlesは重複URLを含まない。
type RemoteCategoryDocument struct {
	Articles  []Article `json:"articles"`
	FetchedAt string    `json:"fetchedAt"`
}

// CronState はバッチローテーションのカーソルを表す。
type CronState struct {
	Index     int    `json:"index"`
	UpdatedAt string `json:"updatedAt"`
}

// Bookmark はユーザーが保存した記事とメモ・タグを表す。
type Bookmark struct {
	Article Article  `json:"article"`
	Notes   string   `json:"notes"`
	Tags    []string `json:"tags"`
	AddedAt int64    `json:"addedAt"` // epoch ms
}

// FormatTimestamp は時刻をfetchedAt形式の文字列に変換する。
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// publishedLayouts は上流APIが返しうる公開日時の形式。
var publishedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp はISO-8601系の時刻文字列をパースする。
// パースできない場合はfalseを返す。
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizePublishedAt はパース可能な公開日時をRFC 3339（UTC）に揃える。
// パースできない値はそのまま返す。
func NormalizePublishedAt(s string) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return s
	}
	return t.UTC().Format(time.RFC3339)
}
