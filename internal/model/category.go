package model

import (
	"sort"
	"strings"
)

// Category はニュースカテゴリを表す。
type Category struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Categories は取得対象カテゴリの固定リスト。
// 並び順はバッチローテーションの順序でもある。
var Categories = []Category{
	{Name: "For You", Slug: "top"},
	{Name: "Business", Slug: "business"},
	{Name: "Technology", Slug: "technology"},
	{Name: "Entertainment", Slug: "entertainment"},
	{Name: "Sports", Slug: "sports"},
	{Name: "Science", Slug: "science"},
	{Name: "Health", Slug: "health"},
	{Name: "Politics", Slug: "politics"},
}

// DefaultCategory はカテゴリ未指定時に使用するスラッグ。
const DefaultCategory = "top"

// CategorySlugs はカテゴリスラッグの一覧を返す。
func CategorySlugs() []string {
	slugs := make([]string, len(Categories))
	for i, c := range Categories {
		slugs[i] = c.Slug
	}
	return slugs
}

// IsValidCategory はスラッグが既知のカテゴリかどうかを返す。
func IsValidCategory(slug string) bool {
	for _, c := range Categories {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

// DedupeArticles は記事リストをURLで重複排除する。
// 値は最後の出現を採用し、並び順は最初の出現位置を維持する。
func DedupeArticles(articles []Article) []Article {
	index := make(map[string]int, len(articles))
	result := make([]Article, 0, len(articles))
	for _, a := range articles {
		if i, ok := index[a.URL]; ok {
			result[i] = a
			continue
		}
		index[a.URL] = len(result)
		result = append(result, a)
	}
	return result
}

// SortByPublishedDesc は記事を公開日時の降順に並べ替える。
// パースできない公開日時の記事は末尾に置く。
func SortByPublishedDesc(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		ti, okI := ParseTimestamp(articles[i].PublishedAt)
		tj, okJ := ParseTimestamp(articles[j].PublishedAt)
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI != okJ:
			return okI
		default:
			return strings.Compare(articles[i].PublishedAt, articles[j].PublishedAt) > 0
		}
	})
}
