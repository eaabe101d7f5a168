package model

import (
	"testing"
	"time"
)

func TestDedupeArticles_LastOccurrenceWins(t *testing.T) {
	in := []Article{
		{URL: "https://example.com/a", Title: "A1"},
		{URL: "https://example.com/b", Title: "B"},
		{URL: "https://example.com/a", Title: "A2"},
	}

	got := DedupeArticles(in)

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// 位置は最初の出現、値は最後の出現
	if got[0].URL != "https://example.com/a" || got[0].Title != "A2" {
		t.Errorf("got[0] = %+v, want A2 at first position", got[0])
	}
	if got[1].Title != "B" {
		t.Errorf("got[1].Title = %q, want B", got[1].Title)
	}
}

func TestDedupeArticles_Empty(t *testing.T) {
	got := DedupeArticles(nil)
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestSortByPublishedDesc(t *testing.T) {
	articles := []Article{
		{URL: "old", PublishedAt: "2024-01-01T00:00:00Z"},
		{URL: "unknown", PublishedAt: "not a date"},
		{URL: "new", PublishedAt: "2024-03-01 10:00:00"},
		{URL: "mid", PublishedAt: "2024-02-01T00:00:00Z"},
	}

	SortByPublishedDesc(articles)

	want := []string{"new", "mid", "old", "unknown"}
	for i, w := range want {
		if articles[i].URL != w {
			t.Errorf("articles[%d].URL = %q, want %q", i, articles[i].URL, w)
		}
	}
}

func TestFormatTimestamp_UTCWithMillis(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	ts := time.Date(2024, 5, 1, 9, 30, 0, 123_000_000, jst)

	got := FormatTimestamp(ts)
	if got != "2024-05-01T00:30:00.123Z" {
		t.Errorf("FormatTimestamp = %q, want %q", got, "2024-05-01T00:30:00.123Z")
	}

	parsed, ok := ParseTimestamp(got)
	if !ok {
		t.Fatal("FormatTimestamp の出力をパースできなかった")
	}
	if !parsed.Equal(ts) {
		t.Errorf("parsed = %v, want %v", parsed, ts)
	}
}

func TestNormalizePublishedAt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-05-01 12:34:56", "2024-05-01T12:34:56Z"},
		{"2024-05-01T12:34:56+09:00", "2024-05-01T03:34:56Z"},
		{"yesterday", "yesterday"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePublishedAt(tt.in); got != tt.want {
			t.Errorf("NormalizePublishedAt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidCategory(t *testing.T) {
	if !IsValidCategory("technology") {
		t.Error("technology は有効なカテゴリであるべき")
	}
	if IsValidCategory("weather") {
		t.Error("weather は無効なカテゴリであるべき")
	}
	if len(CategorySlugs()) != len(Categories) {
		t.Errorf("CategorySlugs の件数が一致しない")
	}
}
