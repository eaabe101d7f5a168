package newsapi

import (
	"testing"

	"github.com/hitoshi/readon/internal/model"
)

func TestNormalize_AppliesDefaults(t *testing.T) {
	n := NewNormalizer(nil)

	r := n.Normalize(map[string]any{
		"title": "Headline",
		"link":  "https://example.com/a",
	}, newsdataFields)

	if !r.Accepted() {
		t.Fatalf("expected accepted, got reason %q", r.Reason)
	}
	a := r.Article
	if a.Description != model.DefaultDescription {
		t.Errorf("Description = %q, want default", a.Description)
	}
	if a.Content != "" {
		t.Errorf("Content = %q, want empty", a.Content)
	}
	if a.ImageURL != model.DefaultImageURL {
		t.Errorf("ImageURL = %q, want default", a.ImageURL)
	}
	if a.Source.Name != model.DefaultSourceName || a.Source.URL != model.DefaultSourceURL {
		t.Errorf("Source = %+v, want defaults", a.Source)
	}
}

func TestNormalize_RejectReasons(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name   string
		record map[string]any
		want   RejectReason
	}{
		{"タイトルなし", map[string]any{"link": "https://example.com/a"}, ReasonMissingTitle},
		{"タイトルが空白のみ", map[string]any{"title": "   ", "link": "https://example.com/a"}, ReasonMissingTitle},
		{"タイトルが文字列でない", map[string]any{"title": []any{"x"}, "link": "https://example.com/a"}, ReasonMissingTitle},
		{"URLなし", map[string]any{"title": "T"}, ReasonMissingURL},
		{"URLがnull", map[string]any{"title": "T", "link": nil}, ReasonMissingURL},
		{"削除済み", map[string]any{"title": "[Removed]", "link": "https://removed.com"}, ReasonRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := n.Normalize(tt.record, newsdataFields)
			if r.Reason != tt.want {
				t.Errorf("Reason = %q, want %q", r.Reason, tt.want)
			}
		})
	}
}

func TestNormalize_StripsHTMLAndNormalizesDate(t *testing.T) {
	n := NewNormalizer(nil)

	r := n.Normalize(map[string]any{
		"title":       "Markets <b>rally</b>",
		"link":        "https://example.com/a",
		"description": "<p>Stocks rose &amp; bonds fell.</p>",
		"content":     "<div>Body <script>x()</script>text</div>",
		"pubDate":     "2024-05-01 12:34:56",
		"source_id":   "reuters",
		"source_url":  "https://reuters.com",
	}, newsdataFields)

	if !r.Accepted() {
		t.Fatalf("expected accepted, got %q", r.Reason)
	}
	if r.Article.Title != "Markets rally" {
		t.Errorf("Title = %q", r.Article.Title)
	}
	if r.Article.Description != "Stocks rose & bonds fell." {
		t.Errorf("Description = %q", r.Article.Description)
	}
	if r.Article.Content != "Body text" {
		t.Errorf("Content = %q", r.Article.Content)
	}
	if r.Article.PublishedAt != "2024-05-01T12:34:56Z" {
		t.Errorf("PublishedAt = %q", r.Article.PublishedAt)
	}
	if r.Article.Source.Name != "reuters" {
		t.Errorf("Source.Name = %q", r.Article.Source.Name)
	}
}

func TestNormalize_NestedSourceFields(t *testing.T) {
	n := NewNormalizer(nil)

	r := n.Normalize(map[string]any{
		"title": "T",
		"url":   "https://example.com/a",
		"image": "https://cdn.example.com/a.jpg",
		"source": map[string]any{
			"name": "Example News",
			"url":  "https://example.com",
		},
	}, gnewsFields)

	if r.Article.Source.Name != "Example News" || r.Article.Source.URL != "https://example.com" {
		t.Errorf("Source = %+v", r.Article.Source)
	}
	if r.Article.ImageURL != "https://cdn.example.com/a.jpg" {
		t.Errorf("ImageURL = %q", r.Article.ImageURL)
	}
}

func TestNormalizeAll_CountsRejected(t *testing.T) {
	n := NewNormalizer(nil)

	records := []map[string]any{
		{"title": "A", "link": "https://example.com/a"},
		{"title": "[Removed]", "link": "https://removed.com"},
		{"title": "[Removed]", "link": "https://removed.com"},
		{"link": "https://example.com/c"},
	}

	articles, rejected := n.NormalizeAll(records, newsdataFields)
	if len(articles) != 1 {
		t.Errorf("len(articles) = %d, want 1", len(articles))
	}
	if rejected[ReasonRemoved] != 2 || rejected[ReasonMissingTitle] != 1 {
		t.Errorf("rejected = %v", rejected)
	}
}
