package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newsdataRecords はn件のNewsdata形式のレコードを生成する。removedの件数分は削除済みタイトルにする。
func newsdataRecords(n, removed int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rec := map[string]any{
			"title":       fmt.Sprintf("Article %d", i),
			"link":        fmt.Sprintf("https://example.com/%d", i),
			"description": "desc",
			"pubDate":     fmt.Sprintf("2024-05-01 %02d:00:00", i),
			"image_url":   nil,
			"source_id":   "example",
			"source_url":  "https://example.com",
		}
		if i < removed {
			rec["title"] = "[Removed]"
			rec["link"] = "https://removed.com"
		}
		records = append(records, rec)
	}
	return records
}

func newsdataServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Newsdata, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	p := NewNewsdata(newTestClient(), NewNormalizer(nil), "test-key", srv.URL)
	return p, srv
}

func TestNewsdata_FetchPage_TenArticles(t *testing.T) {
	var gotQuery map[string]string
	p, _ := newsdataServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/1/news" {
			t.Errorf("path = %q, want /api/1/news", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		next := "page-2-token"
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "success",
			"results":  newsdataRecords(10, 0),
			"nextPage": next,
		})
	})

	page, err := p.FetchPage(context.Background(), Query{
		Categories: []string{"technology"},
		Country:    "us",
		Language:   "en",
		Size:       10,
	})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Articles) != 10 {
		t.Errorf("len(Articles) = %d, want 10", len(page.Articles))
	}
	if page.NextPage != "page-2-token" {
		t.Errorf("NextPage = %q, want page-2-token", page.NextPage)
	}

	want := map[string]string{
		"apikey":   "test-key",
		"category": "technology",
		"country":  "us",
		"language": "en",
		"size":     "10",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
	if _, ok := gotQuery["page"]; ok {
		t.Error("1ページ目ではpageパラメータを送らない")
	}

	// 画像がnullの場合は既定値
	if page.Articles[0].ImageURL == "" {
		t.Error("ImageURL should default when image_url is null")
	}
}

func TestNewsdata_FetchPage_FiltersRemoved(t *testing.T) {
	p, _ := newsdataServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "success",
			"results":  newsdataRecords(10, 7),
			"nextPage": nil,
		})
	})

	page, err := p.FetchPage(context.Background(), Query{Categories: []string{"sports"}})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Articles) != 3 {
		t.Errorf("len(Articles) = %d, want 3", len(page.Articles))
	}
	if page.Rejected[ReasonRemoved] != 7 {
		t.Errorf("Rejected[removed] = %d, want 7", page.Rejected[ReasonRemoved])
	}
	if page.NextPage != "" {
		t.Errorf("NextPage = %q, want empty", page.NextPage)
	}
}

func TestNewsdata_FetchPage_SendsPageToken(t *testing.T) {
	var gotPage string
	p, _ := newsdataServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "results": []any{}})
	})

	if _, err := p.FetchPage(context.Background(), Query{Page: "abc123"}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if gotPage != "abc123" {
		t.Errorf("page = %q, want abc123", gotPage)
	}
}

func TestNewsdata_FetchPage_ErrorStatusInBody(t *testing.T) {
	p, _ := newsdataServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","results":{"message":"The category is invalid"}}`))
	})

	_, err := p.FetchPage(context.Background(), Query{Categories: []string{"weather"}})
	if err == nil {
		t.Fatal("expected error for status=error payload")
	}
}

func TestNewsdata_FetchPage_ResultsNotArray(t *testing.T) {
	p, _ := newsdataServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","results":"oops"}`))
	})

	if _, err := p.FetchPage(context.Background(), Query{}); err == nil {
		t.Fatal("expected error for malformed results")
	}
}

func TestNewsdata_DefaultEndpoint(t *testing.T) {
	p := NewNewsdata(newTestClient(), NewNormalizer(nil), "k", "")
	if p.endpoint != defaultNewsdataEndpoint {
		t.Errorf("endpoint = %q, want %q", p.endpoint, defaultNewsdataEndpoint)
	}
}
