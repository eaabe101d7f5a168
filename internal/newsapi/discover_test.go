package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestDiscoverFeedLinks(t *testing.T) {
	page := []byte(`<!DOCTYPE html>
<html><head>
  <title>News</title>
  <link rel="stylesheet" href="/style.css">
  <link rel="alternate" type="application/rss+xml" href="/rss.xml">
  <link rel="Alternate" type="application/atom+xml" href="https://news.example.com/atom.xml"/>
  <link rel="alternate" type="text/html" href="/en">
</head>
<body><link rel="alternate" type="application/rss+xml" href="/ignored.xml"></body></html>`)

	links := discoverFeedLinks(page, "https://news.example.com/section/")
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2: %+v", len(links), links)
	}
	if links[0].url != "https://news.example.com/rss.xml" || links[0].atom {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].url != "https://news.example.com/atom.xml" || !links[1].atom {
		t.Errorf("links[1] = %+v", links[1])
	}
}

func TestPickFeedLink(t *testing.T) {
	tests := []struct {
		name  string
		links []feedLink
		want  string
	}{
		{
			name: "same host wins over atom",
			links: []feedLink{
				{url: "https://cdn.other.com/atom.xml", atom: true},
				{url: "https://news.example.com/rss.xml"},
			},
			want: "https://news.example.com/rss.xml",
		},
		{
			name: "atom wins on same host",
			links: []feedLink{
				{url: "https://news.example.com/rss.xml"},
				{url: "https://news.example.com/atom.xml", atom: true},
			},
			want: "https://news.example.com/atom.xml",
		},
		{
			name: "first wins on tie",
			links: []feedLink{
				{url: "https://news.example.com/a.xml"},
				{url: "https://news.example.com/b.xml"},
			},
			want: "https://news.example.com/a.xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickFeedLink(tt.links, "https://news.example.com/")
			if !ok || got != tt.want {
				t.Errorf("pickFeedLink = %q, %v; want %q", got, ok, tt.want)
			}
		})
	}

	if _, ok := pickFeedLink(nil, "https://news.example.com/"); ok {
		t.Error("pickFeedLink(nil) should report no link")
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !looksLikeHTML([]byte("<!DOCTYPE html><html>")) {
		t.Error("doctype should be detected as HTML")
	}
	if looksLikeHTML([]byte(testRSS)) {
		t.Error("RSS should not be detected as HTML")
	}
	if looksLikeHTML(nil) {
		t.Error("empty body should not be detected as HTML")
	}
}

func TestRSS_FetchPage_DiscoversFeedFromHTML(t *testing.T) {
	var pageHits, feedHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body></body></html>`))
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		feedHits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewRSS(newTestClient(), NewNormalizer(nil), map[string]string{"technology": srv.URL + "/"})
	q := Query{Categories: []string{"technology"}}

	for i := 0; i < 2; i++ {
		page, err := p.FetchPage(context.Background(), q)
		if err != nil {
			t.Fatalf("FetchPage #%d failed: %v", i, err)
		}
		if len(page.Articles) != 2 {
			t.Errorf("FetchPage #%d articles = %d, want 2", i, len(page.Articles))
		}
	}

	// 2回目以降は検出済みのフィードURLを直接取得する
	if pageHits.Load() != 1 {
		t.Errorf("page hits = %d, want 1", pageHits.Load())
	}
	if feedHits.Load() != 2 {
		t.Errorf("feed hits = %d, want 2", feedHits.Load())
	}
}

func TestRSS_FetchPage_HTMLWithoutFeedLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>no feeds</title></head></html>`))
	}))
	defer srv.Close()

	p := NewRSS(newTestClient(), NewNormalizer(nil), map[string]string{"top": srv.URL})
	if _, err := p.FetchPage(context.Background(), Query{}); err == nil {
		t.Fatal("expected error when no feed link is declared")
	}
}
