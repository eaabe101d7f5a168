package newsapi

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLink はHTMLのheadで宣言されたフィードへのリンク。
type feedLink struct {
	url  string
	atom bool
}

// looksLikeHTML はボディの先頭がHTML文書かどうかを判定する。
func looksLikeHTML(body []byte) bool {
	n := min(len(body), 1024)
	prefix := strings.ToLower(string(body[:n]))
	return strings.Contains(prefix, "<!doctype html") ||
		strings.Contains(prefix, "<html") ||
		strings.Contains(prefix, "<head")
}

// discoverFeedLinks はHTMLのheadから rel="alternate" のRSS/Atomリンクを抽出する。
// 相対URLはpageURLを基準に解決する。
func discoverFeedLinks(page []byte, pageURL string) []feedLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "body" {
				return links
			}
			if string(name) != "link" || !hasAttr {
				continue
			}

			var rel, typ, href string
			for more := true; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				switch strings.ToLower(string(k)) {
				case "rel":
					rel = strings.ToLower(string(v))
				case "type":
					typ = strings.ToLower(string(v))
				case "href":
					href = string(v)
				}
			}
			if rel != "alternate" || href == "" {
				continue
			}
			if typ != "application/rss+xml" && typ != "application/atom+xml" {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, feedLink{
				url:  base.ResolveReference(ref).String(),
				atom: typ == "application/atom+xml",
			})
		}
	}
}

// pickFeedLink は同一ホスト、Atom、出現順の優先度で1件を選ぶ。
func pickFeedLink(links []feedLink, pageURL string) (string, bool) {
	if len(links) == 0 {
		return "", false
	}

	host := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.url) == host {
			score += 100
		}
		if l.atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].url, true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
