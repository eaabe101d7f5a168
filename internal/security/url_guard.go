// Package security は上流ニュースAPIとの通信および入力URLの安全性検証を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は取得・参照を許可するURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedPrefixes は設定されたフィードURL等で拒否するネットワーク範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドメタデータIPを含む
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// URLGuard は上流取得用のHTTPクライアント生成とURL検証を行う。
type URLGuard struct {
	// AllowPrivate はローカル開発で上流APIのモックを向ける場合に限りtrueにする。
	AllowPrivate bool
}

// NewURLGuard はプライベートアドレスを拒否するURLGuardを生成する。
func NewURLGuard() *URLGuard {
	return &URLGuard{}
}

// NewUpstreamClient は上流ニュースAPI・RSSフィード取得用のHTTPクライアントを生成する。
// safeurlがDNS解決後のIPアドレスをDialerで検証するため、DNS再バインディングも防止される。
// AllowPrivateがtrueの場合は検証なしの通常のクライアントを返す。
func (g *URLGuard) NewUpstreamClient(timeout time.Duration) *http.Client {
	if g.AllowPrivate {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateFetchURL はサーバーが取得しに行くURL（RSSフィード、APIベースURL）を
// DNS解決なしで静的に検証する。
func (g *URLGuard) ValidateFetchURL(rawURL string) error {
	parsed, err := parseHTTPURL(rawURL)
	if err != nil {
		return err
	}
	if g.AllowPrivate {
		return nil
	}

	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
	}
	return nil
}

// ValidateArticleURL は記事検索キーとして受け取ったURLの形式のみを検証する。
// このURLには接続しないため、アドレス範囲は検証しない。
func ValidateArticleURL(rawURL string) error {
	_, err := parseHTTPURL(rawURL)
	return err
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	allowed := false
	for _, s := range allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("empty host in URL: %s", rawURL)
	}
	return parsed, nil
}
