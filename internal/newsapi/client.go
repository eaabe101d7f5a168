package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Recorder は上流呼び出しの計測インターフェース。
type Recorder interface {
	RecordUpstreamStatus(provider string, statusCode int)
	RecordUpstreamLatency(provider string, duration time.Duration)
}

const userAgent = "Readon/1.0 News Cache"

// Client は上流ニュースAPI共通のHTTPクライアント。
// 日次クォータを守るためのレート制限と、ネットワークエラー・429・5xxに対する
// 上限付きの再試行を行う。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	limiter        *rate.Limiter
	recorder       Recorder
	maxRetries     int
	maxBodySize    int64
	initialBackoff time.Duration
}

// ClientOption はClientの生成オプション。
type ClientOption func(*Client)

// WithLogger はログ出力先を指定する。
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit は1分あたりのリクエスト上限を指定する。0以下なら制限しない。
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithMaxRetries は再試行回数の上限を指定する。
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
	}
}

// WithMaxBodySize はレスポンスボディの最大読み取りサイズを指定する。
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) { c.maxBodySize = n }
}

// WithBackoff は再試行の初回待機時間を指定する。
func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) { c.initialBackoff = d }
}

// WithRecorder は計測先を指定する。
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) { c.recorder = r }
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{
		httpClient:     httpClient,
		logger:         slog.Default(),
		maxRetries:     1,
		maxBodySize:    5 << 20,
		initialBackoff: defaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get はreqURLをGETし、レスポンスボディを返す。
// 再試行対象のエラーはmaxRetries回まで指数バックオフで再試行する。
func (c *Client) Get(ctx context.Context, provider, reqURL, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.initialBackoff, attempt-1)
			c.logger.Warn("上流APIへのリクエストを再試行します",
				slog.String("provider", provider),
				slog.String("url", redactURL(reqURL)),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.do(ctx, provider, reqURL, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	c.logger.Error("上流APIの呼び出しに失敗しました",
		slog.String("provider", provider),
		slog.String("url", redactURL(reqURL)),
		slog.String("error", lastErr.Error()),
	)
	return nil, lastErr
}

// GetJSON はreqURLをGETし、レスポンスをdstにデコードする。
// デコード失敗は再試行しない。
func (c *Client) GetJSON(ctx context.Context, provider, reqURL string, dst any) error {
	body, err := c.Get(ctx, provider, reqURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &permanentError{err: fmt.Errorf("failed to decode %s response: %w", provider, err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, provider, reqURL, accept string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &permanentError{err: fmt.Errorf("レート制限の待機に失敗しました: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.recorder != nil {
		c.recorder.RecordUpstreamLatency(provider, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if c.recorder != nil {
		c.recorder.RecordUpstreamStatus(provider, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if ClassifyHTTPStatus(resp.StatusCode) != RetryClassOK {
		return nil, &StatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}
	return body, nil
}

// errorMessage は上流APIのエラーレスポンスからメッセージを取り出す。
// 対応形式: {"message"}, {"results":{"message"}}, {"errors":[...]}, {"errors":{...}}
func errorMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Results json.RawMessage `json:"results"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}

	var results struct {
		Message string `json:"message"`
	}
	if len(payload.Results) > 0 && json.Unmarshal(payload.Results, &results) == nil && results.Message != "" {
		return results.Message
	}

	var list []string
	if len(payload.Errors) > 0 && json.Unmarshal(payload.Errors, &list) == nil {
		return strings.Join(list, "; ")
	}
	var byKey map[string]string
	if len(payload.Errors) > 0 && json.Unmarshal(payload.Errors, &byKey) == nil {
		msgs := make([]string, 0, len(byKey))
		for _, v := range byKey {
			msgs = append(msgs, v)
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// redactURL はログ出力用にAPIキーを伏せたURLを返す。
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, key := range []string{"apikey", "apiKey", "token"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
