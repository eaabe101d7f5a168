package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/readon/internal/model"
)

// maxResponseSize はサーバーレスポンスの最大サイズ。
const maxResponseSize = 5 << 20

// HTTPSource はサーバーの読み取りAPI（GET /api/news/{category}）を呼び出すRemoteSource。
type HTTPSource struct {
	client  *http.Client
	baseURL string
}

// NewHTTPSource はHTTPSourceを生成する。
func NewHTTPSource(client *http.Client, baseURL string) *HTTPSource {
	return &HTTPSource{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type categoryResponse struct {
	Articles  []model.Article `json:"articles"`
	FetchedAt string          `json:"fetchedAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FetchCategory はカテゴリのドキュメントを取得する。
func (s *HTTPSource) FetchCategory(ctx context.Context, category string) (*model.RemoteCategoryDocument, error) {
	reqURL := s.baseURL + "/api/news/" + url.PathEscape(category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("サーバーへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み込みに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return nil, fmt.Errorf("server returned %d: [%s] %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var payload categoryResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("レスポンスのデコードに失敗しました: %w", err)
	}

	return &model.RemoteCategoryDocument{
		Articles:  payload.Articles,
		FetchedAt: payload.FetchedAt,
	}, nil
}
