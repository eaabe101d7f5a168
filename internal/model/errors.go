// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, news, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCategory   = "INVALID_CATEGORY"
	ErrCodeCategoryNotCached = "CATEGORY_NOT_CACHED"
	ErrCodeArticleNotFound   = "ARTICLE_NOT_FOUND"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeInvalidSearch     = "INVALID_SEARCH"
	ErrCodeFetchFailed       = "FETCH_FAILED"
	ErrCodeRefreshInProgress = "REFRESH_IN_PROGRESS"
)

// NewInvalidCategoryError は未知のカテゴリが指定された場合のエラーを生成する。
func NewInvalidCategoryError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", slug),
		Category: "validation",
		Action:   "カテゴリ一覧（/api/categories）から指定してください。",
	}
}

// NewCategoryNotCachedError はカテゴリのドキュメントがまだ作成されていない場合のエラーを生成する。
func NewCategoryNotCachedError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotCached,
		Message:  fmt.Sprintf("カテゴリのニュースはまだ取得されていません: %s", slug),
		Category: "news",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", url),
		Category: "news",
		Action:   "記事URLを確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を指定してください。",
	}
}

// NewInvalidSearchError は検索条件が不正な場合のエラーを生成する。
func NewInvalidSearchError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSearch,
		Message:  fmt.Sprintf("無効な検索条件です: %s", reason),
		Category: "validation",
		Action:   "キーワード（q）またはカテゴリ（categories）を指定してください。",
	}
}

// NewFetchFailedError はニュース取得失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("ニュースの取得に失敗しました: %s", reason),
		Category: "news",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRefreshInProgressError はリフレッシュジョブが実行中の場合のエラーを生成する。
func NewRefreshInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeRefreshInProgress,
		Message:  "ニュースキャッシュの更新は既に実行中です。",
		Category: "system",
		Action:   "次回のスケジュール実行を待ってください。",
	}
}
