package newsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RetryClass はHTTPステータスコードに基づく再試行判定。
type RetryClass int

const (
	// RetryClassOK は成功（2xx）。
	RetryClassOK RetryClass = iota
	// RetryClassRetry は再試行対象（429/5xx）。
	RetryClassRetry
	// RetryClassFail は再試行しない失敗（429以外の4xxなど）。
	RetryClassFail
)

// ClassifyHTTPStatus はHTTPステータスコードを再試行判定に分類する。
func ClassifyHTTPStatus(statusCode int) RetryClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return RetryClassOK
	case statusCode == http.StatusTooManyRequests:
		return RetryClassRetry
	case statusCode >= 500:
		return RetryClassRetry
	default:
		return RetryClassFail
	}
}

const (
	defaultInitialBackoff = 1 * time.Second
	maxBackoff            = 30 * time.Second
)

// CalculateBackoff は試行回数（0始まり）に基づいて指数バックオフ遅延を計算する。
func CalculateBackoff(initial time.Duration, attempt int) time.Duration {
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// StatusError は上流APIが非2xxを返した場合のエラー。
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable は再試行対象のステータスかどうかを返す。
func (e *StatusError) Retryable() bool {
	return ClassifyHTTPStatus(e.StatusCode) == RetryClassRetry
}

// isRetryable はエラーが再試行対象かどうかを判定する。
// コンテキストのキャンセル・期限切れは再試行しない。
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	// それ以外はネットワークエラーとして扱う
	return true
}

// permanentError は再試行しても結果が変わらない失敗（リクエスト不正、レスポンスのパース失敗）を表す。
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
