package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/readon/internal/model"
)

// NewCronAuthMiddleware はcronエンドポイント用のBearerトークン認証ミドルウェアを返す。
// secretが空の場合は認証を行わない。
func NewCronAuthMiddleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				slog.Warn("cron endpoint unauthorized",
					slog.String("client_ip", ClientIP(r)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "認証が必要です。",
					Category: "auth",
					Action:   "Authorization ヘッダーに正しいトークンを指定してください。",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
