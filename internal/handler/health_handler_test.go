package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/readon/internal/middleware"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
		wantDB     string
	}{
		{"no checker", nil, http.StatusOK, "skipped"},
		{"db up", &mockHealthChecker{}, http.StatusOK, "up"},
		{"db down", &mockHealthChecker{err: errors.New("refused")}, http.StatusServiceUnavailable, "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(&RouterDeps{
				NewsService:   &mockNewsService{},
				HealthChecker: tt.checker,
			})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeErrorBody(t, w); body["database"] != tt.wantDB {
				t.Errorf("database = %v, want %q", body["database"], tt.wantDB)
			}
		})
	}
}

func TestRouter_HealthBypassesRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(1))
	defer rl.Stop()

	router := NewRouter(&RouterDeps{
		NewsService: &mockNewsService{},
		RateLimiter: rl,
	})

	// 1回目は許可、2回目はレート制限される
	for i, want := range []int{http.StatusNotFound, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/news/top", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("request %d status = %d, want %d", i, w.Code, want)
		}
	}

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("health request %d status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_AppliesSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	newTestRouter(&mockNewsService{}, nil).ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
