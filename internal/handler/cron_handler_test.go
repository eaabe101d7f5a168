package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/worker/refresh"
)

// mockRefreshRunner はRefreshRunnerのモック実装。
type mockRefreshRunner struct {
	runFn func(ctx context.Context) (*refresh.RunResult, error)
	calls int
}

func (m *mockRefreshRunner) Run(ctx context.Context) (*refresh.RunResult, error) {
	m.calls++
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return &refresh.RunResult{}, nil
}

func TestCronHandler_FetchNews_Success(t *testing.T) {
	runner := &mockRefreshRunner{
		runFn: func(ctx context.Context) (*refresh.RunResult, error) {
			return &refresh.RunResult{
				RunID:      "run-1",
				BatchIndex: 1,
				Categories: []string{"sports", "science", "health"},
				Refreshed:  []string{"science", "sports"},
				Empty:      []string{"health"},
			}, nil
		},
	}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/api/cron/fetch-news", nil)
			w := httptest.NewRecorder()
			newTestRouter(&mockNewsService{}, runner).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var body cronResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !body.Success {
				t.Error("success = false, want true")
			}
			if body.RunID != "run-1" {
				t.Errorf("runId = %q", body.RunID)
			}
			if body.BatchIndex == nil || *body.BatchIndex != 1 {
				t.Errorf("batchIndex = %v, want 1", body.BatchIndex)
			}
			if len(body.Refreshed) != 2 || len(body.Empty) != 1 {
				t.Errorf("refreshed/empty = %v/%v", body.Refreshed, body.Empty)
			}
		})
	}

	if runner.calls != 2 {
		t.Errorf("runner calls = %d, want 2", runner.calls)
	}
}

func TestCronHandler_FetchNews_RunInProgress(t *testing.T) {
	runner := &mockRefreshRunner{
		runFn: func(ctx context.Context) (*refresh.RunResult, error) {
			return nil, refresh.ErrRunInProgress
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/cron/fetch-news", nil)
	w := httptest.NewRecorder()
	newTestRouter(&mockNewsService{}, runner).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	var body cronResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Code != model.ErrCodeRefreshInProgress {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRefreshInProgress)
	}
}

func TestCronHandler_FetchNews_Failure(t *testing.T) {
	runner := &mockRefreshRunner{
		runFn: func(ctx context.Context) (*refresh.RunResult, error) {
			return nil, errors.New("cursor write failed")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cron/fetch-news", nil)
	w := httptest.NewRecorder()
	newTestRouter(&mockNewsService{}, runner).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body cronResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Success || body.Error == "" {
		t.Errorf("body = %+v, want success=false with error", body)
	}
}

func TestCronHandler_RequiresSecret(t *testing.T) {
	runner := &mockRefreshRunner{}
	router := NewRouter(&RouterDeps{
		NewsService: &mockNewsService{},
		Refresher:   runner,
		CronSecret:  "s3cret",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/cron/fetch-news", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/cron/fetch-news", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status with token = %d, want %d", w.Code, http.StatusOK)
	}

	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}
}

func TestRouter_CronNotRegisteredWithoutRefresher(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cron/fetch-news", nil)
	w := httptest.NewRecorder()
	newTestRouter(&mockNewsService{}, nil).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCronHandler_FetchNews_SurvivesClientDisconnect(t *testing.T) {
	var runErr error
	var deadline time.Time
	runner := &mockRefreshRunner{
		runFn: func(ctx context.Context) (*refresh.RunResult, error) {
			runErr = ctx.Err()
			deadline, _ = ctx.Deadline()
			return &refresh.RunResult{Categories: []string{"top"}, Refreshed: []string{"top"}}, nil
		},
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel() // 呼び出し元はすでに切断済み

	req := httptest.NewRequest(http.MethodPost, "/api/cron/fetch-news", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()
	NewCronHandler(runner, slog.New(slog.NewJSONHandler(io.Discard, nil))).FetchNews(w, req)

	if runErr != nil {
		t.Errorf("job context err = %v, want nil", runErr)
	}
	if deadline.IsZero() {
		t.Error("job context should carry a deadline")
	} else if until := time.Until(deadline); until <= 0 || until > cronRunTimeout {
		t.Errorf("deadline in %v, want within %v", until, cronRunTimeout)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCronHandler_FetchNews_TimeoutBoundsJob(t *testing.T) {
	runner := &mockRefreshRunner{
		runFn: func(ctx context.Context) (*refresh.RunResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	h := NewCronHandler(runner, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	h.timeout = 10 * time.Millisecond

	w := httptest.NewRecorder()
	h.FetchNews(w, httptest.NewRequest(http.MethodGet, "/api/cron/fetch-news", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
