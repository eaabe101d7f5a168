package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/worker/refresh"
)

// RefreshRunner はリフレッシュジョブの実行インターフェース。
type RefreshRunner interface {
	Run(ctx context.Context) (*refresh.RunResult, error)
}

// cronRunTimeout はcron経由の1回の実行に許す時間。サーバーのWriteTimeout（5分）より短くする。
const cronRunTimeout = 4 * time.Minute

// CronHandler は外部スケジューラから呼び出されるcronエンドポイントのハンドラー。
type CronHandler struct {
	runner  RefreshRunner
	logger  *slog.Logger
	timeout time.Duration
}

// NewCronHandler はCronHandlerを生成する。
func NewCronHandler(runner RefreshRunner, logger *slog.Logger) *CronHandler {
	return &CronHandler{runner: runner, logger: logger, timeout: cronRunTimeout}
}

type cronResponse struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
	Code       string   `json:"code,omitempty"`
	RunID      string   `json:"runId,omitempty"`
	BatchIndex *int     `json:"batchIndex,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Refreshed  []string `json:"refreshed,omitempty"`
	Empty      []string `json:"empty,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}

// FetchNews はリフレッシュジョブを同期実行する。
// 呼び出し元が切断してもジョブはtimeoutまで継続し、カーソルの更新まで完了させる。
// GET|POST /api/cron/fetch-news
func (h *CronHandler) FetchNews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	result, err := h.runner.Run(ctx)
	if err != nil {
		if errors.Is(err, refresh.ErrRunInProgress) {
			apiErr := model.NewRefreshInProgressError()
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusConflict, cronResponse{
				Success: false,
				Error:   apiErr.Message,
				Code:    apiErr.Code,
			})
			return
		}

		h.logger.Error("cronからのリフレッシュジョブが失敗しました",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, cronResponse{
			Success: false,
			Error:   "ニュースの更新に失敗しました。",
		})
		return
	}

	index := result.BatchIndex
	writeJSON(w, http.StatusOK, cronResponse{
		Success:    true,
		Message:    fmt.Sprintf("%d件のカテゴリを更新しました", len(result.Refreshed)),
		RunID:      result.RunID,
		BatchIndex: &index,
		Categories: result.Categories,
		Refreshed:  result.Refreshed,
		Empty:      result.Empty,
		Failed:     result.Failed,
	})
}
