// Package cleanup はローカル記事ストアの期限切れ記事の削除ジョブを提供する。
// 書き込み時刻（epoch ms）が保持期間（デフォルト30日）より古い記事を削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention は記事の保持期間。
const DefaultRetention = 30 * 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Job は保持期間を超過した記事の削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type Job struct {
	logger    *slog.Logger
	Retention time.Duration
}

// NewJob は新しいJobを生成する。
func NewJob(logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		logger:    logger,
		Retention: DefaultRetention,
	}
}

// Cutoff はnowを基準とした削除境界（epoch ms）を返す。
// この値より小さいtimestampの記事が削除対象となる。
func (j *Job) Cutoff(now time.Time) int64 {
	return now.Add(-j.Retention).UnixMilli()
}

// Run はtimestampが削除境界より古い記事を削除し、削除件数を返す。
func (j *Job) Run(ctx context.Context, db Executor, now time.Time) (int64, error) {
	start := time.Now()
	cutoff := j.Cutoff(now)

	result, err := db.ExecContext(ctx, `DELETE FROM articles WHERE timestamp < ?`, cutoff)
	if err != nil {
		j.logger.Error("期限切れ記事の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int64("cutoff_ms", cutoff),
		)
		return 0, fmt.Errorf("期限切れ記事の削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if deletedCount > 0 {
		j.logger.Info("期限切れ記事を削除しました",
			slog.Int64("deleted_count", deletedCount),
			slog.Float64("retention_days", j.Retention.Hours()/24),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}

	return deletedCount, nil
}
