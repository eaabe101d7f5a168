package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/readon/internal/model"
)

// PostgresCronStateRepo はPostgreSQLを使用したカーソルリポジトリ。
type PostgresCronStateRepo struct {
	db *sql.DB
}

// NewPostgresCronStateRepo はPostgresCronStateRepoを生成する。
func NewPostgresCronStateRepo(db *sql.DB) *PostgresCronStateRepo {
	return &PostgresCronStateRepo{db: db}
}

// GetCronState は指定IDのカーソルを取得する。見つからない場合はnilを返す。
func (r *PostgresCronStateRepo) GetCronState(ctx context.Context, id string) (*model.CronState, error) {
	state := &model.CronState{}

	err := r.db.QueryRowContext(ctx,
		`SELECT batch_index, updated_at FROM cron_state WHERE id = $1`,
		id,
	).Scan(&state.Index, &state.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カーソルの取得に失敗しました: %w", err)
	}
	return state, nil
}

// PutCronState は指定IDのカーソルを保存する。
func (r *PostgresCronStateRepo) PutCronState(ctx context.Context, id string, state *model.CronState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cron_state (id, batch_index, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET
		    batch_index = EXCLUDED.batch_index,
		    updated_at = EXCLUDED.updated_at`,
		id, state.Index, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("カーソルの保存に失敗しました: %w", err)
	}
	return nil
}
