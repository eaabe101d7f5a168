package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/repository"
)

// 更新対象カテゴリの選択戦略
const (
	StrategyAll      = "all"
	StrategyRotation = "rotation"
	StrategyParity   = "parity"
)

// DefaultBatchSize はローテーション戦略の1回あたりのカテゴリ数。
const DefaultBatchSize = 3

// Batch は1回の実行で更新するカテゴリの集合。
type Batch struct {
	Index      int
	Categories []string
}

// Selector は実行ごとの更新対象カテゴリを決定する。
type Selector interface {
	// Select は今回の実行で更新するバッチを返す。
	Select(ctx context.Context, now time.Time) (*Batch, error)
	// Commit はファンアウト完了後に呼ばれ、選択状態を進める。
	Commit(ctx context.Context, batch *Batch, now time.Time) error
}

// NewSelector は戦略名に応じたSelectorを生成する。
func NewSelector(strategy string, categories []string, batchSize int, states repository.CronStateRepository) (Selector, error) {
	switch strategy {
	case StrategyAll:
		return &AllSelector{categories: categories}, nil
	case StrategyRotation:
		if states == nil {
			return nil, fmt.Errorf("rotation strategy requires a cron state repository")
		}
		return NewRotationSelector(categories, batchSize, states), nil
	case StrategyParity:
		return &ParitySelector{categories: categories}, nil
	default:
		return nil, fmt.Errorf("unsupported refresh strategy: %q", strategy)
	}
}

// AllSelector は毎回すべてのカテゴリを選択する。
type AllSelector struct {
	categories []string
}

// Select は全カテゴリを返す。
func (s *AllSelector) Select(_ context.Context, _ time.Time) (*Batch, error) {
	return &Batch{Categories: append([]string(nil), s.categories...)}, nil
}

// Commit は何もしない。
func (s *AllSelector) Commit(context.Context, *Batch, time.Time) error { return nil }

// RotationSelector はカテゴリを固定サイズのバッチに分割し、実行ごとに次のバッチへ進む。
// カーソルはcron_stateの"last_batch"に保存する。
type RotationSelector struct {
	categories []string
	batchSize  int
	states     repository.CronStateRepository
}

// NewRotationSelector はRotationSelectorを生成する。batchSizeが0以下の場合はDefaultBatchSizeを使用する。
func NewRotationSelector(categories []string, batchSize int, states repository.CronStateRepository) *RotationSelector {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RotationSelector{categories: categories, batchSize: batchSize, states: states}
}

// BatchCount はバッチ数（ceil(カテゴリ数 / バッチサイズ)）を返す。
func (s *RotationSelector) BatchCount() int {
	return (len(s.categories) + s.batchSize - 1) / s.batchSize
}

// Select は前回のカーソルの次のバッチを返す。カーソルが未保存の場合は先頭のバッチ。
func (s *RotationSelector) Select(ctx context.Context, _ time.Time) (*Batch, error) {
	count := s.BatchCount()
	if count == 0 {
		return &Batch{}, nil
	}

	state, err := s.states.GetCronState(ctx, repository.CronStateID)
	if err != nil {
		return nil, fmt.Errorf("load rotation cursor: %w", err)
	}

	next := 0
	if state != nil {
		next = (state.Index + 1) % count
		if next < 0 {
			next = 0
		}
	}

	start := next * s.batchSize
	end := min(start+s.batchSize, len(s.categories))
	return &Batch{
		Index:      next,
		Categories: append([]string(nil), s.categories[start:end]...),
	}, nil
}

// Commit はカーソルを今回のバッチに進める。
func (s *RotationSelector) Commit(ctx context.Context, batch *Batch, now time.Time) error {
	err := s.states.PutCronState(ctx, repository.CronStateID, &model.CronState{
		Index:     batch.Index,
		UpdatedAt: model.FormatTimestamp(now),
	})
	if err != nil {
		return fmt.Errorf("save rotation cursor: %w", err)
	}
	return nil
}

// ParitySelector はカテゴリを前半・後半の2つに分け、UTCの時の偶奇で交互に選択する。
type ParitySelector struct {
	categories []string
}

// Select は偶数時なら前半、奇数時なら後半を返す。
func (s *ParitySelector) Select(_ context.Context, now time.Time) (*Batch, error) {
	half := (len(s.categories) + 1) / 2
	index := now.UTC().Hour() % 2
	batch := s.categories[:half]
	if index == 1 {
		batch = s.categories[half:]
	}
	return &Batch{Index: index, Categories: append([]string(nil), batch...)}, nil
}

// Commit は何もしない。
func (s *ParitySelector) Commit(context.Context, *Batch, time.Time) error { return nil }
