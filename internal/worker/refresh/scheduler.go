package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner はリフレッシュジョブの実行インターフェース。
type Runner interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Scheduler はcron式に従ってリフレッシュジョブを定期実行する。
type Scheduler struct {
	runner   Runner
	logger   *slog.Logger
	schedule cron.Schedule
	spec     string
	cron     *cron.Cron
}

// NewScheduler はSchedulerを生成する。cron式は標準の5フィールド形式（UTC）。
func NewScheduler(runner Runner, logger *slog.Logger, spec string) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	return &Scheduler{
		runner:   runner,
		logger:   logger,
		schedule: schedule,
		spec:     spec,
		cron:     c,
	}, nil
}

// Next は指定時刻以降の次回実行時刻を返す。
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start はスケジューラを起動し、コンテキストがキャンセルされるまでブロックする。
// runOnStartがtrueの場合は起動直後に1回実行する。
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) {
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))

	s.logger.Info("リフレッシュスケジューラを開始しました",
		slog.String("schedule", s.spec),
		slog.Time("next_run", s.Next(time.Now().UTC())),
	)

	if runOnStart {
		s.runOnce(ctx)
	}

	s.cron.Start()
	<-ctx.Done()

	// 実行中のジョブの完了を待つ
	<-s.cron.Stop().Done()
	s.logger.Info("リフレッシュスケジューラを停止しました")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			return
		}
		s.logger.Error("リフレッシュジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
