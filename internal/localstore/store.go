// Package localstore はクライアント側の永続記事キャッシュを提供する。
// SQLiteファイルに記事をカテゴリと書き込み時刻で索引付けして保存し、
// 30日を超えた記事は読み込み前の掃除で削除する。
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hitoshi/readon/internal/worker/cleanup"
)

// ErrUnavailable はストアが開かれていない（またはクローズ済み）場合に返される。
// 呼び出し側はキャッシュミスとして扱う。
var ErrUnavailable = errors.New("local article store is unavailable")

// Store はSQLiteを使用したローカル記事ストア。
// 掃除と読み込み、保存はミューテックスで直列化され、互いに割り込まない。
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	logger  *slog.Logger
	now     func() time.Time
	sweeper *cleanup.Job
	closed  bool
}

// Option はStoreの生成オプション。
type Option func(*options)

type options struct {
	logger      *slog.Logger
	now         func() time.Time
	busyTimeout int
	retention   time.Duration
}

// WithLogger はログ出力先を指定する。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBusyTimeout はPRAGMA busy_timeout（ミリ秒）を指定する。
func WithBusyTimeout(ms int) Option {
	return func(o *options) { o.busyTimeout = ms }
}

// WithRetention は記事の保持期間を指定する。
func WithRetention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

// Open はpathのSQLiteファイルを開き、スキーマを最新バージョンに移行する。
func Open(path string, opts ...Option) (*Store, error) {
	o := options{
		logger:      slog.Default(),
		now:         time.Now,
		busyTimeout: 5000,
		retention:   cleanup.DefaultRetention,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ローカルストアのディレクトリ作成に失敗しました: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ローカルストアのオープンに失敗しました: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("PRAGMAの適用に失敗しました (%s): %w", p, err)
		}
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	sweeper := cleanup.NewJob(o.logger)
	sweeper.Retention = o.retention

	return &Store{
		db:      db,
		logger:  o.logger,
		now:     o.now,
		sweeper: sweeper,
	}, nil
}

// Close はストアを閉じる。複数回呼び出しても安全。
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// lock はストアが利用可能であればロックを取得する。
// 利用できない場合はErrUnavailableを返し、ロックは取得しない。
func (s *Store) lock() error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrUnavailable
	}
	return nil
}
