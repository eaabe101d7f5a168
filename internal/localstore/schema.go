package localstore

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion はローカルストアのスキーマバージョン（PRAGMA user_version）。
const SchemaVersion = 4

// migrate はuser_versionを基準にスキーマを段階的に移行する。
//   - 2未満: articlesを作り直す（旧形式の行は破棄）
//   - 3未満: cache_metadataを作成
//   - 4未満: bookmarksを作成
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("スキーマバージョンの取得に失敗しました: %w", err)
	}
	if version >= SchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("スキーマ移行の開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var steps []string
	if version < 2 {
		steps = append(steps,
			`DROP TABLE IF EXISTS articles`,
			`CREATE TABLE articles (
				url       TEXT    PRIMARY KEY,
				category  TEXT    NOT NULL,
				timestamp INTEGER NOT NULL,
				article   TEXT    NOT NULL
			)`,
			`CREATE INDEX idx_articles_category ON articles(category)`,
			`CREATE INDEX idx_articles_timestamp ON articles(timestamp)`,
		)
	}
	if version < 3 {
		steps = append(steps,
			`CREATE TABLE IF NOT EXISTS cache_metadata (
				category   TEXT PRIMARY KEY,
				fetched_at TEXT NOT NULL
			)`,
		)
	}
	if version < 4 {
		steps = append(steps,
			`CREATE TABLE IF NOT EXISTS bookmarks (
				url      TEXT    PRIMARY KEY,
				article  TEXT    NOT NULL,
				notes    TEXT    NOT NULL DEFAULT '',
				tags     TEXT    NOT NULL DEFAULT '[]',
				added_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_bookmarks_added_at ON bookmarks(added_at)`,
		)
	}
	steps = append(steps, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion))

	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("スキーマ移行に失敗しました (version %d): %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("スキーマ移行のコミットに失敗しました: %w", err)
	}
	return nil
}
