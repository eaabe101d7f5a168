package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/readon/internal/model"
)

// CategoryArticles はカテゴリの記事一覧とリモートの取得時刻を表す。
// FetchedAtはメタデータがない場合に空文字となる。
type CategoryArticles struct {
	Articles  []model.Article
	FetchedAt string
}

// GetArticlesByCategory は期限切れ記事を掃除した上で、カテゴリの記事を
// 公開日時の降順（同時刻・日時不明はURL順）で返す。記事がない場合はnilを返す。
func (s *Store) GetArticlesByCategory(ctx context.Context, category string) (*CategoryArticles, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if _, err := s.sweeper.Run(ctx, s.db, s.now()); err != nil {
		s.logger.Warn("期限切れ記事の掃除に失敗しました",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT article FROM articles WHERE category = ? ORDER BY url`, category)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの記事取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("記事のスキャンに失敗しました: %w", err)
		}
		var a model.Article
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("記事のデコードに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリの記事読み込みに失敗しました: %w", err)
	}
	if len(articles) == 0 {
		return nil, nil
	}

	model.SortByPublishedDesc(articles)

	fetchedAt, err := s.fetchedAt(ctx, category)
	if err != nil {
		return nil, err
	}

	return &CategoryArticles{Articles: articles, FetchedAt: fetchedAt}, nil
}

func (s *Store) fetchedAt(ctx context.Context, category string) (string, error) {
	var fetchedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM cache_metadata WHERE category = ?`, category,
	).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("キャッシュメタデータの取得に失敗しました: %w", err)
	}
	return fetchedAt, nil
}

// GetArticleByURL はURLで記事を取得する。見つからない場合はnilを返す。
func (s *Store) GetArticleByURL(ctx context.Context, url string) (*model.Article, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT article FROM articles WHERE url = ?`, url).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}

	a := &model.Article{}
	if err := json.Unmarshal([]byte(raw), a); err != nil {
		return nil, fmt.Errorf("記事のデコードに失敗しました: %w", err)
	}
	return a, nil
}

// SaveArticles はカテゴリの記事とfetchedAtを1トランザクションで保存する。
// 記事はURLで重複排除（最後の出現を採用）され、現在時刻で書き込み時刻が更新される。
// 既存のURLは最後に保存したカテゴリに付け替わる。
func (s *Store) SaveArticles(ctx context.Context, category string, articles []model.Article, fetchedAt string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	unique := model.DedupeArticles(articles)
	ts := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO articles (url, category, timestamp, article)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		    category = excluded.category,
		    timestamp = excluded.timestamp,
		    article = excluded.article`,
	)
	if err != nil {
		return fmt.Errorf("記事保存の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, a := range unique {
		if a.URL == "" {
			return fmt.Errorf("URLが空の記事は保存できません: %q", a.Title)
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("記事のエンコードに失敗しました: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, a.URL, category, ts, string(raw)); err != nil {
			return fmt.Errorf("記事の保存に失敗しました (%s): %w", a.URL, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cache_metadata (category, fetched_at) VALUES (?, ?)
		 ON CONFLICT(category) DO UPDATE SET fetched_at = excluded.fetched_at`,
		category, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("キャッシュメタデータの保存に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("記事保存のコミットに失敗しました: %w", err)
	}
	return nil
}

// CleanupExpiredArticles は保持期間を超えた記事を削除し、削除件数を返す。
func (s *Store) CleanupExpiredArticles(ctx context.Context) (int64, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	return s.sweeper.Run(ctx, s.db, s.now())
}
