package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/readon/internal/model"
)

// ErrBookmarkNotFound は更新対象のブックマークが存在しない場合に返される。
var ErrBookmarkNotFound = errors.New("bookmark not found")

// AddBookmark は記事をブックマークに追加する。
// 既にブックマーク済みのURLは追加日時を保ったまま記事・メモ・タグを置き換える。
func (s *Store) AddBookmark(ctx context.Context, article model.Article, notes string, tags []string) error {
	if article.URL == "" {
		return fmt.Errorf("URLが空の記事はブックマークできません")
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	rawArticle, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("記事のエンコードに失敗しました: %w", err)
	}
	rawTags, err := encodeTags(tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (url, article, notes, tags, added_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		    article = excluded.article,
		    notes = excluded.notes,
		    tags = excluded.tags`,
		article.URL, string(rawArticle), notes, rawTags, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("ブックマークの保存に失敗しました: %w", err)
	}
	return nil
}

// UpdateBookmark はブックマークのメモとタグを更新する。
func (s *Store) UpdateBookmark(ctx context.Context, url, notes string, tags []string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	rawTags, err := encodeTags(tags)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE bookmarks SET notes = ?, tags = ? WHERE url = ?`,
		notes, rawTags, url,
	)
	if err != nil {
		return fmt.Errorf("ブックマークの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrBookmarkNotFound
	}
	return nil
}

// RemoveBookmark はブックマークを削除する。存在しない場合もエラーにならない。
func (s *Store) RemoveBookmark(ctx context.Context, url string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE url = ?`, url); err != nil {
		return fmt.Errorf("ブックマークの削除に失敗しました: %w", err)
	}
	return nil
}

// IsBookmarked はURLがブックマーク済みかどうかを返す。
func (s *Store) IsBookmarked(ctx context.Context, url string) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM bookmarks WHERE url = ?`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ブックマークの確認に失敗しました: %w", err)
	}
	return true, nil
}

// ListBookmarks はブックマークを追加日時の新しい順に返す。
func (s *Store) ListBookmarks(ctx context.Context) ([]model.Bookmark, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT article, notes, tags, added_at FROM bookmarks ORDER BY added_at DESC, url`,
	)
	if err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	bookmarks := []model.Bookmark{}
	for rows.Next() {
		var rawArticle, rawTags string
		var b model.Bookmark
		if err := rows.Scan(&rawArticle, &b.Notes, &rawTags, &b.AddedAt); err != nil {
			return nil, fmt.Errorf("ブックマークのスキャンに失敗しました: %w", err)
		}
		if err := json.Unmarshal([]byte(rawArticle), &b.Article); err != nil {
			return nil, fmt.Errorf("ブックマーク記事のデコードに失敗しました: %w", err)
		}
		if err := json.Unmarshal([]byte(rawTags), &b.Tags); err != nil {
			return nil, fmt.Errorf("ブックマークタグのデコードに失敗しました: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の読み込みに失敗しました: %w", err)
	}
	return bookmarks, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("タグのエンコードに失敗しました: %w", err)
	}
	return string(raw), nil
}
