package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/readon/internal/model"
)

// PostgresDocumentRepo はPostgreSQLのJSONB列を使用したニュースドキュメントリポジトリ。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

// GetCategoryDocument は指定カテゴリのドキュメントを取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) GetCategoryDocument(ctx context.Context, category string) (*model.RemoteCategoryDocument, error) {
	var raw []byte
	doc := &model.RemoteCategoryDocument{}

	err := r.db.QueryRowContext(ctx,
		`SELECT articles, fetched_at FROM news WHERE category = $1`,
		category,
	).Scan(&raw, &doc.FetchedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ニュースドキュメントの取得に失敗しました: %w", err)
	}

	if err := json.Unmarshal(raw, &doc.Articles); err != nil {
		return nil, fmt.Errorf("ニュースドキュメントのデコードに失敗しました: %w", err)
	}
	if doc.Articles == nil {
		doc.Articles = []model.Article{}
	}

	return doc, nil
}

// PutCategoryDocument は指定カテゴリのドキュメントを丸ごと置き換える。
func (r *PostgresDocumentRepo) PutCategoryDocument(ctx context.Context, category string, doc *model.RemoteCategoryDocument) error {
	articles := doc.Articles
	if articles == nil {
		articles = []model.Article{}
	}
	raw, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("ニュースドキュメントのエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO news (category, articles, fetched_at, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (category) DO UPDATE SET
		    articles = EXCLUDED.articles,
		    fetched_at = EXCLUDED.fetched_at,
		    updated_at = now()`,
		category, raw, doc.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("ニュースドキュメントの保存に失敗しました: %w", err)
	}
	return nil
}

// FindArticleByURL は全カテゴリのドキュメントからURLが一致する記事を検索する。
// 複数カテゴリに存在する場合は最も新しく取得されたドキュメントの記事を返す。
func (r *PostgresDocumentRepo) FindArticleByURL(ctx context.Context, url string) (*model.Article, error) {
	var raw []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT elem
		 FROM news, jsonb_array_elements(news.articles) AS elem
		 WHERE elem->>'url' = $1
		 ORDER BY news.fetched_at DESC
		 LIMIT 1`,
		url,
	).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによる記事の検索に失敗しました: %w", err)
	}

	article := &model.Article{}
	if err := json.Unmarshal(raw, article); err != nil {
		return nil, fmt.Errorf("記事のデコードに失敗しました: %w", err)
	}
	return article, nil
}

// ListFetchedAt はドキュメントが存在するカテゴリのfetchedAtをカテゴリ別に返す。
func (r *PostgresDocumentRepo) ListFetchedAt(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, fetched_at FROM news`)
	if err != nil {
		return nil, fmt.Errorf("ニュースドキュメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var category, fetchedAt string
		if err := rows.Scan(&category, &fetchedAt); err != nil {
			return nil, fmt.Errorf("ニュースドキュメント一覧のスキャンに失敗しました: %w", err)
		}
		result[category] = fetchedAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ニュースドキュメント一覧の読み込みに失敗しました: %w", err)
	}
	return result, nil
}
