// Package repository はリモートドキュメントストアへのアクセスを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/readon/internal/model"
)

// CronStateID はバッチローテーションのカーソルを保存するドキュメントID。
const CronStateID = "last_batch"

// DocumentRepository はカテゴリ単位のニュースドキュメントの永続化インターフェース。
type DocumentRepository interface {
	// GetCategoryDocument は指定カテゴリのドキュメントを取得する。見つからない場合はnilを返す。
	GetCategoryDocument(ctx context.Context, category string) (*model.RemoteCategoryDocument, error)

	// PutCategoryDocument は指定カテゴリのドキュメントを丸ごと置き換える（存在しない場合は作成する）。
	PutCategoryDocument(ctx context.Context, category string, doc *model.RemoteCategoryDocument) error

	// FindArticleByURL は全カテゴリのドキュメントからURLが一致する記事を検索する。
	// 見つからない場合はnilを返す。
	FindArticleByURL(ctx context.Context, url string) (*model.Article, error)

	// ListFetchedAt はドキュメントが存在するカテゴリのfetchedAtをカテゴリ別に返す。
	ListFetchedAt(ctx context.Context) (map[string]string, error)
}

// CronStateRepository はバッチローテーションのカーソルの永続化インターフェース。
type CronStateRepository interface {
	// GetCronState は指定IDのカーソルを取得する。見つからない場合はnilを返す。
	GetCronState(ctx context.Context, id string) (*model.CronState, error)

	// PutCronState は指定IDのカーソルを保存する。
	PutCronState(ctx context.Context, id string, state *model.CronState) error
}
