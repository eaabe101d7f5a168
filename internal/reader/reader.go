// Package reader はオフラインファーストのニュース読み込みフローを提供する。
// ローカルストアの記事を即座に表示し、鮮度ポリシーに従ってリモートから再取得して書き戻す。
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/readon/internal/freshness"
	"github.com/hitoshi/readon/internal/localstore"
	"github.com/hitoshi/readon/internal/model"
)

// ErrNoData はローカルに記事がなく、リモート取得にも失敗した場合に返される。
var ErrNoData = errors.New("no cached articles and remote fetch failed")

// ViewSource は表示内容の取得元。
type ViewSource string

const (
	SourceLocal  ViewSource = "local"
	SourceRemote ViewSource = "remote"
)

// View はrenderに渡す表示内容。
type View struct {
	Category  string
	Articles  []model.Article
	FetchedAt string
	Source    ViewSource
	// Stale はローカルの記事が鮮度ウィンドウを超えていることを示す。
	Stale bool
}

// LocalStore はローカル記事ストアのインターフェース。
type LocalStore interface {
	GetArticlesByCategory(ctx context.Context, category string) (*localstore.CategoryArticles, error)
	SaveArticles(ctx context.Context, category string, articles []model.Article, fetchedAt string) error
}

// RemoteSource はカテゴリのドキュメントを取得するリモートソース。
type RemoteSource interface {
	FetchCategory(ctx context.Context, category string) (*model.RemoteCategoryDocument, error)
}

// Reader はオフラインファーストの読み込みを行う。
// アクティブなカテゴリを保持し、切り替え後に届いた古いカテゴリの結果は表示しない。
type Reader struct {
	local  LocalStore
	remote RemoteSource
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	active string
}

// New はReaderを生成する。localがnilの場合は常にキャッシュミスとして扱う。
func New(local LocalStore, remote RemoteSource, logger *slog.Logger) *Reader {
	return &Reader{
		local:  local,
		remote: remote,
		logger: logger,
		now:    time.Now,
	}
}

// SetActive はアクティブなカテゴリを切り替える。
func (r *Reader) SetActive(category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = category
}

// Active はアクティブなカテゴリを返す。
func (r *Reader) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Reader) isActive(category string) bool {
	return r.Active() == category
}

// Load はカテゴリを読み込み、表示可能になるたびにrenderを呼び出す。
// ローカルに記事があれば最初に表示し、鮮度ウィンドウを超えていればリモートから再取得する。
// リモート取得に失敗した場合、ローカルの記事があればそのまま表示を維持してnilを返し、
// なければErrNoDataを返す。
func (r *Reader) Load(ctx context.Context, category string, render func(View)) error {
	r.SetActive(category)

	cached := r.readLocal(ctx, category)
	hasLocal := cached != nil && len(cached.Articles) > 0

	var fetchedAt string
	if hasLocal {
		fetchedAt = cached.FetchedAt
	}
	decision := freshness.Decide(r.now(), fetchedAt, hasLocal)

	if decision.ServeLocal && r.isActive(category) {
		render(View{
			Category:  category,
			Articles:  cached.Articles,
			FetchedAt: cached.FetchedAt,
			Source:    SourceLocal,
			Stale:     decision.ShouldRefresh,
		})
	}

	if !decision.ShouldRefresh {
		return nil
	}

	doc, err := r.remote.FetchCategory(ctx, category)
	if err != nil {
		if hasLocal {
			r.logger.Warn("リモート取得に失敗したためローカルの記事を表示します",
				slog.String("category", category),
				slog.String("fetched_at", fetchedAt),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrNoData, err)
	}

	if r.isActive(category) {
		render(View{
			Category:  category,
			Articles:  doc.Articles,
			FetchedAt: doc.FetchedAt,
			Source:    SourceRemote,
		})
	} else {
		r.logger.Debug("カテゴリが切り替えられたためリモートの結果を表示しません",
			slog.String("category", category),
		)
	}

	r.saveLocal(ctx, category, doc)
	return nil
}

// readLocal はローカルストアを読み込む。エラーはキャッシュミスとして扱う。
func (r *Reader) readLocal(ctx context.Context, category string) *localstore.CategoryArticles {
	if r.local == nil {
		return nil
	}
	cached, err := r.local.GetArticlesByCategory(ctx, category)
	if err != nil {
		r.logger.Warn("ローカルストアの読み込みに失敗しました",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return cached
}

// saveLocal はリモートの記事をローカルストアに書き戻す。失敗しても表示には影響させない。
func (r *Reader) saveLocal(ctx context.Context, category string, doc *model.RemoteCategoryDocument) {
	if r.local == nil || len(doc.Articles) == 0 {
		return
	}
	if err := r.local.SaveArticles(ctx, category, doc.Articles, doc.FetchedAt); err != nil {
		r.logger.Warn("ローカルストアへの保存に失敗しました",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
	}
}
