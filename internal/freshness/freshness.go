// Package freshness はローカルキャッシュの鮮度判定を提供する。
package freshness

import (
	"time"

	"github.com/hitoshi/readon/internal/model"
)

// Window はキャッシュを新鮮とみなす期間。
const Window = 2 * time.Hour

// Decision は鮮度判定の結果。
type Decision struct {
	ServeLocal    bool // ローカルの記事をすぐに表示する
	ShouldRefresh bool // リモートから取得し直す
}

// Decide はローカルデータの有無とfetchedAtから表示・再取得の要否を判定する。
// fetchedAtが空またはパースできない場合は無限に古いものとして扱う。
// 副作用はない。
func Decide(now time.Time, fetchedAt string, hasLocalData bool) Decision {
	return Decision{
		ServeLocal:    hasLocalData,
		ShouldRefresh: !hasLocalData || IsStale(now, fetchedAt),
	}
}

// IsStale はfetchedAtからWindow以上経過しているかどうかを返す。
func IsStale(now time.Time, fetchedAt string) bool {
	t, ok := model.ParseTimestamp(fetchedAt)
	if !ok {
		return true
	}
	return now.Sub(t) >= Window
}
