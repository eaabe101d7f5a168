package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/readon/internal/config"
	"github.com/hitoshi/readon/internal/localstore"
	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/reader"
	"github.com/hitoshi/readon/internal/security"
)

// runRead はカテゴリの記事をオフラインファーストで表示する。
// ローカルストアの記事を即座に表示し、古ければサーバーから再取得して表示し直す。
// args[0]でカテゴリを指定し、省略時はtopを表示する。
func runRead(ctx context.Context, cfg *config.Config, args []string) error {
	category := model.DefaultCategory
	if len(args) > 0 {
		category = strings.ToLower(strings.TrimSpace(args[0]))
	}
	if !model.IsValidCategory(category) {
		return fmt.Errorf("unknown category %q (available: %s)", category, strings.Join(model.CategorySlugs(), ", "))
	}

	// ローカルストアが開けない場合はキャッシュなしとして続行する
	var local reader.LocalStore
	store, err := localstore.Open(cfg.LocalStorePath, localstore.WithLogger(slog.Default()))
	if err != nil {
		slog.Warn("local store unavailable; reading from server only",
			slog.String("path", cfg.LocalStorePath),
			slog.String("error", err.Error()),
		)
	} else {
		defer store.Close()
		local = store
	}

	remote := reader.NewHTTPSource(&http.Client{Timeout: cfg.FetchTimeout}, cfg.APIBaseURL)
	r := reader.New(local, remote, slog.Default())

	err = r.Load(ctx, category, func(v reader.View) {
		renderView(output, v)
	})
	if errors.Is(err, reader.ErrNoData) {
		return fmt.Errorf("no articles available for %q: %w", category, err)
	}
	return err
}

// renderView は記事一覧をテキストで書き出す。
func renderView(w io.Writer, v reader.View) {
	status := string(v.Source)
	if v.Stale {
		status += ", stale"
	}
	fetchedAt := v.FetchedAt
	if fetchedAt == "" {
		fetchedAt = "unknown"
	}

	fmt.Fprintf(w, "== %s (%s) fetched %s ==\n", v.Category, status, fetchedAt)
	for i, a := range v.Articles {
		fmt.Fprintf(w, "%2d. %s\n", i+1, a.Title)
		meta := []string{}
		if a.Source.Name != "" {
			meta = append(meta, a.Source.Name)
		}
		if a.PublishedAt != "" {
			meta = append(meta, a.PublishedAt)
		}
		if len(meta) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(meta, " | "))
		}
		fmt.Fprintf(w, "    %s\n", a.URL)
	}
}

// runBookmark は記事をブックマークに追加する。
// args: <url> [notes] [tags...]
// ローカルストアに記事があればその内容を、なければURLのみの記事を保存する。
func runBookmark(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: bookmark <url> [notes] [tags...]")
	}

	url := strings.TrimSpace(args[0])
	if err := security.ValidateArticleURL(url); err != nil {
		return fmt.Errorf("invalid url %q: %w", url, err)
	}

	var notes string
	var tags []string
	if len(args) > 1 {
		notes = args[1]
	}
	if len(args) > 2 {
		tags = args[2:]
	}

	store, err := localstore.Open(cfg.LocalStorePath, localstore.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer store.Close()

	article, err := store.GetArticleByURL(ctx, url)
	if err != nil {
		return err
	}
	if article == nil {
		article = &model.Article{Title: url, URL: url}
	}

	if err := store.AddBookmark(ctx, *article, notes, tags); err != nil {
		return err
	}

	fmt.Fprintf(output, "bookmarked: %s\n", article.Title)
	return nil
}

// runBookmarks はブックマーク一覧を表示する。
func runBookmarks(ctx context.Context, cfg *config.Config) error {
	store, err := localstore.Open(cfg.LocalStorePath, localstore.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer store.Close()

	bookmarks, err := store.ListBookmarks(ctx)
	if err != nil {
		return err
	}
	if len(bookmarks) == 0 {
		fmt.Fprintln(output, "no bookmarks")
		return nil
	}

	for _, b := range bookmarks {
		fmt.Fprintf(output, "* %s\n    %s\n", b.Article.Title, b.Article.URL)
		if b.Notes != "" {
			fmt.Fprintf(output, "    notes: %s\n", b.Notes)
		}
		if len(b.Tags) > 0 {
			fmt.Fprintf(output, "    tags: %s\n", strings.Join(b.Tags, ", "))
		}
	}
	return nil
}
