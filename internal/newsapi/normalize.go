package newsapi

import (
	"fmt"
	"strings"

	"github.com/hitoshi/readon/internal/model"
	"github.com/hitoshi/readon/internal/security"
)

// RejectReason は正規化で記事を除外した理由。
type RejectReason string

const (
	ReasonMissingTitle RejectReason = "missing_title"
	ReasonMissingURL   RejectReason = "missing_url"
	ReasonRemoved      RejectReason = "removed"
)

// FieldMap は上流レコードのフィールド名とArticleの対応。
// ネストしたフィールドは "source.name" のようにドットで指定する。
type FieldMap struct {
	Title       string
	URL         string
	Description string
	Content     string
	ImageURL    string
	PublishedAt string
	SourceName  string
	SourceURL   string
}

// Result は1レコードの正規化結果。Reasonが空なら採用、そうでなければ除外。
type Result struct {
	Article model.Article
	Reason  RejectReason
}

// Accepted は記事が採用されたかどうかを返す。
func (r Result) Accepted() bool {
	return r.Reason == ""
}

// Normalizer は上流レコードをArticleに変換する境界。
// 型の合わないフィールドは欠損として扱い、既定値で補完する。
type Normalizer struct {
	sanitizer security.TextSanitizer
}

// NewNormalizer はNormalizerを生成する。
func NewNormalizer(sanitizer security.TextSanitizer) *Normalizer {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Normalizer{sanitizer: sanitizer}
}

// Normalize は1レコードを正規化する。
func (n *Normalizer) Normalize(record map[string]any, fields FieldMap) Result {
	title := strings.TrimSpace(n.sanitizer.Text(stringField(record, fields.Title)))
	url := stringField(record, fields.URL)

	switch {
	case title == "":
		return Result{Reason: ReasonMissingTitle}
	case url == "":
		return Result{Reason: ReasonMissingURL}
	case title == model.RemovedTitle:
		return Result{Reason: ReasonRemoved}
	}

	return Result{Article: model.Article{
		Title:       title,
		Description: orDefault(n.sanitizer.Text(stringField(record, fields.Description)), model.DefaultDescription),
		Content:     n.sanitizer.Text(stringField(record, fields.Content)),
		URL:         url,
		ImageURL:    orDefault(stringField(record, fields.ImageURL), model.DefaultImageURL),
		PublishedAt: model.NormalizePublishedAt(stringField(record, fields.PublishedAt)),
		Source: model.Source{
			Name: orDefault(stringField(record, fields.SourceName), model.DefaultSourceName),
			URL:  orDefault(stringField(record, fields.SourceURL), model.DefaultSourceURL),
		},
	}}
}

// NormalizeAll は複数レコードを正規化し、採用した記事と理由別の除外数を返す。
func (n *Normalizer) NormalizeAll(records []map[string]any, fields FieldMap) ([]model.Article, map[RejectReason]int) {
	articles := make([]model.Article, 0, len(records))
	rejected := make(map[RejectReason]int)
	for _, rec := range records {
		r := n.Normalize(rec, fields)
		if !r.Accepted() {
			rejected[r.Reason]++
			continue
		}
		articles = append(articles, r.Article)
	}
	return articles, rejected
}

// stringField はドット区切りのパスで値を取り出し、文字列に変換する。
func stringField(record map[string]any, path string) string {
	if path == "" || record == nil {
		return ""
	}
	var cur any = record
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}

	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
