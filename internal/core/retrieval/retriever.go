package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/indexing"
)

const (
	// AdvisoryTopK はチャット用検索の取得件数
	AdvisoryTopK = 5

	// ContextQuery はコンテキスト組み立て用の固定クエリ
	ContextQuery = "key concepts definitions explanations important information details"

	// SubstantiveMinRunes を超える長さのチャンクを「実質的」とみなす
	SubstantiveMinRunes = 100

	contextSeparator = "\n\n"
)

// Retriever はノートブック単位でチャンクインデックスを検索する
// インデックスとの通信失敗は空の結果として扱い、呼び出し元へエラーを返さない
type Retriever struct {
	index  indexing.ChunkIndex
	logger *slog.Logger
}

// RetrieverOption は Retriever のオプション
type RetrieverOption func(*Retriever)

// WithRetrieverLogger はロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(index indexing.ChunkIndex, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		index:  index,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Advisory はユーザーの質問に近いチャンクを上位 AdvisoryTopK 件返す
// スコアによる足切りは行わない
func (r *Retriever) Advisory(ctx context.Context, notebookID uuid.UUID, query string) []*indexing.SearchHit {
	return r.search(ctx, indexing.SearchRequest{
		Query:          query,
		NotebookID:     notebookID,
		TopK:           AdvisoryTopK,
		ScoreThreshold: 0,
	})
}

// Documents は固定クエリでノートブックのチャンクを取得する
// 実質的なチャンクがあればそれだけを、なければ検索結果をそのまま返す
func (r *Retriever) Documents(ctx context.Context, notebookID uuid.UUID, topK int) []*indexing.Record {
	hits := r.search(ctx, indexing.SearchRequest{
		Query:          ContextQuery,
		NotebookID:     notebookID,
		TopK:           topK,
		ScoreThreshold: 0,
	})

	all := make([]*indexing.Record, 0, len(hits))
	substantive := make([]*indexing.Record, 0, len(hits))
	for _, hit := range hits {
		if hit == nil || hit.Record == nil {
			continue
		}
		all = append(all, hit.Record)
		if IsSubstantive(hit.Record.Text) {
			substantive = append(substantive, hit.Record)
		}
	}

	if len(substantive) == 0 {
		return all
	}
	return substantive
}

// AssembleContext は Documents の結果を結合したコンテキスト文字列を返す
// 空文字列はコンテキストなしを意味する
func (r *Retriever) AssembleContext(ctx context.Context, notebookID uuid.UUID, topK int) string {
	return MergeContext(r.Documents(ctx, notebookID, topK))
}

func (r *Retriever) search(ctx context.Context, req indexing.SearchRequest) []*indexing.SearchHit {
	hits, err := r.index.Search(ctx, req)
	if err != nil {
		r.logger.Warn("chunk search failed",
			"notebookID", req.NotebookID.String(),
			"topK", req.TopK,
			"error", err,
		)
		return nil
	}
	return hits
}

// IsSubstantive はテキストが SubstantiveMinRunes 文字を超えるか判定する
func IsSubstantive(text string) bool {
	return utf8.RuneCountInString(text) > SubstantiveMinRunes
}

// MergeContext はチャンク本文を順位順に空行区切りで結合する
// 空白のみのチャンクは除外する
func MergeContext(records []*indexing.Record) string {
	parts := make([]string, 0, len(records))
	for _, rec := range records {
		if rec == nil || strings.TrimSpace(rec.Text) == "" {
			continue
		}
		parts = append(parts, rec.Text)
	}
	return strings.Join(parts, contextSeparator)
}
