package indexing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/chunk"
)

// Splitter はテキストをチャンクに分割するインターフェース
type Splitter interface {
	Split(text string) []chunk.Chunk
}

// Dispatcher はタスクを非同期実行へ渡すインターフェース
// TrySubmit はブロックせず、受け付けられない場合はエラーを返す
type Dispatcher interface {
	TrySubmit(task func(ctx context.Context)) error
}

// SourceContent はインデックス対象のソース
type SourceContent struct {
	NotebookID uuid.UUID
	SourceID   uuid.UUID
	Title      string
	Link       string
	Content    string
}

// IndexStats は1ソース分のインデックス結果
type IndexStats struct {
	Chunks  int
	Written int
	Failed  int
}

// Indexer はソース本文をチャンク化してチャンクインデックスへ書き込む
// 書き込みはベストエフォートで、失敗したチャンクは読み飛ばす
type Indexer struct {
	index      ChunkIndex
	splitter   Splitter
	dispatcher Dispatcher
	logger     *slog.Logger
	newID      func() uuid.UUID
}

// IndexerOption は Indexer のオプション
type IndexerOption func(*Indexer)

// WithIndexerLogger はロガーを設定する
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		ix.logger = logger
	}
}

// WithIDGenerator はチャンクID生成関数を差し替える
func WithIDGenerator(fn func() uuid.UUID) IndexerOption {
	return func(ix *Indexer) {
		ix.newID = fn
	}
}

// NewIndexer は新しい Indexer を作成する
func NewIndexer(index ChunkIndex, splitter Splitter, dispatcher Dispatcher, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		index:      index,
		splitter:   splitter,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		newID:      uuid.New,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}
	return ix
}

// IndexSource はインデックス処理をワーカーへ投入して即座に戻る
// 呼び出し元は成否を観測しない
func (ix *Indexer) IndexSource(src SourceContent) {
	err := ix.dispatcher.TrySubmit(func(ctx context.Context) {
		ix.IndexSourceNow(ctx, src)
	})
	if err != nil {
		ix.logger.Warn("indexing task dropped",
			"sourceID", src.SourceID.String(),
			"notebookID", src.NotebookID.String(),
			"error", err,
		)
	}
}

// IndexSourceNow は呼び出し元のゴルーチンでインデックス処理を実行する
func (ix *Indexer) IndexSourceNow(ctx context.Context, src SourceContent) IndexStats {
	chunks := ix.splitter.Split(src.Content)
	stats := IndexStats{Chunks: len(chunks)}

	title := src.Title
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	for i, c := range chunks {
		if ctx.Err() != nil {
			stats.Failed += len(chunks) - i
			break
		}

		record := &Record{
			ID:   ix.newID(),
			Text: c.Text,
			Metadata: Metadata{
				SourceID:   src.SourceID,
				NotebookID: src.NotebookID,
				Title:      title,
				Link:       src.Link,
				ChunkIndex: i,
			},
		}

		if err := ix.index.Add(ctx, record); err != nil {
			stats.Failed++
			ix.logger.Warn("failed to index chunk",
				"sourceID", src.SourceID.String(),
				"chunkIndex", i,
				"error", err,
			)
			continue
		}
		stats.Written++
	}

	ix.logger.Info("source indexed",
		"sourceID", src.SourceID.String(),
		"notebookID", src.NotebookID.String(),
		"chunks", stats.Chunks,
		"written", stats.Written,
		"failed", stats.Failed,
	)

	return stats
}

// DeleteIndexedSource はソースのチャンクをまとめて削除する
// 失敗は記録するだけで呼び出し元には返さない（インデックスは再構築可能な派生データ）
func (ix *Indexer) DeleteIndexedSource(ctx context.Context, sourceID uuid.UUID) {
	if err := ix.index.DeleteBySource(ctx, sourceID); err != nil {
		ix.logger.Warn("failed to delete indexed source",
			"sourceID", sourceID.String(),
			"error", err,
		)
	}
}
