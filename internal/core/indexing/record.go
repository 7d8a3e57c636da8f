package indexing

import (
	"context"

	"github.com/google/uuid"
)

// DefaultTitle はタイトル未設定のソースに付与するタイトル
const DefaultTitle = "Untitled"

// Metadata はチャンクに付与する検索用メタデータ
type Metadata struct {
	SourceID   uuid.UUID `json:"sourceId"`
	NotebookID uuid.UUID `json:"notebookId"`
	Title      string    `json:"title"`
	Link       string    `json:"link"`
	ChunkIndex int       `json:"chunkIndex"` // ソース内での0始まりの序数
}

// Record はチャンクインデックスに格納する単位
// Text は空文字列でも省略せずに格納する（序数の連続性を保つため）
type Record struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Metadata Metadata  `json:"metadata"`
}

// SearchRequest はチャンク検索の条件
type SearchRequest struct {
	Query          string
	NotebookID     uuid.UUID
	TopK           int
	ScoreThreshold float64
}

// SearchHit は検索結果の1件（スコアの降順で返される）
type SearchHit struct {
	Record *Record
	Score  float64
}

// ChunkIndex は近傍検索ストアの抽象
type ChunkIndex interface {
	// Add はチャンクを1件追加する
	Add(ctx context.Context, record *Record) error

	// DeleteBySource はソースIDに紐づくチャンクをまとめて削除する
	DeleteBySource(ctx context.Context, sourceID uuid.UUID) error

	// Search はノートブック内でクエリに近いチャンクを検索する
	Search(ctx context.Context, req SearchRequest) ([]*SearchHit, error)
}
