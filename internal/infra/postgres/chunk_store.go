package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/study-rag/internal/core/indexing"
)

const defaultSearchTopK = 5

// DefaultEfSearch は検索時に設定する hnsw.ef_search
const DefaultEfSearch = 200

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore は pgvector を使った indexing.ChunkIndex の実装。
// スコアはコサイン類似度 (1 - コサイン距離)。
type ChunkStore struct {
	db       DBTX
	pool     *pgxpool.Pool
	embedder Embedder
	efSearch int
	logger   *slog.Logger
}

// ChunkStoreOption は ChunkStore のオプション
type ChunkStoreOption func(*ChunkStore)

// WithChunkStoreLogger はロガーを設定する
func WithChunkStoreLogger(logger *slog.Logger) ChunkStoreOption {
	return func(s *ChunkStore) {
		s.logger = logger
	}
}

// WithEfSearch は検索時の hnsw.ef_search を設定する
func WithEfSearch(n int) ChunkStoreOption {
	return func(s *ChunkStore) {
		if n > 0 {
			s.efSearch = n
		}
	}
}

// NewChunkStore は新しい ChunkStore を返す。
func NewChunkStore(pool *pgxpool.Pool, embedder Embedder, opts ...ChunkStoreOption) *ChunkStore {
	s := &ChunkStore{
		db:       pool,
		pool:     pool,
		embedder: embedder,
		efSearch: DefaultEfSearch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

var _ indexing.ChunkIndex = (*ChunkStore)(nil)

// Add はチャンクを Embedding 付きで保存する
// 空テキストのチャンクはベクトルを持たず、検索対象にならない
func (s *ChunkStore) Add(ctx context.Context, record *indexing.Record) error {
	var embedding *pgvector.Vector
	if strings.TrimSpace(record.Text) != "" {
		vec, err := s.embedder.Embed(ctx, record.Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk: %w", err)
		}
		embedding = VectorOrNull(vec)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO chunks (id, source_id, notebook_id, title, link, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		UUIDToPgtype(record.ID),
		UUIDToPgtype(record.Metadata.SourceID),
		UUIDToPgtype(record.Metadata.NotebookID),
		record.Metadata.Title,
		record.Metadata.Link,
		record.Metadata.ChunkIndex,
		record.Text,
		embedding,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (s *ChunkStore) DeleteBySource(ctx context.Context, sourceID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, UUIDToPgtype(sourceID))
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	s.logger.Debug("chunks deleted", "source_id", sourceID, "count", tag.RowsAffected())
	return nil
}

func (s *ChunkStore) Search(ctx context.Context, req indexing.SearchRequest) ([]*indexing.SearchHit, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}

	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin search transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// HNSW はノートブック条件を候補取得後に適用するため、候補数を広げておく
	if _, err := tx.Exec(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, strconv.Itoa(s.efSearch)); err != nil {
		return nil, fmt.Errorf("failed to set hnsw.ef_search: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, source_id, notebook_id, title, link, chunk_index, content,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE notebook_id = $2
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1, chunk_index
		LIMIT $4`,
		pgvector.NewVector(vec),
		UUIDToPgtype(req.NotebookID),
		req.ScoreThreshold,
		topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]*indexing.SearchHit, 0, topK)
	for rows.Next() {
		var (
			id, sourceID, notebookID pgtype.UUID
			title, link, content     string
			chunkIndex               int32
			score                    float64
		)
		if err := rows.Scan(&id, &sourceID, &notebookID, &title, &link, &chunkIndex, &content, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		hits = append(hits, &indexing.SearchHit{
			Record: &indexing.Record{
				ID:   PgtypeToUUID(id),
				Text: content,
				Metadata: indexing.Metadata{
					SourceID:   PgtypeToUUID(sourceID),
					NotebookID: PgtypeToUUID(notebookID),
					Title:      title,
					Link:       link,
					ChunkIndex: int(chunkIndex),
				},
			},
			Score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return hits, nil
}
