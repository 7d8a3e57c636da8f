package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/indexing"
)

const defaultTopK = 5

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkIndex はプロセス内で完結する総当たりのチャンクインデックス
// Embedder がなければ単語頻度ベクトルのコサイン類似度で検索する
type ChunkIndex struct {
	mu       sync.RWMutex
	entries  []*entry
	embedder Embedder
}

type entry struct {
	record *indexing.Record
	vector map[string]float64
	dense  []float32
}

// ChunkIndexOption は ChunkIndex のオプション
type ChunkIndexOption func(*ChunkIndex)

// WithEmbedder は検索に Embedding を使うように設定する
func WithEmbedder(embedder Embedder) ChunkIndexOption {
	return func(c *ChunkIndex) {
		c.embedder = embedder
	}
}

// NewChunkIndex は空の ChunkIndex を作成する
func NewChunkIndex(opts ...ChunkIndexOption) *ChunkIndex {
	c := &ChunkIndex{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ChunkIndex) Add(ctx context.Context, record *indexing.Record) error {
	e := &entry{record: cloneRecord(record)}
	if c.embedder != nil {
		vec, err := c.embedder.Embed(ctx, record.Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk: %w", err)
		}
		e.dense = vec
	} else {
		e.vector = termFrequencies(record.Text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *ChunkIndex) DeleteBySource(ctx context.Context, sourceID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.record.Metadata.SourceID != sourceID {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(c.entries); i++ {
		c.entries[i] = nil
	}
	c.entries = kept
	return nil
}

func (c *ChunkIndex) Search(ctx context.Context, req indexing.SearchRequest) ([]*indexing.SearchHit, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	var (
		query map[string]float64
		dense []float32
	)
	if c.embedder != nil {
		vec, err := c.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		dense = vec
	} else {
		query = termFrequencies(req.Query)
	}

	c.mu.RLock()
	hits := make([]*indexing.SearchHit, 0)
	for _, e := range c.entries {
		if e.record.Metadata.NotebookID != req.NotebookID {
			continue
		}
		var score float64
		if dense != nil {
			score = denseCosine(dense, e.dense)
		} else {
			score = sparseCosine(query, e.vector)
		}
		if score < req.ScoreThreshold {
			continue
		}
		hits = append(hits, &indexing.SearchHit{Record: cloneRecord(e.record), Score: score})
	}
	c.mu.RUnlock()

	// 同点は追加順を保つ
	sort.SliceStable(hits, func(i, k int) bool {
		return hits[i].Score > hits[k].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Len は格納済みのチャンク数を返す
func (c *ChunkIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneRecord(r *indexing.Record) *indexing.Record {
	c := *r
	return &c
}

func termFrequencies(text string) map[string]float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tf := make(map[string]float64, len(words))
	for _, w := range words {
		tf[w]++
	}
	return tf
}

func sparseCosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, v := range a {
		na += v * v
		dot += v * b[k]
	}
	for _, v := range b {
		nb += v * v
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func denseCosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ indexing.ChunkIndex = (*ChunkIndex)(nil)
