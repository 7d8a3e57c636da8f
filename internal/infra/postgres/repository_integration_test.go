package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/artifact"
	"github.com/jinford/study-rag/internal/core/indexing"
	"github.com/jinford/study-rag/internal/core/job"
	"github.com/jinford/study-rag/internal/core/notebook"
)

// hashEmbedder は単語をハッシュして testDimension 次元に詰める決定的なEmbedder
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDimension)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%testDimension]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return nil, errors.New("empty text")
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / math.Sqrt(norm))
	}
	return vec, nil
}

func seedNotebook(t *testing.T, repo *NotebookRepository, userID uuid.UUID) *notebook.Notebook {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	nb := &notebook.Notebook{ID: uuid.New(), UserID: userID, Title: "Biology", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateNotebook(t.Context(), nb))
	return nb
}

func seedSource(t *testing.T, repo *NotebookRepository, nb *notebook.Notebook, content string) *notebook.Source {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	link := "https://example.com/" + uuid.NewString()
	src := &notebook.Source{ID: uuid.New(), NotebookID: nb.ID, Title: "Cells", Link: &link, Content: content, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateSource(t.Context(), src))
	return src
}

func TestNotebookRepository_Integration(t *testing.T) {
	db := requireDB(t)
	ctx := t.Context()
	repo := NewNotebookRepository(db.Pool)
	userID := uuid.New()

	nb := seedNotebook(t, repo, userID)

	got, err := repo.GetNotebook(ctx, nb.ID)
	require.NoError(t, err)
	assert.Equal(t, "Biology", got.Title)
	assert.Nil(t, got.Summary)

	require.NoError(t, repo.UpdateSummary(ctx, nb.ID, "All about cells."))
	got, err = repo.GetNotebook(ctx, nb.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "All about cells.", *got.Summary)

	has, err := repo.HasSources(ctx, nb.ID)
	require.NoError(t, err)
	assert.False(t, has)

	first := seedSource(t, repo, nb, "mitochondria produce energy")
	second := seedSource(t, repo, nb, "ribosomes build proteins")

	sources, err := repo.ListSources(ctx, nb.ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, first.ID, sources[0].ID)
	assert.Equal(t, second.ID, sources[1].ID)
	assert.Equal(t, first.LinkOrEmpty(), sources[0].LinkOrEmpty())

	require.NoError(t, repo.DeleteSource(ctx, first.ID))
	_, err = repo.GetSource(ctx, first.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSource(ctx, first.ID), apperr.ErrNotFound)

	_, err = repo.GetNotebook(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateSummary(ctx, uuid.New(), "x"), apperr.ErrNotFound)

	now := time.Now().UTC()
	orphan := &notebook.Source{ID: uuid.New(), NotebookID: uuid.New(), Title: "orphan", Content: "x", CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, repo.CreateSource(ctx, orphan), apperr.ErrNotFound)

	other := seedNotebook(t, repo, userID)
	list, err := repo.ListNotebooksByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, other.ID, list[0].ID)
}

func TestJobRepository_Integration(t *testing.T) {
	db := requireDB(t)
	ctx := t.Context()
	notebooks := NewNotebookRepository(db.Pool)
	jobs := NewJobRepository(db.Pool)
	userID := uuid.New()
	nb := seedNotebook(t, notebooks, userID)

	now := time.Now().UTC().Truncate(time.Microsecond)
	j := job.New(uuid.New(), nb.ID, userID, artifact.TypeFlashcards, now)
	require.NoError(t, jobs.Insert(ctx, j))

	// 未完了のジョブがある間は同じ種別を登録できない
	dup := job.New(uuid.New(), nb.ID, userID, artifact.TypeFlashcards, now)
	assert.ErrorIs(t, jobs.Insert(ctx, dup), apperr.ErrConflict)

	// 別の種別は登録できる
	require.NoError(t, jobs.Insert(ctx, job.New(uuid.New(), nb.ID, userID, artifact.TypeMindMap, now.Add(time.Second))))

	active, err := jobs.FindActiveByType(ctx, nb.ID, userID, artifact.TypeFlashcards)
	require.NoError(t, err)
	require.Len(t, active, 1)

	// 条件付き遷移は一度しか成功しない
	claimed := j.Clone()
	require.NoError(t, claimed.Start(now))
	ok, err := jobs.Transition(ctx, claimed, job.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = jobs.Transition(ctx, claimed, job.StatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, claimed.Complete(`{"cards":[]}`, now.Add(2*time.Second)))
	ok, err = jobs.Transition(ctx, claimed, job.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := jobs.FindByIDAndUser(ctx, j.ID, userID)
	require.NoError(t, err)
	require.True(t, stored.IsPresent())
	assert.Equal(t, job.StatusCompleted, stored.MustGet().Status)
	require.NotNil(t, stored.MustGet().CompletedAt)
	assert.Nil(t, stored.MustGet().ErrorMessage)

	other, err := jobs.FindByIDAndUser(ctx, j.ID, uuid.New())
	require.NoError(t, err)
	assert.True(t, other.IsAbsent())

	latest, err := jobs.FindLatestCompletedByType(ctx, nb.ID, userID, artifact.TypeFlashcards)
	require.NoError(t, err)
	assert.Equal(t, j.ID, latest.MustGet().ID)

	// 終端状態になれば再登録できる
	require.NoError(t, jobs.Insert(ctx, job.New(uuid.New(), nb.ID, userID, artifact.TypeFlashcards, now.Add(3*time.Second))))

	all, err := jobs.FindByNotebookAndUser(ctx, nb.ID, userID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))
}

func TestJobRepository_ConcurrentInsert(t *testing.T) {
	db := requireDB(t)
	ctx := t.Context()
	notebooks := NewNotebookRepository(db.Pool)
	jobs := NewJobRepository(db.Pool)
	userID := uuid.New()
	nb := seedNotebook(t, notebooks, userID)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := jobs.Insert(ctx, job.New(uuid.New(), nb.ID, userID, artifact.TypeQuestionnaire, time.Now()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestTransact_RollsBackOnError(t *testing.T) {
	db := requireDB(t)
	ctx := t.Context()
	txp := NewTransactionProvider(db.Pool)
	userID := uuid.New()
	nb := seedNotebook(t, NewNotebookRepository(db.Pool), userID)
	j := job.New(uuid.New(), nb.ID, userID, artifact.TypeStudyGuide, time.Now())

	_, err := Transact(ctx, txp, func(a *Adapter) (struct{}, error) {
		if err := a.Locks.Acquire(ctx, jobLockID(j)); err != nil {
			return struct{}{}, err
		}
		if err := a.Jobs.insertLocked(ctx, j); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	found, err := NewJobRepository(db.Pool).FindByID(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, found.IsAbsent())

	// ロックはトランザクション終了で解放されている
	require.NoError(t, NewJobRepository(db.Pool).Insert(ctx, j))
}

func TestChunkStore_Integration(t *testing.T) {
	db := requireDB(t)
	ctx := t.Context()
	notebooks := NewNotebookRepository(db.Pool)
	store := NewChunkStore(db.Pool, hashEmbedder{})
	userID := uuid.New()
	nb := seedNotebook(t, notebooks, userID)
	otherNb := seedNotebook(t, notebooks, userID)
	src := seedSource(t, notebooks, nb, "ignored")
	otherSrc := seedSource(t, notebooks, otherNb, "ignored")

	add := func(s *notebook.Source, idx int, text string) {
		require.NoError(t, store.Add(ctx, &indexing.Record{
			ID:   uuid.New(),
			Text: text,
			Metadata: indexing.Metadata{
				SourceID: s.ID, NotebookID: s.NotebookID, Title: s.Title, Link: s.LinkOrEmpty(), ChunkIndex: idx,
			},
		}))
	}
	add(src, 0, "mitochondria produce energy for the cell")
	add(src, 1, "")
	add(src, 2, "ribosomes build proteins")
	add(otherSrc, 0, "mitochondria produce energy for the cell")

	hits, err := store.Search(ctx, indexing.SearchRequest{Query: "mitochondria produce energy for the cell", NotebookID: nb.ID, TopK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 0, hits[0].Record.Metadata.ChunkIndex)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	for i, h := range hits {
		assert.Equal(t, nb.ID, h.Record.Metadata.NotebookID)
		if i > 0 {
			assert.LessOrEqual(t, h.Score, hits[i-1].Score)
		}
	}

	strict, err := store.Search(ctx, indexing.SearchRequest{Query: "mitochondria produce energy for the cell", NotebookID: nb.ID, TopK: 10, ScoreThreshold: 0.999})
	require.NoError(t, err)
	assert.Len(t, strict, 1)

	require.NoError(t, store.DeleteBySource(ctx, src.ID))
	hits, err = store.Search(ctx, indexing.SearchRequest{Query: "mitochondria", NotebookID: nb.ID})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChunkStore_SmallNotebookAmongManyChunks(t *testing.T) {
	db := requireDB(t)
	ctx := t.Context()
	notebooks := NewNotebookRepository(db.Pool)
	store := NewChunkStore(db.Pool, hashEmbedder{}, WithEfSearch(DefaultEfSearch))
	userID := uuid.New()
	large := seedNotebook(t, notebooks, userID)
	small := seedNotebook(t, notebooks, userID)
	largeSrc := seedSource(t, notebooks, large, "ignored")
	smallSrc := seedSource(t, notebooks, small, "ignored")

	// 質問に近いチャンクはすべて別ノートブックにある
	for i := range 150 {
		require.NoError(t, store.Add(ctx, &indexing.Record{
			ID:   uuid.New(),
			Text: "mitochondria produce energy for the cell",
			Metadata: indexing.Metadata{
				SourceID: largeSrc.ID, NotebookID: large.ID, Title: largeSrc.Title, ChunkIndex: i,
			},
		}))
	}
	require.NoError(t, store.Add(ctx, &indexing.Record{
		ID:   uuid.New(),
		Text: "ribosomes build proteins from amino acids",
		Metadata: indexing.Metadata{
			SourceID: smallSrc.ID, NotebookID: small.ID, Title: smallSrc.Title,
		},
	}))

	hits, err := store.Search(ctx, indexing.SearchRequest{Query: "mitochondria produce energy for the cell", NotebookID: small.ID, TopK: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, small.ID, hits[0].Record.Metadata.NotebookID)
}

func TestNotebookRepository_UpdatesAndNotes(t *testing.T) {
	db := requireDB(t)
	ctx := t.Context()
	repo := NewNotebookRepository(db.Pool)
	jobs := NewJobRepository(db.Pool)
	userID := uuid.New()
	nb := seedNotebook(t, repo, userID)

	nb.Title = "Cell biology"
	nb.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.UpdateNotebook(ctx, nb))
	got, err := repo.GetNotebook(ctx, nb.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cell biology", got.Title)

	src := seedSource(t, repo, nb, "mitochondria produce energy")
	summary := "Mitochondria make ATP."
	src.Title = "Organelles"
	src.Link = nil
	src.Summary = &summary
	require.NoError(t, repo.UpdateSource(ctx, src))
	stored, err := repo.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "Organelles", stored.Title)
	assert.Nil(t, stored.Link)
	require.NotNil(t, stored.Summary)
	assert.Equal(t, summary, *stored.Summary)
	assert.Equal(t, "mitochondria produce energy", stored.Content)

	now := time.Now().UTC().Truncate(time.Microsecond)
	note := &notebook.Note{ID: uuid.New(), NotebookID: nb.ID, Title: "Exam", Content: "Chapter 3", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateNote(ctx, note))
	orphan := &notebook.Note{ID: uuid.New(), NotebookID: uuid.New(), Title: "orphan", CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, repo.CreateNote(ctx, orphan), apperr.ErrNotFound)

	note.Content = "Chapters 3 and 4"
	require.NoError(t, repo.UpdateNote(ctx, note))
	notes, err := repo.ListNotes(ctx, nb.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Chapters 3 and 4", notes[0].Content)

	require.NoError(t, jobs.Insert(ctx, job.New(uuid.New(), nb.ID, userID, artifact.TypeMindMap, now)))

	// ソース・ノート・ジョブはノートブックと一緒に消える
	require.NoError(t, repo.DeleteNotebook(ctx, nb.ID))
	_, err = repo.GetSource(ctx, src.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	all, err := jobs.FindByNotebookAndUser(ctx, nb.ID, userID)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.ErrorIs(t, repo.DeleteNotebook(ctx, nb.ID), apperr.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteNote(ctx, note.ID), apperr.ErrNotFound)
}
