package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/artifact"
	"github.com/jinford/study-rag/internal/core/artifact/artifacttest"
	"github.com/jinford/study-rag/internal/core/chunk"
	"github.com/jinford/study-rag/internal/core/indexing"
	"github.com/jinford/study-rag/internal/core/job"
	"github.com/jinford/study-rag/internal/core/llm"
	"github.com/jinford/study-rag/internal/core/llm/llmtest"
	"github.com/jinford/study-rag/internal/core/notebook"
	"github.com/jinford/study-rag/internal/core/retrieval"
	"github.com/jinford/study-rag/internal/infra/memory"
)

const fiftyWords = "Photosynthesis is the process by which green plants and other organisms use sunlight " +
	"to synthesize foods from carbon dioxide and water. It generally involves the green pigment chlorophyll " +
	"and generates oxygen as a byproduct. The light reactions happen in the thylakoid membranes while the " +
	"Calvin cycle runs in the stroma."

// queueDispatcher はタスクを溜めておき、テストから明示的に実行する
type queueDispatcher struct {
	mu     sync.Mutex
	tasks  []func(ctx context.Context)
	reject error
}

func (d *queueDispatcher) TrySubmit(task func(ctx context.Context)) error {
	if d.reject != nil {
		return d.reject
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *queueDispatcher) RunAll(ctx context.Context) {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, task := range tasks {
		task(ctx)
	}
}

// inlineDispatcher は投入されたタスクをその場で実行する
type inlineDispatcher struct{}

func (inlineDispatcher) TrySubmit(task func(ctx context.Context)) error {
	task(context.Background())
	return nil
}

type fixture struct {
	notebooks  *memory.NotebookStore
	jobs       *memory.JobStore
	index      *memory.ChunkIndex
	indexer    *indexing.Indexer
	client     *llmtest.MockClient
	dispatcher *queueDispatcher
	scheduler  *job.Scheduler
	userID     uuid.UUID
	notebookID uuid.UUID
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := quietLogger()

	splitter, err := chunk.NewSplitter(chunk.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		notebooks:  memory.NewNotebookStore(),
		jobs:       memory.NewJobStore(),
		index:      memory.NewChunkIndex(),
		client:     artifacttest.NewClient(),
		dispatcher: &queueDispatcher{},
		userID:     uuid.New(),
		notebookID: uuid.New(),
	}
	f.indexer = indexing.NewIndexer(f.index, splitter, inlineDispatcher{}, indexing.WithIndexerLogger(logger))

	retriever := retrieval.NewRetriever(f.index, retrieval.WithRetrieverLogger(logger))
	generator := artifact.NewGenerator(f.client, artifact.WithGeneratorLogger(logger))
	f.scheduler = job.NewScheduler(f.jobs, f.notebooks, retriever, generator, f.dispatcher, job.WithSchedulerLogger(logger))

	now := time.Now().UTC()
	require.NoError(t, f.notebooks.CreateNotebook(context.Background(), &notebook.Notebook{
		ID: f.notebookID, UserID: f.userID, Title: "Biology", CreatedAt: now, UpdatedAt: now,
	}))
	return f
}

func (f *fixture) addSource(t *testing.T, content string) {
	t.Helper()
	ctx := context.Background()
	src := &notebook.Source{ID: uuid.New(), NotebookID: f.notebookID, Title: "Notes", Content: content}
	require.NoError(t, f.notebooks.CreateSource(ctx, src))
	f.indexer.IndexSourceNow(ctx, indexing.SourceContent{
		NotebookID: f.notebookID, SourceID: src.ID, Title: src.Title, Content: content,
	})
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *job.Job {
	t.Helper()
	j, err := f.scheduler.GetJob(context.Background(), id, f.userID)
	require.NoError(t, err)
	return j
}

func assertTerminalInvariants(t *testing.T, j *job.Job) {
	t.Helper()
	switch j.Status {
	case job.StatusCompleted:
		assert.NotNil(t, j.Result)
		assert.Nil(t, j.ErrorMessage)
		assert.NotNil(t, j.CompletedAt)
	case job.StatusFailed:
		assert.Nil(t, j.Result)
		assert.NotNil(t, j.ErrorMessage)
		assert.NotNil(t, j.CompletedAt)
	default:
		assert.Nil(t, j.Result)
		assert.Nil(t, j.ErrorMessage)
		assert.Nil(t, j.CompletedAt)
	}
}

func TestScheduler_FlashcardsScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Len(t, strings.Fields(fiftyWords), 50)
	f.addSource(t, fiftyWords)

	created, err := f.scheduler.Submit(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, created.Status)
	assertTerminalInvariants(t, created)

	f.dispatcher.RunAll(ctx)

	done := f.reload(t, created.ID)
	require.Equal(t, job.StatusCompleted, done.Status)
	assertTerminalInvariants(t, done)

	var deck artifact.Flashcards
	require.NoError(t, json.Unmarshal([]byte(*done.Result), &deck))
	assert.GreaterOrEqual(t, len(deck.Flashcards), 10)
	assert.LessOrEqual(t, len(deck.Flashcards), 15)
	for _, c := range deck.Flashcards {
		assert.NotEmpty(t, c.Front)
		assert.NotEmpty(t, c.Back)
	}

	// 組み立てたコンテキストがユーザー入力として渡されている
	reqs := f.client.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].User, "Calvin cycle runs in the stroma.")
}

func TestScheduler_NoSourcesFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeStudyGuide)
	require.NoError(t, err)

	f.scheduler.ProcessJob(ctx, created.ID)

	done := f.reload(t, created.ID)
	require.Equal(t, job.StatusFailed, done.Status)
	assertTerminalInvariants(t, done)
	assert.Contains(t, strings.ToLower(*done.ErrorMessage), "no sources")
	assert.Empty(t, f.client.Requests())
}

func TestScheduler_NotIndexedFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// インデックスせずにソースだけを登録する
	require.NoError(t, f.notebooks.CreateSource(ctx, &notebook.Source{ID: uuid.New(), NotebookID: f.notebookID, Content: "x"}))

	created, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)
	f.scheduler.ProcessJob(ctx, created.ID)

	done := f.reload(t, created.ID)
	require.Equal(t, job.StatusFailed, done.Status)
	assert.Equal(t, "content not yet indexed", *done.ErrorMessage)
}

func TestScheduler_GenerationFailureRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSource(t, fiftyWords)
	f.client.GenerateFunc = func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("upstream timeout")
	}

	created, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeQuestionnaire)
	require.NoError(t, err)
	f.scheduler.ProcessJob(ctx, created.ID)

	done := f.reload(t, created.ID)
	require.Equal(t, job.StatusFailed, done.Status)
	assertTerminalInvariants(t, done)
	assert.Contains(t, *done.ErrorMessage, "upstream timeout")

	// 失敗したジョブは終端なので同じ種別を作り直せる
	_, err = f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeQuestionnaire)
	require.NoError(t, err)
}

func TestScheduler_PanicRecordedAsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSource(t, fiftyWords)
	f.client.GenerateFunc = func(ctx context.Context, req llm.Request) (llm.Response, error) {
		panic("boom")
	}

	created, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	require.NoError(t, err)
	assert.NotPanics(t, func() { f.scheduler.ProcessJob(ctx, created.ID) })

	done := f.reload(t, created.ID)
	require.Equal(t, job.StatusFailed, done.Status)
	assertTerminalInvariants(t, done)
}

func TestScheduler_BackToBackCreateConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeStudyGuide)
	require.NoError(t, err)

	_, err = f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeStudyGuide)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "a job of this type is already in progress", err.Error())

	// 別の種別は作成できる
	_, err = f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	require.NoError(t, err)
}

func TestScheduler_ConcurrentCreateRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const workers = 32
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.Is(err, apperr.ErrConflict) {
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)

	active, err := f.scheduler.GetActiveJobs(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestScheduler_JobClaimedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSource(t, fiftyWords)

	created, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeStudyGuide)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.scheduler.ProcessJob(ctx, created.ID)
		}()
	}
	wg.Wait()

	assert.Len(t, f.client.Requests(), 1)
	done := f.reload(t, created.ID)
	assert.Equal(t, job.StatusCompleted, done.Status)

	// 終端状態のジョブを再処理しても変化しない
	f.scheduler.ProcessJob(ctx, created.ID)
	assert.Len(t, f.client.Requests(), 1)
	assert.Equal(t, done, f.reload(t, created.ID))
}

func TestScheduler_ProcessMissingJobIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, func() { f.scheduler.ProcessJob(context.Background(), uuid.New()) })
}

// cancelAwareStore はpgxと同様にキャンセル済みのコンテキストを拒否する
type cancelAwareStore struct {
	*memory.JobStore
}

func (s cancelAwareStore) FindByID(ctx context.Context, id uuid.UUID) (mo.Option[*job.Job], error) {
	if err := ctx.Err(); err != nil {
		return mo.None[*job.Job](), err
	}
	return s.JobStore.FindByID(ctx, id)
}

func (s cancelAwareStore) Transition(ctx context.Context, j *job.Job, from job.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.JobStore.Transition(ctx, j, from)
}

func TestScheduler_CancelledWorkerContextDoesNotStrandJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSource(t, fiftyWords)

	logger := quietLogger()
	scheduler := job.NewScheduler(
		cancelAwareStore{JobStore: f.jobs},
		f.notebooks,
		retrieval.NewRetriever(f.index, retrieval.WithRetrieverLogger(logger)),
		artifact.NewGenerator(f.client, artifact.WithGeneratorLogger(logger)),
		f.dispatcher,
		job.WithSchedulerLogger(logger),
	)

	created, err := scheduler.Submit(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	require.NoError(t, err)

	// シャットダウン後にキューを排出する状況
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	f.dispatcher.RunAll(cancelled)

	done := f.reload(t, created.ID)
	require.Equal(t, job.StatusFailed, done.Status)
	assertTerminalInvariants(t, done)
	assert.Equal(t, "generation cancelled", *done.ErrorMessage)
	assert.Empty(t, f.client.Requests())

	_, err = scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	require.NoError(t, err)
}

func TestScheduler_CreateJobValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name       string
		notebookID uuid.UUID
		userID     uuid.UUID
		typ        artifact.Type
		wantKind   error
	}{
		{name: "存在しないノートブック", notebookID: uuid.New(), userID: f.userID, typ: artifact.TypeFlashcards, wantKind: apperr.ErrNotFound},
		{name: "他人のノートブック", notebookID: f.notebookID, userID: uuid.New(), typ: artifact.TypeFlashcards, wantKind: apperr.ErrNotFound},
		{name: "未知の種別", notebookID: f.notebookID, userID: f.userID, typ: artifact.Type("ESSAY"), wantKind: apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.scheduler.CreateJob(ctx, tt.notebookID, tt.userID, tt.typ)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)
		})
	}
}

func TestScheduler_SubmitQueueFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.dispatcher.reject = errors.New("queue full")

	j, err := f.scheduler.Submit(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "generation queue is full", *j.ErrorMessage)
	assertTerminalInvariants(t, j)

	stored := f.reload(t, j.ID)
	assert.Equal(t, job.StatusFailed, stored.Status)

	// 三つ組はブロックされたままにならない
	f.dispatcher.reject = nil
	_, err = f.scheduler.Submit(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	require.NoError(t, err)
}

func TestScheduler_Queries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSource(t, fiftyWords)

	// 他人からは見えない
	first, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)
	_, err = f.scheduler.GetJob(ctx, first.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.scheduler.GetJob(ctx, uuid.New(), f.userID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// 未完了のジョブが優先される
	latest, err := f.scheduler.GetLatestJob(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	f.scheduler.ProcessJob(ctx, first.ID)

	completed, err := f.scheduler.GetLatestCompletedJob(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)
	assert.Equal(t, first.ID, completed.MustGet().ID)

	second, err := f.scheduler.CreateJob(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)

	latest, err = f.scheduler.GetLatestJob(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	active, err := f.scheduler.GetActiveJobs(ctx, f.notebookID, f.userID, artifact.TypeMindMap)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	all, err := f.scheduler.GetJobsForNotebook(ctx, f.notebookID, f.userID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.scheduler.GetLatestJob(ctx, f.notebookID, f.userID, artifact.TypeFlashcards)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
