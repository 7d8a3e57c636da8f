package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/artifact"
	"github.com/jinford/study-rag/internal/core/indexing"
	"github.com/jinford/study-rag/internal/core/notebook"
	"github.com/jinford/study-rag/internal/core/retrieval"
)

// GenerationTopK はジョブ生成時に取得するチャンク数
const GenerationTopK = 10

const (
	msgConflict     = "a job of this type is already in progress"
	msgNoSources    = "no sources available in this notebook"
	msgNotIndexed   = "content not yet indexed"
	msgNoContent    = "no content available"
	msgQueueFull    = "generation queue is full"
	msgUnexpected   = "unexpected error during generation"
	msgCancelled    = "generation cancelled"
	msgJobNotFound  = "job not found"
	msgNbNotFound   = "notebook not found"
	msgNoActiveJobs = "no job of this type found"
)

// NotebookReader はジョブ処理に必要なノートブック情報の取得口
type NotebookReader interface {
	GetNotebook(ctx context.Context, id uuid.UUID) (*notebook.Notebook, error)
	HasSources(ctx context.Context, notebookID uuid.UUID) (bool, error)
}

// DocumentRetriever はノートブックのチャンクを取得する
type DocumentRetriever interface {
	Documents(ctx context.Context, notebookID uuid.UUID, topK int) []*indexing.Record
}

// ArtifactGenerator はコンテキストから成果物を生成する
type ArtifactGenerator interface {
	Generate(ctx context.Context, t artifact.Type, content string) (string, error)
}

// Dispatcher はジョブ処理を非同期実行へ渡す
type Dispatcher interface {
	TrySubmit(task func(ctx context.Context)) error
}

// Scheduler は生成ジョブの作成・実行・参照を担う
// (notebook, user, type) ごとに未完了のジョブは高々1つ
type Scheduler struct {
	store      Store
	notebooks  NotebookReader
	retriever  DocumentRetriever
	generator  ArtifactGenerator
	dispatcher Dispatcher
	locks      *keyedMutex
	logger     *slog.Logger
	now        func() time.Time
	newID      func() uuid.UUID
}

// SchedulerOption は Scheduler のオプション
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger はロガーを設定する
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithClock は現在時刻の取得関数を差し替える
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithJobIDGenerator はジョブID生成関数を差し替える
func WithJobIDGenerator(fn func() uuid.UUID) SchedulerOption {
	return func(s *Scheduler) {
		s.newID = fn
	}
}

// NewScheduler は新しい Scheduler を作成する
func NewScheduler(
	store Store,
	notebooks NotebookReader,
	retriever DocumentRetriever,
	generator ArtifactGenerator,
	dispatcher Dispatcher,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		store:      store,
		notebooks:  notebooks,
		retriever:  retriever,
		generator:  generator,
		dispatcher: dispatcher,
		locks:      newKeyedMutex(),
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateJob は排他条件を確認して PENDING のジョブを作成する
func (s *Scheduler) CreateJob(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (*Job, error) {
	if !t.IsValid() {
		return nil, apperr.Validation("unknown artifact type: %q", t)
	}

	nb, err := s.notebooks.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if nb.UserID != userID {
		return nil, apperr.NotFound(msgNbNotFound)
	}

	// 同一プロセス内の確認と挿入を直列化する（プロセス間はストアの制約で担保）
	unlock := s.locks.Lock(notebookID.String(), userID.String(), t.String())
	defer unlock()

	exists, err := s.store.ExistsActiveByType(ctx, notebookID, userID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if exists {
		return nil, apperr.Conflict(msgConflict)
	}

	job := New(s.newID(), notebookID, userID, t, s.now())
	if err := s.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("generation job created",
		"jobID", job.ID.String(),
		"notebookID", notebookID.String(),
		"type", t.String(),
	)

	return job.Clone(), nil
}

// Submit はジョブを作成して非同期実行へ投入する
// 投入できなかったジョブは FAILED にして返す
func (s *Scheduler) Submit(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (*Job, error) {
	job, err := s.CreateJob(ctx, notebookID, userID, t)
	if err != nil {
		return nil, err
	}

	jobID := job.ID
	if err := s.dispatcher.TrySubmit(func(ctx context.Context) {
		s.ProcessJob(ctx, jobID)
	}); err != nil {
		s.logger.Warn("failed to dispatch generation job", "jobID", jobID.String(), "error", err)
		return s.rejectUndispatched(ctx, job), nil
	}

	return job, nil
}

// rejectUndispatched は投入できなかったジョブを PROCESSING を経て FAILED にする
func (s *Scheduler) rejectUndispatched(ctx context.Context, job *Job) *Job {
	ctx = context.WithoutCancel(ctx)
	if !s.claim(ctx, job) {
		return job
	}
	s.finish(ctx, job, "", apperr.IllegalState(msgQueueFull))
	return job
}

// ProcessJob はジョブを1件処理する
// 失敗はジョブの FAILED 状態として記録され、呼び出し元へは伝播しない
// ロードと確保と終端の記録は ctx のキャンセルに影響されない
func (s *Scheduler) ProcessJob(ctx context.Context, jobID uuid.UUID) {
	persist := context.WithoutCancel(ctx)

	found, err := s.store.FindByID(persist, jobID)
	if err != nil {
		s.logger.Error("failed to load job", "jobID", jobID.String(), "error", err)
		return
	}
	job, ok := found.Get()
	if !ok {
		s.logger.Info("job not found, skipping", "jobID", jobID.String())
		return
	}

	if !s.claim(persist, job) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("generation job panicked", "jobID", job.ID.String(), "panic", r)
			s.finish(persist, job, "", apperr.IllegalState(msgUnexpected))
		}
	}()

	// 停止中に取り出されたジョブは生成せずに FAILED で閉じる
	if ctx.Err() != nil {
		s.finish(persist, job, "", apperr.IllegalState(msgCancelled))
		return
	}

	result, err := s.generate(ctx, job)
	s.finish(persist, job, result, err)
}

// claim は PENDING → PROCESSING の条件付き更新でジョブを確保する
func (s *Scheduler) claim(ctx context.Context, job *Job) bool {
	if err := job.Start(s.now()); err != nil {
		s.logger.Info("job already claimed", "jobID", job.ID.String(), "status", job.Status.String())
		return false
	}

	ok, err := s.store.Transition(ctx, job, StatusPending)
	if err != nil {
		s.logger.Error("failed to claim job", "jobID", job.ID.String(), "error", err)
		return false
	}
	if !ok {
		s.logger.Info("job claimed by another worker", "jobID", job.ID.String())
		return false
	}

	s.logger.Info("generation job started", "jobID", job.ID.String(), "type", job.Type.String())
	return true
}

func (s *Scheduler) generate(ctx context.Context, job *Job) (string, error) {
	hasSources, err := s.notebooks.HasSources(ctx, job.NotebookID)
	if err != nil {
		return "", fmt.Errorf("failed to check sources: %w", err)
	}
	if !hasSources {
		return "", apperr.IllegalState(msgNoSources)
	}

	docs := s.retriever.Documents(ctx, job.NotebookID, GenerationTopK)
	if len(docs) == 0 {
		return "", apperr.IllegalState(msgNotIndexed)
	}

	content := retrieval.MergeContext(docs)
	if content == "" {
		return "", apperr.IllegalState(msgNoContent)
	}

	return s.generator.Generate(ctx, job.Type, content)
}

// finish は PROCESSING から終端状態へ遷移させて保存する
func (s *Scheduler) finish(ctx context.Context, job *Job, result string, genErr error) {
	now := s.now()
	if genErr != nil {
		if err := job.Fail(genErr.Error(), now); err != nil {
			s.logger.Error("invalid job transition", "jobID", job.ID.String(), "error", err)
			return
		}
	} else if err := job.Complete(result, now); err != nil {
		s.logger.Error("invalid job transition", "jobID", job.ID.String(), "error", err)
		return
	}

	ok, err := s.store.Transition(ctx, job, StatusProcessing)
	if err != nil || !ok {
		s.logger.Error("failed to record job result",
			"jobID", job.ID.String(),
			"status", job.Status.String(),
			"error", err,
		)
		return
	}

	if genErr != nil {
		s.logger.Warn("generation job failed", "jobID", job.ID.String(), "error", genErr)
		return
	}
	s.logger.Info("generation job completed", "jobID", job.ID.String(), "resultLength", len(result))
}

// GetJob はユーザーが所有するジョブを返す
// 存在しない場合と所有者が異なる場合は区別しない
func (s *Scheduler) GetJob(ctx context.Context, jobID, userID uuid.UUID) (*Job, error) {
	found, err := s.store.FindByIDAndUser(ctx, jobID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job, ok := found.Get()
	if !ok {
		return nil, apperr.NotFound(msgJobNotFound)
	}
	return job, nil
}

// GetJobsForNotebook はノートブックのジョブを新しい順に返す
func (s *Scheduler) GetJobsForNotebook(ctx context.Context, notebookID, userID uuid.UUID) ([]*Job, error) {
	jobs, err := s.store.FindByNotebookAndUser(ctx, notebookID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// GetActiveJobs は未完了のジョブを新しい順に返す
func (s *Scheduler) GetActiveJobs(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) ([]*Job, error) {
	jobs, err := s.store.FindActiveByType(ctx, notebookID, userID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return jobs, nil
}

// GetLatestCompletedJob は最新の COMPLETED ジョブを返す
func (s *Scheduler) GetLatestCompletedJob(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (mo.Option[*Job], error) {
	found, err := s.store.FindLatestCompletedByType(ctx, notebookID, userID, t)
	if err != nil {
		return mo.None[*Job](), fmt.Errorf("failed to get latest completed job: %w", err)
	}
	return found, nil
}

// GetLatestJob は未完了のジョブがあればそれを、なければ最新の COMPLETED ジョブを返す
func (s *Scheduler) GetLatestJob(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (*Job, error) {
	active, err := s.GetActiveJobs(ctx, notebookID, userID, t)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return active[0], nil
	}

	latest, err := s.GetLatestCompletedJob(ctx, notebookID, userID, t)
	if err != nil {
		return nil, err
	}
	job, ok := latest.Get()
	if !ok {
		return nil, apperr.NotFound(msgNoActiveJobs)
	}
	return job, nil
}
