package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/artifact"
	"github.com/jinford/study-rag/internal/core/job"
)

// JobStore はプロセス内で完結する job.Store 実装
// 未完了ジョブの重複チェックと挿入は同一ロック内で行う
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*storedJob
	seq  int64
}

type storedJob struct {
	job *job.Job
	seq int64
}

// NewJobStore は空の JobStore を作成する
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*storedJob)}
}

func (s *JobStore) Insert(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; ok {
		return apperr.Conflict("job %s already exists", j.ID)
	}
	if j.Status.IsActive() && s.existsActiveLocked(j.NotebookID, j.UserID, j.Type) {
		return apperr.Conflict("a job of this type is already in progress")
	}

	s.seq++
	s.jobs[j.ID] = &storedJob{job: j.Clone(), seq: s.seq}
	return nil
}

func (s *JobStore) FindByID(ctx context.Context, id uuid.UUID) (mo.Option[*job.Job], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sj, ok := s.jobs[id]; ok {
		return mo.Some(sj.job.Clone()), nil
	}
	return mo.None[*job.Job](), nil
}

func (s *JobStore) FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (mo.Option[*job.Job], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sj, ok := s.jobs[id]; ok && sj.job.UserID == userID {
		return mo.Some(sj.job.Clone()), nil
	}
	return mo.None[*job.Job](), nil
}

func (s *JobStore) FindByNotebookAndUser(ctx context.Context, notebookID, userID uuid.UUID) ([]*job.Job, error) {
	return s.filter(func(j *job.Job) bool {
		return j.NotebookID == notebookID && j.UserID == userID
	}), nil
}

func (s *JobStore) FindActiveByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) ([]*job.Job, error) {
	return s.filter(func(j *job.Job) bool {
		return matches(j, notebookID, userID, t) && j.Status.IsActive()
	}), nil
}

func (s *JobStore) ExistsActiveByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.existsActiveLocked(notebookID, userID, t), nil
}

func (s *JobStore) FindLatestCompletedByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (mo.Option[*job.Job], error) {
	jobs := s.filter(func(j *job.Job) bool {
		return matches(j, notebookID, userID, t) && j.Status == job.StatusCompleted
	})
	if len(jobs) == 0 {
		return mo.None[*job.Job](), nil
	}
	return mo.Some(jobs[0]), nil
}

func (s *JobStore) Transition(ctx context.Context, j *job.Job, from job.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[j.ID]
	if !ok {
		return false, apperr.NotFound("job not found")
	}
	if sj.job.Status != from {
		return false, nil
	}
	sj.job = j.Clone()
	return true, nil
}

func (s *JobStore) existsActiveLocked(notebookID, userID uuid.UUID, t artifact.Type) bool {
	for _, sj := range s.jobs {
		if matches(sj.job, notebookID, userID, t) && sj.job.Status.IsActive() {
			return true
		}
	}
	return false
}

// filter は条件に合うジョブを作成日時の降順で返す
func (s *JobStore) filter(pred func(*job.Job) bool) []*job.Job {
	s.mu.RLock()
	matched := make([]*storedJob, 0)
	for _, sj := range s.jobs {
		if pred(sj.job) {
			matched = append(matched, &storedJob{job: sj.job.Clone(), seq: sj.seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, k int) bool {
		a, b := matched[i], matched[k]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]*job.Job, len(matched))
	for i, sj := range matched {
		out[i] = sj.job
	}
	return out
}

func matches(j *job.Job, notebookID, userID uuid.UUID, t artifact.Type) bool {
	return j.NotebookID == notebookID && j.UserID == userID && j.Type == t
}

var _ job.Store = (*JobStore)(nil)
