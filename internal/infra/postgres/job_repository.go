package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/artifact"
	"github.com/jinford/study-rag/internal/core/job"
)

const jobColumns = `id, notebook_id, user_id, type, status, result, error_message, created_at, updated_at, completed_at`

// JobRepository は job.Store を実装する PostgreSQL リポジトリ。
type JobRepository struct {
	db  DBTX
	txp *TransactionProvider // トランザクション内で生成された場合は nil
}

// NewJobRepository は新しい JobRepository を返す。
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: pool, txp: NewTransactionProvider(pool)}
}

var _ job.Store = (*JobRepository)(nil)

// Insert はアドバイザリロックで (notebook, user, type) を直列化した上で保存する
func (r *JobRepository) Insert(ctx context.Context, j *job.Job) error {
	if r.txp == nil {
		if err := NewLockManager(r.db).Acquire(ctx, jobLockID(j)); err != nil {
			return err
		}
		return r.insertLocked(ctx, j)
	}
	_, err := Transact(ctx, r.txp, func(a *Adapter) (struct{}, error) {
		if err := a.Locks.Acquire(ctx, jobLockID(j)); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, a.Jobs.insertLocked(ctx, j)
	})
	return err
}

func jobLockID(j *job.Job) int64 {
	return GenerateLockID("generation_job", j.NotebookID.String(), j.UserID.String(), j.Type.String())
}

// insertLocked は三つ組のロックを保持している前提で未完了ジョブの有無を確認して保存する
func (r *JobRepository) insertLocked(ctx context.Context, j *job.Job) error {
	exists, err := r.ExistsActiveByType(ctx, j.NotebookID, j.UserID, j.Type)
	if err != nil {
		return err
	}
	if exists {
		return apperr.Conflict("active %s job already exists", j.Type)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO generation_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		UUIDToPgtype(j.ID),
		UUIDToPgtype(j.NotebookID),
		UUIDToPgtype(j.UserID),
		j.Type.String(),
		j.Status.String(),
		StringPtrToPgtext(j.Result),
		StringPtrToPgtext(j.ErrorMessage),
		TimeToPgtype(j.CreatedAt),
		TimeToPgtype(j.UpdatedAt),
		TimePtrToPgtype(j.CompletedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperr.Conflict("active %s job already exists", j.Type)
		}
		return fmt.Errorf("failed to insert generation job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (mo.Option[*job.Job], error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, UUIDToPgtype(id))
	return scanOptionalJob(row)
}

func (r *JobRepository) FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (mo.Option[*job.Job], error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1 AND user_id = $2`,
		UUIDToPgtype(id), UUIDToPgtype(userID))
	return scanOptionalJob(row)
}

func (r *JobRepository) FindByNotebookAndUser(ctx context.Context, notebookID, userID uuid.UUID) ([]*job.Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+` FROM generation_jobs
		WHERE notebook_id = $1 AND user_id = $2
		ORDER BY created_at DESC, seq DESC`,
		UUIDToPgtype(notebookID), UUIDToPgtype(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list generation jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) FindActiveByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) ([]*job.Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+` FROM generation_jobs
		WHERE notebook_id = $1 AND user_id = $2 AND type = $3 AND status = ANY($4)
		ORDER BY created_at DESC, seq DESC`,
		UUIDToPgtype(notebookID), UUIDToPgtype(userID), t.String(), activeStatusNames())
	if err != nil {
		return nil, fmt.Errorf("failed to list active generation jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) ExistsActiveByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM generation_jobs
			WHERE notebook_id = $1 AND user_id = $2 AND type = $3 AND status = ANY($4)
		)`,
		UUIDToPgtype(notebookID), UUIDToPgtype(userID), t.String(), activeStatusNames(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active generation job: %w", err)
	}
	return exists, nil
}

func (r *JobRepository) FindLatestCompletedByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (mo.Option[*job.Job], error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM generation_jobs
		WHERE notebook_id = $1 AND user_id = $2 AND type = $3 AND status = $4
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`,
		UUIDToPgtype(notebookID), UUIDToPgtype(userID), t.String(), job.StatusCompleted.String())
	return scanOptionalJob(row)
}

// Transition は保存済みの状態が from の行だけを更新する
func (r *JobRepository) Transition(ctx context.Context, j *job.Job, from job.Status) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, result = $3, error_message = $4, updated_at = $5, completed_at = $6
		WHERE id = $1 AND status = $7`,
		UUIDToPgtype(j.ID),
		j.Status.String(),
		StringPtrToPgtext(j.Result),
		StringPtrToPgtext(j.ErrorMessage),
		TimeToPgtype(j.UpdatedAt),
		TimePtrToPgtype(j.CompletedAt),
		from.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update generation job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func activeStatusNames() []string {
	statuses := job.ActiveStatuses()
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.String()
	}
	return names
}

func scanOptionalJob(row pgx.Row) (mo.Option[*job.Job], error) {
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[*job.Job](), nil
	}
	if err != nil {
		return mo.None[*job.Job](), fmt.Errorf("failed to get generation job: %w", err)
	}
	return mo.Some(j), nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	defer rows.Close()

	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate generation jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		id, notebookID, userID pgtype.UUID
		typ, status            string
		result, errorMessage   pgtype.Text
		createdAt, updatedAt   pgtype.Timestamptz
		completedAt            pgtype.Timestamptz
	)
	if err := row.Scan(&id, &notebookID, &userID, &typ, &status, &result, &errorMessage, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	return &job.Job{
		ID:           PgtypeToUUID(id),
		NotebookID:   PgtypeToUUID(notebookID),
		UserID:       PgtypeToUUID(userID),
		Type:         artifact.Type(typ),
		Status:       job.Status(status),
		Result:       PgtextToStringPtr(result),
		ErrorMessage: PgtextToStringPtr(errorMessage),
		CreatedAt:    createdAt.Time,
		UpdatedAt:    updatedAt.Time,
		CompletedAt:  PgtypeToTimePtr(completedAt),
	}, nil
}
