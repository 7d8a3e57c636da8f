package job

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/study-rag/internal/core/artifact"
)

// Store はジョブの永続化を抽象化する
// 一覧系は作成日時の降順で返す
type Store interface {
	// Insert は新しいジョブを保存する
	// 同じ (notebook, user, type) に未完了のジョブが既にある場合は apperr.ErrConflict を返す
	Insert(ctx context.Context, job *Job) error

	// FindByID はIDでジョブを取得する
	FindByID(ctx context.Context, id uuid.UUID) (mo.Option[*Job], error)

	// FindByIDAndUser はユーザーが所有するジョブを取得する
	FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (mo.Option[*Job], error)

	// FindByNotebookAndUser はノートブックとユーザーの組に属する全ジョブを取得する
	FindByNotebookAndUser(ctx context.Context, notebookID, userID uuid.UUID) ([]*Job, error)

	// FindActiveByType は未完了のジョブを取得する
	FindActiveByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) ([]*Job, error)

	// ExistsActiveByType は未完了のジョブがあるかを返す
	ExistsActiveByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (bool, error)

	// FindLatestCompletedByType は最新の COMPLETED ジョブを取得する
	FindLatestCompletedByType(ctx context.Context, notebookID, userID uuid.UUID, t artifact.Type) (mo.Option[*Job], error)

	// Transition は保存済みの状態が from の場合に限りジョブを更新する
	// 更新できた場合に true を返す（他のワーカーが先に遷移させていれば false）
	Transition(ctx context.Context, job *Job, from Status) (bool, error)
}
