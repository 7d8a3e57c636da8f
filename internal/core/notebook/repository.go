package notebook

import (
	"context"

	"github.com/google/uuid"
)

// Repository はノートブックとソースの永続化を抽象化する
// 存在しない ID に対しては apperr.ErrNotFound を返す
type Repository interface {
	CreateNotebook(ctx context.Context, nb *Notebook) error
	GetNotebook(ctx context.Context, id uuid.UUID) (*Notebook, error)
	// ListNotebooksByUser は作成日時の降順で返す
	ListNotebooksByUser(ctx context.Context, userID uuid.UUID) ([]*Notebook, error)
	UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error
	// UpdateNotebook はタイトルと更新日時を保存する
	UpdateNotebook(ctx context.Context, nb *Notebook) error
	// DeleteNotebook はノートブックと配下のソース・ノートを削除する
	DeleteNotebook(ctx context.Context, id uuid.UUID) error

	CreateSource(ctx context.Context, src *Source) error
	GetSource(ctx context.Context, id uuid.UUID) (*Source, error)
	// ListSources は作成日時の昇順で返す
	ListSources(ctx context.Context, notebookID uuid.UUID) ([]*Source, error)
	// UpdateSource はタイトル・リンク・要約と更新日時を保存する
	UpdateSource(ctx context.Context, src *Source) error
	DeleteSource(ctx context.Context, id uuid.UUID) error
	HasSources(ctx context.Context, notebookID uuid.UUID) (bool, error)

	CreateNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, id uuid.UUID) (*Note, error)
	// ListNotes は作成日時の昇順で返す
	ListNotes(ctx context.Context, notebookID uuid.UUID) ([]*Note, error)
	UpdateNote(ctx context.Context, note *Note) error
	DeleteNote(ctx context.Context, id uuid.UUID) error
}
