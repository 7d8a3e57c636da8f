package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/notebook"
)

const (
	notebookColumns = `id, user_id, title, summary, created_at, updated_at`
	sourceColumns   = `id, notebook_id, title, link, content, summary, created_at, updated_at`
	noteColumns     = `id, notebook_id, title, content, created_at, updated_at`
)

// NotebookRepository は notebook.Repository を実装する PostgreSQL リポジトリ。
type NotebookRepository struct {
	db DBTX
}

// NewNotebookRepository は新しい NotebookRepository を返す。
func NewNotebookRepository(pool *pgxpool.Pool) *NotebookRepository {
	return &NotebookRepository{db: pool}
}

var _ notebook.Repository = (*NotebookRepository)(nil)

func (r *NotebookRepository) CreateNotebook(ctx context.Context, nb *notebook.Notebook) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notebooks (`+notebookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		UUIDToPgtype(nb.ID),
		UUIDToPgtype(nb.UserID),
		nb.Title,
		StringPtrToPgtext(nb.Summary),
		TimeToPgtype(nb.CreatedAt),
		TimeToPgtype(nb.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notebook: %w", err)
	}
	return nil
}

func (r *NotebookRepository) GetNotebook(ctx context.Context, id uuid.UUID) (*notebook.Notebook, error) {
	row := r.db.QueryRow(ctx, `SELECT `+notebookColumns+` FROM notebooks WHERE id = $1`, UUIDToPgtype(id))
	nb, err := scanNotebook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("notebook %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notebook: %w", err)
	}
	return nb, nil
}

func (r *NotebookRepository) ListNotebooksByUser(ctx context.Context, userID uuid.UUID) ([]*notebook.Notebook, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notebookColumns+` FROM notebooks
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC`,
		UUIDToPgtype(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}
	defer rows.Close()

	notebooks := make([]*notebook.Notebook, 0)
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notebook: %w", err)
		}
		notebooks = append(notebooks, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notebooks: %w", err)
	}
	return notebooks, nil
}

func (r *NotebookRepository) UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notebooks SET summary = $2, updated_at = $3 WHERE id = $1`,
		UUIDToPgtype(id), summary, TimeToPgtype(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to update notebook summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notebook %s not found", id)
	}
	return nil
}

func (r *NotebookRepository) UpdateNotebook(ctx context.Context, nb *notebook.Notebook) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notebooks SET title = $2, updated_at = $3 WHERE id = $1`,
		UUIDToPgtype(nb.ID), nb.Title, TimeToPgtype(nb.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to update notebook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notebook %s not found", nb.ID)
	}
	return nil
}

// DeleteNotebook はノートブックを削除する
// ソース・チャンク・ノート・生成ジョブは外部キーの ON DELETE CASCADE で消える
func (r *NotebookRepository) DeleteNotebook(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notebooks WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete notebook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notebook %s not found", id)
	}
	return nil
}

func (r *NotebookRepository) CreateSource(ctx context.Context, src *notebook.Source) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sources (`+sourceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		UUIDToPgtype(src.ID),
		UUIDToPgtype(src.NotebookID),
		src.Title,
		StringPtrToPgtext(src.Link),
		src.Content,
		StringPtrToPgtext(src.Summary),
		TimeToPgtype(src.CreatedAt),
		TimeToPgtype(src.UpdatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return apperr.NotFound("notebook %s not found", src.NotebookID)
		}
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

func (r *NotebookRepository) GetSource(ctx context.Context, id uuid.UUID) (*notebook.Source, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, UUIDToPgtype(id))
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("source %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

func (r *NotebookRepository) ListSources(ctx context.Context, notebookID uuid.UUID) ([]*notebook.Source, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sourceColumns+` FROM sources
		WHERE notebook_id = $1
		ORDER BY created_at ASC, seq ASC`,
		UUIDToPgtype(notebookID))
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	sources := make([]*notebook.Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

func (r *NotebookRepository) UpdateSource(ctx context.Context, src *notebook.Source) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sources SET title = $2, link = $3, summary = $4, updated_at = $5
		WHERE id = $1`,
		UUIDToPgtype(src.ID),
		src.Title,
		StringPtrToPgtext(src.Link),
		StringPtrToPgtext(src.Summary),
		TimeToPgtype(src.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("source %s not found", src.ID)
	}
	return nil
}

func (r *NotebookRepository) DeleteSource(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sources WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("source %s not found", id)
	}
	return nil
}

func (r *NotebookRepository) HasSources(ctx context.Context, notebookID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sources WHERE notebook_id = $1)`,
		UUIDToPgtype(notebookID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check sources: %w", err)
	}
	return exists, nil
}

func (r *NotebookRepository) CreateNote(ctx context.Context, note *notebook.Note) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		UUIDToPgtype(note.ID),
		UUIDToPgtype(note.NotebookID),
		note.Title,
		note.Content,
		TimeToPgtype(note.CreatedAt),
		TimeToPgtype(note.UpdatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return apperr.NotFound("notebook %s not found", note.NotebookID)
		}
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

func (r *NotebookRepository) GetNote(ctx context.Context, id uuid.UUID) (*notebook.Note, error) {
	row := r.db.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = $1`, UUIDToPgtype(id))
	note, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("note %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

func (r *NotebookRepository) ListNotes(ctx context.Context, notebookID uuid.UUID) ([]*notebook.Note, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE notebook_id = $1
		ORDER BY created_at ASC, seq ASC`,
		UUIDToPgtype(notebookID))
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*notebook.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

func (r *NotebookRepository) UpdateNote(ctx context.Context, note *notebook.Note) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes SET title = $2, content = $3, updated_at = $4 WHERE id = $1`,
		UUIDToPgtype(note.ID), note.Title, note.Content, TimeToPgtype(note.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("note %s not found", note.ID)
	}
	return nil
}

func (r *NotebookRepository) DeleteNote(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notes WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("note %s not found", id)
	}
	return nil
}

func scanNotebook(row pgx.Row) (*notebook.Notebook, error) {
	var (
		id, userID           pgtype.UUID
		title                string
		summary              pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &title, &summary, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &notebook.Notebook{
		ID:        PgtypeToUUID(id),
		UserID:    PgtypeToUUID(userID),
		Title:     title,
		Summary:   PgtextToStringPtr(summary),
		CreatedAt: createdAt.Time,
		UpdatedAt: updatedAt.Time,
	}, nil
}

func scanSource(row pgx.Row) (*notebook.Source, error) {
	var (
		id, notebookID       pgtype.UUID
		title, content       string
		link, summary        pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &notebookID, &title, &link, &content, &summary, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &notebook.Source{
		ID:         PgtypeToUUID(id),
		NotebookID: PgtypeToUUID(notebookID),
		Title:      title,
		Link:       PgtextToStringPtr(link),
		Content:    content,
		Summary:    PgtextToStringPtr(summary),
		CreatedAt:  createdAt.Time,
		UpdatedAt:  updatedAt.Time,
	}, nil
}

func scanNote(row pgx.Row) (*notebook.Note, error) {
	var (
		id, notebookID       pgtype.UUID
		title, content       string
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &notebookID, &title, &content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &notebook.Note{
		ID:         PgtypeToUUID(id),
		NotebookID: PgtypeToUUID(notebookID),
		Title:      title,
		Content:    content,
		CreatedAt:  createdAt.Time,
		UpdatedAt:  updatedAt.Time,
	}, nil
}
