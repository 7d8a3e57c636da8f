package notebook

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/apperr"
)

// AddNoteParams はノート追加のパラメータ
type AddNoteParams struct {
	NotebookID uuid.UUID
	UserID     uuid.UUID
	Title      string
	Content    string
}

// AddNote はノートブックにノートを追加する
func (s *Service) AddNote(ctx context.Context, params AddNoteParams) (*Note, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, apperr.Validation("note title is required")
	}
	if _, err := s.GetNotebook(ctx, params.NotebookID, params.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	note := &Note{
		ID:         uuid.New(),
		NotebookID: params.NotebookID,
		Title:      title,
		Content:    params.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	s.logger.Info("note added", "noteID", note.ID.String(), "notebookID", note.NotebookID.String())
	return note, nil
}

// ListNotes はノートブックのノートを追加順に返す
func (s *Service) ListNotes(ctx context.Context, notebookID, userID uuid.UUID) ([]*Note, error) {
	if _, err := s.GetNotebook(ctx, notebookID, userID); err != nil {
		return nil, err
	}
	notes, err := s.repo.ListNotes(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// GetNote はノートブックに属するノートを返す
func (s *Service) GetNote(ctx context.Context, notebookID, userID, noteID uuid.UUID) (*Note, error) {
	if _, err := s.GetNotebook(ctx, notebookID, userID); err != nil {
		return nil, err
	}
	note, err := s.repo.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.NotebookID != notebookID {
		return nil, apperr.NotFound("note not found")
	}
	return note, nil
}

// UpdateNoteParams はノート更新のパラメータ
// nil のフィールドは変更しない
type UpdateNoteParams struct {
	NotebookID uuid.UUID
	UserID     uuid.UUID
	NoteID     uuid.UUID
	Title      *string
	Content    *string
}

// UpdateNote はノートのタイトルと本文を変更する
func (s *Service) UpdateNote(ctx context.Context, params UpdateNoteParams) (*Note, error) {
	note, err := s.GetNote(ctx, params.NotebookID, params.UserID, params.NoteID)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			return nil, apperr.Validation("note title is required")
		}
		note.Title = title
	}
	if params.Content != nil {
		note.Content = *params.Content
	}
	note.UpdatedAt = s.now()

	if err := s.repo.UpdateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return note, nil
}

// DeleteNote はノートを削除する
func (s *Service) DeleteNote(ctx context.Context, notebookID, userID, noteID uuid.UUID) error {
	if _, err := s.GetNote(ctx, notebookID, userID, noteID); err != nil {
		return err
	}
	if err := s.repo.DeleteNote(ctx, noteID); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	s.logger.Info("note deleted", "noteID", noteID.String(), "notebookID", notebookID.String())
	return nil
}
