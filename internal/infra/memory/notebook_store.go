package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/notebook"
)

// NotebookStore はプロセス内で完結する notebook.Repository 実装
type NotebookStore struct {
	mu        sync.RWMutex
	notebooks map[uuid.UUID]notebook.Notebook
	sources   map[uuid.UUID]notebook.Source
	notes     map[uuid.UUID]notebook.Note
	seq       map[uuid.UUID]int64
	next      int64
}

// NewNotebookStore は空の NotebookStore を作成する
func NewNotebookStore() *NotebookStore {
	return &NotebookStore{
		notebooks: make(map[uuid.UUID]notebook.Notebook),
		sources:   make(map[uuid.UUID]notebook.Source),
		notes:     make(map[uuid.UUID]notebook.Note),
		seq:       make(map[uuid.UUID]int64),
	}
}

func (s *NotebookStore) CreateNotebook(ctx context.Context, nb *notebook.Notebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notebooks[nb.ID]; ok {
		return apperr.Conflict("notebook %s already exists", nb.ID)
	}
	s.notebooks[nb.ID] = *nb
	s.track(nb.ID)
	return nil
}

func (s *NotebookStore) GetNotebook(ctx context.Context, id uuid.UUID) (*notebook.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nb, ok := s.notebooks[id]
	if !ok {
		return nil, apperr.NotFound("notebook not found")
	}
	return &nb, nil
}

func (s *NotebookStore) ListNotebooksByUser(ctx context.Context, userID uuid.UUID) ([]*notebook.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*notebook.Notebook, 0)
	for _, nb := range s.notebooks {
		if nb.UserID == userID {
			nb := nb
			out = append(out, &nb)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[k].ID]
	})
	return out, nil
}

func (s *NotebookStore) UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, ok := s.notebooks[id]
	if !ok {
		return apperr.NotFound("notebook not found")
	}
	nb.Summary = &summary
	nb.UpdatedAt = time.Now().UTC()
	s.notebooks[id] = nb
	return nil
}

func (s *NotebookStore) UpdateNotebook(ctx context.Context, nb *notebook.Notebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.notebooks[nb.ID]
	if !ok {
		return apperr.NotFound("notebook not found")
	}
	stored.Title = nb.Title
	stored.UpdatedAt = nb.UpdatedAt
	s.notebooks[nb.ID] = stored
	return nil
}

func (s *NotebookStore) DeleteNotebook(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notebooks[id]; !ok {
		return apperr.NotFound("notebook not found")
	}
	for srcID, src := range s.sources {
		if src.NotebookID == id {
			delete(s.sources, srcID)
			delete(s.seq, srcID)
		}
	}
	for noteID, note := range s.notes {
		if note.NotebookID == id {
			delete(s.notes, noteID)
			delete(s.seq, noteID)
		}
	}
	delete(s.notebooks, id)
	delete(s.seq, id)
	return nil
}

func (s *NotebookStore) CreateSource(ctx context.Context, src *notebook.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notebooks[src.NotebookID]; !ok {
		return apperr.NotFound("notebook not found")
	}
	if _, ok := s.sources[src.ID]; ok {
		return apperr.Conflict("source %s already exists", src.ID)
	}
	s.sources[src.ID] = *src
	s.track(src.ID)
	return nil
}

func (s *NotebookStore) GetSource(ctx context.Context, id uuid.UUID) (*notebook.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[id]
	if !ok {
		return nil, apperr.NotFound("source not found")
	}
	return &src, nil
}

func (s *NotebookStore) ListSources(ctx context.Context, notebookID uuid.UUID) ([]*notebook.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*notebook.Source, 0)
	for _, src := range s.sources {
		if src.NotebookID == notebookID {
			src := src
			out = append(out, &src)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return s.seq[out[i].ID] < s.seq[out[k].ID]
	})
	return out, nil
}

func (s *NotebookStore) UpdateSource(ctx context.Context, src *notebook.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sources[src.ID]
	if !ok {
		return apperr.NotFound("source not found")
	}
	stored.Title = src.Title
	stored.Link = src.Link
	stored.Summary = src.Summary
	stored.UpdatedAt = src.UpdatedAt
	s.sources[src.ID] = stored
	return nil
}

func (s *NotebookStore) DeleteSource(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return apperr.NotFound("source not found")
	}
	delete(s.sources, id)
	delete(s.seq, id)
	return nil
}

func (s *NotebookStore) HasSources(ctx context.Context, notebookID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, src := range s.sources {
		if src.NotebookID == notebookID {
			return true, nil
		}
	}
	return false, nil
}

func (s *NotebookStore) CreateNote(ctx context.Context, note *notebook.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notebooks[note.NotebookID]; !ok {
		return apperr.NotFound("notebook not found")
	}
	if _, ok := s.notes[note.ID]; ok {
		return apperr.Conflict("note %s already exists", note.ID)
	}
	s.notes[note.ID] = *note
	s.track(note.ID)
	return nil
}

func (s *NotebookStore) GetNote(ctx context.Context, id uuid.UUID) (*notebook.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[id]
	if !ok {
		return nil, apperr.NotFound("note not found")
	}
	return &note, nil
}

func (s *NotebookStore) ListNotes(ctx context.Context, notebookID uuid.UUID) ([]*notebook.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*notebook.Note, 0)
	for _, note := range s.notes {
		if note.NotebookID == notebookID {
			note := note
			out = append(out, &note)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return s.seq[out[i].ID] < s.seq[out[k].ID]
	})
	return out, nil
}

func (s *NotebookStore) UpdateNote(ctx context.Context, note *notebook.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.notes[note.ID]
	if !ok {
		return apperr.NotFound("note not found")
	}
	stored.Title = note.Title
	stored.Content = note.Content
	stored.UpdatedAt = note.UpdatedAt
	s.notes[note.ID] = stored
	return nil
}

func (s *NotebookStore) DeleteNote(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return apperr.NotFound("note not found")
	}
	delete(s.notes, id)
	delete(s.seq, id)
	return nil
}

func (s *NotebookStore) track(id uuid.UUID) {
	s.next++
	s.seq[id] = s.next
}

var _ notebook.Repository = (*NotebookStore)(nil)
