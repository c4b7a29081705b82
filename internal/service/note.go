package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"svcboot/internal/model"
	"svcboot/internal/repository"
)

var (
	ErrIDRequired   = errors.New("id is required")
	ErrNotFound     = errors.New("note not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Fields a client may read one at a time through Field.
var readableFields = map[string]bool{
	"title":      true,
	"content":    true,
	"owner":      true,
	"tags":       true,
	"created_at": true,
}

// NoteListResult is the service-level DTO for paginated notes.
type NoteListResult struct {
	Items   []model.Note `json:"data"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
}

// NoteService defines the use cases of the notes API.
type NoteService interface {
	// List returns one page of notes, newest first. A non-empty search
	// filters titles case-insensitively.
	List(ctx context.Context, page, perPage int, search string) (*NoteListResult, error)

	Get(ctx context.Context, id string) (*model.Note, error)

	// Create stores a new note. Any client-supplied id is discarded.
	Create(ctx context.Context, n *model.Note) (*model.Note, error)

	// Patch applies the non-empty fields of p and returns the updated note.
	Patch(ctx context.Context, id string, p model.NotePatch) (*model.Note, error)

	// Delete removes a note and returns it as it was stored.
	Delete(ctx context.Context, id string) (*model.Note, error)

	// Field returns a single field of a note.
	Field(ctx context.Context, id, field string) (any, error)

	Count(ctx context.Context, search string) (int64, error)

	// EnsureByTitle returns the note with the given title, creating it when
	// missing.
	EnsureByTitle(ctx context.Context, title string) (*model.Note, error)
}

type noteService struct {
	repo repository.Repository[model.Note]
	now  func() time.Time
}

// NewNoteService constructs a NoteService over any repository backend.
func NewNoteService(repo repository.Repository[model.Note]) NoteService {
	return &noteService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *noteService) List(ctx context.Context, page, perPage int, search string) (*NoteListResult, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page < 1 {
		page = 1
	}

	q := searchQuery(search)
	total, err := s.repo.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FindPagination(ctx, q, page, perPage, repository.Desc("created_at"))
	if err != nil {
		return nil, err
	}
	return &NoteListResult{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *noteService) Get(ctx context.Context, id string) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	n, err := s.repo.FindOneByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *noteService) Create(ctx context.Context, n *model.Note) (*model.Note, error) {
	if n == nil || strings.TrimSpace(n.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	n.ID = ""
	n.CreatedAt = s.now()
	return s.repo.Save(ctx, n)
}

func (s *noteService) Patch(ctx context.Context, id string, p model.NotePatch) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	diff, err := repository.UpdatesFrom(p)
	if err != nil {
		return nil, err
	}
	if len(diff) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	n, err := s.repo.Update(ctx, repository.Query{repository.IDField: id}, diff)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *noteService) Delete(ctx context.Context, id string) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	n, err := s.repo.Remove(ctx, &model.Note{ID: id})
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *noteService) Field(ctx context.Context, id, field string) (any, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if !readableFields[field] {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidInput, field)
	}
	n, err := s.repo.FindAndGetOneByID(ctx, id, field)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotFound
	}
	all, err := repository.UpdatesFrom(n)
	if err != nil {
		return nil, err
	}
	return all[field], nil
}

func (s *noteService) Count(ctx context.Context, search string) (int64, error) {
	return s.repo.Count(ctx, searchQuery(search))
}

func (s *noteService) EnsureByTitle(ctx context.Context, title string) (*model.Note, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return s.repo.FindOneOrCreate(ctx, repository.Query{"title": title}, func(context.Context) (*model.Note, error) {
		return &model.Note{Title: title, CreatedAt: s.now()}, nil
	})
}

func searchQuery(search string) repository.Query {
	if search == "" {
		return repository.Query{}
	}
	return repository.Query{"title": repository.Pattern{Expr: regexp.QuoteMeta(search), Options: "i"}}
}
