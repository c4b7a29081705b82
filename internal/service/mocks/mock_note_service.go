package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"svcboot/internal/model"
	"svcboot/internal/service"
)

type MockNoteService struct {
	mock.Mock
}

func (m *MockNoteService) note(args mock.Arguments) (*model.Note, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Note), args.Error(1)
}

func (m *MockNoteService) List(ctx context.Context, page, perPage int, search string) (*service.NoteListResult, error) {
	args := m.Called(ctx, page, perPage, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.NoteListResult), args.Error(1)
}

func (m *MockNoteService) Get(ctx context.Context, id string) (*model.Note, error) {
	return m.note(m.Called(ctx, id))
}

func (m *MockNoteService) Create(ctx context.Context, n *model.Note) (*model.Note, error) {
	return m.note(m.Called(ctx, n))
}

func (m *MockNoteService) Patch(ctx context.Context, id string, p model.NotePatch) (*model.Note, error) {
	return m.note(m.Called(ctx, id, p))
}

func (m *MockNoteService) Delete(ctx context.Context, id string) (*model.Note, error) {
	return m.note(m.Called(ctx, id))
}

func (m *MockNoteService) Field(ctx context.Context, id, field string) (any, error) {
	args := m.Called(ctx, id, field)
	return args.Get(0), args.Error(1)
}

func (m *MockNoteService) Count(ctx context.Context, search string) (int64, error) {
	args := m.Called(ctx, search)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNoteService) EnsureByTitle(ctx context.Context, title string) (*model.Note, error) {
	return m.note(m.Called(ctx, title))
}
