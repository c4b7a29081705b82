package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"svcboot/internal/repository"
)

type MockRepository[T any] struct {
	mock.Mock
}

var _ repository.Repository[struct{}] = (*MockRepository[struct{}])(nil)

func (m *MockRepository[T]) one(args mock.Arguments) (*T, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*T), args.Error(1)
}

func (m *MockRepository[T]) many(args mock.Arguments) ([]T, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]T), args.Error(1)
}

func (m *MockRepository[T]) Save(ctx context.Context, doc *T) (*T, error) {
	return m.one(m.Called(ctx, doc))
}

func (m *MockRepository[T]) Remove(ctx context.Context, doc *T) (*T, error) {
	return m.one(m.Called(ctx, doc))
}

func (m *MockRepository[T]) Find(ctx context.Context, q repository.Query, sort *repository.Sort) ([]T, error) {
	return m.many(m.Called(ctx, q, sort))
}

func (m *MockRepository[T]) FindOne(ctx context.Context, q repository.Query) (*T, error) {
	return m.one(m.Called(ctx, q))
}

func (m *MockRepository[T]) FindOneByID(ctx context.Context, id string) (*T, error) {
	return m.one(m.Called(ctx, id))
}

// FindOneOrCreate runs the shared algorithm against the mocked FindOne and
// Save, so tests can assert how often the creator is invoked.
func (m *MockRepository[T]) FindOneOrCreate(ctx context.Context, q repository.Query, create repository.Creator[T]) (*T, error) {
	return repository.FindOneOrCreate(ctx, m.FindOne, m.Save, q, create)
}

func (m *MockRepository[T]) FindOneAndUpdate(ctx context.Context, q repository.Query, updates repository.Updates) (*T, error) {
	return m.one(m.Called(ctx, q, updates))
}

func (m *MockRepository[T]) Update(ctx context.Context, q repository.Query, updates repository.Updates) (*T, error) {
	return m.one(m.Called(ctx, q, updates))
}

func (m *MockRepository[T]) FindSpecified(ctx context.Context, q repository.Query, fields repository.Projection) ([]T, error) {
	return m.many(m.Called(ctx, q, fields))
}

func (m *MockRepository[T]) FindPagination(ctx context.Context, q repository.Query, page, perPage int, sort *repository.Sort) ([]T, error) {
	return m.many(m.Called(ctx, q, page, perPage, sort))
}

func (m *MockRepository[T]) Count(ctx context.Context, q repository.Query) (int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository[T]) FindAndGetOneByID(ctx context.Context, id, field string) (*T, error) {
	return m.one(m.Called(ctx, id, field))
}
