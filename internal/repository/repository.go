// Package repository defines a store-agnostic document repository.
// Backends live in subpackages (mongo, postgres) inside this directory.
package repository

import (
	"context"
	"errors"
)

var (
	ErrInvalidPage        = errors.New("items per page must be positive")
	ErrNilEntity          = errors.New("entity is nil")
	ErrCreatorReturnedNil = errors.New("creator returned nil entity")
	ErrInvalidField       = errors.New("invalid field name")
)

// Entity is implemented by the pointer type of every persisted document.
// The only structural requirement is an identifier.
type Entity[T any] interface {
	*T
	GetID() string
	SetID(id string)
}

// Creator produces a new entity for FindOneOrCreate.
type Creator[T any] func(ctx context.Context) (*T, error)

// Repository is the uniform CRUD and query surface over one collection.
//
// Single-entity lookups return (nil, nil) when nothing matches; collection
// lookups return an empty slice. Errors are reserved for store failures.
type Repository[T any] interface {
	// Save inserts the entity when its id is empty (assigning one) and
	// replaces the stored document otherwise.
	Save(ctx context.Context, doc *T) (*T, error)

	// Remove deletes the entity by id and returns it as stored before deletion.
	Remove(ctx context.Context, doc *T) (*T, error)

	Find(ctx context.Context, q Query, sort *Sort) ([]T, error)
	FindOne(ctx context.Context, q Query) (*T, error)
	FindOneByID(ctx context.Context, id string) (*T, error)

	// FindOneOrCreate returns the first match or persists the creator's
	// result. The check and the insert are not atomic.
	FindOneOrCreate(ctx context.Context, q Query, create Creator[T]) (*T, error)

	// FindOneAndUpdate applies updates to the first match atomically and
	// returns the updated entity.
	FindOneAndUpdate(ctx context.Context, q Query, updates Updates) (*T, error)

	// Update has the FindOneAndUpdate contract; updates may be a full
	// entity diff built with UpdatesFrom.
	Update(ctx context.Context, q Query, updates Updates) (*T, error)

	// FindSpecified returns matches with only the projected fields populated.
	FindSpecified(ctx context.Context, q Query, fields Projection) ([]T, error)

	// FindPagination returns page (1-based) of at most perPage matches.
	FindPagination(ctx context.Context, q Query, page, perPage int, sort *Sort) ([]T, error)

	Count(ctx context.Context, q Query) (int64, error)

	// FindAndGetOneByID returns the entity with only field populated.
	FindAndGetOneByID(ctx context.Context, id, field string) (*T, error)
}

// FindOneOrCreate is the shared find-or-create algorithm used by backends.
// The creator runs only on a miss, and its result is persisted with save.
func FindOneOrCreate[T any](
	ctx context.Context,
	find func(context.Context, Query) (*T, error),
	save func(context.Context, *T) (*T, error),
	q Query,
	create Creator[T],
) (*T, error) {
	found, err := find(ctx, q)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}

	doc, err := create(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrCreatorReturnedNil
	}
	return save(ctx, doc)
}

// PageOffset converts a 1-based page number into skip/limit values.
// Pages below 1 are treated as the first page.
func PageOffset(page, perPage int) (skip, limit int64, err error) {
	if perPage < 1 {
		return 0, 0, ErrInvalidPage
	}
	if page < 1 {
		page = 1
	}
	return int64(page-1) * int64(perPage), int64(perPage), nil
}
