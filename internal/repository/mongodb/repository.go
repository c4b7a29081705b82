package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"svcboot/internal/repository"
)

// Collection is the subset of *mongo.Collection the repository uses.
// *mongo.Collection satisfies it directly.
type Collection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindOneAndDelete(ctx context.Context, filter interface{}, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// Repository is a MongoDB implementation of repository.Repository.
// Entities must map their identifier to `bson:"_id"`; identifiers are
// stored as ObjectID hex strings.
type Repository[T any, PT repository.Entity[T]] struct {
	coll Collection
}

// New creates a repository over coll. The entity type is usually the only
// explicit type argument: mongodb.New[model.Note](coll).
func New[T any, PT repository.Entity[T]](coll Collection) *Repository[T, PT] {
	return &Repository[T, PT]{coll: coll}
}

// Save upserts the entity by id, assigning a new id when empty.
func (r *Repository[T, PT]) Save(ctx context.Context, doc *T) (*T, error) {
	if doc == nil {
		return nil, repository.ErrNilEntity
	}
	e := PT(doc)
	if e.GetID() == "" {
		e.SetID(primitive.NewObjectID().Hex())
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": e.GetID()}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("mongo save: %w", err)
	}
	return doc, nil
}

// Remove deletes the entity and returns the stored version.
func (r *Repository[T, PT]) Remove(ctx context.Context, doc *T) (*T, error) {
	if doc == nil {
		return nil, repository.ErrNilEntity
	}
	res := r.coll.FindOneAndDelete(ctx, bson.M{"_id": PT(doc).GetID()})
	return decodeOne[T](res, "mongo remove")
}

func (r *Repository[T, PT]) Find(ctx context.Context, q repository.Query, sort *repository.Sort) ([]T, error) {
	filter, err := Filter(q)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if sort != nil {
		s, err := sortDoc(sort)
		if err != nil {
			return nil, err
		}
		opts.SetSort(s)
	}
	return r.findAll(ctx, filter, opts)
}

func (r *Repository[T, PT]) FindOne(ctx context.Context, q repository.Query) (*T, error) {
	filter, err := Filter(q)
	if err != nil {
		return nil, err
	}
	return decodeOne[T](r.coll.FindOne(ctx, filter), "mongo find one")
}

func (r *Repository[T, PT]) FindOneByID(ctx context.Context, id string) (*T, error) {
	return decodeOne[T](r.coll.FindOne(ctx, bson.M{"_id": id}), "mongo find by id")
}

func (r *Repository[T, PT]) FindOneOrCreate(ctx context.Context, q repository.Query, create repository.Creator[T]) (*T, error) {
	return repository.FindOneOrCreate(ctx, r.FindOne, r.Save, q, create)
}

func (r *Repository[T, PT]) FindOneAndUpdate(ctx context.Context, q repository.Query, updates repository.Updates) (*T, error) {
	filter, err := Filter(q)
	if err != nil {
		return nil, err
	}
	set, err := setDoc(updates)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return decodeOne[T](r.coll.FindOne(ctx, filter), "mongo find one")
	}
	res := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	return decodeOne[T](res, "mongo find one and update")
}

func (r *Repository[T, PT]) Update(ctx context.Context, q repository.Query, updates repository.Updates) (*T, error) {
	return r.FindOneAndUpdate(ctx, q, updates)
}

func (r *Repository[T, PT]) FindSpecified(ctx context.Context, q repository.Query, fields repository.Projection) ([]T, error) {
	filter, err := Filter(q)
	if err != nil {
		return nil, err
	}
	proj, err := projectionDoc(fields...)
	if err != nil {
		return nil, err
	}
	return r.findAll(ctx, filter, options.Find().SetProjection(proj))
}

func (r *Repository[T, PT]) FindPagination(ctx context.Context, q repository.Query, page, perPage int, sort *repository.Sort) ([]T, error) {
	skip, limit, err := repository.PageOffset(page, perPage)
	if err != nil {
		return nil, err
	}
	filter, err := Filter(q)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSkip(skip).SetLimit(limit)
	if sort != nil {
		s, err := sortDoc(sort)
		if err != nil {
			return nil, err
		}
		opts.SetSort(s)
	}
	return r.findAll(ctx, filter, opts)
}

func (r *Repository[T, PT]) Count(ctx context.Context, q repository.Query) (int64, error) {
	filter, err := Filter(q)
	if err != nil {
		return 0, err
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return n, nil
}

func (r *Repository[T, PT]) FindAndGetOneByID(ctx context.Context, id, field string) (*T, error) {
	proj, err := projectionDoc(field)
	if err != nil {
		return nil, err
	}
	res := r.coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(proj))
	return decodeOne[T](res, "mongo find field by id")
}

func (r *Repository[T, PT]) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]T, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}
	if out == nil {
		out = make([]T, 0)
	}
	return out, nil
}

func decodeOne[T any](res *mongo.SingleResult, op string) (*T, error) {
	var doc T
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &doc, nil
}

// Filter translates a repository query into a bson filter.
func Filter(q repository.Query) (bson.M, error) {
	filter := bson.M{}
	for k, v := range q {
		key, err := fieldKey(k)
		if err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case repository.Pattern:
			filter[key] = primitive.Regex{Pattern: val.Expr, Options: val.Options}
		case *repository.Pattern:
			filter[key] = primitive.Regex{Pattern: val.Expr, Options: val.Options}
		default:
			filter[key] = val
		}
	}
	return filter, nil
}

func setDoc(updates repository.Updates) (bson.M, error) {
	set := bson.M{}
	for k, v := range updates {
		if k == repository.IDField || k == "_id" {
			continue
		}
		if err := repository.ValidField(k); err != nil {
			return nil, err
		}
		set[k] = v
	}
	return set, nil
}

func projectionDoc(fields ...string) (bson.D, error) {
	proj := bson.D{}
	for _, f := range fields {
		key, err := fieldKey(f)
		if err != nil {
			return nil, err
		}
		proj = append(proj, bson.E{Key: key, Value: 1})
	}
	return proj, nil
}

func sortDoc(s *repository.Sort) (bson.D, error) {
	key, err := fieldKey(s.Field)
	if err != nil {
		return nil, err
	}
	dir := int(s.Direction)
	if dir != int(repository.Descending) {
		dir = int(repository.Ascending)
	}
	return bson.D{{Key: key, Value: dir}}, nil
}

func fieldKey(name string) (string, error) {
	if name == repository.IDField {
		return "_id", nil
	}
	if err := repository.ValidField(name); err != nil {
		return "", err
	}
	return name, nil
}
