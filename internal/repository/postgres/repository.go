package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"svcboot/internal/repository"
)

// Repository is a PostgreSQL implementation of repository.Repository.
// Each entity is stored as one JSONB document in a collection table
// (id TEXT PRIMARY KEY, doc JSONB NOT NULL, created_at TIMESTAMPTZ);
// see migration.EnsureCollections for the schema.
type Repository[T any, PT repository.Entity[T]] struct {
	db         *sql.DB
	table      string
	timeFields map[string]bool
}

// New creates a repository over the given collection table.
func New[T any, PT repository.Entity[T]](db *sql.DB, table string) *Repository[T, PT] {
	return &Repository[T, PT]{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// WithTimeFields marks document fields holding RFC 3339 timestamps. Sorting
// on them compares timestamps instead of their JSON text, whose fractional
// seconds vary in length.
func (r *Repository[T, PT]) WithTimeFields(fields ...string) *Repository[T, PT] {
	if r.timeFields == nil {
		r.timeFields = make(map[string]bool, len(fields))
	}
	for _, f := range fields {
		r.timeFields[f] = true
	}
	return r
}

// Save inserts or replaces the entity document. New ids are UUIDs.
func (r *Repository[T, PT]) Save(ctx context.Context, doc *T) (*T, error) {
	if doc == nil {
		return nil, repository.ErrNilEntity
	}
	e := PT(doc)
	if e.GetID() == "" {
		e.SetID(uuid.NewString())
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("postgres save: encode: %w", err)
	}
	q := `INSERT INTO ` + r.table + ` (id, doc) VALUES ($1, $2::jsonb) ` +
		`ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`
	if _, err := r.db.ExecContext(ctx, q, e.GetID(), string(raw)); err != nil {
		return nil, fmt.Errorf("postgres save: %w", err)
	}
	return doc, nil
}

// Remove deletes the row and returns the document as it was stored.
func (r *Repository[T, PT]) Remove(ctx context.Context, doc *T) (*T, error) {
	if doc == nil {
		return nil, repository.ErrNilEntity
	}
	q := `DELETE FROM ` + r.table + ` WHERE id = $1 RETURNING doc`
	return r.queryOne(ctx, "postgres remove", q, PT(doc).GetID())
}

func (r *Repository[T, PT]) Find(ctx context.Context, q repository.Query, s *repository.Sort) ([]T, error) {
	var b builder
	where, err := b.where(q)
	if err != nil {
		return nil, err
	}
	order, err := r.orderBy(s)
	if err != nil {
		return nil, err
	}
	return r.queryAll(ctx, "postgres find", `SELECT doc FROM `+r.table+where+order, b.args...)
}

func (r *Repository[T, PT]) FindOne(ctx context.Context, q repository.Query) (*T, error) {
	var b builder
	where, err := b.where(q)
	if err != nil {
		return nil, err
	}
	stmt := `SELECT doc FROM ` + r.table + where + defaultOrder + ` LIMIT 1`
	return r.queryOne(ctx, "postgres find one", stmt, b.args...)
}

func (r *Repository[T, PT]) FindOneByID(ctx context.Context, id string) (*T, error) {
	return r.queryOne(ctx, "postgres find by id", `SELECT doc FROM `+r.table+` WHERE id = $1`, id)
}

func (r *Repository[T, PT]) FindOneOrCreate(ctx context.Context, q repository.Query, create repository.Creator[T]) (*T, error) {
	return repository.FindOneOrCreate(ctx, r.FindOne, r.Save, q, create)
}

// FindOneAndUpdate patches the first match under a row lock and returns the
// updated document.
func (r *Repository[T, PT]) FindOneAndUpdate(ctx context.Context, q repository.Query, updates repository.Updates) (*T, error) {
	var b builder
	set, err := b.patch(updates)
	if err != nil {
		return nil, err
	}
	if set == "doc" {
		return r.FindOne(ctx, q)
	}
	where, err := b.where(q)
	if err != nil {
		return nil, err
	}
	stmt := `UPDATE ` + r.table + ` SET doc = ` + set +
		` WHERE id = (SELECT id FROM ` + r.table + where + defaultOrder + ` LIMIT 1 FOR UPDATE)` +
		` RETURNING doc`
	return r.queryOne(ctx, "postgres find one and update", stmt, b.args...)
}

func (r *Repository[T, PT]) Update(ctx context.Context, q repository.Query, updates repository.Updates) (*T, error) {
	return r.FindOneAndUpdate(ctx, q, updates)
}

func (r *Repository[T, PT]) FindSpecified(ctx context.Context, q repository.Query, fields repository.Projection) ([]T, error) {
	proj, err := projection(fields...)
	if err != nil {
		return nil, err
	}
	var b builder
	where, err := b.where(q)
	if err != nil {
		return nil, err
	}
	stmt := `SELECT ` + proj + ` FROM ` + r.table + where + defaultOrder
	return r.queryAll(ctx, "postgres find specified", stmt, b.args...)
}

func (r *Repository[T, PT]) FindPagination(ctx context.Context, q repository.Query, page, perPage int, s *repository.Sort) ([]T, error) {
	skip, limit, err := repository.PageOffset(page, perPage)
	if err != nil {
		return nil, err
	}
	var b builder
	where, err := b.where(q)
	if err != nil {
		return nil, err
	}
	order, err := r.orderBy(s)
	if err != nil {
		return nil, err
	}
	stmt := `SELECT doc FROM ` + r.table + where + order +
		` LIMIT ` + b.arg(limit) + ` OFFSET ` + b.arg(skip)
	return r.queryAll(ctx, "postgres find page", stmt, b.args...)
}

func (r *Repository[T, PT]) Count(ctx context.Context, q repository.Query) (int64, error) {
	var b builder
	where, err := b.where(q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+r.table+where, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres count: %w", err)
	}
	return n, nil
}

func (r *Repository[T, PT]) FindAndGetOneByID(ctx context.Context, id, field string) (*T, error) {
	proj, err := projection(field)
	if err != nil {
		return nil, err
	}
	stmt := `SELECT ` + proj + ` FROM ` + r.table + ` WHERE id = $1`
	return r.queryOne(ctx, "postgres find field by id", stmt, id)
}

func (r *Repository[T, PT]) queryOne(ctx context.Context, op, stmt string, args ...any) (*T, error) {
	var raw []byte
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return &doc, nil
}

func (r *Repository[T, PT]) queryAll(ctx context.Context, op, stmt string, args ...any) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

const defaultOrder = ` ORDER BY created_at ASC, id ASC`

// builder accumulates positional arguments while a statement is assembled.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// where renders q as a conjunctive WHERE clause. Keys are rendered in sorted
// order so the statement text is stable.
func (b *builder) where(q repository.Query) (string, error) {
	if len(q) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		c, err := b.condition(k, q[k])
		if err != nil {
			return "", err
		}
		conds = append(conds, c)
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

func (b *builder) condition(field string, v any) (string, error) {
	if field != repository.IDField && field != "_id" {
		if err := repository.ValidField(field); err != nil {
			return "", err
		}
	}

	var pat *repository.Pattern
	switch p := v.(type) {
	case repository.Pattern:
		pat = &p
	case *repository.Pattern:
		pat = p
	}

	if pat != nil {
		op := "~"
		if pat.CaseInsensitive() {
			op = "~*"
		}
		lhs := "id"
		if field != repository.IDField && field != "_id" {
			lhs = textPath(field)
		}
		return lhs + " " + op + " " + b.arg(pat.Expr), nil
	}

	if field == repository.IDField || field == "_id" {
		return "id = " + b.arg(fmt.Sprint(v)), nil
	}
	raw, err := json.Marshal(nest(field, v))
	if err != nil {
		return "", fmt.Errorf("encode condition %q: %w", field, err)
	}
	return "doc @> " + b.arg(string(raw)) + "::jsonb", nil
}

// patch renders the new document expression for updates. Top-level keys are
// merged with ||, dotted keys are set with jsonb_set.
func (b *builder) patch(updates repository.Updates) (string, error) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		if k == repository.IDField || k == "_id" {
			continue
		}
		if err := repository.ValidField(k); err != nil {
			return "", err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	expr := "doc"
	flat := map[string]any{}
	for _, k := range keys {
		if !strings.Contains(k, ".") {
			flat[k] = updates[k]
			continue
		}
		raw, err := json.Marshal(updates[k])
		if err != nil {
			return "", fmt.Errorf("encode update %q: %w", k, err)
		}
		expr = fmt.Sprintf("jsonb_set(%s, '{%s}', %s::jsonb, true)",
			expr, strings.ReplaceAll(k, ".", ","), b.arg(string(raw)))
	}
	if len(flat) > 0 {
		raw, err := json.Marshal(flat)
		if err != nil {
			return "", fmt.Errorf("encode updates: %w", err)
		}
		expr += " || " + b.arg(string(raw)) + "::jsonb"
	}
	return expr, nil
}

func (r *Repository[T, PT]) orderBy(s *repository.Sort) (string, error) {
	if s == nil {
		return defaultOrder, nil
	}
	dir := "ASC"
	if s.Direction == repository.Descending {
		dir = "DESC"
	}
	if s.Field == repository.IDField {
		return " ORDER BY id " + dir, nil
	}
	if err := repository.ValidField(s.Field); err != nil {
		return "", err
	}
	expr := jsonPath(s.Field)
	if r.timeFields[s.Field] {
		expr = "(" + textPath(s.Field) + ")::timestamptz"
	}
	return " ORDER BY " + expr + " " + dir + ", id ASC", nil
}

// projection builds a jsonb_build_object over the top-level keys of fields.
// The id is always included.
func projection(fields ...string) (string, error) {
	parts := []string{"'id', id"}
	seen := map[string]bool{repository.IDField: true}
	for _, f := range fields {
		if err := repository.ValidField(f); err != nil {
			return "", err
		}
		top, _, _ := strings.Cut(f, ".")
		if seen[top] {
			continue
		}
		seen[top] = true
		parts = append(parts, fmt.Sprintf("'%s', doc->'%s'", top, top))
	}
	return "jsonb_build_object(" + strings.Join(parts, ", ") + ")", nil
}

func textPath(field string) string {
	if !strings.Contains(field, ".") {
		return "doc->>'" + field + "'"
	}
	return "doc#>>'{" + strings.ReplaceAll(field, ".", ",") + "}'"
}

func jsonPath(field string) string {
	if !strings.Contains(field, ".") {
		return "doc->'" + field + "'"
	}
	return "doc#>'{" + strings.ReplaceAll(field, ".", ",") + "}'"
}

// nest turns a dotted field and value into the containment document
// {"a":{"b":v}}.
func nest(field string, v any) map[string]any {
	parts := strings.Split(field, ".")
	out := map[string]any{parts[len(parts)-1]: v}
	for i := len(parts) - 2; i >= 0; i-- {
		out = map[string]any{parts[i]: out}
	}
	return out
}
