package repository

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Query is a conjunctive filter: every key must match. A value is either an
// exact value or a Pattern. Keys are document field names; "id" addresses
// the identifier.
type Query map[string]any

// Pattern matches string fields against a regular expression.
type Pattern struct {
	Expr string
	// Options uses the Mongo option letters; only "i" is portable.
	Options string
}

// Match is shorthand for a Pattern without options.
func Match(expr string) Pattern {
	return Pattern{Expr: expr}
}

// CaseInsensitive reports whether the pattern carries the "i" option.
func (p Pattern) CaseInsensitive() bool {
	return strings.Contains(p.Options, "i")
}

// Direction is a sort direction.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// Sort orders results by one field.
type Sort struct {
	Field     string
	Direction Direction
}

func Asc(field string) *Sort  { return &Sort{Field: field, Direction: Ascending} }
func Desc(field string) *Sort { return &Sort{Field: field, Direction: Descending} }

// Projection lists the fields to populate.
type Projection []string

// Updates is a partial document diff applied field by field.
type Updates map[string]any

// IDField is the query key that addresses the entity identifier.
const IDField = "id"

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidField reports whether name can be used as a field reference.
func ValidField(name string) error {
	if !fieldName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidField, name)
	}
	return nil
}

// UpdatesFrom converts an entity (or any JSON-encodable struct) into an
// Updates diff using its JSON field names. Fields tagged omitempty and left
// empty are not part of the diff; the identifier is never updated.
func UpdatesFrom(v any) (Updates, error) {
	if v == nil {
		return nil, ErrNilEntity
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode updates: %w", err)
	}
	var u Updates
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	delete(u, IDField)
	delete(u, "_id")
	return u, nil
}
