// Package schema holds the entity model queries are checked, evaluated and
// translated against.
//
// Models are written in CUE:
//
//	entity: Employee: {
//		table: "employee"
//		fields: {Name: "string", ReviewAsPrimary: "bool"}
//		collections: ReviewIssues: {of: "Issue", join: "employee_review_issue"}
//	}
//
// Every entity has an implicit string primary key column "id". Scalar
// fields map to snake_case columns, references to "<name>_id" foreign key
// columns, and collections either to a join table (many-to-many) or to a
// reference on the element entity (one-to-many, "inverse").
package schema

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"cuelang.org/go/cue/token"

	"github.com/roach88/condpush/internal/expr"
)

// IDColumn is the primary key column of every entity table.
const IDColumn = "id"

// ScalarKind names a field storage type.
type ScalarKind string

const (
	ScalarString   ScalarKind = "string"
	ScalarInt      ScalarKind = "int"
	ScalarBool     ScalarKind = "bool"
	ScalarDateTime ScalarKind = "datetime"
)

// NoScale marks a datetime field stored at the dialect's full precision.
const NoScale = -1

// Model is a validated set of entities. It is immutable after loading and
// safe for concurrent use.
type Model struct {
	entities map[string]*Entity
	names    []string
}

// Entity describes one mapped class.
type Entity struct {
	Name        string
	Table       string
	Fields      []Field
	References  []Reference
	Collections []Collection
	Pos         token.Pos
}

// Field is a scalar member.
type Field struct {
	Name   string
	Column string
	Kind   ScalarKind
	// Scale is the number of fractional second digits kept for datetime
	// fields, or NoScale.
	Scale int
}

// Reference is a many-to-one member stored as a foreign key column.
type Reference struct {
	Name   string
	Target string
	Column string
}

// Collection is a to-many member.
//
// Exactly one of Join and Inverse is set. Join names a link table with
// columns OwnerColumn and ElementColumn; Inverse names the reference on the
// element entity that points back at the owner.
type Collection struct {
	Name          string
	Of            string
	Join          string
	OwnerColumn   string
	ElementColumn string
	Inverse       string
}

// MemberKind classifies entity members.
type MemberKind int

const (
	MemberNone MemberKind = iota
	MemberID
	MemberField
	MemberReference
	MemberCollection
)

// Member is the result of a member lookup. Exactly one of Field, Reference
// and Collection is set unless Kind is MemberID.
type Member struct {
	Kind       MemberKind
	Field      *Field
	Reference  *Reference
	Collection *Collection
}

// Entity returns the named entity.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Entities returns all entities sorted by name.
func (m *Model) Entities() []*Entity {
	out := make([]*Entity, len(m.names))
	for i, name := range m.names {
		out[i] = m.entities[name]
	}
	return out
}

// Member looks up a member of the named entity.
func (m *Model) Member(entity, member string) (Member, error) {
	e, ok := m.entities[entity]
	if !ok {
		return Member{}, fmt.Errorf("unknown entity %q", entity)
	}
	if member == "Id" {
		return Member{Kind: MemberID}, nil
	}
	if f, ok := e.Field(member); ok {
		return Member{Kind: MemberField, Field: f}, nil
	}
	if r, ok := e.Reference(member); ok {
		return Member{Kind: MemberReference, Reference: r}, nil
	}
	if c, ok := e.Collection(member); ok {
		return Member{Kind: MemberCollection, Collection: c}, nil
	}
	return Member{}, fmt.Errorf("entity %s has no member %q", entity, member)
}

// ResolveMember implements expr.MemberResolver.
func (m *Model) ResolveMember(entity, member string) (expr.Type, error) {
	mem, err := m.Member(entity, member)
	if err != nil {
		return expr.Type{}, err
	}
	switch mem.Kind {
	case MemberID:
		return expr.StringType, nil
	case MemberField:
		return mem.Field.Type(), nil
	case MemberReference:
		return expr.EntityOf(mem.Reference.Target), nil
	default:
		return expr.SequenceOf(expr.EntityOf(mem.Collection.Of)), nil
	}
}

// Field returns the scalar field with the given name.
func (e *Entity) Field(name string) (*Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// Reference returns the reference with the given name.
func (e *Entity) Reference(name string) (*Reference, bool) {
	for i := range e.References {
		if e.References[i].Name == name {
			return &e.References[i], true
		}
	}
	return nil, false
}

// Collection returns the collection with the given name.
func (e *Entity) Collection(name string) (*Collection, bool) {
	for i := range e.Collections {
		if e.Collections[i].Name == name {
			return &e.Collections[i], true
		}
	}
	return nil, false
}

// Type returns the static type of the field.
func (f *Field) Type() expr.Type {
	switch f.Kind {
	case ScalarInt:
		return expr.IntType
	case ScalarBool:
		return expr.BoolType
	case ScalarDateTime:
		return expr.DateTimeType
	default:
		return expr.StringType
	}
}

// ColumnName converts a member name to its snake_case column name.
//
//	ReviewAsPrimary -> review_as_primary
//	DateTimeClass   -> date_time_class
func ColumnName(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1]) && i > 0 && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ForeignKeyColumn returns the column holding a reference or link to name.
func ForeignKeyColumn(name string) string {
	return ColumnName(name) + "_" + IDColumn
}

func newModel(entities []*Entity) *Model {
	m := &Model{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		m.entities[e.Name] = e
		m.names = append(m.names, e.Name)
	}
	sort.Strings(m.names)
	return m
}
