package expr

import (
	"fmt"
	"strings"
)

// Kind classifies a static type.
type Kind int

const (
	KindUnknown Kind = iota
	KindBool
	KindInt
	KindString
	KindDateTime
	KindNull
	KindEntity
	KindSequence
	KindGroup
	KindRecord
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindBool:     "bool",
	KindInt:      "int",
	KindString:   "string",
	KindDateTime: "datetime",
	KindNull:     "null",
	KindEntity:   "entity",
	KindSequence: "sequence",
	KindGroup:    "group",
	KindRecord:   "record",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Type is the static type of an expression.
//
// Scalar kinds use Kind only. Entity types carry the entity name. Sequences
// carry Elem; groups carry Key and Elem (a group is also a sequence of its
// elements). Records carry ordered Fields.
type Type struct {
	Kind   Kind
	Entity string
	Elem   *Type
	Key    *Type
	Fields []FieldType
}

// FieldType is one field of a record type.
type FieldType struct {
	Name string
	Type Type
}

// Scalar constructors.
var (
	BoolType     = Type{Kind: KindBool}
	IntType      = Type{Kind: KindInt}
	StringType   = Type{Kind: KindString}
	DateTimeType = Type{Kind: KindDateTime}
	NullType     = Type{Kind: KindNull}
)

// EntityOf returns the type of an instance of the named entity.
func EntityOf(name string) Type {
	return Type{Kind: KindEntity, Entity: name}
}

// SequenceOf returns the type of a sequence of elem.
func SequenceOf(elem Type) Type {
	return Type{Kind: KindSequence, Elem: &elem}
}

// GroupOf returns the type of a group keyed by key holding elem values.
func GroupOf(key, elem Type) Type {
	return Type{Kind: KindGroup, Key: &key, Elem: &elem}
}

// RecordOf returns an anonymous record type.
func RecordOf(fields ...FieldType) Type {
	return Type{Kind: KindRecord, Fields: fields}
}

// IsZero reports whether t is the zero Type (no type information).
func (t Type) IsZero() bool {
	return t.Kind == KindUnknown
}

// IsSequence reports whether t can be enumerated (sequence or group).
func (t Type) IsSequence() bool {
	return t.Kind == KindSequence || t.Kind == KindGroup
}

// ElementType returns the element type of a sequence or group.
func (t Type) ElementType() (Type, bool) {
	if !t.IsSequence() || t.Elem == nil {
		return Type{}, false
	}
	return *t.Elem, true
}

// Nullable reports whether null may stand in for a value of t.
func (t Type) Nullable() bool {
	switch t.Kind {
	case KindNull, KindEntity, KindString, KindDateTime:
		return true
	}
	return false
}

// Equal reports structural type equality.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind || t.Entity != other.Entity {
		return false
	}
	if !typePtrEqual(t.Elem, other.Elem) || !typePtrEqual(t.Key, other.Key) {
		return false
	}
	if len(t.Fields) != len(other.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].Name != other.Fields[i].Name || !t.Fields[i].Type.Equal(other.Fields[i].Type) {
			return false
		}
	}
	return true
}

func typePtrEqual(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Unify returns the common type of a and b. Null unifies with any nullable
// type. ok is false when the types are incompatible.
func Unify(a, b Type) (Type, bool) {
	switch {
	case a.Equal(b):
		return a, true
	case a.Kind == KindNull && b.Nullable():
		return b, true
	case b.Kind == KindNull && a.Nullable():
		return a, true
	}
	return Type{}, false
}

func (t Type) String() string {
	switch t.Kind {
	case KindEntity:
		return t.Entity
	case KindSequence:
		if t.Elem == nil {
			return "seq<?>"
		}
		return "seq<" + t.Elem.String() + ">"
	case KindGroup:
		if t.Key == nil || t.Elem == nil {
			return "group<?>"
		}
		return "group<" + t.Key.String() + ", " + t.Elem.String() + ">"
	case KindRecord:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return t.Kind.String()
	}
}

// Field returns the record field with the given name.
func (t Type) Field(name string) (Type, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return Type{}, false
}

// MemberResolver answers member lookups on entity types.
// The schema package implements it from the CUE entity model.
type MemberResolver interface {
	ResolveMember(entity, member string) (Type, error)
}
