// Package dialect describes database capabilities the store and the SQL
// translator depend on.
package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/condpush/internal/schema"
)

// Dialect reports database capabilities.
type Dialect interface {
	// Name identifies the dialect ("sqlite").
	Name() string

	// SupportsDateTimeScale reports whether datetime columns honour a
	// declared fractional-second scale.
	SupportsDateTimeScale() bool

	// MaxDateTimeScale is the finest scale the dialect stores.
	MaxDateTimeScale() int

	// ColumnType returns the DDL type for a scalar field.
	ColumnType(f schema.Field) string

	// FormatDateTime encodes t for a column of the given scale. Digits
	// beyond the scale are truncated, never rounded.
	FormatDateTime(t time.Time, scale int) string

	// ParseDateTime decodes a stored datetime.
	ParseDateTime(s string) (time.Time, error)

	// Decode converts a raw driver value into the Go value for kind:
	// string, int64, bool, time.Time or nil.
	Decode(kind schema.ScalarKind, raw any) (any, error)
}

// SQLite stores datetimes as fixed-width UTC text, which sorts in
// chronological order under the BINARY collation.
type SQLite struct{}

var _ Dialect = SQLite{}

const sqliteLayout = "2006-01-02 15:04:05"

func (SQLite) Name() string { return "sqlite" }

func (SQLite) SupportsDateTimeScale() bool { return true }

func (SQLite) MaxDateTimeScale() int { return 9 }

func (SQLite) ColumnType(f schema.Field) string {
	switch f.Kind {
	case schema.ScalarInt, schema.ScalarBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d SQLite) FormatDateTime(t time.Time, scale int) string {
	if scale == schema.NoScale || scale > d.MaxDateTimeScale() {
		scale = d.MaxDateTimeScale()
	}
	t = Truncate(t.UTC(), scale)
	if scale == 0 {
		return t.Format(sqliteLayout)
	}
	return t.Format(sqliteLayout + "." + strings.Repeat("0", scale))
}

func (SQLite) ParseDateTime(s string) (time.Time, error) {
	// time.Parse accepts a fractional second after the seconds field even
	// though the layout has none.
	t, err := time.Parse(sqliteLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return t, nil
}

// Decode converts int64, string, []byte, time.Time or nil driver values.
func (d SQLite) Decode(kind schema.ScalarKind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch kind {
	case schema.ScalarBool:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("expected integer for bool, got %T", raw)
		}
		return n != 0, nil
	case schema.ScalarInt:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return n, nil
	case schema.ScalarDateTime:
		if tv, ok := raw.(time.Time); ok {
			return tv.UTC(), nil
		}
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected text for datetime, got %T", raw)
		}
		return d.ParseDateTime(str)
	default:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected text, got %T", raw)
		}
		return str, nil
	}
}

// Truncate drops fractional-second digits beyond scale.
func Truncate(t time.Time, scale int) time.Time {
	if scale < 0 || scale >= 9 {
		return t
	}
	unit := time.Duration(1)
	for i := scale; i < 9; i++ {
		unit *= 10
	}
	return t.Truncate(unit)
}

// ByName returns a dialect by name.
func ByName(name string) (Dialect, error) {
	switch name {
	case "", "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}
