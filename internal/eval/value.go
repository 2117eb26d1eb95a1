package eval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/condpush/internal/entity"
)

// Group is one GroupBy bucket. Items keep their input order.
type Group struct {
	Key   any
	Items []any
}

// Record is an anonymous projection result. Names and Values are parallel.
type Record struct {
	Names  []string
	Values []any
}

// Get returns the value of a record field.
func (r Record) Get(name string) (any, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// ordered is a sorted sequence that still remembers its sort keys so that
// ThenBy can refine it.
type ordered struct {
	items []any
	keys  [][]any // keys[i][k] is key k of items[i]
	desc  []bool
}

func (o *ordered) sort() {
	idx := make([]int, len(o.items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for k, desc := range o.desc {
			c := Compare(o.keys[idx[a]][k], o.keys[idx[b]][k])
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	items := make([]any, len(idx))
	keys := make([][]any, len(idx))
	for i, j := range idx {
		items[i] = o.items[j]
		keys[i] = o.keys[j]
	}
	o.items, o.keys = items, keys
}

// asSeq returns the elements of a sequence value. A null sequence is empty.
func asSeq(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case []any:
		return s, true
	case *ordered:
		return s.items, true
	case Group:
		return s.Items, true
	case *Group:
		return s.Items, true
	}
	return nil, false
}

// Equal is null-aware equality used for Contains and grouping keys: two
// nulls are equal.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *entity.Instance:
		y, ok := b.(*entity.Instance)
		return ok && x.Entity == y.Entity && x.ID == y.ID
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case string, int64, bool:
		return a == b
	}
	return false
}

// Compare orders two values: null first, then by natural order. Strings
// compare bytewise, matching SQLite's BINARY collation.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmpOrdered(boolInt(x), boolInt(y))
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case *entity.Instance:
		if y, ok := b.(*entity.Instance); ok {
			return strings.Compare(x.ID, y.ID)
		}
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func cmpOrdered[T int64 | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Render formats a result value for comparison and display.
//
//	nil           -> null
//	entity        -> its Name field, or ID
//	record        -> {Name: Andy, Beta: true}
//	group         -> group(3)
//	datetime      -> RFC 3339 with nanoseconds, UTC
func Render(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *entity.Instance:
		return x.Label()
	case Record:
		parts := make([]string, len(x.Names))
		for i, n := range x.Names {
			parts[i] = n + ": " + Render(x.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Group:
		return "group(" + Render(x.Key) + ")"
	case *Group:
		return "group(" + Render(x.Key) + ")"
	}
	if items, ok := asSeq(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = Render(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}

// RenderAll renders each row.
func RenderAll(rows []any) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = Render(r)
	}
	return out
}
