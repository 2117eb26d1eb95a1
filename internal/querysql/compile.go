package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/query"
	"github.com/roach88/condpush/internal/schema"
)

var (
	// ErrConditionalSequence is returned when a conditional whose branches
	// are collections reaches the translator. SQL has no collection-valued
	// CASE; run the query through conditional pushdown first.
	ErrConditionalSequence = errors.New("conditional over collections cannot be translated to SQL")

	// ErrUnsupported is wrapped by every shape the translator does not cover.
	ErrUnsupported = errors.New("unsupported by the SQL translator")
)

// Statement is a compiled query.
type Statement struct {
	SQL    string
	Params []any

	// Columns describes each selected column in order.
	Columns []Column

	// Entity is set when each row is an entity instance: the first column
	// is its id and the remaining columns are its scalar fields.
	Entity string

	// Record is set when rows are anonymous projections with one column
	// per field.
	Record bool
}

// Column is one selected column.
type Column struct {
	Name  string
	Type  expr.Type
	Field *schema.Field
}

// SQLCompiler compiles rewritten queries to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries include ORDER BY with an id tiebreaker for
// deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
//
// A SQLCompiler holds no per-query state and is safe for concurrent use.
type SQLCompiler struct {
	model   *schema.Model
	checker *expr.Checker
}

// NewSQLCompiler creates a compiler for the given model.
func NewSQLCompiler(model *schema.Model) *SQLCompiler {
	return &SQLCompiler{model: model, checker: expr.NewChecker(model)}
}

// orderKey is one ORDER BY term.
type orderKey struct {
	expr frag
	desc bool
}

// compilation is the state of one Compile call.
type compilation struct {
	*SQLCompiler
	aliases int
}

func (c *compilation) alias() string {
	c.aliases++
	return fmt.Sprintf("t%d", c.aliases)
}

// Compile converts a query to SQL.
//
// MANDATORY: Every query includes ORDER BY with a deterministic tiebreaker.
// MANDATORY: All values are parameterized (never interpolated).
func (c *SQLCompiler) Compile(q *query.Query) (*Statement, error) {
	if q == nil {
		return nil, fmt.Errorf("cannot compile nil query")
	}
	root, ok := c.model.Entity(q.Root)
	if !ok {
		return nil, fmt.Errorf("unknown root entity %q", q.Root)
	}
	cc := &compilation{SQLCompiler: c}
	return cc.compileQuery(q, root)
}

func (c *compilation) compileQuery(q *query.Query, root *schema.Entity) (*Statement, error) {
	const rootAlias = "t0"
	elemType := expr.EntityOf(root.Name)

	var (
		where    []frag
		ordering [][]orderKey // ordering[0] is the most recent OrderBy and its ThenBys
		group    *groupCtx
		selected bool
		columns  []Column
		selects  []frag
		isRecord bool
	)

	for i, cl := range q.Clauses {
		name := cl.Param().Name
		var sc *scope
		if group != nil {
			sc = sc.bindGroup(name, group, elemType)
		} else {
			sc = sc.bindRow(name, rootAlias, root.Name)
		}
		body := cl.Lambda.Body

		if selected {
			return nil, fmt.Errorf("%w: clause %d (%s) after Select", ErrUnsupported, i+1, cl.Op)
		}

		switch cl.Op {
		case query.OpWhere:
			if group != nil {
				return nil, fmt.Errorf("%w: Where after GroupBy", ErrUnsupported)
			}
			pred, err := c.scalar(body, sc)
			if err != nil {
				return nil, fmt.Errorf("clause %d (Where): %w", i+1, err)
			}
			where = append(where, pred)

		case query.OpOrderBy, query.OpOrderByDescending:
			key, err := c.scalar(body, sc)
			if err != nil {
				return nil, fmt.Errorf("clause %d (%s): %w", i+1, cl.Op, err)
			}
			ordering = append([][]orderKey{{{expr: key, desc: cl.Op.Descending()}}}, ordering...)

		case query.OpThenBy, query.OpThenByDescending:
			key, err := c.scalar(body, sc)
			if err != nil {
				return nil, fmt.Errorf("clause %d (%s): %w", i+1, cl.Op, err)
			}
			ordering[0] = append(ordering[0], orderKey{expr: key, desc: cl.Op.Descending()})

		case query.OpGroupBy:
			if group != nil {
				return nil, fmt.Errorf("%w: nested GroupBy", ErrUnsupported)
			}
			if len(ordering) > 0 {
				return nil, fmt.Errorf("%w: GroupBy after ordering", ErrUnsupported)
			}
			key, err := c.scalar(body, sc)
			if err != nil {
				return nil, fmt.Errorf("clause %d (GroupBy): %w", i+1, err)
			}
			keyType, err := c.checker.Check(body, sc.env())
			if err != nil {
				return nil, err
			}
			group = &groupCtx{key: key, alias: rootAlias, entity: root.Name}
			elemType = expr.GroupOf(keyType, elemType)

		case query.OpSelect:
			var err error
			selects, columns, isRecord, err = c.projection(body, sc)
			if err != nil {
				return nil, fmt.Errorf("clause %d (Select): %w", i+1, err)
			}
			selected = true

		default:
			return nil, fmt.Errorf("%w: clause %s", ErrUnsupported, cl.Op)
		}
	}

	if group != nil && !selected {
		return nil, fmt.Errorf("%w: GroupBy results must be projected with Select", ErrUnsupported)
	}

	stmt := &Statement{Record: isRecord}
	if !selected {
		stmt.Entity = root.Name
		selects = []frag{{sql: rootAlias + "." + schema.IDColumn}}
		columns = []Column{{Name: schema.IDColumn, Type: expr.StringType}}
		for i := range root.Fields {
			f := &root.Fields[i]
			selects = append(selects, frag{sql: rootAlias + "." + f.Column})
			columns = append(columns, Column{Name: f.Name, Type: f.Type(), Field: f})
		}
	}
	stmt.Columns = columns

	parts := []frag{{sql: "SELECT "}, joinFrags(selects, ", "), {sql: " FROM " + root.Table + " " + rootAlias}}
	if len(where) > 0 {
		parts = append(parts, frag{sql: " WHERE "}, joinFrags(where, " AND "))
	}
	if group != nil {
		parts = append(parts, frag{sql: " GROUP BY "}, group.key)
	}

	// MANDATORY: Always add ORDER BY with a stable tiebreaker.
	var keys []frag
	for _, level := range ordering {
		for _, k := range level {
			dir := " ASC"
			if k.desc {
				dir = " DESC"
			}
			keys = append(keys, fragf("%s"+dir, k.expr))
		}
	}
	keys = append(keys, frag{sql: stableOrderKey(rootAlias, group != nil)})
	parts = append(parts, frag{sql: " ORDER BY "}, joinFrags(keys, ", "))

	out := concat(parts...)
	stmt.SQL = out.sql
	stmt.Params = out.args
	return stmt, nil
}

// stableOrderKey returns the final ORDER BY term. Ungrouped rows order by
// id; groups order by their first member, which is the order groups first
// appear in an id-ordered scan.
// COLLATE BINARY ensures deterministic text ordering across SQLite versions.
func stableOrderKey(alias string, grouped bool) string {
	if grouped {
		return "MIN(" + alias + "." + schema.IDColumn + ") COLLATE BINARY ASC"
	}
	return alias + "." + schema.IDColumn + " COLLATE BINARY ASC"
}

// projection compiles a Select body into select-list items.
func (c *compilation) projection(body expr.Node, sc *scope) ([]frag, []Column, bool, error) {
	if n, ok := expr.Deref(body).(expr.New); ok {
		selects := make([]frag, 0, len(n.Fields))
		columns := make([]Column, 0, len(n.Fields))
		for _, f := range n.Fields {
			col, err := c.column(f.Name, f.Value, sc)
			if err != nil {
				return nil, nil, false, fmt.Errorf("field %s: %w", f.Name, err)
			}
			selects = append(selects, col.frag)
			columns = append(columns, col.Column)
		}
		return selects, columns, true, nil
	}
	col, err := c.column("value", body, sc)
	if err != nil {
		return nil, nil, false, err
	}
	return []frag{col.frag}, []Column{col.Column}, false, nil
}

type selectColumn struct {
	Column
	frag frag
}

func (c *compilation) column(name string, n expr.Node, sc *scope) (selectColumn, error) {
	t, err := c.checker.Check(n, sc.env())
	if err != nil {
		return selectColumn{}, err
	}
	switch t.Kind {
	case expr.KindBool, expr.KindInt, expr.KindString, expr.KindDateTime, expr.KindNull:
	default:
		return selectColumn{}, fmt.Errorf("%w: projecting %s values; project scalar members instead", ErrUnsupported, t)
	}
	f, err := c.scalar(n, sc)
	if err != nil {
		return selectColumn{}, err
	}
	return selectColumn{
		Column: Column{Name: name, Type: t},
		frag:   concat(f, frag{sql: " AS " + quoteIdent(name)}),
	}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
