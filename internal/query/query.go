// Package query models LINQ-style query pipelines over a root entity.
//
//	q => q.Where(e => e.ReviewAsPrimary).OrderBy(e => e.Name).Select(e => e.Name)
//
// A Query is the root entity plus an ordered list of clauses, each carrying
// a single-parameter lambda. Rewrite applies conditional pushdown to every
// clause lambda with the lambda parameter typed from the preceding clauses.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/exprparse"
	"github.com/roach88/condpush/internal/rewrite"
)

// Op is a clause operator.
type Op string

const (
	OpWhere             Op = expr.MethodWhere
	OpSelect            Op = expr.MethodSelect
	OpOrderBy           Op = expr.MethodOrderBy
	OpOrderByDescending Op = expr.MethodOrderByDescending
	OpThenBy            Op = expr.MethodThenBy
	OpThenByDescending  Op = expr.MethodThenByDescending
	OpGroupBy           Op = expr.MethodGroupBy
)

// IsOrdering reports whether op sorts the sequence.
func (op Op) IsOrdering() bool {
	switch op {
	case OpOrderBy, OpOrderByDescending, OpThenBy, OpThenByDescending:
		return true
	}
	return false
}

// Descending reports whether op sorts in descending order.
func (op Op) Descending() bool {
	return op == OpOrderByDescending || op == OpThenByDescending
}

// ErrInvalidQuery is wrapped by every query shape error.
var ErrInvalidQuery = errors.New("invalid query")

// Clause is one pipeline step.
type Clause struct {
	Op     Op
	Lambda expr.Lambda
}

// Param returns the clause lambda's parameter.
func (c Clause) Param() expr.Parameter {
	return c.Lambda.Params[0]
}

// Query is a pipeline over all instances of Root.
type Query struct {
	Root    string
	Source  string // name of the outer query parameter, "q" by default
	Clauses []Clause
}

// Parse parses query text of the form `q => q.Clause(...)...` over root.
func Parse(text, root string) (*Query, error) {
	n, err := exprparse.Parse(text)
	if err != nil {
		return nil, err
	}
	return FromNode(n, root)
}

// FromNode converts an outer lambda `q => q.Clause(...)...` into a Query.
func FromNode(n expr.Node, root string) (*Query, error) {
	outer, ok := expr.Deref(n).(expr.Lambda)
	if !ok || len(outer.Params) != 1 {
		return nil, fmt.Errorf("%w: expected q => q.Clause(...), got %s", ErrInvalidQuery, expr.Format(n))
	}
	source := outer.Params[0].Name

	var clauses []Clause
	cur := outer.Body
	for {
		switch node := expr.Deref(cur).(type) {
		case expr.Parameter:
			if node.Name != source {
				return nil, fmt.Errorf("%w: pipeline must start at %s, found %s", ErrInvalidQuery, source, node.Name)
			}
			reverse(clauses)
			q := &Query{Root: root, Source: source, Clauses: clauses}
			if err := q.validateShape(); err != nil {
				return nil, err
			}
			return q, nil
		case expr.MethodCall:
			c, err := clauseOf(node)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
			cur = node.Receiver
		default:
			return nil, fmt.Errorf("%w: unexpected %s in pipeline", ErrInvalidQuery, expr.Format(cur))
		}
	}
}

func clauseOf(call expr.MethodCall) (Clause, error) {
	op := Op(call.Method)
	switch op {
	case OpWhere, OpSelect, OpOrderBy, OpOrderByDescending, OpThenBy, OpThenByDescending, OpGroupBy:
	default:
		return Clause{}, fmt.Errorf("%w: unsupported clause %s", ErrInvalidQuery, call.Method)
	}
	if len(call.Args) != 1 {
		return Clause{}, fmt.Errorf("%w: %s takes exactly one lambda", ErrInvalidQuery, call.Method)
	}
	l, ok := expr.Deref(call.Args[0]).(expr.Lambda)
	if !ok || len(l.Params) != 1 {
		return Clause{}, fmt.Errorf("%w: %s argument must be a one-parameter lambda", ErrInvalidQuery, call.Method)
	}
	return Clause{Op: op, Lambda: l}, nil
}

func reverse(clauses []Clause) {
	for i, j := 0, len(clauses)-1; i < j; i, j = i+1, j-1 {
		clauses[i], clauses[j] = clauses[j], clauses[i]
	}
}

// validateShape checks clause ordering rules that hold for every backend.
func (q *Query) validateShape() error {
	for i, c := range q.Clauses {
		if c.Op == OpThenBy || c.Op == OpThenByDescending {
			if i == 0 || !q.Clauses[i-1].Op.IsOrdering() {
				return fmt.Errorf("%w: %s must follow OrderBy or ThenBy", ErrInvalidQuery, c.Op)
			}
		}
	}
	return nil
}

// Node rebuilds the outer lambda for the query.
func (q *Query) Node() expr.Node {
	source := q.Source
	if source == "" {
		source = "q"
	}
	var body expr.Node = expr.Param(source)
	for _, c := range q.Clauses {
		body = expr.Call(body, string(c.Op), c.Lambda)
	}
	return expr.Lam(source, body)
}

// String formats the query as lambda text.
func (q *Query) String() string {
	return expr.Format(q.Node())
}

// Equal reports whether two queries have the same root and structurally
// equal clauses.
func Equal(a, b *Query) bool {
	if a.Root != b.Root || len(a.Clauses) != len(b.Clauses) {
		return false
	}
	for i := range a.Clauses {
		if a.Clauses[i].Op != b.Clauses[i].Op || !expr.Equal(a.Clauses[i].Lambda, b.Clauses[i].Lambda) {
			return false
		}
	}
	return true
}

// ElementTypes returns the element type flowing into each clause and the
// final element type, checking every clause lambda on the way.
func (q *Query) ElementTypes(checker *expr.Checker) ([]expr.Type, expr.Type, error) {
	elem := expr.EntityOf(q.Root)
	in := make([]expr.Type, len(q.Clauses))
	for i, c := range q.Clauses {
		in[i] = elem
		env := (*expr.Env)(nil).Bind(c.Param().Name, elem)
		body, err := checker.Check(c.Lambda.Body, env)
		if err != nil {
			return nil, expr.Type{}, fmt.Errorf("clause %d (%s): %w", i+1, c.Op, err)
		}
		switch c.Op {
		case OpWhere:
			if body.Kind != expr.KindBool {
				return nil, expr.Type{}, fmt.Errorf("clause %d (%s): predicate must be bool, got %s", i+1, c.Op, body)
			}
		case OpSelect:
			elem = body
		case OpGroupBy:
			elem = expr.GroupOf(body, elem)
		}
	}
	return in, elem, nil
}

// Rewrite applies conditional pushdown to every clause lambda. When rw is
// typed (rewrite.WithResolver) the checker types each clause parameter;
// otherwise checker may be nil.
//
// Element types are derived from the rewritten clauses, so a branch type
// mismatch surfaces as a rewrite error rather than a type error.
func (q *Query) Rewrite(rw *rewrite.Rewriter, checker *expr.Checker) (*Query, error) {
	elem := expr.EntityOf(q.Root)
	out := &Query{Root: q.Root, Source: q.Source, Clauses: make([]Clause, len(q.Clauses))}
	for i, c := range q.Clauses {
		var env *expr.Env
		if checker != nil {
			env = env.Bind(c.Param().Name, elem)
		}
		body, err := rw.RewriteIn(c.Lambda.Body, env)
		if err != nil {
			return nil, fmt.Errorf("clause %d (%s): %w", i+1, c.Op, err)
		}
		out.Clauses[i] = Clause{Op: c.Op, Lambda: expr.Lambda{Params: c.Lambda.Params, Body: body}}

		if checker == nil || (c.Op != OpSelect && c.Op != OpGroupBy) {
			continue
		}
		t, err := checker.Check(body, env)
		if err != nil {
			return nil, fmt.Errorf("clause %d (%s): %w", i+1, c.Op, err)
		}
		if c.Op == OpSelect {
			elem = t
		} else {
			elem = expr.GroupOf(t, elem)
		}
	}
	return out, nil
}

// Describe returns a one-line summary such as "Employee: Where, Select".
func (q *Query) Describe() string {
	ops := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		ops[i] = string(c.Op)
	}
	return q.Root + ": " + strings.Join(ops, ", ")
}
