package querysql

import (
	"fmt"

	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/ir"
	"github.com/roach88/condpush/internal/schema"
)

// groupCtx is the GROUP BY state seen by every lambda after GroupBy.
type groupCtx struct {
	key    frag
	alias  string
	entity string
}

// scope maps lambda parameters to SQL. A parameter denotes either a row of
// an aliased table or, after GroupBy, the current group.
type scope struct {
	name   string
	alias  string
	entity string
	group  *groupCtx
	typ    expr.Type
	parent *scope
}

func (s *scope) bindRow(name, alias, entity string) *scope {
	return &scope{name: name, alias: alias, entity: entity, typ: expr.EntityOf(entity), parent: s}
}

func (s *scope) bindGroup(name string, g *groupCtx, typ expr.Type) *scope {
	return &scope{name: name, group: g, typ: typ, parent: s}
}

func (s *scope) lookup(name string) (*scope, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur, true
		}
	}
	return nil, false
}

// env converts the scope into a type environment with the same shadowing.
func (s *scope) env() *expr.Env {
	var chain []*scope
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	var env *expr.Env
	for i := len(chain) - 1; i >= 0; i-- {
		env = env.Bind(chain[i].name, chain[i].typ)
	}
	return env
}

func (c *compilation) typeOf(n expr.Node, sc *scope) (expr.Type, error) {
	return c.checker.Check(n, sc.env())
}

// scalar compiles an expression that yields one SQL value per row.
func (c *compilation) scalar(n expr.Node, sc *scope) (frag, error) {
	switch n := expr.Deref(n).(type) {
	case expr.Constant:
		return irValueToParam(n.Value)

	case expr.Parameter:
		b, ok := sc.lookup(n.Name)
		if !ok {
			return frag{}, fmt.Errorf("unbound parameter %q", n.Name)
		}
		if b.group != nil {
			return frag{}, fmt.Errorf("%w: group %s used as a value", ErrUnsupported, n.Name)
		}
		return frag{sql: b.alias + "." + schema.IDColumn}, nil

	case expr.MemberAccess:
		return c.member(n, sc)

	case expr.Binary:
		return c.binary(n, sc)

	case expr.Not:
		operand, err := c.scalar(n.Operand, sc)
		if err != nil {
			return frag{}, err
		}
		return fragf("(NOT %s)", operand), nil

	case expr.Conditional:
		t, err := c.typeOf(n, sc)
		if err != nil {
			return frag{}, err
		}
		if t.IsSequence() {
			return frag{}, fmt.Errorf("%w: %s", ErrConditionalSequence, expr.Format(n))
		}
		if t.Kind == expr.KindEntity {
			ref, err := c.entityRef(n, sc)
			if err != nil {
				return frag{}, err
			}
			return ref.id, nil
		}
		return c.caseWhen(n, sc, c.scalar)

	case expr.MethodCall:
		return c.call(n, sc)

	case nil:
		return frag{}, fmt.Errorf("%w: nil node", ErrUnsupported)
	}
	return frag{}, fmt.Errorf("%w: %T in value position", ErrUnsupported, n)
}

// caseWhen compiles a scalar conditional. A null test selects WhenFalse,
// as CASE does.
func (c *compilation) caseWhen(n expr.Conditional, sc *scope, branch func(expr.Node, *scope) (frag, error)) (frag, error) {
	test, err := c.scalar(n.Test, sc)
	if err != nil {
		return frag{}, err
	}
	whenTrue, err := branch(n.WhenTrue, sc)
	if err != nil {
		return frag{}, err
	}
	whenFalse, err := branch(n.WhenFalse, sc)
	if err != nil {
		return frag{}, err
	}
	return fragf("(CASE WHEN %s THEN %s ELSE %s END)", test, whenTrue, whenFalse), nil
}

// irValueToParam converts a constant to a placeholder.
// CRITICAL: Never interpolate values into SQL strings. Null is the only
// literal written inline.
func irValueToParam(v ir.IRValue) (frag, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return frag{sql: "NULL"}, nil
	case ir.IRString:
		return param(string(val)), nil
	case ir.IRInt:
		return param(int64(val)), nil
	case ir.IRBool:
		return param(bool(val)), nil
	}
	return frag{}, fmt.Errorf("%w: constant of type %T", ErrUnsupported, v)
}

func isNullLiteral(n expr.Node) bool {
	c, ok := expr.Deref(n).(expr.Constant)
	if !ok {
		return false
	}
	switch c.Value.(type) {
	case nil, ir.IRNull:
		return true
	}
	return false
}

var sqlOps = map[expr.BinaryOp]string{
	expr.OpEqual:        "=",
	expr.OpNotEqual:     "<>",
	expr.OpLess:         "<",
	expr.OpLessEqual:    "<=",
	expr.OpGreater:      ">",
	expr.OpGreaterEqual: ">=",
	expr.OpAnd:          "AND",
	expr.OpOr:           "OR",
}

func (c *compilation) binary(b expr.Binary, sc *scope) (frag, error) {
	op, ok := sqlOps[b.Op]
	if !ok {
		return frag{}, fmt.Errorf("%w: operator %q", ErrUnsupported, b.Op)
	}

	// x == null tests for null rather than comparing.
	if b.Op == expr.OpEqual || b.Op == expr.OpNotEqual {
		other := b.Left
		switch {
		case isNullLiteral(b.Right):
		case isNullLiteral(b.Left):
			other = b.Right
		default:
			other = nil
		}
		if other != nil {
			operand, err := c.scalar(other, sc)
			if err != nil {
				return frag{}, err
			}
			if b.Op == expr.OpEqual {
				return fragf("(%s IS NULL)", operand), nil
			}
			return fragf("(%s IS NOT NULL)", operand), nil
		}
	}

	left, err := c.scalar(b.Left, sc)
	if err != nil {
		return frag{}, err
	}
	right, err := c.scalar(b.Right, sc)
	if err != nil {
		return frag{}, err
	}
	return fragf("(%s "+op+" %s)", left, right), nil
}

// member compiles target.Member in value position.
func (c *compilation) member(m expr.MemberAccess, sc *scope) (frag, error) {
	t, err := c.typeOf(m.Target, sc)
	if err != nil {
		return frag{}, err
	}
	switch t.Kind {
	case expr.KindGroup:
		if p, ok := expr.Deref(m.Target).(expr.Parameter); ok && m.Member == "Key" {
			if b, ok := sc.lookup(p.Name); ok && b.group != nil {
				return b.group.key, nil
			}
		}
	case expr.KindString:
		if m.Member == "Length" {
			target, err := c.scalar(m.Target, sc)
			if err != nil {
				return frag{}, err
			}
			return fragf("length(%s)", target), nil
		}
	case expr.KindEntity:
		ref, err := c.entityRef(m.Target, sc)
		if err != nil {
			return frag{}, err
		}
		mem, err := c.model.Member(ref.entity, m.Member)
		if err != nil {
			return frag{}, err
		}
		switch mem.Kind {
		case schema.MemberID:
			return ref.id, nil
		case schema.MemberField:
			return c.readColumn(ref, mem.Field.Column), nil
		case schema.MemberReference:
			return c.readColumn(ref, mem.Reference.Column), nil
		case schema.MemberCollection:
			return frag{}, fmt.Errorf("%w: collection %s.%s used as a value", ErrUnsupported, ref.entity, m.Member)
		}
	}
	return frag{}, fmt.Errorf("%w: member %s on %s", ErrUnsupported, m.Member, t)
}

// entityRef locates an entity-valued expression. When the row is already
// in the FROM list alias is set; otherwise only its id is known and
// columns are read through a correlated subquery.
type entityRef struct {
	entity string
	alias  string
	id     frag
}

func (c *compilation) entityRef(n expr.Node, sc *scope) (entityRef, error) {
	switch n := expr.Deref(n).(type) {
	case expr.Parameter:
		b, ok := sc.lookup(n.Name)
		if !ok {
			return entityRef{}, fmt.Errorf("unbound parameter %q", n.Name)
		}
		if b.group != nil {
			return entityRef{}, fmt.Errorf("%w: group %s used as an entity", ErrUnsupported, n.Name)
		}
		return entityRef{entity: b.entity, alias: b.alias, id: frag{sql: b.alias + "." + schema.IDColumn}}, nil

	case expr.Constant:
		if isNullLiteral(n) {
			return entityRef{id: frag{sql: "NULL"}}, nil
		}

	case expr.MemberAccess:
		target, err := c.entityRef(n.Target, sc)
		if err != nil {
			return entityRef{}, err
		}
		mem, err := c.model.Member(target.entity, n.Member)
		if err != nil {
			return entityRef{}, err
		}
		if mem.Kind != schema.MemberReference {
			break
		}
		return entityRef{entity: mem.Reference.Target, id: c.readColumn(target, mem.Reference.Column)}, nil

	case expr.Conditional:
		t, err := c.typeOf(n, sc)
		if err != nil {
			return entityRef{}, err
		}
		id, err := c.caseWhen(n, sc, func(branch expr.Node, sc *scope) (frag, error) {
			ref, err := c.entityRef(branch, sc)
			return ref.id, err
		})
		if err != nil {
			return entityRef{}, err
		}
		return entityRef{entity: t.Entity, id: id}, nil
	}
	return entityRef{}, fmt.Errorf("%w: %s as an entity", ErrUnsupported, expr.Format(n))
}

func (c *compilation) readColumn(ref entityRef, column string) frag {
	if ref.alias != "" {
		return frag{sql: ref.alias + "." + column}
	}
	e, _ := c.model.Entity(ref.entity)
	a := c.alias()
	return concat(
		frag{sql: "(SELECT " + a + "." + column + " FROM " + e.Table + " " + a + " WHERE " + a + "." + schema.IDColumn + " = "},
		ref.id,
		frag{sql: ")"},
	)
}

// call compiles a method call in value position.
func (c *compilation) call(m expr.MethodCall, sc *scope) (frag, error) {
	recv, err := c.typeOf(m.Receiver, sc)
	if err != nil {
		return frag{}, err
	}
	switch recv.Kind {
	case expr.KindString:
		return c.stringCall(m, sc)
	case expr.KindGroup:
		if p, ok := expr.Deref(m.Receiver).(expr.Parameter); ok {
			if b, ok := sc.lookup(p.Name); ok && b.group != nil {
				return c.aggregate(m, b.group, sc)
			}
		}
	case expr.KindSequence:
		src, err := c.source(m.Receiver, sc)
		if err != nil {
			return frag{}, err
		}
		return c.reduce(src, m, sc)
	}
	return frag{}, fmt.Errorf("%w: %s on %s", ErrUnsupported, m.Method, recv)
}

func (c *compilation) stringCall(m expr.MethodCall, sc *scope) (frag, error) {
	s, err := c.scalar(m.Receiver, sc)
	if err != nil {
		return frag{}, err
	}
	switch m.Method {
	case expr.MethodToUpper:
		return fragf("upper(%s)", s), nil
	case expr.MethodToLower:
		return fragf("lower(%s)", s), nil
	}
	if len(m.Args) != 1 {
		return frag{}, fmt.Errorf("%w: %s with %d arguments", ErrUnsupported, m.Method, len(m.Args))
	}
	arg, err := c.scalar(m.Args[0], sc)
	if err != nil {
		return frag{}, err
	}
	switch m.Method {
	case expr.MethodContains:
		return fragf("(instr(%s, %s) > 0)", s, arg), nil
	case expr.MethodStartsWith:
		return fragf("(substr(%s, 1, length(%s)) = %s)", s, arg, arg), nil
	case expr.MethodEndsWith:
		// substr(s, -0) is the whole string, so the empty suffix needs its own test.
		return fragf("(length(%s) = 0 OR substr(%s, -length(%s)) = %s)", arg, s, arg, arg), nil
	}
	return frag{}, fmt.Errorf("%w: %s on string", ErrUnsupported, m.Method)
}

// lambda compiles the body of a one-parameter lambda whose parameter is a
// row of alias.
func (c *compilation) lambda(arg expr.Node, sc *scope, alias, entity string) (frag, error) {
	l, ok := expr.Deref(arg).(expr.Lambda)
	if !ok || len(l.Params) != 1 {
		return frag{}, fmt.Errorf("%w: expected a one-parameter lambda", ErrUnsupported)
	}
	return c.scalar(l.Body, sc.bindRow(l.Params[0].Name, alias, entity))
}

// aggregate compiles a call on the current group into an aggregate over
// the grouped rows.
func (c *compilation) aggregate(m expr.MethodCall, g *groupCtx, sc *scope) (frag, error) {
	var arg frag
	if len(m.Args) == 1 {
		var err error
		if arg, err = c.lambda(m.Args[0], sc, g.alias, g.entity); err != nil {
			return frag{}, err
		}
	}
	hasArg := len(m.Args) == 1

	switch {
	case m.Method == expr.MethodCount && !hasArg:
		return frag{sql: "COUNT(*)"}, nil
	case m.Method == expr.MethodCount:
		return fragf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", arg), nil
	case m.Method == expr.MethodAny && !hasArg:
		return frag{sql: "(COUNT(*) > 0)"}, nil
	case m.Method == expr.MethodAny:
		return fragf("(SUM(CASE WHEN %s THEN 1 ELSE 0 END) > 0)", arg), nil
	case m.Method == expr.MethodAll && hasArg:
		return fragf("(SUM(CASE WHEN NOT (%s) THEN 1 ELSE 0 END) = 0)", arg), nil
	case m.Method == expr.MethodSum && hasArg:
		return fragf("COALESCE(SUM(%s), 0)", arg), nil
	case m.Method == expr.MethodMin && hasArg:
		return fragf("MIN(%s)", arg), nil
	case m.Method == expr.MethodMax && hasArg:
		return fragf("MAX(%s)", arg), nil
	}
	return frag{}, fmt.Errorf("%w: %s on a group", ErrUnsupported, m.Method)
}

// source is a collection compiled to a FROM list and filter. alias names
// the table whose rows are the elements.
type source struct {
	entity string
	alias  string
	from   frag
	where  []frag
}

func (s *source) selectFrom(list frag, extra ...frag) frag {
	parts := []frag{{sql: "SELECT "}, list, {sql: " FROM "}, s.from}
	conds := append(append([]frag{}, s.where...), extra...)
	if len(conds) > 0 {
		parts = append(parts, frag{sql: " WHERE "}, joinFrags(conds, " AND "))
	}
	return concat(parts...)
}

// source compiles a collection-valued expression.
func (c *compilation) source(n expr.Node, sc *scope) (*source, error) {
	switch n := expr.Deref(n).(type) {
	case expr.Conditional:
		return nil, fmt.Errorf("%w: %s", ErrConditionalSequence, expr.Format(n))

	case expr.MemberAccess:
		owner, err := c.entityRef(n.Target, sc)
		if err != nil {
			return nil, err
		}
		mem, err := c.model.Member(owner.entity, n.Member)
		if err != nil {
			return nil, err
		}
		if mem.Kind != schema.MemberCollection {
			break
		}
		return c.collectionSource(owner.id, mem.Collection), nil

	case expr.MethodCall:
		switch n.Method {
		case expr.MethodWhere:
			src, err := c.source(n.Receiver, sc)
			if err != nil {
				return nil, err
			}
			if len(n.Args) != 1 {
				break
			}
			pred, err := c.lambda(n.Args[0], sc, src.alias, src.entity)
			if err != nil {
				return nil, err
			}
			src.where = append(src.where, pred)
			return src, nil

		case expr.MethodSelectMany:
			src, err := c.source(n.Receiver, sc)
			if err != nil {
				return nil, err
			}
			if len(n.Args) != 1 {
				break
			}
			if err := c.flatten(src, n.Args[0]); err != nil {
				return nil, err
			}
			return src, nil
		}
	}
	return nil, fmt.Errorf("%w: %s as a collection", ErrUnsupported, expr.Format(n))
}

func (c *compilation) collectionSource(owner frag, col *schema.Collection) *source {
	elem, _ := c.model.Entity(col.Of)
	a := c.alias()
	src := &source{entity: col.Of, alias: a}
	if col.Join != "" {
		j := c.alias()
		src.from = frag{sql: fmt.Sprintf("%s %s JOIN %s %s ON %s.%s = %s.%s",
			elem.Table, a, col.Join, j, j, col.ElementColumn, a, schema.IDColumn)}
		src.where = []frag{concat(frag{sql: j + "." + col.OwnerColumn + " = "}, owner)}
		return src
	}
	inv, _ := elem.Reference(col.Inverse)
	src.from = frag{sql: elem.Table + " " + a}
	src.where = []frag{concat(frag{sql: a + "." + inv.Column + " = "}, owner)}
	return src
}

// flatten joins the collection selected by a SelectMany lambda onto src.
// The lambda body must be a collection member of its parameter.
func (c *compilation) flatten(src *source, arg expr.Node) error {
	l, ok := expr.Deref(arg).(expr.Lambda)
	if !ok || len(l.Params) != 1 {
		return fmt.Errorf("%w: SelectMany expects a one-parameter lambda", ErrUnsupported)
	}
	body, ok := expr.Deref(l.Body).(expr.MemberAccess)
	if !ok {
		return fmt.Errorf("%w: SelectMany body %s", ErrUnsupported, expr.Format(l.Body))
	}
	if p, ok := expr.Deref(body.Target).(expr.Parameter); !ok || p.Name != l.Params[0].Name {
		return fmt.Errorf("%w: SelectMany body %s", ErrUnsupported, expr.Format(l.Body))
	}
	mem, err := c.model.Member(src.entity, body.Member)
	if err != nil {
		return err
	}
	if mem.Kind != schema.MemberCollection {
		return fmt.Errorf("%w: SelectMany over %s.%s", ErrUnsupported, src.entity, body.Member)
	}
	col := mem.Collection
	elem, _ := c.model.Entity(col.Of)
	b := c.alias()
	if col.Join != "" {
		j := c.alias()
		src.from = concat(src.from, frag{sql: fmt.Sprintf(" JOIN %s %s ON %s.%s = %s.%s JOIN %s %s ON %s.%s = %s.%s",
			col.Join, j, j, col.OwnerColumn, src.alias, schema.IDColumn,
			elem.Table, b, b, schema.IDColumn, j, col.ElementColumn)})
	} else {
		inv, _ := elem.Reference(col.Inverse)
		src.from = concat(src.from, frag{sql: fmt.Sprintf(" JOIN %s %s ON %s.%s = %s.%s",
			elem.Table, b, b, inv.Column, src.alias, schema.IDColumn)})
	}
	src.alias = b
	src.entity = col.Of
	return nil
}

// reduce compiles a sequence operator that yields one value.
func (c *compilation) reduce(src *source, m expr.MethodCall, sc *scope) (frag, error) {
	var arg frag
	hasArg := len(m.Args) == 1
	if hasArg && m.Method != expr.MethodContains {
		var err error
		if arg, err = c.lambda(m.Args[0], sc, src.alias, src.entity); err != nil {
			return frag{}, err
		}
	}
	one := frag{sql: "1"}

	switch {
	case m.Method == expr.MethodAny && !hasArg:
		return fragf("EXISTS (%s)", src.selectFrom(one)), nil
	case m.Method == expr.MethodAny:
		return fragf("EXISTS (%s)", src.selectFrom(one, arg)), nil
	case m.Method == expr.MethodAll && hasArg:
		// NOT of a null predicate is null, so null counts as satisfied.
		return fragf("NOT EXISTS (%s)", src.selectFrom(one, fragf("NOT (%s)", arg))), nil
	case m.Method == expr.MethodCount && !hasArg:
		return fragf("(%s)", src.selectFrom(frag{sql: "COUNT(*)"})), nil
	case m.Method == expr.MethodCount:
		return fragf("(%s)", src.selectFrom(frag{sql: "COUNT(*)"}, arg)), nil
	case m.Method == expr.MethodContains && hasArg:
		x, err := c.scalar(m.Args[0], sc)
		if err != nil {
			return frag{}, err
		}
		match := concat(frag{sql: src.alias + "." + schema.IDColumn + " = "}, x)
		return fragf("EXISTS (%s)", src.selectFrom(one, match)), nil
	case m.Method == expr.MethodSum && hasArg:
		return fragf("(%s)", src.selectFrom(fragf("COALESCE(SUM(%s), 0)", arg))), nil
	case m.Method == expr.MethodMin && hasArg:
		return fragf("(%s)", src.selectFrom(fragf("MIN(%s)", arg))), nil
	case m.Method == expr.MethodMax && hasArg:
		return fragf("(%s)", src.selectFrom(fragf("MAX(%s)", arg))), nil
	}
	return frag{}, fmt.Errorf("%w: %s on a collection", ErrUnsupported, m.Method)
}
