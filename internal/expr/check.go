package expr

import (
	"errors"
	"fmt"

	"github.com/roach88/condpush/internal/ir"
)

// TypeError reports a static typing failure at a specific node.
type TypeError struct {
	// Expr is the formatted node that failed to type-check.
	Expr string

	// Message is a human-readable description.
	Message string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error in %s: %s", e.Expr, e.Message)
}

// IsTypeError returns true if err is or wraps a *TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

func typeErrorf(n Node, format string, args ...any) *TypeError {
	return &TypeError{Expr: Format(n), Message: fmt.Sprintf(format, args...)}
}

// Env binds lambda parameter names to types. It is an immutable linked
// list: Bind returns a new Env and never modifies the receiver. The nil Env
// is empty and ready to use.
type Env struct {
	name   string
	typ    Type
	parent *Env
}

// Bind returns an environment where name has type t.
func (e *Env) Bind(name string, t Type) *Env {
	return &Env{name: name, typ: t, parent: e}
}

// Lookup finds the innermost binding of name.
func (e *Env) Lookup(name string) (Type, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.typ, true
		}
	}
	return Type{}, false
}

// Checker infers static types of expressions.
//
// Check is a pure function of the node, the environment and the resolver;
// a Checker is safe for concurrent use if its Resolver is.
type Checker struct {
	Resolver MemberResolver
}

// NewChecker creates a checker backed by the given member resolver.
func NewChecker(resolver MemberResolver) *Checker {
	return &Checker{Resolver: resolver}
}

// Check returns the static type of n under env.
//
// A top-level Lambda is checked by binding each parameter to its declared
// Type (or an existing env binding) and returning the body type. Lambdas in
// argument position are bound to the receiver element type by the method
// rules.
func (c *Checker) Check(n Node, env *Env) (Type, error) {
	switch node := Deref(n).(type) {
	case nil:
		return Type{}, &TypeError{Expr: "<nil>", Message: "nil expression"}
	case Parameter:
		if !node.Type.IsZero() {
			return node.Type, nil
		}
		t, ok := env.Lookup(node.Name)
		if !ok {
			return Type{}, typeErrorf(node, "unbound parameter %q", node.Name)
		}
		return t, nil
	case Constant:
		return constantType(node)
	case MemberAccess:
		return c.checkMember(node, env)
	case MethodCall:
		return c.checkCall(node, env)
	case Conditional:
		return c.checkConditional(node, env)
	case Lambda:
		inner := env
		for _, p := range node.Params {
			t := p.Type
			if t.IsZero() {
				bound, ok := env.Lookup(p.Name)
				if !ok {
					return Type{}, typeErrorf(node, "lambda parameter %q has no type", p.Name)
				}
				t = bound
			}
			inner = inner.Bind(p.Name, t)
		}
		return c.Check(node.Body, inner)
	case Binary:
		return c.checkBinary(node, env)
	case Not:
		t, err := c.Check(node.Operand, env)
		if err != nil {
			return Type{}, err
		}
		if t.Kind != KindBool {
			return Type{}, typeErrorf(node, "operand of ! must be bool, got %s", t)
		}
		return BoolType, nil
	case New:
		fields := make([]FieldType, 0, len(node.Fields))
		for _, f := range node.Fields {
			t, err := c.Check(f.Value, env)
			if err != nil {
				return Type{}, err
			}
			fields = append(fields, FieldType{Name: f.Name, Type: t})
		}
		return RecordOf(fields...), nil
	default:
		return Type{}, &TypeError{Expr: fmt.Sprintf("%T", n), Message: "unknown node type"}
	}
}

func constantType(c Constant) (Type, error) {
	switch c.Value.(type) {
	case nil, ir.IRNull:
		return NullType, nil
	case ir.IRString:
		return StringType, nil
	case ir.IRInt:
		return IntType, nil
	case ir.IRBool:
		return BoolType, nil
	default:
		return Type{}, typeErrorf(c, "unsupported constant type %T", c.Value)
	}
}

func (c *Checker) checkMember(m MemberAccess, env *Env) (Type, error) {
	target, err := c.Check(m.Target, env)
	if err != nil {
		return Type{}, err
	}
	switch target.Kind {
	case KindEntity:
		if c.Resolver == nil {
			return Type{}, typeErrorf(m, "no schema to resolve %s.%s", target.Entity, m.Member)
		}
		t, err := c.Resolver.ResolveMember(target.Entity, m.Member)
		if err != nil {
			return Type{}, &TypeError{Expr: Format(m), Message: err.Error()}
		}
		return t, nil
	case KindGroup:
		if m.Member == "Key" {
			return *target.Key, nil
		}
	case KindRecord:
		if t, ok := target.Field(m.Member); ok {
			return t, nil
		}
	case KindString:
		if m.Member == "Length" {
			return IntType, nil
		}
	}
	return Type{}, typeErrorf(m, "member %q is not defined on %s", m.Member, target)
}

func (c *Checker) checkConditional(cond Conditional, env *Env) (Type, error) {
	test, err := c.Check(cond.Test, env)
	if err != nil {
		return Type{}, err
	}
	if test.Kind != KindBool {
		return Type{}, typeErrorf(cond, "condition must be bool, got %s", test)
	}
	whenTrue, err := c.Check(cond.WhenTrue, env)
	if err != nil {
		return Type{}, err
	}
	whenFalse, err := c.Check(cond.WhenFalse, env)
	if err != nil {
		return Type{}, err
	}
	t, ok := Unify(whenTrue, whenFalse)
	if !ok {
		return Type{}, typeErrorf(cond, "branches have incompatible types %s and %s", whenTrue, whenFalse)
	}
	return t, nil
}

func (c *Checker) checkBinary(b Binary, env *Env) (Type, error) {
	left, err := c.Check(b.Left, env)
	if err != nil {
		return Type{}, err
	}
	right, err := c.Check(b.Right, env)
	if err != nil {
		return Type{}, err
	}
	switch {
	case b.Op.IsLogical():
		if left.Kind != KindBool || right.Kind != KindBool {
			return Type{}, typeErrorf(b, "operands of %s must be bool, got %s and %s", b.Op, left, right)
		}
	case b.Op == OpEqual || b.Op == OpNotEqual:
		if _, ok := Unify(left, right); !ok {
			return Type{}, typeErrorf(b, "cannot compare %s with %s", left, right)
		}
	case b.Op.IsComparison():
		if !left.Equal(right) || !orderable(left) {
			return Type{}, typeErrorf(b, "cannot order %s against %s", left, right)
		}
	default:
		return Type{}, typeErrorf(b, "unknown operator %q", b.Op)
	}
	return BoolType, nil
}

func orderable(t Type) bool {
	switch t.Kind {
	case KindInt, KindString, KindDateTime:
		return true
	}
	return false
}

// BindLambda returns env extended with l's parameter bound to the element
// type of receiver. It is the binding the method rules use for lambda
// arguments, exposed so that passes walking lambda bodies can track scope.
func (c *Checker) BindLambda(receiver Type, l Lambda, env *Env) (*Env, error) {
	elem, ok := receiver.ElementType()
	if !ok {
		return nil, typeErrorf(l, "lambda applied to non-sequence %s", receiver)
	}
	if len(l.Params) != 1 {
		return nil, typeErrorf(l, "query lambdas take exactly one parameter, got %d", len(l.Params))
	}
	p := l.Params[0]
	if !p.Type.IsZero() && !p.Type.Equal(elem) {
		return nil, typeErrorf(l, "parameter %q declared %s but bound to %s", p.Name, p.Type, elem)
	}
	return env.Bind(p.Name, elem), nil
}
