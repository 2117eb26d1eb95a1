// Package eval is the reference evaluator for expression trees and query
// pipelines over an in-memory entity graph.
//
// Evaluation follows SQL three-valued logic so that its results match the
// SQLite translation row for row:
//
//   - a member of null is null (no null-reference failure),
//   - a comparison with a null operand is null, except against the null
//     literal, which tests for null,
//   - && and || are Kleene connectives, ! of null is null,
//   - Where, Any, Count and conditional tests treat null as false,
//     All treats it as satisfied.
package eval

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/roach88/condpush/internal/entity"
	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/ir"
	"github.com/roach88/condpush/internal/schema"
)

// ErrEmptySequence is returned by First on an empty sequence.
var ErrEmptySequence = errors.New("sequence contains no elements")

// Scope binds lambda parameters to values. The nil Scope is empty.
type Scope struct {
	name   string
	value  any
	parent *Scope
}

// Bind returns a scope where name is bound to v.
func (s *Scope) Bind(name string, v any) *Scope {
	return &Scope{name: name, value: v, parent: s}
}

// Lookup finds the innermost binding of name.
func (s *Scope) Lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.value, true
		}
	}
	return nil, false
}

// Evaluator evaluates trees against a graph. It only reads the graph and is
// safe for concurrent use once the graph is built.
type Evaluator struct {
	model *schema.Model
	graph *entity.Graph
}

// New creates an evaluator.
func New(model *schema.Model, graph *entity.Graph) *Evaluator {
	return &Evaluator{model: model, graph: graph}
}

// Eval evaluates n with free parameters taken from scope.
func (ev *Evaluator) Eval(n expr.Node, scope *Scope) (any, error) {
	switch node := expr.Deref(n).(type) {
	case nil:
		return nil, fmt.Errorf("cannot evaluate nil node")
	case expr.Parameter:
		v, ok := scope.Lookup(node.Name)
		if !ok {
			return nil, fmt.Errorf("unbound parameter %q", node.Name)
		}
		return v, nil
	case expr.Constant:
		return constantValue(node.Value)
	case expr.MemberAccess:
		target, err := ev.Eval(node.Target, scope)
		if err != nil {
			return nil, err
		}
		return ev.member(target, node.Member)
	case expr.MethodCall:
		return ev.call(node, scope)
	case expr.Conditional:
		test, err := ev.Eval(node.Test, scope)
		if err != nil {
			return nil, err
		}
		if truthy(test) {
			return ev.Eval(node.WhenTrue, scope)
		}
		return ev.Eval(node.WhenFalse, scope)
	case expr.Lambda:
		return nil, fmt.Errorf("lambda %s outside argument position", expr.Format(node))
	case expr.Binary:
		return ev.binary(node, scope)
	case expr.Not:
		v, err := ev.Eval(node.Operand, scope)
		if err != nil || v == nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("operand of ! is %T, not bool", v)
		}
		return !b, nil
	case expr.New:
		rec := Record{Names: make([]string, len(node.Fields)), Values: make([]any, len(node.Fields))}
		for i, f := range node.Fields {
			v, err := ev.Eval(f.Value, scope)
			if err != nil {
				return nil, err
			}
			rec.Names[i] = f.Name
			rec.Values[i] = v
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("cannot evaluate node type %T", n)
	}
}

func constantValue(v ir.IRValue) (any, error) {
	switch c := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(c), nil
	case ir.IRInt:
		return int64(c), nil
	case ir.IRBool:
		return bool(c), nil
	}
	return nil, fmt.Errorf("unsupported constant %T", v)
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func (ev *Evaluator) member(target any, name string) (any, error) {
	switch t := target.(type) {
	case nil:
		return nil, nil
	case *entity.Instance:
		if t == nil {
			return nil, nil
		}
		m, err := ev.model.Member(t.Entity, name)
		if err != nil {
			return nil, err
		}
		switch m.Kind {
		case schema.MemberID:
			return t.ID, nil
		case schema.MemberField:
			return normalize(t.Values[name]), nil
		case schema.MemberReference:
			ref, _ := t.Values[name].(*entity.Instance)
			if ref == nil {
				return nil, nil
			}
			return ref, nil
		default:
			return ev.collection(t, m.Collection), nil
		}
	case Group:
		if name == "Key" {
			return t.Key, nil
		}
	case *Group:
		if name == "Key" {
			return t.Key, nil
		}
	case Record:
		if v, ok := t.Get(name); ok {
			return v, nil
		}
	case string:
		if name == "Length" {
			return int64(utf8.RuneCountInString(t)), nil
		}
	}
	return nil, fmt.Errorf("member %q is not defined on %T", name, target)
}

func normalize(v any) any {
	if n, ok := v.(int); ok {
		return int64(n)
	}
	return v
}

// collection returns the elements of a to-many member. Inverse collections
// are derived from the element side in graph order.
func (ev *Evaluator) collection(owner *entity.Instance, c *schema.Collection) []any {
	if c.Inverse == "" {
		stored, _ := owner.Values[c.Name].([]*entity.Instance)
		out := make([]any, len(stored))
		for i, inst := range stored {
			out[i] = inst
		}
		return out
	}
	var out []any
	for _, inst := range ev.graph.All(c.Of) {
		if ref, ok := inst.Values[c.Inverse].(*entity.Instance); ok && ref != nil && ref.ID == owner.ID {
			out = append(out, inst)
		}
	}
	return out
}

func (ev *Evaluator) binary(b expr.Binary, scope *Scope) (any, error) {
	left, err := ev.Eval(b.Left, scope)
	if err != nil {
		return nil, err
	}
	if b.Op.IsLogical() {
		return ev.logical(b, left, scope)
	}
	right, err := ev.Eval(b.Right, scope)
	if err != nil {
		return nil, err
	}

	if b.Op == expr.OpEqual || b.Op == expr.OpNotEqual {
		if isNullLiteral(b.Left) || isNullLiteral(b.Right) {
			isNull := left == nil && right == nil
			return isNull == (b.Op == expr.OpEqual), nil
		}
	}
	if left == nil || right == nil {
		return nil, nil
	}

	switch b.Op {
	case expr.OpEqual:
		return Equal(left, right), nil
	case expr.OpNotEqual:
		return !Equal(left, right), nil
	}
	c := Compare(left, right)
	switch b.Op {
	case expr.OpLess:
		return c < 0, nil
	case expr.OpLessEqual:
		return c <= 0, nil
	case expr.OpGreater:
		return c > 0, nil
	case expr.OpGreaterEqual:
		return c >= 0, nil
	}
	return nil, fmt.Errorf("unknown operator %q", b.Op)
}

// logical implements Kleene && and || with short-circuiting on the
// deciding value.
func (ev *Evaluator) logical(b expr.Binary, left any, scope *Scope) (any, error) {
	decider := b.Op == expr.OpOr
	if l, ok := left.(bool); ok && l == decider {
		return decider, nil
	}
	right, err := ev.Eval(b.Right, scope)
	if err != nil {
		return nil, err
	}
	if r, ok := right.(bool); ok && r == decider {
		return decider, nil
	}
	if left == nil || right == nil {
		return nil, nil
	}
	return !decider, nil
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

// lambdaArg evaluates a one-parameter lambda argument against item.
func (ev *Evaluator) lambdaArg(call expr.MethodCall, i int, scope *Scope) (func(item any) (any, error), error) {
	if i >= len(call.Args) {
		return nil, fmt.Errorf("%s: missing argument %d", call.Method, i+1)
	}
	l, ok := expr.Deref(call.Args[i]).(expr.Lambda)
	if !ok || len(l.Params) != 1 {
		return nil, fmt.Errorf("%s: argument %d must be a one-parameter lambda", call.Method, i+1)
	}
	name := l.Params[0].Name
	return func(item any) (any, error) {
		return ev.Eval(l.Body, scope.Bind(name, item))
	}, nil
}

func (ev *Evaluator) call(call expr.MethodCall, scope *Scope) (any, error) {
	recv, err := ev.Eval(call.Receiver, scope)
	if err != nil {
		return nil, err
	}
	if s, ok := recv.(string); ok {
		return ev.stringCall(s, call, scope)
	}
	if recv == nil && isStringMethod(call.Method) {
		return nil, nil
	}
	items, ok := asSeq(recv)
	if !ok {
		return nil, fmt.Errorf("method %s is not defined on %T", call.Method, recv)
	}
	return ev.sequenceCall(recv, items, call, scope)
}

func (ev *Evaluator) sequenceCall(recv any, items []any, call expr.MethodCall, scope *Scope) (any, error) {
	var pred func(any) (any, error)
	if len(call.Args) == 1 {
		if _, isLambda := expr.Deref(call.Args[0]).(expr.Lambda); isLambda {
			var err error
			if pred, err = ev.lambdaArg(call, 0, scope); err != nil {
				return nil, err
			}
		}
	}
	needLambda := func() error {
		if pred == nil {
			return fmt.Errorf("%s requires a lambda argument", call.Method)
		}
		return nil
	}

	switch call.Method {
	case expr.MethodAny:
		for _, item := range items {
			if pred == nil {
				return true, nil
			}
			v, err := pred(item)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil

	case expr.MethodAll:
		if err := needLambda(); err != nil {
			return nil, err
		}
		for _, item := range items {
			v, err := pred(item)
			if err != nil {
				return nil, err
			}
			if b, ok := v.(bool); ok && !b {
				return false, nil
			}
		}
		return true, nil

	case expr.MethodCount:
		if pred == nil {
			return int64(len(items)), nil
		}
		filtered, err := filter(items, pred)
		if err != nil {
			return nil, err
		}
		return int64(len(filtered)), nil

	case expr.MethodWhere:
		if err := needLambda(); err != nil {
			return nil, err
		}
		return filter(items, pred)

	case expr.MethodSelect:
		if err := needLambda(); err != nil {
			return nil, err
		}
		return project(items, pred)

	case expr.MethodSelectMany:
		if err := needLambda(); err != nil {
			return nil, err
		}
		var out []any
		for _, item := range items {
			v, err := pred(item)
			if err != nil {
				return nil, err
			}
			inner, ok := asSeq(v)
			if !ok {
				return nil, fmt.Errorf("SelectMany selector returned %T, not a sequence", v)
			}
			out = append(out, inner...)
		}
		return out, nil

	case expr.MethodFirst, expr.MethodFirstOrDefault:
		candidates := items
		if pred != nil {
			var err error
			if candidates, err = filter(items, pred); err != nil {
				return nil, err
			}
		}
		if len(candidates) == 0 {
			if call.Method == expr.MethodFirst {
				return nil, ErrEmptySequence
			}
			return nil, nil
		}
		return candidates[0], nil

	case expr.MethodContains:
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("Contains takes one argument")
		}
		needle, err := ev.Eval(call.Args[0], scope)
		if err != nil {
			return nil, err
		}
		return slices.ContainsFunc(items, func(item any) bool { return Equal(item, needle) }), nil

	case expr.MethodOrderBy, expr.MethodOrderByDescending:
		if err := needLambda(); err != nil {
			return nil, err
		}
		o := &ordered{items: slices.Clone(items), keys: make([][]any, len(items))}
		return ev.refine(o, pred, call.Method == expr.MethodOrderByDescending)

	case expr.MethodThenBy, expr.MethodThenByDescending:
		if err := needLambda(); err != nil {
			return nil, err
		}
		prev, ok := recv.(*ordered)
		if !ok {
			return nil, fmt.Errorf("%s requires an ordered sequence", call.Method)
		}
		o := &ordered{items: slices.Clone(prev.items), keys: make([][]any, len(prev.items)), desc: slices.Clone(prev.desc)}
		for i := range prev.keys {
			o.keys[i] = slices.Clone(prev.keys[i])
		}
		return ev.refine(o, pred, call.Method == expr.MethodThenByDescending)

	case expr.MethodGroupBy:
		if err := needLambda(); err != nil {
			return nil, err
		}
		return groupBy(items, pred)

	case expr.MethodSum, expr.MethodMin, expr.MethodMax:
		if err := needLambda(); err != nil {
			return nil, err
		}
		return aggregate(call.Method, items, pred)
	}
	return nil, fmt.Errorf("method %s is not defined on sequences", call.Method)
}

// refine adds one sort key to o and re-sorts it.
func (ev *Evaluator) refine(o *ordered, key func(any) (any, error), desc bool) (*ordered, error) {
	for i, item := range o.items {
		k, err := key(item)
		if err != nil {
			return nil, err
		}
		o.keys[i] = append(o.keys[i], k)
	}
	o.desc = append(o.desc, desc)
	o.sort()
	return o, nil
}

func filter(items []any, pred func(any) (any, error)) ([]any, error) {
	out := []any{}
	for _, item := range items {
		v, err := pred(item)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, item)
		}
	}
	return out, nil
}

func project(items []any, fn func(any) (any, error)) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		v, err := fn(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// groupBy buckets items by key in order of first appearance.
func groupBy(items []any, key func(any) (any, error)) ([]any, error) {
	var groups []*Group
	for _, item := range items {
		k, err := key(item)
		if err != nil {
			return nil, err
		}
		idx := slices.IndexFunc(groups, func(g *Group) bool { return Equal(g.Key, k) })
		if idx < 0 {
			groups = append(groups, &Group{Key: k})
			idx = len(groups) - 1
		}
		groups[idx].Items = append(groups[idx].Items, item)
	}
	out := make([]any, len(groups))
	for i, g := range groups {
		out[i] = *g
	}
	return out, nil
}

// aggregate follows SQL: nulls are skipped, Min and Max of nothing are
// null, Sum of nothing is zero.
func aggregate(method string, items []any, sel func(any) (any, error)) (any, error) {
	var result any
	var sum int64
	for _, item := range items {
		v, err := sel(item)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("%s selector returned %T, not int", method, v)
		}
		sum += n
		switch {
		case result == nil:
			result = n
		case method == expr.MethodMin && n < result.(int64):
			result = n
		case method == expr.MethodMax && n > result.(int64):
			result = n
		}
	}
	if method == expr.MethodSum {
		return sum, nil
	}
	return result, nil
}

func isStringMethod(method string) bool {
	switch method {
	case expr.MethodStartsWith, expr.MethodEndsWith, expr.MethodToUpper, expr.MethodToLower:
		return true
	}
	return false
}

func (ev *Evaluator) stringCall(s string, call expr.MethodCall, scope *Scope) (any, error) {
	switch call.Method {
	case expr.MethodToUpper:
		return strings.ToUpper(s), nil
	case expr.MethodToLower:
		return strings.ToLower(s), nil
	case expr.MethodContains, expr.MethodStartsWith, expr.MethodEndsWith:
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("%s takes one argument", call.Method)
		}
		v, err := ev.Eval(call.Args[0], scope)
		if err != nil || v == nil {
			return nil, err
		}
		arg, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s argument is %T, not string", call.Method, v)
		}
		switch call.Method {
		case expr.MethodContains:
			return strings.Contains(s, arg), nil
		case expr.MethodStartsWith:
			return strings.HasPrefix(s, arg), nil
		default:
			return strings.HasSuffix(s, arg), nil
		}
	}
	return nil, fmt.Errorf("method %s is not defined on string", call.Method)
}
