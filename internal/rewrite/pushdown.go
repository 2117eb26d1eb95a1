// Package rewrite implements conditional pushdown: the expression-tree
// transformation that moves a method call into the branches of a
// conditional found in its receiver position.
//
//	(c ? a : b).Any(p)   =>   c ? a.Any(p) : b.Any(p)
//
// After pushdown no method call has a conditional receiver, so a SQL
// translator only ever sees conditionals whose branches are scalars
// (EXISTS, COUNT, ...) rather than collections.
package rewrite

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/condpush/internal/expr"
)

// DefaultMaxDepth bounds recursion for pathological inputs.
const DefaultMaxDepth = 64

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithMaxDepth sets the recursion bound. Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(r *Rewriter) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithResolver enables typed rewriting: every pushed-down branch call is
// type-checked against the resolver's schema and both branches must agree.
func WithResolver(resolver expr.MemberResolver) Option {
	return func(r *Rewriter) {
		r.checker = expr.NewChecker(resolver)
	}
}

// WithLogger sets the logger for per-node debug events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rewriter) {
		r.logger = logger
	}
}

// Rewriter pushes method calls through conditional receivers.
//
// A Rewriter holds configuration only; every Rewrite call works on its own
// input and output trees, so one Rewriter may be shared by concurrent
// query compilations.
type Rewriter struct {
	maxDepth int
	checker  *expr.Checker
	logger   *slog.Logger
}

// New creates a Rewriter. Without WithResolver the rewrite is purely
// structural and never reports IncompatibleBranchTypes.
func New(opts ...Option) *Rewriter {
	r := &Rewriter{
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDepth returns the configured recursion bound.
func (r *Rewriter) MaxDepth() int {
	return r.maxDepth
}

// Rewrite returns a tree equivalent to n in which no MethodCall has a
// Conditional receiver. Untouched subtrees are shared with the input.
func (r *Rewriter) Rewrite(n expr.Node) (expr.Node, error) {
	return r.RewriteIn(n, nil)
}

// RewriteIn is Rewrite with an environment typing the free parameters of n.
// The environment matters only for typed rewriting.
func (r *Rewriter) RewriteIn(n expr.Node, env *expr.Env) (expr.Node, error) {
	p := &pass{Rewriter: r}
	out, _, err := p.rewrite(n, env, 1)
	if err != nil {
		var re *Error
		if errors.As(err, &re) && re.Expr == "" {
			re.Expr = expr.Format(n)
		}
		return nil, err
	}
	if p.pushdowns > 0 {
		r.logger.Debug("conditional pushdown complete",
			"pushdowns", p.pushdowns,
			"max_depth_seen", p.deepest)
	}
	return out, nil
}

// pass holds per-call state. It is never shared between calls.
type pass struct {
	*Rewriter
	pushdowns int
	deepest   int
}

func (p *pass) enter(n expr.Node, depth int) error {
	if depth > p.deepest {
		p.deepest = depth
	}
	if depth > p.maxDepth {
		return NewTooDeepError(expr.Format(n), p.maxDepth)
	}
	return nil
}

// rewrite returns the rewritten node and whether anything changed. When
// nothing changed the original node (pointer form included) is returned.
func (p *pass) rewrite(n expr.Node, env *expr.Env, depth int) (expr.Node, bool, error) {
	if err := p.enter(n, depth); err != nil {
		return nil, false, err
	}

	switch node := expr.Deref(n).(type) {
	case nil:
		return nil, false, &Error{
			Code:    ErrCodeUnsupportedNodeShape,
			Message: "nil node in expression tree",
		}

	case expr.Parameter, expr.Constant:
		return n, false, nil

	case expr.MemberAccess:
		target, changed, err := p.rewrite(node.Target, env, depth+1)
		if err != nil || !changed {
			return n, false, err
		}
		return expr.MemberAccess{Target: target, Member: node.Member}, true, nil

	case expr.MethodCall:
		recv, recvChanged, err := p.rewrite(node.Receiver, env, depth+1)
		if err != nil {
			return nil, false, err
		}
		out, changed, err := p.finishCall(recv, node, env, depth)
		if err != nil {
			return nil, false, err
		}
		if !recvChanged && !changed {
			return n, false, nil
		}
		return out, true, nil

	case expr.Conditional:
		parts, changed, err := p.rewriteAll([]expr.Node{node.Test, node.WhenTrue, node.WhenFalse}, env, depth+1)
		if err != nil || !changed {
			return n, false, err
		}
		return expr.Conditional{Test: parts[0], WhenTrue: parts[1], WhenFalse: parts[2]}, true, nil

	case expr.Lambda:
		inner := env
		for _, param := range node.Params {
			if !param.Type.IsZero() {
				inner = inner.Bind(param.Name, param.Type)
			}
		}
		body, changed, err := p.rewrite(node.Body, inner, depth+1)
		if err != nil || !changed {
			return n, false, err
		}
		return expr.Lambda{Params: node.Params, Body: body}, true, nil

	case expr.Binary:
		parts, changed, err := p.rewriteAll([]expr.Node{node.Left, node.Right}, env, depth+1)
		if err != nil || !changed {
			return n, false, err
		}
		return expr.Binary{Op: node.Op, Left: parts[0], Right: parts[1]}, true, nil

	case expr.Not:
		operand, changed, err := p.rewrite(node.Operand, env, depth+1)
		if err != nil || !changed {
			return n, false, err
		}
		return expr.Not{Operand: operand}, true, nil

	case expr.New:
		values := make([]expr.Node, len(node.Fields))
		for i, f := range node.Fields {
			values[i] = f.Value
		}
		rewritten, changed, err := p.rewriteAll(values, env, depth+1)
		if err != nil || !changed {
			return n, false, err
		}
		fields := make([]expr.Field, len(node.Fields))
		for i, f := range node.Fields {
			fields[i] = expr.Field{Name: f.Name, Value: rewritten[i]}
		}
		return expr.New{Fields: fields}, true, nil

	default:
		return nil, false, &Error{
			Code:    ErrCodeUnsupportedNodeShape,
			Message: fmt.Sprintf("no rewrite rule for node type %T", n),
		}
	}
}

func (p *pass) rewriteAll(nodes []expr.Node, env *expr.Env, depth int) ([]expr.Node, bool, error) {
	out := make([]expr.Node, len(nodes))
	anyChanged := false
	for i, n := range nodes {
		rewritten, changed, err := p.rewrite(n, env, depth)
		if err != nil {
			return nil, false, err
		}
		out[i] = rewritten
		anyChanged = anyChanged || changed
	}
	return out, anyChanged, nil
}

// finishCall builds call.Method(call.Args) on an already rewritten
// receiver. A conditional receiver is pushed down; otherwise the arguments
// are rewritten in the scope of the receiver.
func (p *pass) finishCall(recv expr.Node, call expr.MethodCall, env *expr.Env, depth int) (expr.Node, bool, error) {
	if cond, ok := expr.Deref(recv).(expr.Conditional); ok {
		out, err := p.pushdown(cond, call, env, depth+1)
		return out, true, err
	}

	var recvType expr.Type
	if p.checker != nil && hasLambdaArg(call.Args) {
		t, err := p.checker.Check(recv, env)
		if err != nil {
			return nil, false, &Error{
				Code:    ErrCodeIllTyped,
				Message: fmt.Sprintf("cannot type receiver of %s", call.Method),
				Node:    expr.Format(recv),
				Err:     err,
			}
		}
		recvType = t
	}

	args := make([]expr.Node, len(call.Args))
	argsChanged := false
	for i, arg := range call.Args {
		out, changed, err := p.rewriteArg(arg, recvType, env, depth+1)
		if err != nil {
			return nil, false, err
		}
		args[i] = out
		argsChanged = argsChanged || changed
	}
	if !argsChanged {
		args = call.Args
	}
	return expr.MethodCall{Receiver: recv, Method: call.Method, Args: args}, argsChanged, nil
}

// rewriteArg rewrites one call argument. Lambda parameters are bound to the
// receiver element type when typing is enabled.
func (p *pass) rewriteArg(arg expr.Node, recvType expr.Type, env *expr.Env, depth int) (expr.Node, bool, error) {
	l, ok := expr.Deref(arg).(expr.Lambda)
	if !ok || p.checker == nil {
		return p.rewrite(arg, env, depth)
	}
	if err := p.enter(arg, depth); err != nil {
		return nil, false, err
	}
	inner, err := p.checker.BindLambda(recvType, l, env)
	if err != nil {
		return nil, false, &Error{
			Code:    ErrCodeIllTyped,
			Message: "cannot bind lambda parameter",
			Node:    expr.Format(l),
			Err:     err,
		}
	}
	body, changed, err := p.rewrite(l.Body, inner, depth+1)
	if err != nil || !changed {
		return arg, false, err
	}
	return expr.Lambda{Params: l.Params, Body: body}, true, nil
}

// pushdown distributes call over the branches of cond. Each branch call is
// finished again, so a branch that is itself a conditional is pushed down
// in turn until no call has a conditional receiver.
func (p *pass) pushdown(cond expr.Conditional, call expr.MethodCall, env *expr.Env, depth int) (expr.Node, error) {
	if err := p.enter(cond, depth); err != nil {
		return nil, err
	}
	p.pushdowns++
	p.logger.Debug("pushing call into conditional branches",
		"method", call.Method,
		"depth", depth)

	whenTrue, err := p.branch(cond.WhenTrue, call, env, depth)
	if err != nil {
		return nil, err
	}
	whenFalse, err := p.branch(cond.WhenFalse, call, env, depth)
	if err != nil {
		return nil, err
	}
	out := expr.Conditional{Test: cond.Test, WhenTrue: whenTrue, WhenFalse: whenFalse}

	if p.checker != nil {
		tt, err := p.checker.Check(whenTrue, env)
		if err != nil {
			return nil, p.branchError(whenTrue, call, err)
		}
		ft, err := p.checker.Check(whenFalse, env)
		if err != nil {
			return nil, p.branchError(whenFalse, call, err)
		}
		if _, ok := expr.Unify(tt, ft); !ok {
			return nil, NewIncompatibleBranchError(expr.Format(out),
				fmt.Sprintf("%s yields %s in one branch and %s in the other", call.Method, tt, ft), nil)
		}
	}
	return out, nil
}

func (p *pass) branch(branch expr.Node, call expr.MethodCall, env *expr.Env, depth int) (expr.Node, error) {
	out, _, err := p.finishCall(branch, call, env, depth+1)
	if err != nil {
		var re *Error
		if errors.As(err, &re) && re.Code == ErrCodeIllTyped {
			return nil, NewIncompatibleBranchError(expr.Format(branch),
				fmt.Sprintf("branch cannot receive %s", call.Method), re.Err)
		}
		return nil, err
	}
	return out, nil
}

func (p *pass) branchError(branch expr.Node, call expr.MethodCall, cause error) error {
	var re *Error
	if errors.As(cause, &re) {
		return cause
	}
	return NewIncompatibleBranchError(expr.Format(branch),
		fmt.Sprintf("branch does not accept %s", call.Method), cause)
}

func hasLambdaArg(args []expr.Node) bool {
	for _, arg := range args {
		if _, ok := expr.Deref(arg).(expr.Lambda); ok {
			return true
		}
	}
	return false
}

// NeedsPushdown reports whether any method call in n still has a
// conditional receiver.
func NeedsPushdown(n expr.Node) bool {
	found := false
	expr.Walk(n, func(node expr.Node) bool {
		if found {
			return false
		}
		if call, ok := node.(expr.MethodCall); ok {
			if _, isCond := expr.Deref(call.Receiver).(expr.Conditional); isCond {
				found = true
				return false
			}
		}
		return true
	})
	return found
}
