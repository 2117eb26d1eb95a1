package expr

import "github.com/roach88/condpush/internal/ir"

// Node represents a query-expression-tree node.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the rewriter, evaluator and SQL translator.
//
// Node types:
//   - Parameter: a lambda parameter reference (e, i, x)
//   - Constant: a literal value ("Beta", 3, true, null)
//   - MemberAccess: Target.Member
//   - MethodCall: Receiver.Method(Args...)
//   - Conditional: Test ? WhenTrue : WhenFalse
//   - Lambda: (Params) => Body
//   - Binary: Left Op Right
//   - Not: !Operand
//   - New: new { Name = Value, ... }
//
// Trees are immutable. Passes build new nodes and share untouched subtrees.
// Both the value and the pointer form of each node are accepted everywhere.
type Node interface {
	exprNode() // Marker method - seals interface to this package
}

// Parameter references a lambda parameter by name.
//
// Type is optional. When set it pins the parameter type for the checker;
// when zero the type comes from the enclosing lambda binding.
type Parameter struct {
	Name string
	Type Type
}

func (Parameter) exprNode() {}

// Constant is a literal. Value is constrained to ir.IRValue so floats cannot
// appear in a query.
type Constant struct {
	Value ir.IRValue
}

func (Constant) exprNode() {}

// MemberAccess reads a scalar, reference or collection member.
//
//	e.ReviewIssues
//	i.Client.Name   // MemberAccess{MemberAccess{i, Client}, Name}
type MemberAccess struct {
	Target Node
	Member string
}

func (MemberAccess) exprNode() {}

// MethodCall invokes a query operator on a receiver.
//
//	e.Projects.SelectMany(x => x.Issues).Any(i => i.Client.Name == "Beta")
//
// Pipelines nest through Receiver: the Any call's receiver is the SelectMany
// call. Args keep source order; lambdas appear as Lambda nodes.
type MethodCall struct {
	Receiver Node
	Method   string
	Args     []Node
}

func (MethodCall) exprNode() {}

// Conditional is the ternary operator.
//
// A multi-way chain a ? x : b ? y : z is represented as nested binary
// conditionals in the WhenFalse position, so guard order is the order of
// a left-to-right walk down WhenFalse.
type Conditional struct {
	Test      Node
	WhenTrue  Node
	WhenFalse Node
}

func (Conditional) exprNode() {}

// Lambda is an anonymous function. Query operators take single-parameter
// lambdas; the model allows more for completeness.
type Lambda struct {
	Params []Parameter
	Body   Node
}

func (Lambda) exprNode() {}

// BinaryOp enumerates binary operators.
type BinaryOp string

const (
	OpEqual        BinaryOp = "=="
	OpNotEqual     BinaryOp = "!="
	OpLess         BinaryOp = "<"
	OpLessEqual    BinaryOp = "<="
	OpGreater      BinaryOp = ">"
	OpGreaterEqual BinaryOp = ">="
	OpAnd          BinaryOp = "&&"
	OpOr           BinaryOp = "||"
)

// IsComparison reports whether op compares two operands of the same type.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

// IsLogical reports whether op combines two booleans.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// Binary is a binary operator application.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (Binary) exprNode() {}

// Not is logical negation.
type Not struct {
	Operand Node
}

func (Not) exprNode() {}

// Field is a named initializer inside New.
type Field struct {
	Name  string
	Value Node
}

// New builds an anonymous record. Field order is declaration order.
//
//	new { e.Name, Beta = e.ReviewIssues.Any() }
//
// The shorthand e.Name produces Field{Name: "Name", Value: e.Name}.
type New struct {
	Fields []Field
}

func (New) exprNode() {}

// Param is a shorthand constructor for an untyped Parameter.
func Param(name string) Parameter {
	return Parameter{Name: name}
}

// Const wraps an IRValue in a Constant.
func Const(v ir.IRValue) Constant {
	return Constant{Value: v}
}

// Member builds target.name.
func Member(target Node, name string) MemberAccess {
	return MemberAccess{Target: target, Member: name}
}

// Call builds receiver.method(args...).
func Call(receiver Node, method string, args ...Node) MethodCall {
	return MethodCall{Receiver: receiver, Method: method, Args: args}
}

// Cond builds test ? whenTrue : whenFalse.
func Cond(test, whenTrue, whenFalse Node) Conditional {
	return Conditional{Test: test, WhenTrue: whenTrue, WhenFalse: whenFalse}
}

// Lam builds a single-parameter lambda.
func Lam(param string, body Node) Lambda {
	return Lambda{Params: []Parameter{{Name: param}}, Body: body}
}

// Eq builds left == right.
func Eq(left, right Node) Binary {
	return Binary{Op: OpEqual, Left: left, Right: right}
}

// Deref returns the value form of n. Pointer nodes are dereferenced and a
// nil pointer yields nil, so switches only need the value cases.
func Deref(n Node) Node {
	switch v := n.(type) {
	case *Parameter:
		if v == nil {
			return nil
		}
		return *v
	case *Constant:
		if v == nil {
			return nil
		}
		return *v
	case *MemberAccess:
		if v == nil {
			return nil
		}
		return *v
	case *MethodCall:
		if v == nil {
			return nil
		}
		return *v
	case *Conditional:
		if v == nil {
			return nil
		}
		return *v
	case *Lambda:
		if v == nil {
			return nil
		}
		return *v
	case *Binary:
		if v == nil {
			return nil
		}
		return *v
	case *Not:
		if v == nil {
			return nil
		}
		return *v
	case *New:
		if v == nil {
			return nil
		}
		return *v
	default:
		return n
	}
}
