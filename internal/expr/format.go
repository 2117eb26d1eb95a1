package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/condpush/internal/ir"
)

// Precedence levels used by Format. Higher binds tighter.
const (
	precLambda = iota
	precConditional
	precOr
	precAnd
	precEquality
	precRelational
	precUnary
	precPrimary
)

func binaryPrec(op BinaryOp) int {
	switch op {
	case OpOr:
		return precOr
	case OpAnd:
		return precAnd
	case OpEqual, OpNotEqual:
		return precEquality
	default:
		return precRelational
	}
}

// Format renders n in lambda query syntax, the same syntax exprparse reads:
//
//	e => e.ReviewAsPrimary ? e.ReviewIssues.Any() : e.WorkIssues.Any()
//
// Parentheses are emitted only where precedence requires them, plus around
// a conditional used as a condition or a whenTrue branch.
func Format(n Node) string {
	var sb strings.Builder
	format(&sb, n, precLambda)
	return sb.String()
}

func format(sb *strings.Builder, n Node, minPrec int) {
	n = Deref(n)
	p := precOf(n)
	if p < minPrec {
		sb.WriteByte('(')
		defer sb.WriteByte(')')
	}

	switch node := n.(type) {
	case nil:
		sb.WriteString("<nil>")
	case Parameter:
		sb.WriteString(node.Name)
	case Constant:
		sb.WriteString(ir.Literal(node.Value))
	case MemberAccess:
		format(sb, node.Target, precPrimary)
		sb.WriteByte('.')
		sb.WriteString(node.Member)
	case MethodCall:
		format(sb, node.Receiver, precPrimary)
		sb.WriteByte('.')
		sb.WriteString(node.Method)
		sb.WriteByte('(')
		for i, arg := range node.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, arg, precLambda)
		}
		sb.WriteByte(')')
	case Conditional:
		format(sb, node.Test, precOr)
		sb.WriteString(" ? ")
		format(sb, node.WhenTrue, precOr)
		sb.WriteString(" : ")
		format(sb, node.WhenFalse, precConditional)
	case Lambda:
		switch len(node.Params) {
		case 1:
			sb.WriteString(node.Params[0].Name)
		default:
			names := make([]string, len(node.Params))
			for i, param := range node.Params {
				names[i] = param.Name
			}
			sb.WriteString("(" + strings.Join(names, ", ") + ")")
		}
		sb.WriteString(" => ")
		format(sb, node.Body, precLambda)
	case Binary:
		bp := binaryPrec(node.Op)
		format(sb, node.Left, bp)
		sb.WriteString(" " + string(node.Op) + " ")
		format(sb, node.Right, bp+1)
	case Not:
		sb.WriteByte('!')
		format(sb, node.Operand, precUnary)
	case New:
		sb.WriteString("new { ")
		for i, f := range node.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			if m, ok := Deref(f.Value).(MemberAccess); ok && m.Member == f.Name {
				format(sb, m, precLambda)
				continue
			}
			sb.WriteString(f.Name + " = ")
			format(sb, f.Value, precLambda)
		}
		sb.WriteString(" }")
	default:
		fmt.Fprintf(sb, "<%T>", n)
	}
}

func precOf(n Node) int {
	switch node := n.(type) {
	case Lambda:
		return precLambda
	case Conditional:
		return precConditional
	case Binary:
		return binaryPrec(node.Op)
	case Not:
		return precUnary
	default:
		return precPrimary
	}
}
