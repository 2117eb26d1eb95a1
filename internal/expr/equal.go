package expr

import (
	"fmt"

	"github.com/roach88/condpush/internal/ir"
)

// Equal reports whether a and b are structurally identical trees.
// Pointer and value forms of the same node compare equal.
func Equal(a, b Node) bool {
	a, b = Deref(a), Deref(b)
	switch x := a.(type) {
	case nil:
		return b == nil
	case Parameter:
		y, ok := b.(Parameter)
		return ok && x.Name == y.Name && x.Type.Equal(y.Type)
	case Constant:
		y, ok := b.(Constant)
		return ok && constantEqual(x.Value, y.Value)
	case MemberAccess:
		y, ok := b.(MemberAccess)
		return ok && x.Member == y.Member && Equal(x.Target, y.Target)
	case MethodCall:
		y, ok := b.(MethodCall)
		return ok && x.Method == y.Method && Equal(x.Receiver, y.Receiver) && nodesEqual(x.Args, y.Args)
	case Conditional:
		y, ok := b.(Conditional)
		return ok && Equal(x.Test, y.Test) && Equal(x.WhenTrue, y.WhenTrue) && Equal(x.WhenFalse, y.WhenFalse)
	case Lambda:
		y, ok := b.(Lambda)
		if !ok || len(x.Params) != len(y.Params) {
			return false
		}
		for i := range x.Params {
			if x.Params[i].Name != y.Params[i].Name || !x.Params[i].Type.Equal(y.Params[i].Type) {
				return false
			}
		}
		return Equal(x.Body, y.Body)
	case Binary:
		y, ok := b.(Binary)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case Not:
		y, ok := b.(Not)
		return ok && Equal(x.Operand, y.Operand)
	case New:
		y, ok := b.(New)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !Equal(x.Fields[i].Value, y.Fields[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func nodesEqual(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// constantEqual compares scalar constants. IRArray and IRObject are not
// comparable with == so they never compare equal here.
func constantEqual(a, b ir.IRValue) bool {
	switch x := a.(type) {
	case nil, ir.IRNull:
		switch b.(type) {
		case nil, ir.IRNull:
			return true
		}
		return false
	case ir.IRString:
		y, ok := b.(ir.IRString)
		return ok && x == y
	case ir.IRInt:
		y, ok := b.(ir.IRInt)
		return ok && x == y
	case ir.IRBool:
		y, ok := b.(ir.IRBool)
		return ok && x == y
	default:
		return false
	}
}

// Walk visits n and its descendants in pre-order. If fn returns false the
// children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	n = Deref(n)
	if n == nil || !fn(n) {
		return
	}
	for _, child := range Children(n) {
		Walk(child, fn)
	}
}

// Children returns the direct child nodes of n in source order.
func Children(n Node) []Node {
	switch node := Deref(n).(type) {
	case MemberAccess:
		return []Node{node.Target}
	case MethodCall:
		return append([]Node{node.Receiver}, node.Args...)
	case Conditional:
		return []Node{node.Test, node.WhenTrue, node.WhenFalse}
	case Lambda:
		return []Node{node.Body}
	case Binary:
		return []Node{node.Left, node.Right}
	case Not:
		return []Node{node.Operand}
	case New:
		children := make([]Node, len(node.Fields))
		for i, f := range node.Fields {
			children[i] = f.Value
		}
		return children
	default:
		return nil
	}
}

// Fingerprint returns a content-addressed identity for the tree.
// Structurally equal trees always share a fingerprint.
func Fingerprint(n Node) (string, error) {
	enc, err := encode(n)
	if err != nil {
		return "", err
	}
	return ir.Fingerprint(ir.DomainExpression, enc)
}

// encode converts a tree into an IRObject for canonical serialization.
// Nulls are encoded as a dedicated kind because canonical JSON forbids null.
func encode(n Node) (ir.IRValue, error) {
	switch node := Deref(n).(type) {
	case nil:
		return nil, fmt.Errorf("cannot encode nil node")
	case Parameter:
		obj := ir.IRObject{"k": ir.IRString("param"), "name": ir.IRString(node.Name)}
		if !node.Type.IsZero() {
			obj["type"] = ir.IRString(node.Type.String())
		}
		return obj, nil
	case Constant:
		switch v := node.Value.(type) {
		case nil, ir.IRNull:
			return ir.IRObject{"k": ir.IRString("null")}, nil
		default:
			return ir.IRObject{"k": ir.IRString("const"), "v": v}, nil
		}
	case MemberAccess:
		target, err := encode(node.Target)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"k": ir.IRString("member"), "target": target, "name": ir.IRString(node.Member)}, nil
	case MethodCall:
		recv, err := encode(node.Receiver)
		if err != nil {
			return nil, err
		}
		args, err := encodeAll(node.Args)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"k": ir.IRString("call"), "recv": recv, "method": ir.IRString(node.Method), "args": args}, nil
	case Conditional:
		parts, err := encodeAll([]Node{node.Test, node.WhenTrue, node.WhenFalse})
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"k": ir.IRString("cond"), "parts": parts}, nil
	case Lambda:
		params := make(ir.IRArray, len(node.Params))
		for i, p := range node.Params {
			params[i] = ir.IRString(p.Name)
		}
		body, err := encode(node.Body)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"k": ir.IRString("lambda"), "params": params, "body": body}, nil
	case Binary:
		parts, err := encodeAll([]Node{node.Left, node.Right})
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"k": ir.IRString("binary"), "op": ir.IRString(node.Op), "parts": parts}, nil
	case Not:
		operand, err := encode(node.Operand)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"k": ir.IRString("not"), "operand": operand}, nil
	case New:
		fields := make(ir.IRArray, len(node.Fields))
		for i, f := range node.Fields {
			v, err := encode(f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = ir.IRObject{"name": ir.IRString(f.Name), "value": v}
		}
		return ir.IRObject{"k": ir.IRString("new"), "fields": fields}, nil
	default:
		return nil, fmt.Errorf("cannot encode node type %T", n)
	}
}

func encodeAll(nodes []Node) (ir.IRArray, error) {
	out := make(ir.IRArray, len(nodes))
	for i, n := range nodes {
		v, err := encode(n)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
