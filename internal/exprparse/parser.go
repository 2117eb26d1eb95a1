// Package exprparse reads lambda query text into expression trees.
//
// The accepted syntax is the subset of C# lambda expressions used by query
// clauses:
//
//	e => (e.ReviewAsPrimary ? e.ReviewIssues : e.WorkIssues).Any(i => i.Client.Name == "Beta")
//	q => q.OrderBy(e => e.Name).Select(e => new { e.Name, Beta = e.ReviewIssues.Any() })
//
// The conditional operator is right associative and binds loosest, so
// a ? x : b ? y : z parses as a ? x : (b ? y : z).
package exprparse

import (
	"fmt"
	"strconv"

	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/ir"
)

// SyntaxError reports a parse failure at a byte offset.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Message)
}

// Parse parses a single expression. The whole input must be consumed.
func Parse(src string) (expr.Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s after expression", tok)
	}
	return n, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for literals known to be valid.
func MustParse(src string) expr.Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+offset]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isPunct(text string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == text
}

func (p *parser) accept(text string) bool {
	if p.isPunct(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		tok := p.peek()
		return p.errorf(tok, "expected %q, found %s", text, tok)
	}
	return nil
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{Pos: tok.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseExpr() (expr.Node, error) {
	if params, ok := p.lambdaHead(); ok {
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return expr.Lambda{Params: params, Body: body}, nil
	}
	return p.parseConditional()
}

// lambdaHead consumes `x =>` or `(x, y) =>` when present.
func (p *parser) lambdaHead() ([]expr.Parameter, bool) {
	tok := p.peek()
	if tok.kind == tokIdent && !isKeyword(tok.text) {
		if nxt := p.peekAt(1); nxt.kind == tokPunct && nxt.text == "=>" {
			p.pos += 2
			return []expr.Parameter{{Name: tok.text}}, true
		}
		return nil, false
	}
	if !p.isPunct("(") {
		return nil, false
	}
	var params []expr.Parameter
	i := 1
	for {
		t := p.peekAt(i)
		if t.kind == tokPunct && t.text == ")" && len(params) == 0 {
			break
		}
		if t.kind != tokIdent || isKeyword(t.text) {
			return nil, false
		}
		params = append(params, expr.Parameter{Name: t.text})
		i++
		sep := p.peekAt(i)
		if sep.kind == tokPunct && sep.text == "," {
			i++
			continue
		}
		if sep.kind == tokPunct && sep.text == ")" {
			break
		}
		return nil, false
	}
	if arrow := p.peekAt(i + 1); arrow.kind != tokPunct || arrow.text != "=>" {
		return nil, false
	}
	p.pos += i + 2
	return params, true
}

func (p *parser) parseConditional() (expr.Node, error) {
	test, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !p.accept("?") {
		return test, nil
	}
	whenTrue, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	whenFalse, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return expr.Conditional{Test: test, WhenTrue: whenTrue, WhenFalse: whenFalse}, nil
}

// binaryLevels lists operators from loosest to tightest binding.
var binaryLevels = [][]expr.BinaryOp{
	{expr.OpOr},
	{expr.OpAnd},
	{expr.OpEqual, expr.OpNotEqual},
	{expr.OpLess, expr.OpLessEqual, expr.OpGreater, expr.OpGreaterEqual},
}

func (p *parser) parseBinary(level int) (expr.Node, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp(binaryLevels[level])
		if !ok {
			return left, nil
		}
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) acceptOp(ops []expr.BinaryOp) (expr.BinaryOp, bool) {
	for _, op := range ops {
		if p.accept(string(op)) {
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseUnary() (expr.Node, error) {
	if p.accept("!") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Not{Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (expr.Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.accept(".") {
		name := p.next()
		if name.kind != tokIdent {
			return nil, p.errorf(name, "expected member name, found %s", name)
		}
		if !p.accept("(") {
			n = expr.MemberAccess{Target: n, Member: name.text}
			continue
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		n = expr.MethodCall{Receiver: n, Method: name.text, Args: args}
	}
	return n, nil
}

// parseArgs parses a call argument list after the opening parenthesis.
func (p *parser) parseArgs() ([]expr.Node, error) {
	var args []expr.Node
	if p.accept(")") {
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.accept(")") {
			return args, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parsePrimary() (expr.Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokInt:
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, p.errorf(tok, "integer out of range: %s", tok.text)
		}
		return expr.Constant{Value: ir.IRInt(n)}, nil
	case tokString:
		return expr.Constant{Value: ir.IRString(tok.text)}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return expr.Constant{Value: ir.IRBool(true)}, nil
		case "false":
			return expr.Constant{Value: ir.IRBool(false)}, nil
		case "null":
			return expr.Constant{Value: ir.IRNull{}}, nil
		case "new":
			return p.parseNew()
		}
		return expr.Parameter{Name: tok.text}, nil
	case tokPunct:
		if tok.text == "(" {
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, p.errorf(tok, "unexpected %s", tok)
}

func (p *parser) parseNew() (expr.Node, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var fields []expr.Field
	seen := map[string]bool{}
	for !p.accept("}") {
		if len(fields) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		start := p.peek()
		var field expr.Field
		if nxt := p.peekAt(1); start.kind == tokIdent && nxt.kind == tokPunct && nxt.text == "=" {
			p.pos += 2
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			field = expr.Field{Name: start.text, Value: value}
		} else {
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			m, ok := expr.Deref(value).(expr.MemberAccess)
			if !ok {
				return nil, p.errorf(start, "projection field needs a name: use Name = expression")
			}
			field = expr.Field{Name: m.Member, Value: m}
		}
		if seen[field.Name] {
			return nil, p.errorf(start, "duplicate projection field %q", field.Name)
		}
		seen[field.Name] = true
		fields = append(fields, field)
	}
	return expr.New{Fields: fields}, nil
}

func isKeyword(s string) bool {
	switch s {
	case "true", "false", "null", "new":
		return true
	}
	return false
}
