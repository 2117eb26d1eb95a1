package exprparse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/ir"
)

func TestParseRoundTrip(t *testing.T) {
	// Each input is already in Format's canonical spelling.
	inputs := []string{
		`e => e.Name`,
		`e => e.ReviewIssues.Any()`,
		`i => i.Client.Name == "Beta"`,
		`e => (e.ReviewAsPrimary ? e.ReviewIssues : e.Projects.Any() ? e.Projects.SelectMany(x => x.Issues) : e.WorkIssues).Any(i => i.Client.Name == "Beta")`,
		`e => e.ReviewAsPrimary ? e.ReviewIssues.Count() : e.WorkIssues.Count()`,
		`q => q.OrderBy(e => e.Name).ThenByDescending(e => e.Id).Select(e => new { e.Name, Beta = true })`,
		`e => !e.ReviewAsPrimary && (e.Name != null || e.Name.Length >= 3)`,
		`(a, b) => a == b`,
		`e => e.Name.StartsWith("A\"B")`,
		`x => -5 < x`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			n, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, in, expr.Format(n))
		})
	}
}

func TestParseConditionalIsRightAssociative(t *testing.T) {
	n := MustParse(`a ? x : b ? y : z`)
	cond, ok := n.(expr.Conditional)
	require.True(t, ok)
	assert.True(t, expr.Equal(expr.Param("a"), cond.Test))
	inner, ok := cond.WhenFalse.(expr.Conditional)
	require.True(t, ok, "whenFalse should hold the second test")
	assert.True(t, expr.Equal(expr.Param("b"), inner.Test))
}

func TestParseStructure(t *testing.T) {
	n := MustParse(`e.WorkIssues.Any(i => i.Client == null)`)
	want := expr.Call(
		expr.Member(expr.Param("e"), "WorkIssues"),
		expr.MethodAny,
		expr.Lam("i", expr.Eq(expr.Member(expr.Param("i"), "Client"), expr.Const(ir.IRNull{}))),
	)
	assert.True(t, expr.Equal(want, n), "got %s", expr.Format(n))
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want ir.IRValue
	}{
		{`42`, ir.IRInt(42)},
		{`"Beta"`, ir.IRString("Beta")},
		{`"tab\tand \u00e9"`, ir.IRString("tab\tand \u00e9")},
		{`true`, ir.IRBool(true)},
		{`false`, ir.IRBool(false)},
		{`null`, ir.IRNull{}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			n, err := Parse(tt.src)
			require.NoError(t, err)
			c, ok := n.(expr.Constant)
			require.True(t, ok)
			assert.Equal(t, tt.want, c.Value)
		})
	}
}

func TestParseNewShorthand(t *testing.T) {
	n := MustParse(`new { e.Name, Beta = e.ReviewIssues.Any() }`)
	rec, ok := n.(expr.New)
	require.True(t, ok)
	require.Len(t, rec.Fields, 2)
	assert.Equal(t, "Name", rec.Fields[0].Name)
	assert.Equal(t, "Beta", rec.Fields[1].Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src     string
		message string
	}{
		{`e => e.`, "expected member name"},
		{`e.Any(`, "unexpected"},
		{`a ? b`, `expected ":"`},
		{`"open`, "unterminated string literal"},
		{`e # 1`, "unexpected character"},
		{`e e`, "after expression"},
		{`new { 1 }`, "projection field needs a name"},
		{`new { e.Name, Name = e.Id }`, `duplicate projection field "Name"`},
		{`99999999999999999999`, "integer out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			var se *SyntaxError
			require.True(t, errors.As(err, &se))
			assert.Contains(t, se.Message, tt.message)
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse(`e =>`) })
}
