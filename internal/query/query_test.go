package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/rewrite"
	"github.com/roach88/condpush/internal/schema"
)

const receiver = `(e.ReviewAsPrimary ? e.ReviewIssues : e.WorkIssues)`

func TestParse(t *testing.T) {
	q, err := Parse(`q => q.Where(e => e.ReviewAsPrimary).OrderBy(e => e.Name).ThenByDescending(e => e.Id).Select(e => e.Name)`, "Employee")
	require.NoError(t, err)

	assert.Equal(t, "Employee", q.Root)
	assert.Equal(t, "q", q.Source)
	require.Len(t, q.Clauses, 4)
	assert.Equal(t, OpWhere, q.Clauses[0].Op)
	assert.Equal(t, OpThenByDescending, q.Clauses[2].Op)
	assert.Equal(t, "e", q.Clauses[3].Param().Name)
	assert.Equal(t, "Employee: Where, OrderBy, ThenByDescending, Select", q.Describe())
}

func TestStringRoundTrip(t *testing.T) {
	text := `src => src.GroupBy(e => e.ReviewAsPrimary).Select(g => g.Count())`
	q, err := Parse(text, "Employee")
	require.NoError(t, err)
	assert.Equal(t, text, q.String())

	again, err := Parse(q.String(), "Employee")
	require.NoError(t, err)
	assert.True(t, Equal(q, again))
}

func TestNodeDefaultsSource(t *testing.T) {
	q := &Query{Root: "Employee", Clauses: []Clause{{Op: OpWhere, Lambda: expr.Lam("e", expr.Member(expr.Param("e"), "ReviewAsPrimary"))}}}
	assert.Equal(t, `q => q.Where(e => e.ReviewAsPrimary)`, q.String())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
	}{
		{"not a lambda", `q.Where(e => true)`, "expected q => q.Clause(...)"},
		{"foreign source", `q => p.Where(e => true)`, "pipeline must start at q"},
		{"unsupported clause", `q => q.Count()`, "unsupported clause Count"},
		{"missing lambda", `q => q.Where(true)`, "argument must be a one-parameter lambda"},
		{"two arguments", `q => q.Where(e => true, e => false)`, "takes exactly one lambda"},
		{"then by first", `q => q.ThenBy(e => e.Name)`, "ThenBy must follow OrderBy or ThenBy"},
		{"then by after where", `q => q.OrderBy(e => e.Name).Where(e => true).ThenBy(e => e.Id)`, "must follow OrderBy"},
		{"constant in pipeline", `q => 1`, "unexpected 1 in pipeline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, "Employee")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuery), "got %v", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	_, err := Parse(`q =>`, "Employee")
	assert.Error(t, err, "syntax errors pass through")
}

func TestOp(t *testing.T) {
	assert.True(t, OpThenBy.IsOrdering())
	assert.False(t, OpGroupBy.IsOrdering())
	assert.True(t, OpOrderByDescending.Descending())
	assert.False(t, OpOrderBy.Descending())
}

func TestEqual(t *testing.T) {
	a, err := Parse(`q => q.Where(e => e.Name == "Andy")`, "Employee")
	require.NoError(t, err)
	b, err := Parse(`x => x.Where(e => e.Name == "Andy")`, "Employee")
	require.NoError(t, err)
	assert.True(t, Equal(a, b), "the source name does not matter")

	c, err := Parse(`q => q.Where(e => e.Name == "Bart")`, "Employee")
	require.NoError(t, err)
	assert.False(t, Equal(a, c))

	d, err := Parse(`q => q.Where(e => e.Name == "Andy")`, "Client")
	require.NoError(t, err)
	assert.False(t, Equal(a, d))
}

func TestElementTypes(t *testing.T) {
	model := schema.Default()
	q, err := Parse(`q => q.Where(e => e.ReviewAsPrimary).GroupBy(e => e.Name).Select(g => g.Count())`, "Employee")
	require.NoError(t, err)

	in, out, err := q.ElementTypes(expr.NewChecker(model))
	require.NoError(t, err)
	require.Len(t, in, 3)
	assert.Equal(t, "Employee", in[0].String())
	assert.Equal(t, "group<string, Employee>", in[2].String())
	assert.Equal(t, expr.IntType, out)

	bad, err := Parse(`q => q.Where(e => e.Name)`, "Employee")
	require.NoError(t, err)
	_, _, err = bad.ElementTypes(expr.NewChecker(model))
	assert.ErrorContains(t, err, "clause 1 (Where): predicate must be bool")
}

func TestRewrite(t *testing.T) {
	model := schema.Default()
	q, err := Parse(`q => q.Where(e => `+receiver+`.Any()).Select(e => new { e.Name, N = `+receiver+`.Count() }).Where(r => r.N > 1)`, "Employee")
	require.NoError(t, err)

	out, err := q.Rewrite(rewrite.New(rewrite.WithResolver(model)), expr.NewChecker(model))
	require.NoError(t, err)
	assert.Equal(t,
		`q => q.Where(e => e.ReviewAsPrimary ? e.ReviewIssues.Any() : e.WorkIssues.Any()).Select(e => new { e.Name, N = e.ReviewAsPrimary ? e.ReviewIssues.Count() : e.WorkIssues.Count() }).Where(r => r.N > 1)`,
		out.String())
	assert.Equal(t, q.Root, out.Root)

	// The input query is left untouched.
	assert.Contains(t, q.String(), receiver+".Any()")
}

func TestRewriteUntyped(t *testing.T) {
	q, err := Parse(`q => q.Where(e => `+receiver+`.Any())`, "Employee")
	require.NoError(t, err)

	out, err := q.Rewrite(rewrite.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, `q => q.Where(e => e.ReviewAsPrimary ? e.ReviewIssues.Any() : e.WorkIssues.Any())`, out.String())
}

func TestRewriteReportsClause(t *testing.T) {
	model := schema.Default()
	q, err := Parse(`q => q.OrderBy(e => e.Name).Where(e => (e.ReviewAsPrimary ? e.ReviewIssues : e.Projects).Any(i => i.Client == null))`, "Employee")
	require.NoError(t, err)

	_, err = q.Rewrite(rewrite.New(rewrite.WithResolver(model)), expr.NewChecker(model))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clause 2 (Where)")
	assert.True(t, rewrite.IsIncompatibleBranchTypes(err))
}
