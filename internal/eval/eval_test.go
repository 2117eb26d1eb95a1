package eval_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/condpush/internal/entity"
	"github.com/roach88/condpush/internal/eval"
	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/exprparse"
	"github.com/roach88/condpush/internal/fixture"
	"github.com/roach88/condpush/internal/schema"
	"github.com/roach88/condpush/internal/testutil"
)

func setup(t *testing.T) (*eval.Evaluator, *fixture.Dataset) {
	t.Helper()
	data := fixture.GH1879(testutil.NewSequentialIDs())
	return eval.New(schema.Default(), data.Graph), data
}

func employeeScope(t *testing.T, data *fixture.Dataset, name string) *eval.Scope {
	t.Helper()
	emp, ok := data.Get("Employee", name)
	require.True(t, ok, "no employee %s", name)
	return (*eval.Scope)(nil).Bind("e", emp)
}

func TestEval_ThreeValuedLogic(t *testing.T) {
	ev, data := setup(t)
	// Dorn's first work issue has no client.
	scope := employeeScope(t, data, "Dorn")
	const client = `e.WorkIssues.First().Client`

	tests := []struct {
		src  string
		want any
	}{
		{client + `.Name`, nil},
		{client + `.Name == "Beta"`, nil},
		{client + `.Name != "Beta"`, nil},
		{client + ` == null`, true},
		{client + ` != null`, false},
		{`null == null`, true},
		{`!(` + client + `.Name == "Beta")`, nil},
		{client + `.Name == "Beta" && false`, false},
		{client + `.Name == "Beta" && true`, nil},
		{client + `.Name == "Beta" || true`, true},
		{client + `.Name == "Beta" || false`, nil},
		{client + `.Name.Length`, nil},
		{client + `.Name.StartsWith("B")`, nil},
		{client + `.Name < "Z"`, nil},
		{`(` + client + `.Name == "Beta") ? 1 : 2`, int64(2)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ev.Eval(exprparse.MustParse(tt.src), scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_SequenceMethods(t *testing.T) {
	ev, data := setup(t)
	scope := employeeScope(t, data, "Dorn")

	tests := []struct {
		src  string
		want any
	}{
		{`e.Name`, "Dorn"},
		{`e.Name.Length`, int64(4)},
		{`e.Name.ToUpper()`, "DORN"},
		{`e.Name.ToLower().EndsWith("rn")`, true},
		{`e.Name.Contains("or")`, true},
		{`e.ReviewAsPrimary`, false},
		{`e.WorkIssues.Count()`, int64(2)},
		{`e.WorkIssues.Count(i => i.Client.Name == "Alpha")`, int64(1)},
		// A null predicate result counts as satisfied for All, unsatisfied for Any.
		{`e.WorkIssues.All(i => i.Client.Name == "Alpha")`, true},
		{`e.WorkIssues.Any(i => i.Client.Name != "Alpha")`, false},
		{`e.WorkIssues.Any()`, true},
		{`e.Projects.Any()`, false},
		{`e.WorkIssues.Where(i => i.Client != null).Count()`, int64(1)},
		{`e.WorkIssues.Select(i => i.Name).Contains("4")`, true},
		{`e.WorkIssues.Select(i => i.Name).Contains("5")`, false},
		{`e.WorkIssues.Min(i => i.Name.Length)`, int64(1)},
		{`e.WorkIssues.Sum(i => i.Client.Name.Length)`, int64(5)},
		{`e.Projects.Sum(p => p.Name.Length)`, int64(0)},
		{`e.Projects.Max(p => p.Name.Length)`, nil},
		{`e.Projects.FirstOrDefault()`, nil},
		{`e.WorkIssues.FirstOrDefault(i => i.Name == "4").Client.Name`, "Alpha"},
		{`e.ReviewIssues.First().Project.Issues.Count()`, int64(2)},
		{`e.ReviewIssues.SelectMany(i => i.Project.Issues).Count()`, int64(2)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ev.Eval(exprparse.MustParse(tt.src), scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_GH1879Receiver(t *testing.T) {
	ev, data := setup(t)
	n := exprparse.MustParse(`(e.ReviewAsPrimary ? e.ReviewIssues : e.Projects.Any() ? e.Projects.SelectMany(x => x.Issues) : e.WorkIssues).Select(i => i.Name)`)

	want := map[string][]string{
		"Andy": {"1", "2", "5"},
		"Bart": {"4", "5"},
		"Carl": {"3"},
		"Dorn": {"1", "4"},
	}
	for name, issues := range want {
		t.Run(name, func(t *testing.T) {
			got, err := ev.Eval(n, employeeScope(t, data, name))
			require.NoError(t, err)
			rows, ok := got.([]any)
			require.True(t, ok, "got %T", got)
			assert.Equal(t, issues, eval.RenderAll(rows))
		})
	}
}

func TestEval_OrderingIsStable(t *testing.T) {
	ev, data := setup(t)
	scope := employeeScope(t, data, "Carl")

	got, err := ev.Eval(exprparse.MustParse(`e.WorkIssues.OrderByDescending(i => i.Client.Name).ThenBy(i => i.Name).Select(i => i.Name)`), scope)
	require.NoError(t, err)
	// Nulls sort first, so they come last when descending.
	assert.Equal(t, "[5, 4, 1]", eval.Render(got))

	got, err = ev.Eval(exprparse.MustParse(`e.WorkIssues.OrderBy(i => i.Client != null).Select(i => i.Name)`), scope)
	require.NoError(t, err)
	assert.Equal(t, "[1, 4, 5]", eval.Render(got))
}

func TestEval_GroupBy(t *testing.T) {
	ev, data := setup(t)
	scope := employeeScope(t, data, "Carl")

	got, err := ev.Eval(exprparse.MustParse(`e.WorkIssues.GroupBy(i => i.Client).Select(g => new { g.Key, N = g.Count() })`), scope)
	require.NoError(t, err)
	// Groups keep the order their keys first appear in.
	assert.Equal(t, "[{Key: null, N: 1}, {Key: Alpha, N: 1}, {Key: Beta, N: 1}]", eval.Render(got))
}

func TestEval_Errors(t *testing.T) {
	ev, data := setup(t)
	scope := employeeScope(t, data, "Dorn")

	tests := []struct {
		name    string
		node    expr.Node
		message string
	}{
		{"unbound", exprparse.MustParse(`x.Name`), `unbound parameter "x"`},
		{"unknown member", exprparse.MustParse(`e.Salary`), `no member "Salary"`},
		{"member on string", exprparse.MustParse(`e.Name.Size`), `member "Size" is not defined on string`},
		{"method on int", exprparse.MustParse(`e.Name.Length.Any()`), "method Any is not defined on int64"},
		{"lambda", exprparse.MustParse(`x => x`), "outside argument position"},
		{"where without lambda", exprparse.MustParse(`e.WorkIssues.Where(true)`), "Where requires a lambda argument"},
		{"then by unordered", exprparse.MustParse(`e.WorkIssues.ThenBy(i => i.Name)`), "requires an ordered sequence"},
		{"nil", nil, "cannot evaluate nil node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ev.Eval(tt.node, scope)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	_, err := ev.Eval(exprparse.MustParse(`e.Projects.First()`), scope)
	assert.ErrorIs(t, err, eval.ErrEmptySequence)
}

func TestScope(t *testing.T) {
	var s *eval.Scope
	_, ok := s.Lookup("e")
	assert.False(t, ok)

	inner := s.Bind("e", "outer").Bind("e", "inner")
	v, ok := inner.Lookup("e")
	require.True(t, ok)
	assert.Equal(t, "inner", v)
}

func TestRender(t *testing.T) {
	andy := entity.New("Employee", "employee-0001").Set("Name", "Andy")
	anon := entity.New("Issue", "issue-0009")

	tests := []struct {
		name string
		v    any
		want string
	}{
		{"null", nil, "null"},
		{"int", int64(-3), "-3"},
		{"bool", true, "true"},
		{"entity label", andy, "Andy"},
		{"entity id", anon, "issue-0009"},
		{"record", eval.Record{Names: []string{"Name", "Beta"}, Values: []any{"Andy", true}}, "{Name: Andy, Beta: true}"},
		{"group", eval.Group{Key: int64(2), Items: []any{andy}}, "group(2)"},
		{"sequence", []any{"a", nil, int64(1)}, "[a, null, 1]"},
		{"datetime", time.Date(2017, 10, 1, 12, 30, 45, 123000000, time.FixedZone("X", 3600)), "2017-10-01T11:30:45.123Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval.Render(tt.v))
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, eval.Compare(nil, "a"))
	assert.Equal(t, 1, eval.Compare("b", nil))
	assert.Equal(t, 0, eval.Compare(nil, nil))
	assert.Equal(t, -1, eval.Compare("B", "a"), "bytewise, uppercase first")
	assert.Equal(t, 1, eval.Compare(true, false))
	assert.Equal(t, -1, eval.Compare(int64(2), int64(10)))

	assert.True(t, eval.Equal(nil, nil))
	assert.False(t, eval.Equal(nil, "x"))
	assert.True(t, eval.Equal(entity.New("Issue", "1"), entity.New("Issue", "1")))
	assert.False(t, eval.Equal(entity.New("Issue", "1"), entity.New("Client", "1")))
}
