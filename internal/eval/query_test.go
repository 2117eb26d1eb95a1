package eval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/condpush/internal/eval"
	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/query"
	"github.com/roach88/condpush/internal/rewrite"
	"github.com/roach88/condpush/internal/schema"
)

const receiver = `(e.ReviewAsPrimary ? e.ReviewIssues : e.Projects.Any() ? e.Projects.SelectMany(x => x.Issues) : e.WorkIssues)`

func TestQuery_GH1879(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "where",
			text: `q => q.Where(e => ` + receiver + `.Any(i => i.Client.Name == "Beta"))`,
			want: []string{"Andy", "Bart"},
		},
		{
			name: "select",
			text: `q => q.OrderBy(e => e.Name).Select(e => ` + receiver + `.Any(i => i.Client.Name == "Beta"))`,
			want: []string{"true", "true", "false", "false"},
		},
		{
			name: "anonymous",
			text: `q => q.OrderBy(e => e.Name).Select(e => new { e.Name, Beta = ` + receiver + `.Any(i => i.Client.Name == "Beta") })`,
			want: []string{"{Name: Andy, Beta: true}", "{Name: Bart, Beta: true}", "{Name: Carl, Beta: false}", "{Name: Dorn, Beta: false}"},
		},
		{
			name: "order by count",
			text: `q => q.OrderBy(e => ` + receiver + `.Count()).ThenBy(p => p.Name).Select(p => p.Name)`,
			want: []string{"Carl", "Bart", "Dorn", "Andy"},
		},
		{
			name: "group by count",
			text: `q => q.GroupBy(e => ` + receiver + `.Count()).OrderBy(x => x.Key).Select(grp => grp.Count())`,
			want: []string{"1", "2", "1"},
		},
	}

	ev, _ := setup(t)
	model := schema.Default()
	rw := rewrite.New(rewrite.WithResolver(model))
	checker := expr.NewChecker(model)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := query.Parse(tt.text, "Employee")
			require.NoError(t, err)

			rows, err := ev.Query(q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, eval.RenderAll(rows), "original")

			rewritten, err := q.Rewrite(rw, checker)
			require.NoError(t, err)
			rows, err = ev.Query(rewritten)
			require.NoError(t, err)
			assert.Equal(t, tt.want, eval.RenderAll(rows), "rewritten")
		})
	}
}

func TestQuery_EmptyResultIsNotNil(t *testing.T) {
	ev, _ := setup(t)
	q, err := query.Parse(`q => q.Where(e => e.Name == "Zed")`, "Employee")
	require.NoError(t, err)

	rows, err := ev.Query(q)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestQuery_NoClausesReturnsRootsByID(t *testing.T) {
	ev, _ := setup(t)
	rows, err := ev.Query(&query.Query{Root: "Project"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "Banana", "Cherry"}, eval.RenderAll(rows))
}

func TestQuery_ClauseErrorNamesClause(t *testing.T) {
	ev, _ := setup(t)
	q, err := query.Parse(`q => q.Where(e => e.Salary == 1)`, "Employee")
	require.NoError(t, err)

	_, err = ev.Query(q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clause 1 (Where)")
}
