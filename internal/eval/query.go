package eval

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/condpush/internal/entity"
	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/query"
)

// Query runs a pipeline over all instances of q.Root. The source sequence
// is ordered by ID, the same order the SQL translator uses as tiebreaker.
func (ev *Evaluator) Query(q *query.Query) ([]any, error) {
	roots := slices.Clone(ev.graph.All(q.Root))
	slices.SortStableFunc(roots, func(a, b *entity.Instance) int {
		return strings.Compare(a.ID, b.ID)
	})
	items := make([]any, len(roots))
	for i, r := range roots {
		items[i] = r
	}
	var cur any = items

	for i, c := range q.Clauses {
		call := expr.MethodCall{Receiver: expr.Param("$source"), Method: string(c.Op), Args: []expr.Node{c.Lambda}}
		seq, _ := asSeq(cur)
		next, err := ev.sequenceCall(cur, seq, call, nil)
		if err != nil {
			return nil, fmt.Errorf("clause %d (%s): %w", i+1, c.Op, err)
		}
		cur = next
	}

	out, ok := asSeq(cur)
	if !ok {
		return nil, fmt.Errorf("query produced %T, not a sequence", cur)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}
