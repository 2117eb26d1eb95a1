package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/condpush/internal/eval"
	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/fixture"
	"github.com/roach88/condpush/internal/query"
	"github.com/roach88/condpush/internal/querysql"
	"github.com/roach88/condpush/internal/rewrite"
	"github.com/roach88/condpush/internal/schema"
	"github.com/roach88/condpush/internal/store"
	"github.com/roach88/condpush/internal/testutil"
)

// Harness runs scenarios against a schema model.
type Harness struct {
	model  *schema.Model
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithModel sets the schema the scenarios' datasets and queries use.
func WithModel(m *schema.Model) Option {
	return func(h *Harness) {
		h.model = m
	}
}

// WithLogger sets the logger for rewrite and case events.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// New creates a harness over schema.Default with logging discarded.
func New(opts ...Option) *Harness {
	h := &Harness{
		model:  schema.Default(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, seeded
// with sequential IDs so results and golden files are reproducible.
//
// For every case:
//  1. Parse and rewrite both the conditional and the expected query
//  2. Check the rewritten forms are identical
//  3. Evaluate both originals in memory and both rewritten forms in SQLite
//  4. Check all four row sets agree, and match the case's results if given
//
// Errors that prevent a case from running (bad query text, a rewrite or
// translation failure) abort the run; disagreements are recorded in the
// result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", h.model,
		store.WithIDGenerator(testutil.NewSequentialIDs()),
		store.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	data, err := fixture.ByName(scenario.Dataset, testutil.NewSequentialIDs())
	if err != nil {
		return nil, err
	}
	if err := data.Seed(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to seed dataset: %w", err)
	}

	// The evaluator reads the graph back from the store so both backends
	// see exactly the stored values.
	graph, err := st.LoadGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	r := &run{
		Harness:  h,
		store:    st,
		eval:     eval.New(h.model, graph),
		rewriter: rewrite.New(rewrite.WithResolver(h.model), rewrite.WithLogger(h.logger)),
		checker:  expr.NewChecker(h.model),
		compiler: querysql.NewSQLCompiler(h.model),
	}

	result := NewResult(scenario.Name)
	for _, c := range scenario.Cases {
		cr, err := r.runCase(ctx, scenario.Root, c, result)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", c.Name, err)
		}
		result.Cases = append(result.Cases, *cr)
		h.logger.Info("case completed",
			"scenario", scenario.Name,
			"case", c.Name,
			"rows", len(cr.Rows),
		)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, r.compiler) {
		result.AddError(errMsg)
	}

	return result, nil
}

// run holds the per-scenario backends.
type run struct {
	*Harness
	store    *store.Store
	eval     *eval.Evaluator
	rewriter *rewrite.Rewriter
	checker  *expr.Checker
	compiler *querysql.SQLCompiler
}

func (r *run) runCase(ctx context.Context, root string, c Case, result *Result) (*CaseResult, error) {
	conditional, err := query.Parse(c.Conditional, root)
	if err != nil {
		return nil, fmt.Errorf("conditional: %w", err)
	}
	expected, err := query.Parse(c.Expected, root)
	if err != nil {
		return nil, fmt.Errorf("expected: %w", err)
	}

	rewritten, err := conditional.Rewrite(r.rewriter, r.checker)
	if err != nil {
		return nil, fmt.Errorf("rewrite conditional: %w", err)
	}
	expectedRewritten, err := expected.Rewrite(r.rewriter, r.checker)
	if err != nil {
		return nil, fmt.Errorf("rewrite expected: %w", err)
	}
	if !query.Equal(rewritten, expectedRewritten) {
		result.AddError(fmt.Sprintf("case %s: rewritten forms differ\n  conditional: %s\n  expected:    %s",
			c.Name, rewritten, expectedRewritten))
	}

	stmt, err := r.compiler.Compile(rewritten)
	if err != nil {
		return nil, fmt.Errorf("compile rewritten conditional: %w", err)
	}
	expectedStmt, err := r.compiler.Compile(expectedRewritten)
	if err != nil {
		return nil, fmt.Errorf("compile rewritten expected: %w", err)
	}

	backends := []struct {
		name string
		rows func() ([]any, error)
	}{
		{"memory/conditional", func() ([]any, error) { return r.eval.Query(conditional) }},
		{"memory/expected", func() ([]any, error) { return r.eval.Query(expected) }},
		{"sqlite/conditional", func() ([]any, error) { return querysql.Execute(ctx, r.store.DB(), r.store.Dialect(), stmt) }},
		{"sqlite/expected", func() ([]any, error) { return querysql.Execute(ctx, r.store.DB(), r.store.Dialect(), expectedStmt) }},
	}

	var reference []string
	for i, b := range backends {
		rows, err := b.rows()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, err)
		}
		rendered := eval.RenderAll(rows)
		if i == 0 {
			reference = rendered
			continue
		}
		if !slices.Equal(reference, rendered) {
			result.AddError(fmt.Sprintf("case %s: %s returned %v, %s returned %v",
				c.Name, backends[0].name, reference, b.name, rendered))
		}
	}

	if len(c.Results) > 0 && !slices.Equal(c.Results, reference) {
		result.AddError(fmt.Sprintf("case %s: expected rows %v, got %v", c.Name, c.Results, reference))
	}

	return &CaseResult{
		Name:      c.Name,
		Rewritten: rewritten.String(),
		SQL:       stmt.SQL,
		Params:    stmt.Params,
		Rows:      reference,
		Original:  conditional,
	}, nil
}
