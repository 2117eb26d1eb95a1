package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/condpush/internal/eval"
	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/fixture"
	"github.com/roach88/condpush/internal/query"
	"github.com/roach88/condpush/internal/querysql"
	"github.com/roach88/condpush/internal/rewrite"
	"github.com/roach88/condpush/internal/store"
	"github.com/roach88/condpush/internal/testutil"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Root      string // entity the query ranges over
	NoRewrite bool   // translate the query as written
	Dataset   string // seed this fixture into an in-memory database and run the query
}

// SQLOutput is the translated statement and, with --dataset, its rows.
type SQLOutput struct {
	Query     string   `json:"query"`
	Rewritten string   `json:"rewritten"`
	SQL       string   `json:"sql"`
	Params    []any    `json:"params"`
	Dataset   string   `json:"dataset,omitempty"`
	Rows      []string `json:"rows,omitempty"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <query>",
		Short: "Rewrite a query and translate it to SQL",
		Long: `Rewrite a query with conditional pushdown and translate it to
parameterized SQLite SQL.

With --dataset the named fixture is seeded into an in-memory database and
the statement is executed; each row is printed the way the in-memory
evaluator renders it.

Exit codes:
  0 - Translated (and executed)
  1 - Rewrite, translation or execution failed
  2 - Command error (unparseable query, bad schema, unknown dataset)

Examples:
  condpush sql 'q => q.Where(e => (e.ReviewAsPrimary ? e.ReviewIssues : e.WorkIssues).Any())'
  condpush sql --dataset gh1879 'q => q.OrderBy(e => e.Name).Select(e => e.Name)'
  condpush sql --no-rewrite 'q => q.Select(e => e.Name)' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(commandContext(cmd), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "Employee", "entity the query ranges over")
	cmd.Flags().BoolVar(&opts.NoRewrite, "no-rewrite", false, "translate without conditional pushdown")
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", fmt.Sprintf("run against a seeded dataset (one of %v)", fixture.Names()))

	return cmd
}

func runSQL(ctx context.Context, opts *SQLOptions, text string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(formatter.GetErrWriter(), opts.Verbose)

	loadResult, loadErrors := LoadModel(opts.Schema)
	if len(loadErrors) > 0 {
		_ = formatter.Error(ErrCodeLoadFailed, loadErrors[0].Error(), nil)
		return WrapExitError(ExitCommandError, "schema load failed", loadErrors[0])
	}
	model := loadResult.Model

	q, err := query.Parse(text, opts.Root)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse failed", err)
	}

	rewritten := q
	if !opts.NoRewrite {
		rw := rewrite.New(rewrite.WithResolver(model), rewrite.WithLogger(logger))
		if rewritten, err = q.Rewrite(rw, expr.NewChecker(model)); err != nil {
			return rewriteFailed(formatter, err)
		}
	}

	stmt, err := querysql.NewSQLCompiler(model).Compile(rewritten)
	if err != nil {
		_ = formatter.Error(ErrCodeTranslate, err.Error(), nil)
		return WrapExitError(ExitFailure, "translation failed", err)
	}

	out := SQLOutput{
		Query:     q.String(),
		Rewritten: rewritten.String(),
		SQL:       stmt.SQL,
		Params:    stmt.Params,
	}
	if out.Params == nil {
		out.Params = []any{}
	}

	if opts.Dataset != "" {
		rows, err := executeOnDataset(ctx, opts, stmt, loadResult, logger, formatter)
		if err != nil {
			return err
		}
		out.Dataset = opts.Dataset
		out.Rows = rows
	}

	if formatter.JSON() {
		return formatter.Success(out)
	}

	w := formatter.Writer
	if !opts.NoRewrite && out.Rewritten != out.Query {
		fmt.Fprintf(w, "-- %s\n", out.Rewritten)
	}
	fmt.Fprintln(w, out.SQL)
	if len(out.Params) > 0 {
		fmt.Fprintf(w, "-- params: %v\n", out.Params)
	}
	if opts.Dataset != "" {
		fmt.Fprintf(w, "\n%d row(s) from %s\n", len(out.Rows), opts.Dataset)
		for _, row := range out.Rows {
			fmt.Fprintf(w, "  %s\n", row)
		}
	}
	return nil
}

// executeOnDataset seeds the dataset into a fresh in-memory store with
// sequential IDs and runs the statement.
func executeOnDataset(ctx context.Context, opts *SQLOptions, stmt *querysql.Statement, loadResult *LoadResult, logger *slog.Logger, formatter *OutputFormatter) ([]string, error) {
	data, err := fixture.ByName(opts.Dataset, testutil.NewSequentialIDs())
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "unknown dataset", err)
	}

	st, err := store.Open(":memory:", loadResult.Model,
		store.WithIDGenerator(testutil.NewSequentialIDs()),
		store.WithLogger(logger))
	if err != nil {
		_ = formatter.Error(ErrCodeExecute, err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "open store", err)
	}
	defer st.Close()

	if err := data.Seed(ctx, st); err != nil {
		_ = formatter.Error(ErrCodeExecute, err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "seed dataset", err)
	}
	logger.Debug("dataset seeded", "dataset", opts.Dataset, "instances", len(data.Instances()))

	rows, err := querysql.Execute(ctx, st.DB(), st.Dialect(), stmt)
	if err != nil {
		_ = formatter.Error(ErrCodeExecute, err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "execution failed", err)
	}
	return eval.RenderAll(rows), nil
}
