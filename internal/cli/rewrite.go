package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/exprparse"
	"github.com/roach88/condpush/internal/query"
	"github.com/roach88/condpush/internal/rewrite"
)

// RewriteOptions holds flags for the rewrite command.
type RewriteOptions struct {
	*RootOptions
	Root     string // entity a query ranges over
	MaxDepth int    // recursion bound passed to the rewriter
	Untyped  bool   // skip branch type checking
}

// RewriteOutput is the result of a rewrite.
type RewriteOutput struct {
	Mode      string `json:"mode"` // "query" | "expression"
	Root      string `json:"root,omitempty"`
	Input     string `json:"input"`
	Rewritten string `json:"rewritten"`
	Changed   bool   `json:"changed"`
}

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RewriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rewrite <expression>",
		Short: "Push method calls through conditional receivers",
		Long: `Rewrite an expression so no method call has a conditional receiver.

Input of the form "q => q.Where(...)..." is treated as a query over --root
and each clause is rewritten with branch type checking against the schema.
Any other expression is rewritten structurally.

Exit codes:
  0 - Rewritten
  1 - Pushdown failed (incompatible branches, too deep)
  2 - Command error (unparseable input, bad schema)

Examples:
  condpush rewrite 'q => q.Where(e => (e.ReviewAsPrimary ? e.ReviewIssues : e.WorkIssues).Any())'
  condpush rewrite '(c ? xs : ys).Count()'
  condpush rewrite --root Client 'q => q.Select(c => c.Name)' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "Employee", "entity the query ranges over")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", rewrite.DefaultMaxDepth, "maximum expression nesting depth")
	cmd.Flags().BoolVar(&opts.Untyped, "untyped", false, "rewrite structurally without branch type checking")

	return cmd
}

func runRewrite(opts *RewriteOptions, input string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(formatter.GetErrWriter(), opts.Verbose)

	n, err := exprparse.Parse(input)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse failed", err)
	}

	out := RewriteOutput{Input: expr.Format(n)}

	q, qerr := query.FromNode(n, opts.Root)
	if qerr == nil {
		loadResult, loadErrors := LoadModel(opts.Schema)
		if len(loadErrors) > 0 {
			_ = formatter.Error(ErrCodeLoadFailed, loadErrors[0].Error(), nil)
			return WrapExitError(ExitCommandError, "schema load failed", loadErrors[0])
		}
		if _, ok := loadResult.Model.Entity(opts.Root); !ok {
			msg := fmt.Sprintf("unknown root entity %q", opts.Root)
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}

		rwOpts := []rewrite.Option{rewrite.WithMaxDepth(opts.MaxDepth), rewrite.WithLogger(logger)}
		var checker *expr.Checker
		if !opts.Untyped {
			rwOpts = append(rwOpts, rewrite.WithResolver(loadResult.Model))
			checker = expr.NewChecker(loadResult.Model)
		}

		formatter.VerboseLog("Rewriting query %s", q.Describe())
		rewritten, err := q.Rewrite(rewrite.New(rwOpts...), checker)
		if err != nil {
			return rewriteFailed(formatter, err)
		}
		out.Mode = "query"
		out.Root = opts.Root
		out.Rewritten = rewritten.String()
	} else {
		formatter.VerboseLog("Not a query (%v); rewriting as a bare expression", qerr)
		rewritten, err := rewrite.New(rewrite.WithMaxDepth(opts.MaxDepth), rewrite.WithLogger(logger)).Rewrite(n)
		if err != nil {
			return rewriteFailed(formatter, err)
		}
		out.Mode = "expression"
		out.Rewritten = expr.Format(rewritten)
	}
	out.Changed = out.Rewritten != out.Input

	if formatter.JSON() {
		return formatter.Success(out)
	}
	fmt.Fprintln(formatter.Writer, out.Rewritten)
	return nil
}

// rewriteFailed reports a rewrite error, carrying the rewriter's error code
// as details when there is one.
func rewriteFailed(formatter *OutputFormatter, err error) error {
	var details any
	var re *rewrite.Error
	if errors.As(err, &re) {
		details = map[string]string{"code": string(re.Code), "node": re.Node}
	}
	_ = formatter.Error(ErrCodeRewrite, err.Error(), details)
	return WrapExitError(ExitFailure, "rewrite failed", err)
}
