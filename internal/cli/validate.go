package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationIssue is one problem found in a schema.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Source   string            `json:"source,omitempty"`
	Entities []string          `json:"entities,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate a CUE entity schema",
		Long: `Validate a CUE entity schema without running any query.

Checks field types and datetime scales, reference and collection targets,
duplicate members and table name collisions. Every cross-entity problem is
reported, not just the first.

With no argument the --schema directory is validated, or the embedded
model when --schema is not set.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.Schema
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadModel(dir)
	if len(loadErrors) > 0 {
		issues := make([]ValidationIssue, 0, len(loadErrors))
		for _, err := range loadErrors {
			issues = append(issues, toIssue(err))
		}
		// Missing or unreadable directories are command errors, not
		// schema problems.
		if len(issues) == 1 && isPathError(issues[0].Code) {
			return outputValidateError(formatter, issues[0].Code, issues[0].Message, nil)
		}
		return outputValidationErrors(formatter, issues)
	}

	formatter.VerboseLog("Loaded %d CUE file(s) from %s", loadResult.FileCount, loadResult.Source)

	entities := loadResult.Model.Entities()
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
		formatter.VerboseLog("Entity %s: %d field(s), %d reference(s), %d collection(s)",
			e.Name, len(e.Fields), len(e.References), len(e.Collections))
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid:    true,
		Source:   loadResult.Source,
		Entities: names,
	})
}

func toIssue(err error) ValidationIssue {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		issue := ValidationIssue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.Line = loadErr.Pos.Line()
		}
		return issue
	}
	return ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
}

func isPathError(code string) bool {
	switch code {
	case ErrCodeNotFound, ErrCodeScanError, ErrCodeNoFiles:
		return true
	}
	return false
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d entities)\n", len(result.Entities))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Path errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationIssue) error {
	if formatter.JSON() {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
