package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/condpush/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Cases  int      `json:"cases"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance harness",
		Long: `Run conformance tests using the harness framework.

Each scenario pairs conditional queries with their hand-pushed-down
equivalents. The harness checks the rewriter produces the expected form,
that the in-memory evaluator and SQLite agree on every case, and that
each scenario's assertions hold. Supports golden file comparison.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  condpush test ./scenarios
  condpush test ./scenarios --filter "gh*"
  condpush test ./scenarios --update
  condpush test ./scenarios --schema ./schema --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	// Validate directories
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	loadResult, loadErrors := LoadModel(opts.Schema)
	if len(loadErrors) > 0 {
		return WrapExitError(ExitCommandError, "schema load failed", loadErrors[0])
	}
	h := harness.New(
		harness.WithModel(loadResult.Model),
		harness.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose)),
	)

	// Find scenario files
	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return fmt.Errorf("failed to find scenarios: %w", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.JSON() {
			return outputTestJSON(cmd, TestResult{
				Scenarios: []ScenarioResult{},
				Total:     0,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	// Run scenarios
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(h, scenarioFile, opts, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.JSON() {
		return outputTestJSON(cmd, result)
	}

	return outputTestText(cmd, result)
}

// findScenarioFiles returns the .yaml and .yml files under dir, in walk
// order, whose base name without extension matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(d.Name(), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario executes a single scenario, checks it against its golden
// file when one exists and prints a status line in text format.
func runScenario(h *harness.Harness, scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	res, detail := checkScenario(h, scenarioFile, opts, cmd)
	if !opts.JSON() {
		reportScenario(cmd.OutOrStdout(), res, detail)
	}
	return res
}

// checkScenario returns the scenario outcome and, for text output, the
// line printed under a failing scenario or the note after a passing one.
func checkScenario(h *harness.Harness, scenarioFile string, opts *TestOptions, cmd *cobra.Command) (ScenarioResult, string) {
	fail := func(name, detail string, errs ...string) (ScenarioResult, string) {
		return ScenarioResult{Name: name, Pass: false, Errors: errs}, detail
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		name := filepath.Base(scenarioFile)
		return fail(name, fmt.Sprintf("Load error: %v", err), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := h.Run(commandContext(cmd), scenario)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("Execution error: %v", err), fmt.Sprintf("execution failed: %v", err))
	}
	cases := len(result.Cases)

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := updateGoldenFile(scenario, result, goldenPath); err != nil {
			return fail(scenario.Name, fmt.Sprintf("Golden update error: %v", err), fmt.Sprintf("failed to update golden file: %v", err))
		}
		return ScenarioResult{Name: scenario.Name, Pass: true, Cases: cases}, "golden updated"
	}

	if _, err := os.Stat(goldenPath); err == nil {
		match, err := compareWithGolden(scenario, result, goldenPath)
		if err != nil {
			return fail(scenario.Name, fmt.Sprintf("Golden comparison error: %v", err), fmt.Sprintf("golden comparison failed: %v", err))
		}
		if !match {
			return fail(scenario.Name, "Golden file mismatch (run with --update to regenerate)", "results do not match golden file")
		}
	}

	if !result.Pass {
		return ScenarioResult{Name: scenario.Name, Pass: false, Cases: cases, Errors: result.Errors}, ""
	}
	return ScenarioResult{Name: scenario.Name, Pass: true, Cases: cases}, ""
}

// reportScenario prints one scenario's status line followed by its errors.
func reportScenario(w io.Writer, res ScenarioResult, detail string) {
	if res.Pass {
		note := fmt.Sprintf("%d case(s)", res.Cases)
		if detail != "" {
			note += ", " + detail
		}
		fmt.Fprintf(w, "✓ %s (%s)\n", res.Name, note)
		return
	}

	fmt.Fprintf(w, "✗ %s\n", res.Name)
	if detail != "" {
		fmt.Fprintf(w, "  %s\n", detail)
		return
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// updateGoldenFile writes the current snapshot as the golden file.
func updateGoldenFile(scenario *harness.Scenario, result *harness.Result, goldenPath string) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}

	data, err := harness.GoldenBytes(scenario, result)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(goldenPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}

	return nil
}

// compareWithGolden compares the result snapshot against the golden file.
func compareWithGolden(scenario *harness.Scenario, result *harness.Result, goldenPath string) (bool, error) {
	goldenData, err := os.ReadFile(goldenPath)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}

	currentData, err := harness.GoldenBytes(scenario, result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal current snapshot: %w", err)
	}

	return bytes.Equal(goldenData, currentData), nil
}

// caseTotal sums the cases run across scenarios.
func (r TestResult) caseTotal() int {
	n := 0
	for _, s := range r.Scenarios {
		n += s.Cases
	}
	return n
}

// outputTestJSON writes the indented JSON envelope for a test run.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	var failed error
	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		response.Status = "error"
		response.Error = &CLIError{Code: "E_TEST_FAILED", Message: msg}
		failed = NewExitError(ExitFailure, msg)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	return failed
}

// outputTestText writes the summary that follows the per-scenario lines.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total (%d cases)\n",
		result.Passed, result.Failed, result.Total, result.caseTotal())

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
