package harness

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/condpush/internal/ir"
	"github.com/roach88/condpush/internal/querysql"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Case     string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (case %s)\n", e.Type, e.Case)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages. The compiler is used by pushdown_required to
// translate the case's original query.
func EvaluateAssertions(result *Result, assertions []Assertion, compiler *querysql.SQLCompiler) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a, compiler); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion, compiler *querysql.SQLCompiler) error {
	c, ok := result.Case(a.Case)
	if !ok {
		return &AssertionError{Type: a.Type, Case: a.Case, Expected: "case to have run", Actual: "no such case"}
	}

	switch a.Type {
	case AssertRewrittenEquals:
		return assertRewrittenEquals(c, a)
	case AssertSQLContains:
		return assertSQLContains(c, a)
	case AssertSQLParams:
		return assertSQLParams(c, a)
	case AssertPushdownRequired:
		return assertPushdownRequired(c, a, compiler)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

func assertRewrittenEquals(c *CaseResult, a Assertion) error {
	if c.Rewritten == a.Text {
		return nil
	}
	return &AssertionError{Type: a.Type, Case: a.Case, Expected: a.Text, Actual: c.Rewritten}
}

func assertSQLContains(c *CaseResult, a Assertion) error {
	if strings.Contains(c.SQL, a.Text) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Case:     a.Case,
		Expected: fmt.Sprintf("SQL containing %q", a.Text),
		Actual:   c.SQL,
	}
}

// assertSQLParams compares bound parameters after normalizing YAML ints to
// the int64 the translator binds.
func assertSQLParams(c *CaseResult, a Assertion) error {
	want := make([]any, len(a.Params))
	for i, p := range a.Params {
		v, err := ir.FromGo(p)
		if err != nil {
			return &AssertionError{Type: a.Type, Case: a.Case, Expected: "scalar params", Actual: err.Error()}
		}
		if want[i], err = ir.ToGo(v); err != nil {
			return &AssertionError{Type: a.Type, Case: a.Case, Expected: "scalar params", Actual: err.Error()}
		}
	}
	got := c.Params
	if got == nil {
		got = []any{}
	}
	if reflect.DeepEqual(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Case:     a.Case,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
	}
}

// assertPushdownRequired checks that the original query, with its
// conditional sequence still in place, is rejected by the translator.
func assertPushdownRequired(c *CaseResult, a Assertion, compiler *querysql.SQLCompiler) error {
	if c.Original == nil {
		return &AssertionError{Type: a.Type, Case: a.Case, Expected: "original query", Actual: "none recorded"}
	}
	_, err := compiler.Compile(c.Original)
	if errors.Is(err, querysql.ErrConditionalSequence) {
		return nil
	}
	actual := "translated without pushdown"
	if err != nil {
		actual = err.Error()
	}
	return &AssertionError{
		Type:     a.Type,
		Case:     a.Case,
		Expected: querysql.ErrConditionalSequence.Error(),
		Actual:   actual,
	}
}
