package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/condpush/internal/ir"
)

// Snapshot captures the rewritten form and rows of every case for golden
// comparison. SQL text is left out so translator refactors that keep the
// results do not churn the golden files.
type Snapshot struct {
	Scenario string
	Dataset  string
	Cases    []CaseResult
}

// toCanonical converts the snapshot to an IRObject for canonical JSON.
func (s *Snapshot) toCanonical() ir.IRObject {
	cases := make(ir.IRArray, len(s.Cases))
	for i, c := range s.Cases {
		rows := make(ir.IRArray, len(c.Rows))
		for j, row := range c.Rows {
			rows[j] = ir.IRString(row)
		}
		cases[i] = ir.IRObject{
			"name":      ir.IRString(c.Name),
			"rewritten": ir.IRString(c.Rewritten),
			"rows":      rows,
		}
	}
	return ir.IRObject{
		"scenario": ir.IRString(s.Scenario),
		"dataset":  ir.IRString(s.Dataset),
		"cases":    cases,
	}
}

// GoldenBytes renders the golden file content for a scenario result:
// canonical JSON followed by a newline.
func GoldenBytes(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := Snapshot{Scenario: scenario.Name, Dataset: scenario.Dataset, Cases: result.Cases}
	data, err := ir.MarshalCanonical(snapshot.toCanonical())
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass and Errors; a snapshot
// mismatch fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := GoldenBytes(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
