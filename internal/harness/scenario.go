package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRoot is the entity queries run over when a scenario names none.
const DefaultRoot = "Employee"

// Scenario defines a conformance test scenario.
// Each case pairs a query written with a conditional in receiver position
// against the same query with the conditional already pushed down by hand.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Dataset names the fixture seeded before the cases run (see
	// fixture.Names).
	Dataset string `yaml:"dataset"`

	// Root is the entity the queries range over. Defaults to DefaultRoot.
	Root string `yaml:"root,omitempty"`

	// Cases are run in order against the same seeded database.
	Cases []Case `yaml:"cases"`

	// Assertions validate the compiled and rewritten cases beyond result
	// equality.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Case is one conditional/expected query pair.
type Case struct {
	Name string `yaml:"name"`

	// Conditional is the query as a user writes it, with a conditional
	// whose branches are sequences.
	Conditional string `yaml:"conditional"`

	// Expected is the hand-written pushed-down equivalent.
	Expected string `yaml:"expected"`

	// Results are the rendered rows both queries must produce. When empty
	// only agreement between the backends is checked.
	Results []string `yaml:"results,omitempty"`
}

// Assertion validates a case's rewritten form or translation.
type Assertion struct {
	// Type specifies the assertion type:
	// - "rewritten_equals": rewritten conditional query equals Text
	// - "sql_contains": translated SQL contains Text
	// - "sql_params": translated SQL binds exactly Params
	// - "pushdown_required": the conditional query cannot be translated
	//   without pushdown
	Type string `yaml:"type"`

	// Case names the case the assertion applies to.
	Case string `yaml:"case"`

	// Text is the expected text (rewritten_equals, sql_contains).
	Text string `yaml:"text,omitempty"`

	// Params are the expected bound parameters (sql_params).
	Params []any `yaml:"params,omitempty"`
}

// Assertion type constants.
const (
	AssertRewrittenEquals  = "rewritten_equals"
	AssertSQLContains      = "sql_contains"
	AssertSQLParams        = "sql_params"
	AssertPushdownRequired = "pushdown_required"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "case:" vs "cases:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Root == "" {
		scenario.Root = DefaultRoot
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		names[c.Name] = true
		if c.Conditional == "" {
			return fmt.Errorf("cases[%d]: conditional is required", i)
		}
		if c.Expected == "" {
			return fmt.Errorf("cases[%d]: expected is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, names); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, cases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Case == "" {
		return fmt.Errorf("assertions[%d]: case is required", index)
	}
	if !cases[a.Case] {
		return fmt.Errorf("assertions[%d]: unknown case %q", index, a.Case)
	}

	switch a.Type {
	case AssertRewrittenEquals, AssertSQLContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertSQLParams, AssertPushdownRequired:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
