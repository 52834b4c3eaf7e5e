package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario for the engine manager.
// A scenario serves a set of fixture files over a local HTTP server,
// drives the manager through a sequence of steps, and records a
// deterministic snapshot of the outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixtures maps request paths (e.g. "/t1.csv") to response bodies.
	// Steps reference fixtures by path; the runner expands them to full
	// URLs on its ephemeral server.
	Fixtures map[string]string `yaml:"fixtures,omitempty"`

	// Steps is the ordered flow to execute.
	Steps []Step `yaml:"steps"`
}

// Step is one operation in a scenario flow.
type Step struct {
	// Op names the operation: load, query, publish_view, publish_table,
	// close, unload.
	Op string `yaml:"op"`

	// Label names the step in the snapshot. Defaults to the op.
	Label string `yaml:"label,omitempty"`

	// Connection is the consumer/connection id driving the step.
	// Connections are created on first use.
	Connection string `yaml:"connection,omitempty"`

	// Load fields.
	Path     string `yaml:"path,omitempty"`     // fixture path
	Kind     string `yaml:"kind,omitempty"`     // csv or parquet
	Table    string `yaml:"table,omitempty"`    // target table
	StableID string `yaml:"stableId,omitempty"` // de-duplication key

	// Query / publish fields.
	SQL string `yaml:"sql,omitempty"`

	// Publish / unload target name.
	Name string `yaml:"name,omitempty"`

	// Expect specifies the expected outcome. If nil the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step behavior.
type ExpectClause struct {
	// ErrorCode is the expected failure code (e.g. "FILE_LOAD_FAILED").
	// Empty means the step must succeed.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Rows is the expected record count for query steps, or the
	// expected imported row count for load steps. Nil skips the check.
	Rows *int64 `yaml:"rows,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(s, i, &step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, index int, step *Step) error {
	switch step.Op {
	case OpLoad:
		if step.Path == "" {
			return fmt.Errorf("steps[%d]: path is required for load", index)
		}
		if _, ok := s.Fixtures[step.Path]; !ok {
			// Loads may reference missing paths on purpose to exercise
			// failure handling, but only with an expect clause saying so.
			if step.Expect == nil || step.Expect.ErrorCode == "" {
				return fmt.Errorf("steps[%d]: path %q has no fixture", index, step.Path)
			}
		}
		if step.Kind == "" {
			return fmt.Errorf("steps[%d]: kind is required for load", index)
		}
		if step.Table == "" {
			return fmt.Errorf("steps[%d]: table is required for load", index)
		}
		if step.Connection == "" {
			return fmt.Errorf("steps[%d]: connection is required for load", index)
		}
	case OpQuery:
		if step.SQL == "" {
			return fmt.Errorf("steps[%d]: sql is required for query", index)
		}
		if step.Connection == "" {
			return fmt.Errorf("steps[%d]: connection is required for query", index)
		}
	case OpPublishView, OpPublishTable:
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required for %s", index, step.Op)
		}
		if step.SQL == "" {
			return fmt.Errorf("steps[%d]: sql is required for %s", index, step.Op)
		}
		if step.Connection == "" {
			return fmt.Errorf("steps[%d]: connection is required for %s", index, step.Op)
		}
	case OpClose:
		if step.Connection == "" {
			return fmt.Errorf("steps[%d]: connection is required for close", index)
		}
	case OpUnload:
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name (file key) is required for unload", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}
