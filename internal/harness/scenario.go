package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Config is the service description directory.
	Config string `yaml:"config"`

	// Sessions lists the session ids steps may use. Defaults to ["s-1"].
	Sessions []string `yaml:"sessions,omitempty"`

	// ParquetFiles are the file names the depth service sees.
	ParquetFiles []string `yaml:"parquet_files,omitempty"`

	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step sends one message from a session.
type Step struct {
	// Session defaults to the first session.
	Session string `yaml:"session,omitempty"`

	// Send is the message object. Exactly one of Send and Raw is set.
	Send map[string]any `yaml:"send,omitempty"`

	// Raw is sent verbatim.
	Raw string `yaml:"raw,omitempty"`

	// Expect, when present, must match the step's output message for message.
	Expect []map[string]any `yaml:"expect,omitempty"`
}

// Assertion checks the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Session restricts trace assertions to one session.
	Session string `yaml:"session,omitempty"`

	// Message is a subset match (trace_contains, trace_count).
	Message map[string]any `yaml:"message,omitempty"`

	// Kinds is the expected nd_type order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	Count int `yaml:"count,omitempty"`

	// Key and Value are the expected data entry (final_state).
	Key   string `yaml:"key,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Statements is the expected journal (journal).
	Statements []string `yaml:"statements,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertJournal       = "journal"
)

// LoadScenario reads a scenario file. Unknown fields are rejected and the
// config path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s.Config != "" && !filepath.IsAbs(s.Config) {
		s.Config = filepath.Join(filepath.Dir(path), s.Config)
	}
	if len(s.Sessions) == 0 {
		s.Sessions = []string{"s-1"}
	}
	for i := range s.Flow {
		if s.Flow[i].Session == "" {
			s.Flow[i].Session = s.Sessions[0]
		}
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config == "" {
		return fmt.Errorf("config is required")
	}
	if _, err := os.Stat(s.Config); err != nil {
		return fmt.Errorf("config directory not found: %s", s.Config)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if (step.Send == nil) == (step.Raw == "") {
			return fmt.Errorf("flow[%d]: exactly one of send and raw is required", i)
		}
		if !slices.Contains(s.Sessions, step.Session) {
			return fmt.Errorf("flow[%d]: unknown session %q", i, step.Session)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if len(a.Message) == 0 {
			return fmt.Errorf("assertions[%d]: message is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if len(a.Message) == 0 {
			return fmt.Errorf("assertions[%d]: message is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for final_state", index)
		}
	case AssertJournal:
		if a.Session == "" {
			return fmt.Errorf("assertions[%d]: session is required for journal", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
