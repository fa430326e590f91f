package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one compile-and-execute test case. A scenario names
// a CUE sequence definition, selects a variant and counter counts, and
// asserts on the compiled words and the simulated bus trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sequence is the path to the CUE sequence definition, relative to
	// the scenario file location.
	Sequence string `yaml:"sequence"`

	// Variant selects the control-variable values to compile for.
	Variant int `yaml:"variant,omitempty"`

	// Shots overrides the sequence's shot count for the model run.
	// Zero keeps the sequence's own value.
	Shots int `yaml:"shots,omitempty"`

	// Counts fixes the gated count each control channel reports,
	// keyed by channel name. Missing channels count zero.
	Counts map[string]uint32 `yaml:"counts,omitempty"`

	// Options tune the compile.
	Options ScenarioOptions `yaml:"options,omitempty"`

	// Expect describes a compile that must fail. When Error is set the
	// scenario passes only if compilation fails with that code.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the compiled words and the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioOptions mirror the compiler options a scenario may set.
type ScenarioOptions struct {
	// Truncate drops sequence time past the last window or jump.
	Truncate bool `yaml:"truncate,omitempty"`

	// ControlRegisterHighTime is the pulse width of control-register
	// writes, in ticks. Zero selects the compiler default.
	ControlRegisterHighTime int `yaml:"controlRegisterHighTime,omitempty"`

	// MaxJumpConditions caps the threshold chain length. Zero selects
	// the compiler default.
	MaxJumpConditions int `yaml:"maxJumpConditions,omitempty"`
}

// ExpectClause names the error code a failing compile must carry.
type ExpectClause struct {
	// Error is the expected error code, e.g. "RANGE_OVERLAP" or
	// "CAPACITY".
	Error string `yaml:"error"`
}

// Assertion validates one property of the compile or the trace.
type Assertion struct {
	// Type selects the assertion:
	//   - "bus_at": physical bus state at a trace tick
	//   - "ticks": total ticks the model run took
	//   - "shots": completed shots
	//   - "words": number of compiled instruction words
	Type string `yaml:"type"`

	// Tick is the trace tick to inspect (bus_at). Ticks run across
	// shots without resetting.
	Tick int `yaml:"tick,omitempty"`

	// State is the expected physical bus value (bus_at).
	State uint32 `yaml:"state,omitempty"`

	// Count is the expected number (ticks, shots, words).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertBusAt = "bus_at"
	AssertTicks = "ticks"
	AssertShots = "shots"
	AssertWords = "words"
)

// LoadScenario reads and parses a scenario YAML file. The sequence path
// is resolved relative to the scenario file. Unknown fields are
// rejected so typos fail loudly.
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

	if scenario.Sequence != "" && !filepath.IsAbs(scenario.Sequence) {
		scenario.Sequence = filepath.Join(filepath.Dir(path), scenario.Sequence)
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
	if s.Sequence == "" {
		return fmt.Errorf("sequence is required")
	}
	if s.Variant < 0 {
		return fmt.Errorf("variant must not be negative")
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertBusAt, AssertTicks, AssertShots, AssertWords:
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	if s.Expect != nil && s.Expect.Error == "" {
		return fmt.Errorf("expect.error must name an error code")
	}
	return nil
}
