package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/iontrap/fecs/internal/seq"
)

// Report records everything that went into one compiled variant: the
// compiler options, the resolved control-variable values and the
// emitted words. Reports are what gets persisted alongside recorded
// data, so a measurement can always be traced back to the exact
// instruction stream that produced it.
type Report struct {
	Sequence   string    `json:"sequence"`
	Variant    int       `json:"variant"`
	CompiledAt time.Time `json:"compiled_at"`

	Truncate                bool `json:"truncate"`
	ControlRegisterHighTime int  `json:"control_register_high_time"`
	MaxJumpConditions       int  `json:"max_jump_conditions"`

	// DelayUnit is the tick length in microseconds.
	DelayUnit float64 `json:"delay_unit"`

	// LengthTicks is the compiled sequence length; the terminating
	// instruction sits at LengthTicks-1.
	LengthTicks int `json:"length_ticks"`

	ControlValues seq.Values `json:"control_values"`
	ContainsJumps bool       `json:"contains_jumps"`

	Words []uint32 `json:"words"`
}

// WriteFile persists the report as JSON.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteFile.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &r, nil
}
