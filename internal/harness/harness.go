// Package harness provides a conformance testing framework for the
// sequence compiler: YAML scenarios name a CUE sequence definition,
// compile one variant, execute the words on the instruction-parsing
// unit model with fixed counter counts, and assert on the compiled
// stream and the resulting bus trace. Golden files pin the full
// disassembly and trace for regression comparison.
package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/iontrap/fecs/internal/compiler"
	"github.com/iontrap/fecs/internal/ipu"
	"github.com/iontrap/fecs/internal/seq"
	"github.com/iontrap/fecs/internal/seqfile"
)

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass indicates overall scenario success: the compile went the
	// expected way and all assertions matched.
	Pass bool

	// Errors contains assertion failure messages. Empty if Pass.
	Errors []string

	// Words is the compiled instruction stream. Nil for scenarios that
	// expect a failing compile.
	Words []uint32

	// Report is the compile report. Nil for failing compiles.
	Report *compiler.Report

	// Trace is the model run record. Nil for failing compiles.
	Trace *ipu.Trace
}

func newResult() *Result {
	return &Result{Pass: true}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the CUE sequence definition
//  2. Compile the selected variant (expected failures short-circuit)
//  3. Execute the words on the model with the scenario's counts
//  4. Evaluate assertions against words and trace
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sequence, err := seqfile.Load(scenario.Sequence)
	if err != nil {
		return nil, fmt.Errorf("loading sequence definition: %w", err)
	}

	result := newResult()

	words, report, err := compile(sequence, scenario, logger)
	if scenario.Expect != nil {
		if err == nil {
			result.AddError("expected compile error %s, compile succeeded", scenario.Expect.Error)
		} else if code := errorCode(err); code != scenario.Expect.Error {
			result.AddError("expected compile error %s, got %s: %v", scenario.Expect.Error, code, err)
		}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compiling %s variant %d: %w", sequence.Name, scenario.Variant, err)
	}
	result.Words = words
	result.Report = report

	counts, err := channelCounts(sequence.Hardware, scenario.Counts)
	if err != nil {
		return nil, err
	}
	shots := scenario.Shots
	if shots <= 0 {
		shots = sequence.Shots
	}
	trace, err := ipu.Run(words, ipu.Options{
		Shots:     shots,
		IdleState: sequence.Hardware.IdleState(),
		Counts:    counts,
	})
	if err != nil {
		return nil, fmt.Errorf("executing %s variant %d: %w", sequence.Name, scenario.Variant, err)
	}
	result.Trace = trace

	for i, a := range scenario.Assertions {
		evaluate(result, i, a)
	}
	return result, nil
}

func compile(sequence *seq.Sequence, scenario *Scenario, logger *slog.Logger) ([]uint32, *compiler.Report, error) {
	c, err := compiler.New(sequence, compiler.Options{
		Truncate:                scenario.Options.Truncate,
		ControlRegisterHighTime: scenario.Options.ControlRegisterHighTime,
		MaxJumpConditions:       scenario.Options.MaxJumpConditions,
		Logger:                  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return c.Compile(scenario.Variant)
}

// channelCounts maps scenario counts, keyed by control channel name,
// onto the counter channel ids the model reads.
func channelCounts(hw *seq.HardwareConfig, counts map[string]uint32) (ipu.FixedCounts, error) {
	fixed := make(ipu.FixedCounts, len(counts))
	for name, count := range counts {
		pc, ok := hw.PulseCounter(name)
		if !ok {
			return nil, fmt.Errorf("counts: no pulse counter channel %q in hardware", name)
		}
		fixed[pc.ID] = count
	}
	return fixed, nil
}

// errorCode extracts the code from a sequence or compiler error.
func errorCode(err error) string {
	var seqErr *seq.Error
	if errors.As(err, &seqErr) {
		return string(seqErr.Code)
	}
	var compErr *compiler.Error
	if errors.As(err, &compErr) {
		return string(compErr.Code)
	}
	return ""
}

func evaluate(result *Result, i int, a Assertion) {
	switch a.Type {
	case AssertBusAt:
		state, ok := busAt(result.Trace, a.Tick)
		if !ok {
			result.AddError("assertion %d: no trace event at or before tick %d", i, a.Tick)
			return
		}
		if state != a.State {
			result.AddError("assertion %d: bus at tick %d is %#x, expected %#x", i, a.Tick, state, a.State)
		}
	case AssertTicks:
		if result.Trace.Ticks != a.Count {
			result.AddError("assertion %d: run took %d ticks, expected %d", i, result.Trace.Ticks, a.Count)
		}
	case AssertShots:
		if result.Trace.Shots != a.Count {
			result.AddError("assertion %d: run completed %d shots, expected %d", i, result.Trace.Shots, a.Count)
		}
	case AssertWords:
		if len(result.Words) != a.Count {
			result.AddError("assertion %d: compiled %d words, expected %d", i, len(result.Words), a.Count)
		}
	}
}

// busAt returns the physical bus state at a trace tick: the bus value
// after the latest event at or before the tick. During a delay the bus
// holds the last written value.
func busAt(trace *ipu.Trace, tick int) (uint32, bool) {
	var state uint32
	found := false
	for _, e := range trace.Events {
		if e.Tick > tick {
			break
		}
		state = e.Bus
		found = true
	}
	return state, found
}
