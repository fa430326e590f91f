package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/iontrap/fecs/internal/instr"
)

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden. The
// snapshot holds the disassembled instruction stream and the full bus
// trace, so any change to scheduling, encoding or model semantics shows
// up as a diff.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot(scenario, result))
	return result, nil
}

// snapshot renders a result in the stable text form golden files pin.
func snapshot(scenario *Scenario, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", scenario.Name)
	for _, e := range result.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	if len(result.Words) > 0 {
		b.WriteString("words:\n")
		b.WriteString(instr.Disassemble(result.Words))
	}
	if result.Trace != nil {
		b.WriteString("trace:\n")
		b.WriteString(result.Trace.String())
	}
	return []byte(b.String())
}
