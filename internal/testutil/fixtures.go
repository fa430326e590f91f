// Package testutil provides shared fixtures for compiler and model
// tests: a canonical hardware configuration and a few sequences small
// enough to reason about by hand.
package testutil

import (
	"io"
	"log/slog"

	"github.com/iontrap/fecs/internal/seq"
)

// Logger returns a logger that discards everything, keeping test
// output clean.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Hardware returns the canonical test setup: one output channel, one
// acquisition counter, one gated pulse counter and a two-bit control
// register.
//
//	output  "cooling" on bus channel 3
//	counter "pmt" on acquisition channel 2
//	pulse counter "detect" (id 1) gated by bus channel 5
//	register bits on bus channels 22 and 23
func Hardware() *seq.HardwareConfig {
	return &seq.HardwareConfig{
		Name:      "bench",
		DelayUnit: 1.0,
		Outputs: []seq.OutputHW{
			{Name: "cooling", ID: 3, Polarity: true},
		},
		Counters: []seq.CounterHW{
			{Name: "pmt", ID: 2},
		},
		PulseCounters: []seq.PulseCounterHW{
			{Name: "detect", ID: 1, Gate: 5},
		},
		Register: seq.ControlRegister{
			Width: 2,
			Bits: map[int]seq.Bit{
				0: {Output: 22, Input: 8},
				1: {Output: 23, Input: 9},
			},
		},
	}
}

// StaticSequence returns a 30 µs sequence driving two pulses on the
// cooling channel and nothing else. It compiles to a straight-line
// stream: set, wait, set, wait, set, wait, set, end.
func StaticSequence() *seq.Sequence {
	return &seq.Sequence{
		Name:     "two-pulse",
		Length:   30,
		Shots:    1,
		Variants: 1,
		Outputs: []*seq.OutputChannel{
			seq.NewOutputChannel("cooling",
				seq.AbsoluteWindow("cool", 0, 5),
				seq.AbsoluteWindow("probe", 19, 28),
			),
		},
		Hardware: Hardware(),
	}
}

// BranchingSequence returns a sequence with one conditional jump: a
// detection window on the pulse counter decides between re-running the
// cooling window and terminating.
//
//	cooling window [0, 40)
//	detection window [50, 60), jump at 70
//	count >= threshold: back to cooling start; else: terminate
func BranchingSequence(threshold int) *seq.Sequence {
	return &seq.Sequence{
		Name:     "detect-and-branch",
		Length:   100,
		Shots:    1,
		Variants: 1,
		Outputs: []*seq.OutputChannel{
			seq.NewOutputChannel("cooling",
				seq.AbsoluteWindow("cool", 0, 40),
			),
		},
		Controls: []*seq.ControlChannel{
			seq.NewControlChannel("detect",
				[]*seq.TimeWindow{seq.AbsoluteWindow("det", 50, 60)},
				[]*seq.Jump{
					seq.NewConditionalJump("branch", seq.AbsolutePoint(70), "det",
						seq.ThresholdCond(threshold, &seq.Destination{
							Ref: seq.NewReference(seq.RefStart, "cool"),
						}),
						seq.ElseCondition(&seq.Terminator{}),
					),
				},
			),
		},
		Hardware: Hardware(),
	}
}
