// Package ipu is a software model of the instruction-parsing unit, for
// testing and debugging compiled sequences without hardware. It is not
// guaranteed to be cycle-exact, but it executes the full instruction
// set the way the hardware documents it: 1-indexed RAM, a delay counter
// for WAIT, threshold evaluation against the pulse-counter memory, and
// a repeat loop over shots.
package ipu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iontrap/fecs/internal/instr"
)

// DefaultMaxJumps caps the jumps taken within one shot; a compiled
// sequence that loops forever trips it instead of hanging the model.
const DefaultMaxJumps = 100

var (
	// ErrJumpBudget reports a shot that jumped more often than allowed.
	ErrJumpBudget = errors.New("jump budget exhausted, sequence loops without terminating")

	// ErrBadAddress reports a program counter outside the loaded RAM.
	ErrBadAddress = errors.New("program counter outside instruction RAM")
)

// CounterSource supplies the pulse-counter value a conditional jump
// reads for its channel.
type CounterSource interface {
	Count(channel int) uint32
}

// FixedCounts is a CounterSource returning a constant value per
// channel. Missing channels count zero.
type FixedCounts map[int]uint32

// Count implements CounterSource.
func (f FixedCounts) Count(channel int) uint32 { return f[channel] }

// CounterFunc adapts a function to a CounterSource.
type CounterFunc func(channel int) uint32

// Count implements CounterSource.
func (f CounterFunc) Count(channel int) uint32 { return f(channel) }

// Options configure a model run.
type Options struct {
	// Shots is the number of times the sequence repeats. Zero means 1.
	Shots int

	// IdleState is the physical bus value outside a running sequence.
	IdleState uint32

	// Counts supplies pulse-counter values. Nil counts zero everywhere.
	Counts CounterSource

	// MaxJumps overrides the per-shot jump budget. Zero selects the
	// default.
	MaxJumps int
}

// Event is one executed instruction: the tick it ran at, its RAM
// address, the decoded word and the physical bus value afterwards.
type Event struct {
	Tick    int
	Address int
	Word    instr.Decoded
	Bus     uint32
	Shot    int
}

// Trace is the record of one model run.
type Trace struct {
	Events []Event

	// Ticks is the total number of ticks the run took, delay ticks
	// included.
	Ticks int

	// Shots is the number of completed repeats.
	Shots int
}

// Run loads the words into RAM and executes them until the final END.
func Run(words []uint32, opts Options) (*Trace, error) {
	shots := opts.Shots
	if shots <= 0 {
		shots = 1
	}
	maxJumps := opts.MaxJumps
	if maxJumps <= 0 {
		maxJumps = DefaultMaxJumps
	}
	counts := opts.Counts
	if counts == nil {
		counts = FixedCounts(nil)
	}

	// RAM addresses start at 1; slot 0 stays empty.
	ram := make([]uint32, len(words)+1)
	copy(ram[1:], words)

	trace := &Trace{}
	bus := opts.IdleState
	pc := 1
	tick := 0
	shot := 1
	jumps := 0
	delay := 0

	for {
		if delay > 0 {
			delay--
			tick++
			continue
		}
		if pc < 1 || pc >= len(ram) {
			return trace, fmt.Errorf("address %d at tick %d: %w", pc, tick, ErrBadAddress)
		}
		address := pc
		word := instr.Decode(ram[pc])

		switch word.Op {
		case instr.OpWait:
			// The WAIT occupies its own tick; the delay counter covers
			// the rest of the duration.
			delay = word.Duration - 1
			pc++

		case instr.OpJump:
			if jumps >= maxJumps {
				return trace, fmt.Errorf("%d jumps in shot %d: %w", jumps, shot, ErrJumpBudget)
			}
			if word.Always || counts.Count(word.Channel) >= word.Threshold {
				jumps++
				pc = word.Destination
			} else {
				pc++
			}

		case instr.OpSet:
			bus = word.Value
			pc++

		case instr.OpEnd:
			jumps = 0
			pc = 1
			trace.Events = append(trace.Events, Event{
				Tick: tick, Address: address, Word: word, Bus: bus, Shot: shot,
			})
			tick++
			if shot == shots {
				bus = opts.IdleState
				trace.Ticks = tick
				trace.Shots = shot
				return trace, nil
			}
			shot++
			bus = opts.IdleState
			continue
		}

		trace.Events = append(trace.Events, Event{
			Tick: tick, Address: address, Word: word, Bus: bus, Shot: shot,
		})
		tick++
	}
}

// String renders the trace, one line per executed instruction.
func (t *Trace) String() string {
	var b strings.Builder
	for _, e := range t.Events {
		fmt.Fprintf(&b, "shot %d tick %6d addr %3d %-4s bus 0x%06x", e.Shot, e.Tick, e.Address, e.Word.Op, e.Bus)
		switch e.Word.Op {
		case instr.OpWait:
			fmt.Fprintf(&b, " duration=%d", e.Word.Duration)
		case instr.OpJump:
			if e.Word.Always {
				fmt.Fprintf(&b, " goto=%d", e.Word.Destination)
			} else {
				fmt.Fprintf(&b, " channel=%d threshold=%d dest=%d",
					e.Word.Channel, e.Word.Threshold, e.Word.Destination)
			}
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "ticks=%d shots=%d\n", t.Ticks, t.Shots)
	return b.String()
}
