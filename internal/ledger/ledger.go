package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iontrap/fecs/internal/instr"
)

// Reserved block names claimed by the compiler. StartBlock pins the
// initial control-register write to tick 0; EndBlock holds the single
// terminating instruction and can never be shifted.
const (
	StartBlock = "_START"
	EndBlock   = "_END"
)

var (
	// ErrTooShort reports that placement would displace the reserved
	// terminating tick.
	ErrTooShort = errors.New("sequence is too short to place all blocks")

	// ErrNoRoom reports that a displaced instruction ran into another
	// block before finding a free tick.
	ErrNoRoom = errors.New("not enough room between blocks to place all instructions")

	// ErrInternal reports an inconsistency that earlier passes should
	// have made impossible.
	ErrInternal = errors.New("instruction list is inconsistent")
)

// Ledger is the working instruction list of one compile pass.
type Ledger struct {
	entries []instr.Instruction
	stack   [][]instr.Instruction
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Add appends instructions without ordering them.
func (l *Ledger) Add(instructions ...instr.Instruction) {
	l.entries = append(l.entries, instructions...)
}

// Len returns the number of instructions currently held.
func (l *Ledger) Len() int { return len(l.entries) }

// Instructions returns the current list. Callers must not reorder it.
func (l *Ledger) Instructions() []instr.Instruction { return l.entries }

// Generations returns how many destructive passes have run, i.e. the
// depth of the undo stack.
func (l *Ledger) Generations() int { return len(l.stack) }

// snapshot pushes the current list onto the undo stack.
func (l *Ledger) snapshot() {
	previous := make([]instr.Instruction, len(l.entries))
	copy(previous, l.entries)
	l.stack = append(l.stack, previous)
}

// Sort orders the list by tick, with opcode order SET, JUMP, END, WAIT
// breaking ties. The previous order is kept on the undo stack.
func (l *Ledger) Sort() {
	l.snapshot()
	l.sortInPlace()
}

func (l *Ledger) sortInPlace() {
	sort.SliceStable(l.entries, func(a, b int) bool {
		ae, be := l.entries[a], l.entries[b]
		if ae.Meta().Tick != be.Meta().Tick {
			return ae.Meta().Tick < be.Meta().Tick
		}
		return opcodeRank(ae.Op()) < opcodeRank(be.Op())
	})
}

// opcodeRank orders instructions sharing a tick during sorting and
// decides which of two colliding free-standing instructions is pushed
// during placement: the lower rank moves.
func opcodeRank(op instr.Opcode) int {
	switch op {
	case instr.OpSet:
		return 0
	case instr.OpJump:
		return 1
	case instr.OpEnd:
		return 2
	}
	return 3
}

// AtTick returns all instructions currently scheduled at tick.
func (l *Ledger) AtTick(tick int) []instr.Instruction {
	var found []instr.Instruction
	for _, ins := range l.entries {
		if ins.Meta().Tick == tick {
			found = append(found, ins)
		}
	}
	return found
}

// Compress merges all SET instructions sharing a tick into one.
// Conflicting values for the same channel are fatal unless the channel
// lies in controlMask; SETs from named blocks never merge with each
// other. Compress is idempotent: running it on an already compressed
// list changes nothing.
func (l *Ledger) Compress(controlMask uint32) error {
	l.Sort()

	byTick := make(map[int][]*instr.Set)
	var ticks []int
	var others []instr.Instruction
	for _, ins := range l.entries {
		if set, ok := ins.(*instr.Set); ok {
			tick := set.Meta().Tick
			if _, seen := byTick[tick]; !seen {
				ticks = append(ticks, tick)
			}
			byTick[tick] = append(byTick[tick], set)
			continue
		}
		others = append(others, ins)
	}
	sort.Ints(ticks)

	compressed := make([]instr.Instruction, 0, len(l.entries))
	for _, tick := range ticks {
		merged, err := instr.MergeSets(controlMask, byTick[tick]...)
		if err != nil {
			return err
		}
		compressed = append(compressed, merged)
	}
	compressed = append(compressed, others...)

	l.snapshot()
	l.entries = compressed
	l.sortInPlace()
	return nil
}

// Inherit walks SETs in time order and copies, for every bit inside
// inheritMask but outside a SET's own mask, the most recent prior
// value. The hardware has no "keep" opcode, so holding a level means
// every later SET restates it. The list must be sorted and start with
// a SET at tick 0.
func (l *Ledger) Inherit(inheritMask uint32) error {
	var last *instr.Set
	for _, ins := range l.entries {
		set, ok := ins.(*instr.Set)
		if !ok {
			continue
		}
		if last == nil {
			if set.Meta().Tick != 0 {
				return fmt.Errorf("first set instruction at tick %d, not 0: %w",
					set.Meta().Tick, ErrInternal)
			}
		} else if err := set.Inherit(last, inheritMask); err != nil {
			return err
		}
		last = set
	}
	return nil
}

// SetPolarity stamps the physical polarity mask onto every SET.
func (l *Ledger) SetPolarity(polarityMask uint32) {
	for _, ins := range l.entries {
		if set, ok := ins.(*instr.Set); ok {
			set.Polarity = polarityMask
		}
	}
}

// FillWaits inserts a WAIT into every gap between consecutive ticks.
// Executing the WAIT occupies the first empty tick and its duration
// covers the rest, so the next instruction lands exactly on its own
// tick. The list must already be one-instruction-per-tick.
func (l *Ledger) FillWaits() error {
	l.Sort()
	var waits []instr.Instruction
	last := -1
	for _, ins := range l.entries {
		tick := ins.Meta().Tick
		if tick <= last {
			return fmt.Errorf("non-unique or unsorted tick %d: %w", tick, ErrInternal)
		}
		if gap := tick - last; gap > 1 {
			wait, err := instr.NewWait(last+1, gap-1)
			if err != nil {
				return err
			}
			waits = append(waits, wait)
		}
		last = tick
	}
	l.Add(waits...)
	l.Sort()
	return nil
}

// AssignAddresses numbers the instructions in time order. The hardware
// RAM is 1-indexed; instr.Meta applies the base.
func (l *Ledger) AssignAddresses() error {
	l.Sort()
	last := -1
	for i, ins := range l.entries {
		tick := ins.Meta().Tick
		if tick == last {
			return fmt.Errorf("more than one instruction at tick %d: %w", tick, ErrInternal)
		}
		if tick < last {
			return fmt.Errorf("tick %d out of order: %w", tick, ErrInternal)
		}
		last = tick
		ins.Meta().SetAddress(i)
	}
	return nil
}

// Encode emits the 32-bit words in list order. AssignAddresses must
// have run, otherwise jumps cannot resolve their destinations.
func (l *Ledger) Encode() ([]uint32, error) {
	words := make([]uint32, 0, len(l.entries))
	for _, ins := range l.entries {
		word, err := ins.Encode()
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	return words, nil
}

// String renders the current list for diagnostics.
func (l *Ledger) String() string {
	var b strings.Builder
	b.WriteString("block    tick  op    reached by\n")
	for _, ins := range l.entries {
		m := ins.Meta()
		block := m.Block
		if block == "" {
			block = "-"
		}
		fmt.Fprintf(&b, "%-8s %5d %-5s", block, m.Tick, ins.Op())
		for i, j := range m.ReachedBy {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, " %s@%d", j.Op(), j.Meta().Tick)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
