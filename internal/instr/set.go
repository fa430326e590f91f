package instr

import (
	"errors"
	"fmt"
)

// Merge failures. Both point at a list that was not verified, sorted, or
// compressed correctly before merging.
var (
	ErrConflict   = errors.New("conflicting set values for the same channel")
	ErrBlockMerge = errors.New("cannot merge set instructions across block boundaries")
)

// Set writes a new output-bus state. The compiler tracks the logical
// value and applies the polarity mask exactly once, at encode time.
type Set struct {
	meta

	// Logic is the logical bus value. Every set bit must be covered by
	// Mask; bits outside the mask are undefined and rejected.
	Logic uint32

	// Mask marks the channels this instruction claims.
	Mask uint32

	// Polarity marks channels with inverted output polarity. The
	// physical payload is Logic XOR Polarity.
	Polarity uint32
}

// NewSetChannel builds a SET driving a single output channel high or low.
func NewSetChannel(tick, channel int, on bool) (*Set, error) {
	if channel < 0 || channel >= OutputBusWidth {
		return nil, fmt.Errorf("output channel %d outside bus width %d", channel, OutputBusWidth)
	}
	s := &Set{meta: meta{Tick: tick}, Mask: 1 << channel}
	if on {
		s.Logic = 1 << channel
	}
	return s, nil
}

// NewSetBus builds a SET claiming all channels in mask with the given
// logical state.
func NewSetBus(tick int, logic, mask uint32) (*Set, error) {
	if logic > OutputMask {
		return nil, fmt.Errorf("logic state %#x: %w", logic, ErrOverflow)
	}
	if logic&^mask != 0 {
		return nil, fmt.Errorf("logic state %#x under mask %#x: %w", logic, mask, ErrUnmaskedBits)
	}
	return &Set{meta: meta{Tick: tick}, Logic: logic, Mask: mask}, nil
}

func (s *Set) Op() Opcode { return OpSet }

// Physical returns the value written to the output pins.
func (s *Set) Physical() (uint32, error) {
	if s.Logic&^s.Mask != 0 {
		return 0, fmt.Errorf("set at tick %d: %w", s.Tick, ErrUnmaskedBits)
	}
	return s.Logic ^ s.Polarity, nil
}

func (s *Set) Encode() (uint32, error) {
	physical, err := s.Physical()
	if err != nil {
		return 0, err
	}
	if physical > OutputMask {
		return 0, fmt.Errorf("set value %#x: %w", physical, ErrOverflow)
	}
	return uint32(OpSet)<<opcodeShift | physical, nil
}

// Inherit copies the previous set's value for every bit that lies inside
// inheritMask but outside this instruction's own mask. The hardware has
// no "keep" opcode, so channels hold their level only because each SET
// restates it.
func (s *Set) Inherit(prev *Set, inheritMask uint32) error {
	take := inheritMask &^ s.Mask
	s.Logic |= prev.Logic & take
	s.Mask |= take
	if s.Logic&^s.Mask != 0 {
		return fmt.Errorf("set at tick %d after inheriting: %w", s.Tick, ErrUnmaskedBits)
	}
	return nil
}

// MergeSets combines all sets scheduled at the same tick into one.
//
// Channels claimed by exactly one member merge by OR. A channel claimed
// twice with the same value is fine; with different values it is fatal
// unless the bit lies inside controlMask, where the hardware tolerates
// the momentary race. At most one member may belong to a named block:
// merging across blocks would corrupt the block's identity, and a block
// must not set the same tick twice.
func MergeSets(controlMask uint32, sets ...*Set) (*Set, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("merge of zero set instructions")
	}
	tick := sets[0].Tick
	merged := &Set{meta: meta{Tick: tick}}
	for _, s := range sets {
		if s.Tick != tick {
			return nil, fmt.Errorf("merge across ticks %d and %d", tick, s.Tick)
		}
		if s.Block != "" {
			if merged.Block == "" {
				merged.Block = s.Block
			} else if merged.Block == s.Block {
				return nil, fmt.Errorf("block %q sets tick %d twice: %w", s.Block, tick, ErrBlockMerge)
			} else {
				return nil, fmt.Errorf("blocks %q and %q collide at tick %d: %w",
					merged.Block, s.Block, tick, ErrBlockMerge)
			}
		}

		overlap := merged.Mask & s.Mask
		if conflict := (merged.Logic ^ s.Logic) & overlap; conflict&^controlMask != 0 {
			return nil, fmt.Errorf("tick %d channels %#x: %w", tick, conflict&^controlMask, ErrConflict)
		}
		merged.Logic |= s.Logic &^ overlap
		merged.Mask |= s.Mask
		merged.ReachedBy = append(merged.ReachedBy, s.ReachedBy...)
	}
	for _, j := range merged.ReachedBy {
		j.Destination = merged
	}
	return merged, nil
}
