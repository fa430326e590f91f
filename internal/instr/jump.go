package instr

import "fmt"

// Jump transfers control to another instruction, either unconditionally
// or when the accumulated count on a counter channel reaches Threshold.
type Jump struct {
	meta

	// Always makes the jump unconditional; Channel and Threshold are
	// ignored by the hardware when set.
	Always bool

	// Channel is the counter channel whose last window count is tested.
	Channel int

	// Threshold is the 16-bit count threshold; the jump is taken when
	// count >= Threshold.
	Threshold uint32

	// Destination is the instruction this jump targets. Its address is
	// resolved during finalization.
	Destination Instruction
}

// NewGoto builds an unconditional jump to dest and registers it in the
// destination's reached-by set.
func NewGoto(tick int, dest Instruction, block string) *Jump {
	j := &Jump{
		meta:        meta{Tick: tick, Block: block},
		Always:      true,
		Destination: dest,
	}
	dest.Meta().ReachedBy = append(dest.Meta().ReachedBy, j)
	return j
}

// NewConditional builds a threshold jump to dest and registers it in the
// destination's reached-by set.
func NewConditional(tick, channel int, threshold uint32, dest Instruction, block string) (*Jump, error) {
	if channel < 0 || channel > maxCounterChannel {
		return nil, fmt.Errorf("counter channel %d: %w", channel, ErrOverflow)
	}
	if threshold > MaxThreshold {
		return nil, fmt.Errorf("jump threshold %d: %w", threshold, ErrOverflow)
	}
	j := &Jump{
		meta:        meta{Tick: tick, Block: block},
		Channel:     channel,
		Threshold:   threshold,
		Destination: dest,
	}
	dest.Meta().ReachedBy = append(dest.Meta().ReachedBy, j)
	return j, nil
}

func (j *Jump) Op() Opcode { return OpJump }

func (j *Jump) Encode() (uint32, error) {
	if j.Destination == nil {
		return 0, fmt.Errorf("jump at tick %d has no destination", j.Tick)
	}
	registered := false
	for _, r := range j.Destination.Meta().ReachedBy {
		if r == j {
			registered = true
			break
		}
	}
	if !registered {
		return 0, fmt.Errorf("jump at tick %d: %w", j.Tick, ErrUnregisteredJump)
	}
	addr, err := j.Destination.Meta().Address()
	if err != nil {
		return 0, fmt.Errorf("jump at tick %d: %w", j.Tick, err)
	}
	if addr > MaxAddress {
		return 0, fmt.Errorf("jump destination address %d: %w", addr, ErrOverflow)
	}
	if j.Channel < 0 || j.Channel > maxCounterChannel {
		return 0, fmt.Errorf("counter channel %d: %w", j.Channel, ErrOverflow)
	}
	if j.Threshold > MaxThreshold {
		return 0, fmt.Errorf("jump threshold %d: %w", j.Threshold, ErrOverflow)
	}

	word := uint32(OpJump) << opcodeShift
	if j.Always {
		word |= 1 << 29
	}
	word |= uint32(j.Channel) << 26
	word |= j.Threshold << 10
	word |= uint32(addr)
	return word, nil
}
