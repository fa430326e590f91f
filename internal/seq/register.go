package seq

import "github.com/iontrap/fecs/internal/instr"

// Bit maps one control-register bit position to a physical FPGA output
// channel and the acquisition input channel wired to it.
type Bit struct {
	Output int
	Input  int
}

// ControlRegister is a small Gray-coded bus between the sequencer and
// the acquisition electronics. The compiler writes destination ids onto
// it so a downstream observer can reconstruct which branches were taken.
type ControlRegister struct {
	// Width is the number of register bits. It bounds the number of
	// distinct destination ids a compiled variant may use to 2^Width-1.
	Width int

	// Bits maps bit position (0..Width-1) to its channel wiring.
	Bits map[int]Bit
}

// Mask returns the output-bus mask covering all register output channels.
func (r *ControlRegister) Mask() uint32 {
	var mask uint32
	for _, bit := range r.Bits {
		mask |= 1 << bit.Output
	}
	return mask
}

// NegativeMask returns the output-bus mask covering everything except
// the register's output channels.
func (r *ControlRegister) NegativeMask() uint32 {
	return instr.OutputMask &^ r.Mask()
}

// InputMask returns the acquisition-side mask of the register's inputs.
func (r *ControlRegister) InputMask() uint32 {
	var mask uint32
	for _, bit := range r.Bits {
		mask |= 1 << bit.Input
	}
	return mask
}

// ValueToState spreads a register value across the output bus according
// to the bit wiring.
func (r *ControlRegister) ValueToState(value uint32) (uint32, error) {
	if r.Width > 0 && value > 1<<r.Width-1 {
		return 0, newError(ErrCodeOutOfBounds, "",
			"value %d exceeds control register width %d", value, r.Width)
	}
	var state uint32
	for pos, bit := range r.Bits {
		state |= (value >> pos & 1) << bit.Output
	}
	return state, nil
}

// StateToValue recovers a register value from an output-bus state.
func (r *ControlRegister) StateToValue(state uint32) uint32 {
	var value uint32
	for pos, bit := range r.Bits {
		value |= (state >> bit.Output & 1) << pos
	}
	return value
}

// InputToValue recovers a register value from an acquisition-side state.
func (r *ControlRegister) InputToValue(state uint32) uint32 {
	var value uint32
	for pos, bit := range r.Bits {
		value |= (state >> bit.Input & 1) << pos
	}
	return value
}

func (r *ControlRegister) verify() error {
	if len(r.Bits) != r.Width {
		return newError(ErrCodeInvalidDefinition, "",
			"control register defines %d bits for width %d", len(r.Bits), r.Width)
	}
	outputs := map[int]bool{}
	inputs := map[int]bool{}
	for pos, bit := range r.Bits {
		if pos < 0 || pos >= r.Width {
			return newError(ErrCodeInvalidDefinition, "",
				"control register bit %d outside of width %d", pos, r.Width)
		}
		if bit.Output < 0 || bit.Output >= instr.OutputBusWidth {
			return newError(ErrCodeInvalidDefinition, "",
				"control register output channel %d outside of bus", bit.Output)
		}
		if outputs[bit.Output] {
			return newError(ErrCodeDuplicateName, "",
				"control register output channel %d used twice", bit.Output)
		}
		if inputs[bit.Input] {
			return newError(ErrCodeDuplicateName, "",
				"control register input channel %d used twice", bit.Input)
		}
		outputs[bit.Output] = true
		inputs[bit.Input] = true
	}
	return nil
}
