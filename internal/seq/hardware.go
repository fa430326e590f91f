package seq

import "github.com/iontrap/fecs/internal/instr"

// OutputHW is a physical FPGA output channel. Sequence channels link to
// hardware channels by name so the same logical sequence can run on
// different physical setups.
type OutputHW struct {
	Name string

	// ID is the channel's position on the FPGA output bus.
	ID int

	// Polarity true means a logical high drives the output high;
	// false inverts the output.
	Polarity bool

	// IdleState is the logical level the channel takes on when no
	// sequence is running.
	IdleState bool
}

// CounterHW is an acquisition (time-to-digital converter) input channel.
type CounterHW struct {
	Name string
	ID   int
}

// PulseCounterHW is a photon-counter channel on the sequencer itself,
// whose gated counts feed conditional jumps.
type PulseCounterHW struct {
	Name string

	// ID is the counter channel id encoded into JUMP instructions.
	ID int

	// Gate is the output-bus channel that gates the counter.
	Gate int
}

// HardwareConfig describes the physical setup a sequence compiles for.
type HardwareConfig struct {
	Name string

	// DelayUnit is the FPGA tick length in microseconds.
	DelayUnit float64

	Outputs       []OutputHW
	Counters      []CounterHW
	PulseCounters []PulseCounterHW
	Register      ControlRegister
}

// Output looks up an FPGA output channel by name.
func (h *HardwareConfig) Output(name string) (OutputHW, bool) {
	for _, c := range h.Outputs {
		if CanonicalName(c.Name) == CanonicalName(name) {
			return c, true
		}
	}
	return OutputHW{}, false
}

// PulseCounter looks up a sequencer counter channel by name.
func (h *HardwareConfig) PulseCounter(name string) (PulseCounterHW, bool) {
	for _, c := range h.PulseCounters {
		if CanonicalName(c.Name) == CanonicalName(name) {
			return c, true
		}
	}
	return PulseCounterHW{}, false
}

// PolarityMask returns the output-bus mask of inverted channels.
func (h *HardwareConfig) PolarityMask() uint32 {
	var mask uint32
	for _, c := range h.Outputs {
		if !c.Polarity {
			mask |= 1 << c.ID
		}
	}
	return mask
}

// IdleState returns the logical bus state outside of a running sequence.
func (h *HardwareConfig) IdleState() uint32 {
	var state uint32
	for _, c := range h.Outputs {
		if c.IdleState {
			state |= 1 << c.ID
		}
	}
	return state
}

// Verify checks channel id ranges, uniqueness, and that the control
// register does not share channels with regular outputs or counter gates.
func (h *HardwareConfig) Verify() error {
	if h.DelayUnit <= 0 {
		return newError(ErrCodeInvalidDefinition, h.Name,
			"FPGA delay unit must be positive, got %g", h.DelayUnit)
	}
	if err := h.Register.verify(); err != nil {
		return err
	}

	names := map[string]bool{}
	outputIDs := map[int]bool{}
	for _, c := range h.Outputs {
		if c.ID < 0 || c.ID >= instr.OutputBusWidth {
			return newError(ErrCodeInvalidDefinition, c.Name,
				"output channel id %d outside of bus width %d", c.ID, instr.OutputBusWidth)
		}
		if outputIDs[c.ID] {
			return newError(ErrCodeDuplicateName, c.Name, "output channel id %d used twice", c.ID)
		}
		outputIDs[c.ID] = true
		if names[CanonicalName(c.Name)] {
			return newError(ErrCodeDuplicateName, c.Name, "hardware channel name used twice")
		}
		names[CanonicalName(c.Name)] = true
	}

	counterIDs := map[int]bool{}
	for _, c := range h.Counters {
		if counterIDs[c.ID] {
			return newError(ErrCodeDuplicateName, c.Name, "counter channel id %d used twice", c.ID)
		}
		counterIDs[c.ID] = true
		if names[CanonicalName(c.Name)] {
			return newError(ErrCodeDuplicateName, c.Name, "hardware channel name used twice")
		}
		names[CanonicalName(c.Name)] = true
	}

	pcIDs := map[int]bool{}
	for _, c := range h.PulseCounters {
		if c.ID < 0 || c.ID > 7 {
			return newError(ErrCodeInvalidDefinition, c.Name,
				"pulse counter id %d outside of the 3-bit jump field", c.ID)
		}
		if pcIDs[c.ID] {
			return newError(ErrCodeDuplicateName, c.Name, "pulse counter id %d used twice", c.ID)
		}
		pcIDs[c.ID] = true
		if outputIDs[c.Gate] {
			return newError(ErrCodeInvalidDefinition, c.Name,
				"pulse counter gate %d is also a regular output channel", c.Gate)
		}
		if names[CanonicalName(c.Name)] {
			return newError(ErrCodeDuplicateName, c.Name, "hardware channel name used twice")
		}
		names[CanonicalName(c.Name)] = true
	}

	for _, bit := range h.Register.Bits {
		if outputIDs[bit.Output] {
			return newError(ErrCodeInvalidDefinition, h.Name,
				"control register output channel %d is also a regular output channel", bit.Output)
		}
		for _, c := range h.PulseCounters {
			if bit.Output == c.Gate {
				return newError(ErrCodeInvalidDefinition, h.Name,
					"control register output channel %d is also the gate of pulse counter %q",
					bit.Output, c.Name)
			}
		}
		if counterIDs[bit.Input] {
			return newError(ErrCodeInvalidDefinition, h.Name,
				"control register input channel %d is also a regular counter channel", bit.Input)
		}
	}
	return nil
}
