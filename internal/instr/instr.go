package instr

import (
	"errors"
	"fmt"
)

// Opcode identifies one of the four IPU instruction kinds.
// The numeric values are the hardware's [31:30] bits.
type Opcode uint8

const (
	OpWait Opcode = 0
	OpJump Opcode = 1
	OpSet  Opcode = 2
	OpEnd  Opcode = 3
)

// String returns the mnemonic used in disassembly listings.
func (op Opcode) String() string {
	switch op {
	case OpWait:
		return "WAIT"
	case OpJump:
		return "JUMP"
	case OpSet:
		return "SET"
	case OpEnd:
		return "END"
	}
	return fmt.Sprintf("OP(%d)", uint8(op))
}

const (
	opcodeShift = 30
	payloadMask = 1<<opcodeShift - 1

	// RAMBase is the first valid instruction RAM address. The IPU's
	// program counter starts at 1; address 0 is never executed.
	RAMBase = 1

	// OutputBusWidth is the number of physical output channels a SET
	// instruction can drive.
	OutputBusWidth = 24

	// OutputMask covers all output-bus bits.
	OutputMask = 1<<OutputBusWidth - 1

	// MaxWaitDuration is the longest delay a single WAIT can encode.
	MaxWaitDuration = 1<<30 - 1

	// MaxThreshold is the largest count threshold a JUMP can encode.
	MaxThreshold = 1<<16 - 1

	// MaxAddress is the highest RAM address a JUMP can target.
	MaxAddress = 1<<10 - 1

	maxCounterChannel = 1<<3 - 1
)

// Encoding failures. All of them indicate either a hardware capacity
// limit or an inconsistency the compiler should have caught earlier.
var (
	ErrOverflow         = errors.New("field value exceeds field width")
	ErrUnmaskedBits     = errors.New("set value contains bits outside its mask")
	ErrAddressUnset     = errors.New("instruction address not assigned")
	ErrUnregisteredJump = errors.New("jump not registered with its destination")
)

// Instruction is one scheduled IPU instruction.
type Instruction interface {
	Op() Opcode
	Meta() *Meta

	// Encode produces the 32-bit instruction word. It fails when a
	// field overflows or, for jumps, when the destination address has
	// not been resolved.
	Encode() (uint32, error)
}

// Meta holds the scheduling state shared by all instruction kinds.
type Meta struct {
	// Tick is the FPGA tick this instruction is scheduled at. Placement
	// may move it; after finalization ticks are unique and strictly
	// increasing with address.
	Tick int

	// Block names the instruction block this instruction belongs to,
	// or is empty for a free-standing instruction. Blocks stay
	// contiguous during placement.
	Block string

	// ReachedBy lists every jump that targets this instruction.
	ReachedBy []*Jump

	addr    int
	addrSet bool
}

// Meta returns m itself so concrete types satisfy Instruction by embedding.
func (m *Meta) Meta() *Meta { return m }

// meta is the name the instruction kinds embed Meta under. Embedding
// the exported name would make the field shadow the promoted Meta
// accessor and break the Instruction interface.
type meta = Meta

// SetAddress records the zero-based position in the final instruction
// stream. Address converts to the 1-based RAM addressing.
func (m *Meta) SetAddress(i int) {
	m.addr = i
	m.addrSet = true
}

// Address returns the resolved 1-based RAM address.
func (m *Meta) Address() (int, error) {
	if !m.addrSet {
		return 0, ErrAddressUnset
	}
	return m.addr + RAMBase, nil
}

// Wait keeps the output bus unchanged for Duration ticks.
type Wait struct {
	meta
	Duration int
}

// NewWait builds a WAIT of the given duration starting at tick.
func NewWait(tick, duration int) (*Wait, error) {
	if duration < 1 {
		return nil, fmt.Errorf("wait duration %d: must be at least 1", duration)
	}
	if duration > MaxWaitDuration {
		return nil, fmt.Errorf("wait duration %d: %w", duration, ErrOverflow)
	}
	return &Wait{meta: meta{Tick: tick}, Duration: duration}, nil
}

func (w *Wait) Op() Opcode { return OpWait }

func (w *Wait) Encode() (uint32, error) {
	if w.Duration < 1 || w.Duration > MaxWaitDuration {
		return 0, fmt.Errorf("wait duration %d: %w", w.Duration, ErrOverflow)
	}
	return uint32(OpWait)<<opcodeShift | uint32(w.Duration), nil
}

// End terminates the sequence. The IPU resets its program counter and
// either restarts for the next shot or idles.
type End struct {
	meta
}

// NewEnd builds the END instruction at tick, optionally tagged with the
// block of the jump chain it belongs to.
func NewEnd(tick int, block string) *End {
	return &End{meta: meta{Tick: tick, Block: block}}
}

func (e *End) Op() Opcode { return OpEnd }

func (e *End) Encode() (uint32, error) {
	return uint32(OpEnd) << opcodeShift, nil
}

// Decoded is the field-level view of a 32-bit instruction word, used for
// round-trip checks and disassembly.
type Decoded struct {
	Op          Opcode
	Duration    int    // WAIT
	Value       uint32 // SET, physical bus value
	Always      bool   // JUMP
	Channel     int    // JUMP
	Threshold   uint32 // JUMP
	Destination int    // JUMP, 1-based RAM address
}

// Decode splits an instruction word into its fields.
func Decode(word uint32) Decoded {
	d := Decoded{Op: Opcode(word >> opcodeShift)}
	switch d.Op {
	case OpWait:
		d.Duration = int(word & payloadMask)
	case OpSet:
		d.Value = word & OutputMask
	case OpJump:
		d.Always = word&(1<<29) != 0
		d.Channel = int(word >> 26 & maxCounterChannel)
		d.Threshold = word >> 10 & MaxThreshold
		d.Destination = int(word & MaxAddress)
	}
	return d
}
