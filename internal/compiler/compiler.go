package compiler

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/iontrap/fecs/internal/instr"
	"github.com/iontrap/fecs/internal/ledger"
	"github.com/iontrap/fecs/internal/seq"
)

// DefaultControlRegisterHighTime is the length of a control-register
// pulse in ticks, long enough for the acquisition electronics to latch
// the value.
const DefaultControlRegisterHighTime = 350

// DefaultMaxJumpConditions bounds the length of a jump's threshold
// chain and with it the length of its instruction block.
const DefaultMaxJumpConditions = 10

// Options configure a Compiler.
type Options struct {
	// Truncate shortens the sequence to its latest time point instead
	// of compiling the full declared length.
	Truncate bool

	// ControlRegisterHighTime is the control-register pulse length in
	// ticks. Zero selects the default.
	ControlRegisterHighTime int

	// MaxJumpConditions caps the compressed threshold chain of a
	// single jump. Zero selects the default. Raising it past the
	// default may produce chains the hardware cannot evaluate in time.
	MaxJumpConditions int

	// Logger receives compilation diagnostics. Nil selects
	// slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ControlRegisterHighTime <= 0 {
		o.ControlRegisterHighTime = DefaultControlRegisterHighTime
	}
	if o.MaxJumpConditions <= 0 {
		o.MaxJumpConditions = DefaultMaxJumpConditions
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Compiler compiles the variants of one verified sequence. A Compiler
// holds no mutable compile state, so one instance may compile variants
// concurrently.
type Compiler struct {
	opts     Options
	sequence *seq.Sequence
}

// New verifies the sequence and returns a compiler for it. After New
// succeeds the sequence is trusted: compilation treats any remaining
// inconsistency as an internal error.
func New(sequence *seq.Sequence, opts Options) (*Compiler, error) {
	opts = opts.withDefaults()
	if err := sequence.VerifyWith(opts.Logger); err != nil {
		return nil, fmt.Errorf("invalid sequence: %w", err)
	}
	return &Compiler{opts: opts, sequence: sequence}, nil
}

// Compile emits the instruction words for one variant, together with a
// report of the inputs that produced them.
func (c *Compiler) Compile(variant int) ([]uint32, *Report, error) {
	p, err := c.newPass(variant)
	if err != nil {
		return nil, nil, err
	}
	if err := p.populate(); err != nil {
		return nil, nil, err
	}
	if err := p.complete(); err != nil {
		return nil, nil, err
	}

	p.ledger.SetPolarity(c.sequence.Hardware.PolarityMask())
	if err := p.ledger.AssignAddresses(); err != nil {
		return nil, nil, err
	}
	words, err := p.ledger.Encode()
	if err != nil {
		return nil, nil, err
	}
	report := p.report(words)
	return words, report, nil
}

// window is a quantized output window: the bus channel is high for
// ticks in [start, end).
type window struct {
	start, end int
	channel    int
}

// pass is the mutable state of one Compile call: the working ledger,
// the destination-id counter and the jump tick map, all discarded when
// the words are emitted.
type pass struct {
	c      *Compiler
	logger *slog.Logger

	variant int
	values  seq.Values
	length  int // ticks, terminator at length-1

	ledger  *ledger.Ledger
	windows []window

	destinationID int
	jumpTicks     map[int]scheduledJump

	terminator *instr.End
}

type scheduledJump struct {
	jump    *seq.Jump
	channel int
	time    float64 // un-quantized sequence time
}

func (c *Compiler) newPass(variant int) (*pass, error) {
	values, err := c.sequence.ControlValues(variant)
	if err != nil {
		return nil, err
	}
	length := c.sequence.Length
	if c.opts.Truncate {
		length, err = c.sequence.LatestTimePoint(variant, c.opts.Logger)
		if err != nil {
			return nil, err
		}
		c.opts.Logger.Info("truncated sequence",
			"sequence", c.sequence.Name, "variant", variant, "length", length)
	}
	p := &pass{
		c:         c,
		logger:    c.opts.Logger.With("sequence", c.sequence.Name, "variant", variant),
		variant:   variant,
		values:    values,
		length:    fpgaTime(length, c.sequence.Hardware.DelayUnit),
		ledger:    ledger.New(),
		jumpTicks: make(map[int]scheduledJump),
	}
	return p, nil
}

// fpgaTime quantizes a sequence time in microseconds to clock ticks,
// rounding half to even.
func fpgaTime(sequenceTime, delayUnit float64) int {
	return int(math.RoundToEven(sequenceTime / delayUnit))
}

func (p *pass) fpgaTime(sequenceTime float64) int {
	return fpgaTime(sequenceTime, p.c.sequence.Hardware.DelayUnit)
}

func (p *pass) register() *seq.ControlRegister {
	return &p.c.sequence.Hardware.Register
}

// populate builds the rough instruction list: start marker, terminator,
// window edges and expanded jumps, compressed along the way.
func (p *pass) populate() error {
	if err := p.setUp(); err != nil {
		return err
	}
	if err := p.addTimeWindows(); err != nil {
		return err
	}
	p.logger.Debug("added time windows", "instructions", p.ledger.Len())
	if err := p.ledger.Compress(p.register().Mask()); err != nil {
		return err
	}
	if err := p.addJumps(); err != nil {
		return err
	}
	p.logger.Debug("added jumps", "instructions", p.ledger.Len())
	if err := p.ledger.Compress(p.register().Mask()); err != nil {
		return err
	}
	p.ledger.Sort()
	return nil
}

func (p *pass) setUp() error {
	if !p.c.sequence.Static() {
		// Raise the control register at tick 0 so the acquisition side
		// sees a defined start marker.
		id, err := p.nextDestinationID()
		if err != nil {
			return err
		}
		write, reset, err := p.controlWrite(0, id, ledger.StartBlock)
		if err != nil {
			return err
		}
		p.ledger.Add(write, reset)
	} else {
		p.logger.Warn("no jumps in sequence, control register unused")
	}

	p.terminator = instr.NewEnd(p.length-1, ledger.EndBlock)
	p.ledger.Add(p.terminator)
	return nil
}

// nextDestinationID allocates a fresh destination id. Ids are bounded
// by the control register width since they must be representable on it.
func (p *pass) nextDestinationID() (int, error) {
	p.destinationID++
	if p.destinationID >= 1<<p.register().Width {
		return 0, capacityError("",
			"destination id %d exceeds control register width %d",
			p.destinationID, p.register().Width)
	}
	return p.destinationID, nil
}

// controlWrite builds the two SETs of a control-register pulse: write
// the Gray-coded id, then clear it ControlRegisterHighTime ticks later.
func (p *pass) controlWrite(tick, id int, block string) (write, reset *instr.Set, err error) {
	gray := uint32(id ^ id>>1)
	state, err := p.register().ValueToState(gray)
	if err != nil {
		return nil, nil, err
	}
	write, err = instr.NewSetBus(tick, state, p.register().Mask())
	if err != nil {
		return nil, nil, err
	}
	low, err := p.register().ValueToState(0)
	if err != nil {
		return nil, nil, err
	}
	reset, err = instr.NewSetBus(tick+p.c.opts.ControlRegisterHighTime, low, p.register().Mask())
	if err != nil {
		return nil, nil, err
	}
	write.Block = block
	reset.Block = block
	return write, reset, nil
}

// addTimeWindows emits the on/off SET pair for every compiled window.
// Output channels drive their own bus bit; control channels drive the
// gate bit of their pulse counter.
func (p *pass) addTimeWindows() error {
	hardware := p.c.sequence.Hardware

	add := func(channelName string, channelID int, w *seq.TimeWindow) error {
		startTime, endTime, err := w.Times(p.values)
		if err != nil {
			return err
		}
		start := p.fpgaTime(startTime)
		end := p.fpgaTime(endTime)
		if end >= p.terminator.Tick {
			end = p.terminator.Tick - 1
			p.logger.Warn("truncated window to fit within sequence",
				"window", w.Name, "channel", channelName)
		}
		if start == end {
			p.logger.Warn("window has zero length after quantization, skipping",
				"window", w.Name, "channel", channelName)
			return nil
		}
		on, err := instr.NewSetChannel(start, channelID, true)
		if err != nil {
			return err
		}
		off, err := instr.NewSetChannel(end, channelID, false)
		if err != nil {
			return err
		}
		p.ledger.Add(on, off)
		p.windows = append(p.windows, window{start: start, end: end, channel: channelID})
		return nil
	}

	for _, channel := range p.c.sequence.Outputs {
		hw, ok := hardware.Output(channel.Name)
		if !ok {
			return internalError("output channel %q has no hardware output", channel.Name)
		}
		for _, w := range channel.Windows {
			if err := add(channel.Name, hw.ID, w); err != nil {
				return err
			}
		}
	}
	for _, channel := range p.c.sequence.Controls {
		hw, ok := hardware.PulseCounter(channel.Name)
		if !ok {
			return internalError("control channel %q has no hardware pulse counter", channel.Name)
		}
		for _, w := range channel.Windows {
			if err := add(channel.Name, hw.Gate, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// state returns the logical bus value at tick: the OR of every window
// active there.
func (p *pass) state(tick int) uint32 {
	var value uint32
	for _, w := range p.windows {
		if w.start <= tick && tick < w.end {
			value |= 1 << w.channel
		}
	}
	return value
}

// complete turns the rough list into the final stream: initial state,
// inheritance, block placement, wait filling and a final compression
// that must be a no-op.
func (p *pass) complete() error {
	if err := p.addInitialState(); err != nil {
		return err
	}
	controlMask := p.register().Mask()
	if err := p.ledger.Compress(controlMask); err != nil {
		return err
	}
	if err := p.ledger.Inherit(p.register().NegativeMask()); err != nil {
		return err
	}
	if err := p.ledger.Compress(controlMask); err != nil {
		return err
	}
	if err := p.ledger.PlaceBlocks(controlMask); err != nil {
		return err
	}
	if err := p.ledger.FillWaits(); err != nil {
		return err
	}

	// Compression of a gap-filled one-per-tick list must change
	// nothing; if it does, an earlier pass broke its contract.
	before := p.ledger.Len()
	if err := p.ledger.Compress(controlMask); err != nil {
		return err
	}
	if after := p.ledger.Len(); after != before {
		return internalError(
			"final list compressed from %d to %d instructions", before, after)
	}
	return nil
}

// addInitialState pins the full bus value at tick 0 so inheritance has
// a defined starting point for every channel.
func (p *pass) addInitialState() error {
	initial, err := instr.NewSetBus(0, p.state(0), p.register().NegativeMask())
	if err != nil {
		return err
	}
	p.ledger.Add(initial)
	return nil
}

// report captures the inputs that produced the words.
func (p *pass) report(words []uint32) *Report {
	return &Report{
		Sequence:                p.c.sequence.Name,
		Variant:                 p.variant,
		CompiledAt:              time.Now().UTC(),
		Truncate:                p.c.opts.Truncate,
		ControlRegisterHighTime: p.c.opts.ControlRegisterHighTime,
		MaxJumpConditions:       p.c.opts.MaxJumpConditions,
		DelayUnit:               p.c.sequence.Hardware.DelayUnit,
		LengthTicks:             p.length,
		ControlValues:           p.values,
		ContainsJumps:           !p.c.sequence.Static(),
		Words:                   words,
	}
}
