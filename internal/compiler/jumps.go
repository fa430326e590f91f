package compiler

import (
	"sort"

	"github.com/iontrap/fecs/internal/instr"
	"github.com/iontrap/fecs/internal/seq"
)

// addJumps schedules every jump onto a unique tick and expands it into
// its instruction chain.
func (p *pass) addJumps() error {
	for _, channel := range p.c.sequence.Controls {
		hw, ok := p.c.sequence.Hardware.PulseCounter(channel.Name)
		if !ok {
			return internalError("control channel %q has no hardware pulse counter", channel.Name)
		}
		for _, j := range channel.Jumps {
			sequenceTime, err := j.SequenceTime(p.values)
			if err != nil {
				return err
			}
			if err := p.scheduleJump(j, hw.ID, sequenceTime); err != nil {
				return err
			}
		}
	}
	// Destination ids are handed out in processing order, so the ticks
	// must be walked in a fixed order to keep the output reproducible.
	ticks := make([]int, 0, len(p.jumpTicks))
	for tick := range p.jumpTicks {
		ticks = append(ticks, tick)
	}
	sort.Ints(ticks)
	for _, tick := range ticks {
		scheduled := p.jumpTicks[tick]
		if err := p.processJump(scheduled.jump, tick, scheduled.channel); err != nil {
			return err
		}
	}
	return nil
}

// scheduleJump claims a tick for the jump. Jumps on different channels
// may quantize to the same tick; the jump with the earlier un-quantized
// sequence time is moved one tick earlier until a free tick is found.
// Verification guarantees distinct sequence times, so the order is
// always decidable.
func (p *pass) scheduleJump(j *seq.Jump, channel int, sequenceTime float64) error {
	entry := scheduledJump{jump: j, channel: channel, time: sequenceTime}
	tick := p.fpgaTime(sequenceTime)
	for {
		existing, ok := p.jumpTicks[tick]
		if !ok {
			p.jumpTicks[tick] = entry
			return nil
		}
		if entry.time == existing.time {
			return internalError(
				"jumps %q and %q scheduled at the same sequence time %0.4f, "+
					"verification should have caught this",
				entry.jump.Name, existing.jump.Name, entry.time)
		}
		if entry.time > existing.time {
			p.jumpTicks[tick] = entry
			entry = existing
		}
		p.logger.Warn("shifting jump to keep it before a later jump",
			"jump", entry.jump.Name, "tick", tick-1)
		tick--
		if tick < 0 {
			return capacityError(entry.jump.Name,
				"no tick left before the sequence start to place the jump")
		}
	}
}

// processJump expands one jump into instructions. A single always-taken
// condition becomes a free-standing goto; anything longer becomes a
// block of consecutive conditional jumps ending exactly at the jump's
// tick, evaluated highest threshold first.
func (p *pass) processJump(j *seq.Jump, tick int, channel int) error {
	chain, err := j.CompressedChain()
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return internalError("jump %q compressed to an empty chain", j.Name)
	}
	if len(chain) > p.c.opts.MaxJumpConditions {
		return capacityError(j.Name,
			"%d conditions exceed the maximum of %d the hardware can evaluate per jump",
			len(chain), p.c.opts.MaxJumpConditions)
	}

	if len(chain) == 1 {
		return p.addAlwaysJump(j, tick, chain[0].Target)
	}

	// Ascending threshold order: index i runs from the chain tail, so
	// condition i lands at tick-i and the highest threshold executes
	// first.
	ascending := make([]seq.ChainEntry, len(chain))
	for i, entry := range chain {
		ascending[len(chain)-1-i] = entry
	}

	// A passing condition anywhere in the chain needs a fresh
	// control-register pulse after the jump so a downstream observer
	// can tell "fell through" from "jumped".
	var passWrite *instr.Set
	for _, entry := range ascending {
		if _, ok := entry.Target.(*seq.Pass); ok {
			id, err := p.nextDestinationID()
			if err != nil {
				return err
			}
			write, reset, err := p.controlWrite(tick+1, id, j.Name)
			if err != nil {
				return err
			}
			p.ledger.Add(write, reset)
			passWrite = write
			break
		}
	}

	// A passing else needs no jump of its own: when the second-to-last
	// condition is not taken, execution falls through to the pass
	// marker by itself.
	if _, ok := ascending[0].Target.(*seq.Pass); ok {
		ascending = ascending[1:]
	}

	var block []instr.Instruction
	for i, entry := range ascending {
		at := tick - i
		instructions, err := p.chainInstruction(j, at, channel, entry, passWrite)
		if err != nil {
			return err
		}
		block = append(block, instructions...)
	}
	p.ledger.Add(block...)
	return nil
}

// chainInstruction emits the instruction(s) for one chain entry. An
// entry at threshold 0 is always taken and becomes a goto; the encoding
// never needs a "count >= 0" comparison.
func (p *pass) chainInstruction(j *seq.Jump, tick, channel int, entry seq.ChainEntry, passWrite *instr.Set) ([]instr.Instruction, error) {
	always := entry.Threshold == 0
	jumpTo := func(dest instr.Instruction) (instr.Instruction, error) {
		if always {
			return instr.NewGoto(tick, dest, j.Name), nil
		}
		return instr.NewConditional(tick, channel, uint32(entry.Threshold), dest, j.Name)
	}

	switch target := entry.Target.(type) {
	case *seq.Pass:
		if passWrite == nil {
			return nil, internalError("jump %q has a passing condition without a pass marker", j.Name)
		}
		jump, err := jumpTo(passWrite)
		if err != nil {
			return nil, err
		}
		return []instr.Instruction{jump}, nil

	case *seq.Terminator:
		// Terminating branches share the sequence's single END.
		jump, err := jumpTo(p.terminator)
		if err != nil {
			return nil, err
		}
		return []instr.Instruction{jump}, nil

	case *seq.Destination:
		write, reset, state, err := p.destinationInstructions(target)
		if err != nil {
			return nil, err
		}
		jump, err := jumpTo(write)
		if err != nil {
			return nil, err
		}
		return []instr.Instruction{write, reset, state, jump}, nil
	}
	return nil, internalError("jump %q has an unknown target type %T", j.Name, entry.Target)
}

// addAlwaysJump handles a jump whose whole chain collapsed to one
// entry: a plain goto or a direct termination, free-standing rather
// than a block.
func (p *pass) addAlwaysJump(j *seq.Jump, tick int, target seq.Target) error {
	switch target := target.(type) {
	case *seq.Pass:
		p.logger.Warn("jump always passes, skipping", "jump", j.Name)
		return nil

	case *seq.Terminator:
		p.ledger.Add(instr.NewGoto(tick, p.terminator, ""))
		return nil

	case *seq.Destination:
		write, reset, state, err := p.destinationInstructions(target)
		if err != nil {
			return err
		}
		p.ledger.Add(write, reset, state, instr.NewGoto(tick, write, ""))
		return nil
	}
	return internalError("jump %q has an unknown target type %T", j.Name, target)
}

// destinationInstructions synthesizes the landing site of a jump: a
// control-register pulse carrying a fresh destination id, plus a SET
// restoring the full bus state at the destination's own tick. Jumps
// point at the control write.
func (p *pass) destinationInstructions(d *seq.Destination) (write, reset, state *instr.Set, err error) {
	destinationTime, err := d.Ref.Time(p.values)
	if err != nil {
		return nil, nil, nil, err
	}
	tick := p.fpgaTime(destinationTime)

	id, err := p.nextDestinationID()
	if err != nil {
		return nil, nil, nil, err
	}
	write, reset, err = p.controlWrite(tick, id, "")
	if err != nil {
		return nil, nil, nil, err
	}
	state, err = instr.NewSetBus(tick, p.state(tick), p.register().NegativeMask())
	if err != nil {
		return nil, nil, nil, err
	}
	return write, reset, state, nil
}
