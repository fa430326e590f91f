package ledger

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/iontrap/fecs/internal/instr"
)

// blockRange is the contiguous tick range one block occupies, plus the
// anchor deciding on which side displaced instructions leave the block.
type blockRange struct {
	name       string
	start, end int

	// anchor is the block's last tick excluding the trailing
	// control-register write/reset pair. Free-standing instructions
	// scheduled at or after the anchor are displaced past the block,
	// earlier ones before it.
	anchor int
}

// PlaceBlocks resolves all time collisions: block members keep their
// relative schedule but whole blocks are shifted apart, and
// free-standing instructions are moved into the nearest free tick.
// After PlaceBlocks every instruction owns its tick exclusively.
// controlMask identifies the control-register SETs trailing a block.
func (l *Ledger) PlaceBlocks(controlMask uint32) error {
	l.Sort()
	if len(l.entries) == 0 {
		return fmt.Errorf("empty instruction list: %w", ErrInternal)
	}

	byBlock := make(map[string][]instr.Instruction)
	var blockNames []string
	var free []instr.Instruction
	for _, ins := range l.entries {
		block := ins.Meta().Block
		if block == "" {
			free = append(free, ins)
			continue
		}
		if _, seen := byBlock[block]; !seen {
			blockNames = append(blockNames, block)
		}
		byBlock[block] = append(byBlock[block], ins)
	}

	ranges := make([]*blockRange, 0, len(blockNames))
	for _, name := range blockNames {
		members := byBlock[name]
		ranges = append(ranges, &blockRange{
			name:   name,
			start:  members[0].Meta().Tick,
			end:    members[len(members)-1].Meta().Tick,
			anchor: blockAnchor(members, controlMask),
		})
	}
	sort.Slice(ranges, func(a, b int) bool { return ranges[a].start < ranges[b].start })

	// Shift overlapping blocks apart, later block moves.
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if cur.start > prev.end {
			continue
		}
		if cur.name == EndBlock {
			return fmt.Errorf("placing block %q: %w", cur.name, ErrTooShort)
		}
		offset := prev.end - cur.start + 1
		slog.Warn("shifting block to make room for previous block",
			"block", cur.name, "previous", prev.name, "offset", offset)
		cur.start += offset
		cur.end += offset
		cur.anchor += offset
		for _, ins := range byBlock[cur.name] {
			ins.Meta().Tick += offset
		}
	}

	last := l.entries[len(l.entries)-1].Meta().Tick
	if len(ranges) > 0 {
		if end := ranges[len(ranges)-1].end; end > last {
			last = end
		}
	}
	p := &placer{slots: make([]instr.Instruction, last+1), ranges: ranges}

	for _, name := range blockNames {
		for _, ins := range byBlock[name] {
			tick := ins.Meta().Tick
			if p.slots[tick] != nil {
				return fmt.Errorf("blocks overlap at tick %d after shifting, "+
					"block %q has non-unique times: %w", tick, name, ErrInternal)
			}
			p.slots[tick] = ins
		}
	}

	// Latest first, so displacing earlier never runs over an already
	// placed later instruction's original slot.
	sort.SliceStable(free, func(a, b int) bool {
		return free[a].Meta().Tick > free[b].Meta().Tick
	})
	for _, ins := range free {
		if err := p.place(ins); err != nil {
			return err
		}
	}

	placed := make([]instr.Instruction, 0, len(l.entries))
	for _, ins := range p.slots {
		if ins != nil {
			placed = append(placed, ins)
		}
	}
	l.snapshot()
	l.entries = placed
	return nil
}

// blockAnchor returns the block's last member tick, skipping the
// trailing control-register pair. A block holding only control SETs
// (the start marker) anchors at its first tick.
func blockAnchor(members []instr.Instruction, controlMask uint32) int {
	for i := len(members) - 1; i >= 0; i-- {
		set, ok := members[i].(*instr.Set)
		if ok && set.Mask != 0 && set.Mask&^controlMask == 0 {
			continue
		}
		return members[i].Meta().Tick
	}
	return members[0].Meta().Tick
}

// placer assigns free-standing instructions into a one-slot-per-tick
// array, pushing collisions aside.
type placer struct {
	slots  []instr.Instruction
	ranges []*blockRange
}

func (p *placer) rangeAt(tick int) *blockRange {
	for _, r := range p.ranges {
		if r.start <= tick && tick <= r.end {
			return r
		}
	}
	return nil
}

// place finds a tick for ins. The walk moves one tick at a time and the
// slot array is finite, so the explicit budget below can only trip on a
// placer bug, not on any input.
func (p *placer) place(ins instr.Instruction) error {
	tick := ins.Meta().Tick
	toLater := false
	outOfBlock := false

	for budget := 4 * len(p.slots); budget > 0; budget-- {
		if tick < 0 || tick >= len(p.slots) {
			return fmt.Errorf("instruction pushed off the sequence at tick %d: %w", tick, ErrNoRoom)
		}

		if r := p.rangeAt(tick); r != nil {
			if outOfBlock {
				return fmt.Errorf("displaced instruction ran into block %q: %w", r.name, ErrNoRoom)
			}
			slog.Warn("instruction scheduled within a block, displacing",
				"block", r.name, "tick", tick, "op", ins.Op().String())
			if tick >= r.anchor {
				tick = r.end + 1
				toLater = true
			} else {
				tick = r.start - 1
				toLater = false
			}
			outOfBlock = true
			continue
		}

		occupant := p.slots[tick]
		if occupant == nil {
			p.slots[tick] = ins
			ins.Meta().Tick = tick
			return nil
		}

		if outOfBlock {
			// Everything in the way is pushed further in the same
			// direction so the original order survives.
			p.slots[tick] = ins
			ins.Meta().Tick = tick
			ins = occupant
		} else if yields(occupant, ins, toLater) {
			p.slots[tick] = ins
			ins.Meta().Tick = tick
			slog.Warn("shifting instruction to resolve tick collision",
				"tick", tick, "op", occupant.Op().String(), "later", toLater)
			ins = occupant
		}
		if toLater {
			tick++
		} else {
			tick--
		}
	}
	return fmt.Errorf("placement did not converge: %w", ErrInternal)
}

// yields reports whether the occupant gives up its slot to the incoming
// instruction. At a shared tick the final time order must be SET, JUMP,
// END, so SETs are pushed to earlier ticks and ENDs to later ones.
func yields(occupant, incoming instr.Instruction, toLater bool) bool {
	if toLater {
		return opcodeRank(occupant.Op()) >= opcodeRank(incoming.Op())
	}
	return opcodeRank(occupant.Op()) <= opcodeRank(incoming.Op())
}
