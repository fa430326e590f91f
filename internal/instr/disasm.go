package instr

import (
	"fmt"
	"strings"
)

// Disassemble renders a compiled instruction stream as a human-readable
// listing: 1-based address, mnemonic, the full binary word, and the
// payload argument relevant to the opcode.
func Disassemble(words []uint32) string {
	var b strings.Builder
	for i, word := range words {
		d := Decode(word)
		fmt.Fprintf(&b, "%4d %-5s 0b%032b", i+RAMBase, d.Op, word)
		switch d.Op {
		case OpWait:
			fmt.Fprintf(&b, " %d", d.Duration)
		case OpSet:
			fmt.Fprintf(&b, " %#x", d.Value)
		case OpJump:
			if d.Always {
				fmt.Fprintf(&b, " ->%d", d.Destination)
			} else {
				fmt.Fprintf(&b, " c%d>=%d ->%d", d.Channel, d.Threshold, d.Destination)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
