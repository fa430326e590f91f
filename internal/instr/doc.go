// Package instr defines the four instruction kinds understood by the
// pulse-sequencer IPU and their bit-exact 32-bit encoding.
//
// An instruction word is laid out MSB first:
//
//	[31:30] opcode (00=WAIT, 01=JUMP, 10=SET, 11=END)
//	WAIT: [29:0]  delay in FPGA ticks (>= 1)
//	SET:  [23:0]  physical output-bus value, [29:24] unused
//	JUMP: [29]    always-jump flag
//	      [28:26] counter channel id
//	      [25:10] 16-bit count threshold
//	      [9:0]   destination RAM address (1-based)
//	END:  payload unused
//
// Instructions carry a scheduled tick and an optional block tag while they
// move through the compiler; the RAM address is resolved last, during
// finalization. Encoding fails rather than truncating when a field value
// exceeds its width.
package instr
