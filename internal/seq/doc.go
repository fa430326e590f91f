// Package seq models a pulse-sequencer experiment description: named
// output, counter, and control channels carrying time windows and jumps,
// a hardware configuration mapping logical channels to physical ones,
// and control variables that give the sequence a different shape per
// variant.
//
// A Sequence is read-only input to the compiler. Verify proves that a
// sequence is internally consistent for every variant before any
// instruction is emitted: names resolve, windows fit and do not
// overlap, jump conditions cover the count space without overlap, and
// the jump graph can reach a terminating instruction. All verification
// failures are *Error values attributing the problem to the offending
// entity.
package seq
