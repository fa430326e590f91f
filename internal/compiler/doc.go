// Package compiler turns a verified sequence variant into the 32-bit
// instruction stream executed by the instruction-parsing unit.
//
// Compilation is a two-pass pipeline: build the rough instruction list
// from time windows and jumps, compress it, place instruction blocks so
// every tick is owned by exactly one instruction, then fill the gaps
// with waits and assign addresses. The pipeline is correct rather than
// minimal: it never emits overlapping instructions, but it does not try
// to minimize the instruction count.
package compiler
