// Package jit is the embedded fallback the engine uses for addresses the
// static analyzer never charted: RAM. RAM can be overwritten at any time
// (self-modifying code, a routine copied from ROM and patched per-call),
// so instead of building and caching a basic block there, the engine
// decodes and executes exactly one instruction per call, every call,
// straight against the bus. It reuses the same instruction semantics as
// the recompiled path by handing transpile a synthetic one-instruction
// block; nothing about an opcode's behavior is reimplemented here.
package jit

import (
	"gbrecompiler/block"
	"gbrecompiler/bus"
	"gbrecompiler/config"
	"gbrecompiler/cpu"
	"gbrecompiler/decode"
	"gbrecompiler/transpile"
)

// Step decodes and executes exactly one instruction at s.PC, returning
// the cycles it cost. s.PC is left wherever that instruction sets it
// (the next sequential address, a jump/call target, a return address,
// ...), exactly as it would be inside a recompiled block.
func Step(s *cpu.State, b bus.Bus, quirks config.Quirks, missing *transpile.MissingSet) int {
	ins := decode.Decode(b, s.PC)
	blk := &block.BasicBlock{Address: s.PC, Instructions: []decode.Instruction{ins}}
	compiled := transpile.Compile(blk, b, transpile.Options{HaltBugEnabled: quirks.HaltBug}, missing)
	return compiled.Execute(s, b)
}
