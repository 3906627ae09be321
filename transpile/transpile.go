// Package transpile lowers a decoded basic block into a compiled block: a
// slice of closures, one per instruction, that perform the instruction's
// semantics directly against a *cpu.State and a bus.Bus. This is the "typed
// IR interpreted via dispatch" approach (closures over already-classified
// operands) rather than textual code generation — there is no intermediate
// text and nothing is ever handed to "go build" at runtime.
package transpile

import (
	"gbrecompiler/block"
	"gbrecompiler/bus"
	"gbrecompiler/cpu"
	"gbrecompiler/decode"
	"gbrecompiler/liveness"
)

// step performs one instruction's effect and returns the cycles it
// actually cost (conditional instructions report the taken or not-taken
// cost depending on the outcome).
type step func(s *cpu.State, b bus.Bus) int

// CompiledBlock is a basic block lowered to directly-executable steps.
type CompiledBlock struct {
	Address uint16
	Steps   []step
}

// Execute runs every step in order and returns the total cycles consumed.
// EI's one-instruction delay is resolved here, once per step, rather than
// inside any individual instruction's closure, since it is a property of
// the instruction stream as a whole and not of any single opcode.
func (cb *CompiledBlock) Execute(s *cpu.State, b bus.Bus) int {
	total := 0
	for _, st := range cb.Steps {
		total += st(s, b)
		if s.EIDelay > 0 {
			s.EIDelay--
			if s.EIDelay == 0 {
				s.IME = true
			}
		}
	}
	return total
}

// Options controls quirk-sensitive codegen decisions.
type Options struct {
	// HaltBugEnabled mirrors config.Quirks.HaltBug: when true, HALT
	// executed with IME=false and a pending interrupt leaves PC
	// pointing back at the HALT opcode instead of past it, reproducing
	// the console's documented HALT bug.
	HaltBugEnabled bool
}

// Compile lowers every instruction in blk into a CompiledBlock. Dead
// writes (per liveness.DeadWrites) are elided down to a cycle-accurate
// no-op; ADD A,r / XOR A,A folds (per liveness.ConstantFold) replace the
// original opcode's closure with a direct constant load.
func Compile(blk *block.BasicBlock, b bus.Bus, opts Options, missing *MissingSet) *CompiledBlock {
	dead := liveness.DeadWrites(blk.Instructions)
	folds := liveness.ConstantFold(blk.Instructions, b)

	foldAt := make(map[int]liveness.Fold, len(folds))
	for _, f := range folds {
		foldAt[f.Index] = f
	}

	cb := &CompiledBlock{Address: blk.Address}
	for i, ins := range blk.Instructions {
		if f, ok := foldAt[i]; ok {
			cb.Steps = append(cb.Steps, foldedStep(ins, f))
			continue
		}

		st := compileOne(ins, b, opts, missing)
		if dead[i] {
			st = elideRegisterEffect(ins, st)
		}
		cb.Steps = append(cb.Steps, st)
	}
	return cb
}

// foldedStep replaces an ADD A,r/XOR A,A instruction with a direct
// constant assignment to A, still charging the original instruction's
// cycle cost and still advancing PC exactly as the real opcode would.
// Flags are recomputed from the fold, not assumed: XOR A,A always clears
// H and C (spec.md §4.4), while ADD A,r's H and C depend on the two
// folded operands and were precomputed onto f by liveness.ConstantFold.
func foldedStep(ins decode.Instruction, f liveness.Fold) step {
	next := ins.NextAddress()
	cycles := ins.Cycles.Base
	value := f.Value
	half, carry := f.Half, f.Carry
	if f.Kind == liveness.FoldXorSelf {
		half, carry = false, false
	}
	return func(s *cpu.State, b bus.Bus) int {
		s.A = value
		s.SetZero(value == 0)
		s.SetSub(false)
		s.SetHalf(half)
		s.SetCarry(carry)
		s.PC = next
		return cycles
	}
}

// elideRegisterEffect replaces a step whose write is provably dead (per
// liveness.DeadWrites) with one that only advances PC and charges the
// original instruction's cycle cost. No memory write is ever elided:
// LD (HL),r and RES/SET b,(HL) model no register write, and every other
// opcode that writes memory uses liveness's all-variable fallback, which
// DeadWrites never flags (see effects.go). An elided LD r,(HL), ALU A,(HL)
// or BIT b,(HL) does skip its bus read.
func elideRegisterEffect(ins decode.Instruction, _ step) step {
	return fixedPC(ins.NextAddress(), ins.Cycles.Base)
}

// readR8 resolves one of the eight 3-bit register-field slots (B,C,D,E,H,L,
// (HL),A) against state/bus, matching opcode.RegIndex's ordering.
func readR8(s *cpu.State, b bus.Bus, idx byte) byte {
	if idx == 6 {
		return b.Read8(s.HL())
	}
	return s.Get8(gridToReg8(idx))
}

func writeR8(s *cpu.State, b bus.Bus, idx byte, v byte) {
	if idx == 6 {
		b.Write8(s.HL(), v)
		return
	}
	s.Set8(gridToReg8(idx), v)
}

func gridToReg8(idx byte) cpu.Reg8 {
	switch idx {
	case 0:
		return cpu.RegB
	case 1:
		return cpu.RegC
	case 2:
		return cpu.RegD
	case 3:
		return cpu.RegE
	case 4:
		return cpu.RegH
	case 5:
		return cpu.RegL
	default:
		return cpu.RegA
	}
}

// condIndex extracts the 2-bit condition field (NZ,Z,NC,C) shared by the
// JR cc, JP cc, CALL cc, and RET cc opcode rows.
func condIndex(op byte) byte { return (op >> 3) & 0x03 }

func condTrue(s *cpu.State, idx byte) bool {
	switch idx {
	case 0:
		return !s.Zero()
	case 1:
		return s.Zero()
	case 2:
		return !s.Carry()
	default:
		return s.Carry()
	}
}
