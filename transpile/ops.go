package transpile

import (
	"gbrecompiler/alu"
	"gbrecompiler/bus"
	"gbrecompiler/cpu"
	"gbrecompiler/decode"
	"gbrecompiler/opcode"
)

// compileOne lowers a single decoded instruction to a step. Every branch
// below reads whatever immediate bytes it needs once, at compile time
// (ROM bytes never change; a write to a cached block's bytes evicts the
// block, see the cache package, and RAM instructions run through jit, which
// compiles them afresh at every step), so the returned closures never
// touch the instruction stream again at runtime.
func compileOne(ins decode.Instruction, b bus.Bus, opts Options, missing *MissingSet) step {
	if ins.Prefixed {
		return compileCB(ins)
	}

	op := ins.Opcode
	next := ins.NextAddress()
	base := ins.Cycles.Base

	switch {
	case op == 0x00: // NOP
		return fixedPC(next, base)

	case op == 0x76: // HALT
		return haltStep(ins, b, opts)

	case op == 0x10: // STOP
		return func(s *cpu.State, bb bus.Bus) int {
			s.Stopped = true
			s.PC = next
			return base
		}

	case op == 0xF3: // DI
		return func(s *cpu.State, bb bus.Bus) int {
			s.IME = false
			s.PC = next
			return base
		}

	case op == 0xFB: // EI
		return func(s *cpu.State, bb bus.Bus) int {
			s.EIDelay = 2
			s.PC = next
			return base
		}

	// --- 8-bit register/memory loads ---

	case op >= 0x40 && op <= 0x7F: // LD r,r' grid (0x76 handled above)
		dst, src := byte((op-0x40)/8), byte((op-0x40)%8)
		return func(s *cpu.State, bb bus.Bus) int {
			writeR8(s, bb, dst, readR8(s, bb, src))
			s.PC = next
			return base
		}

	case op&0xC7 == 0x06: // LD r,n
		dst := (op >> 3) & 0x07
		imm := ins.Imm8(b)
		return func(s *cpu.State, bb bus.Bus) int {
			writeR8(s, bb, dst, imm)
			s.PC = next
			return base
		}

	case op == 0x02: // LD (BC),A
		return func(s *cpu.State, bb bus.Bus) int { bb.Write8(s.BC(), s.A); s.PC = next; return base }
	case op == 0x12: // LD (DE),A
		return func(s *cpu.State, bb bus.Bus) int { bb.Write8(s.DE(), s.A); s.PC = next; return base }
	case op == 0x0A: // LD A,(BC)
		return func(s *cpu.State, bb bus.Bus) int { s.A = bb.Read8(s.BC()); s.PC = next; return base }
	case op == 0x1A: // LD A,(DE)
		return func(s *cpu.State, bb bus.Bus) int { s.A = bb.Read8(s.DE()); s.PC = next; return base }
	case op == 0x22: // LD (HL+),A
		return func(s *cpu.State, bb bus.Bus) int { bb.Write8(s.HL(), s.A); s.SetHL(s.HL() + 1); s.PC = next; return base }
	case op == 0x32: // LD (HL-),A
		return func(s *cpu.State, bb bus.Bus) int { bb.Write8(s.HL(), s.A); s.SetHL(s.HL() - 1); s.PC = next; return base }
	case op == 0x2A: // LD A,(HL+)
		return func(s *cpu.State, bb bus.Bus) int { s.A = bb.Read8(s.HL()); s.SetHL(s.HL() + 1); s.PC = next; return base }
	case op == 0x3A: // LD A,(HL-)
		return func(s *cpu.State, bb bus.Bus) int { s.A = bb.Read8(s.HL()); s.SetHL(s.HL() - 1); s.PC = next; return base }

	case op == 0xE2: // LD (C),A
		return func(s *cpu.State, bb bus.Bus) int { bb.Write8(0xFF00+uint16(s.C), s.A); s.PC = next; return base }
	case op == 0xF2: // LD A,(C)
		return func(s *cpu.State, bb bus.Bus) int { s.A = bb.Read8(0xFF00 + uint16(s.C)); s.PC = next; return base }
	case op == 0xE0: // LDH (n),A
		addr := 0xFF00 + uint16(ins.Imm8(b))
		return func(s *cpu.State, bb bus.Bus) int { bb.Write8(addr, s.A); s.PC = next; return base }
	case op == 0xF0: // LDH A,(n)
		addr := 0xFF00 + uint16(ins.Imm8(b))
		return func(s *cpu.State, bb bus.Bus) int { s.A = bb.Read8(addr); s.PC = next; return base }
	case op == 0xEA: // LD (nn),A
		addr := ins.Imm16(b)
		return func(s *cpu.State, bb bus.Bus) int { bb.Write8(addr, s.A); s.PC = next; return base }
	case op == 0xFA: // LD A,(nn)
		addr := ins.Imm16(b)
		return func(s *cpu.State, bb bus.Bus) int { s.A = bb.Read8(addr); s.PC = next; return base }

	// --- 16-bit loads, stack ops ---

	case op&0xCF == 0x01: // LD rr,nn
		pair := cpu.Reg16((op >> 4) & 0x03)
		imm := ins.Imm16(b)
		return func(s *cpu.State, bb bus.Bus) int { s.Set16(pair, imm); s.PC = next; return base }

	case op == 0x08: // LD (nn),SP
		addr := ins.Imm16(b)
		return func(s *cpu.State, bb bus.Bus) int { bb.Write16(addr, s.SP); s.PC = next; return base }

	case op == 0xF9: // LD SP,HL
		return func(s *cpu.State, bb bus.Bus) int { s.SP = s.HL(); s.PC = next; return base }

	case op == 0xF8: // LD HL,SP+r8
		offset := int8(ins.Imm8(b))
		return func(s *cpu.State, bb bus.Bus) int {
			result := addSPSigned(s, offset)
			s.SetHL(result)
			s.PC = next
			return base
		}

	case op == 0xE8: // ADD SP,r8
		offset := int8(ins.Imm8(b))
		return func(s *cpu.State, bb bus.Bus) int {
			s.SP = addSPSigned(s, offset)
			s.PC = next
			return base
		}

	case op&0xCF == 0xC5: // PUSH rr2
		r := cpu.Reg16Stack((op >> 4) & 0x03)
		return func(s *cpu.State, bb bus.Bus) int {
			s.SP -= 2
			bb.Write16(s.SP, stackGet(s, r))
			s.PC = next
			return base
		}

	case op&0xCF == 0xC1: // POP rr2
		r := cpu.Reg16Stack((op >> 4) & 0x03)
		return func(s *cpu.State, bb bus.Bus) int {
			v := bb.Read16(s.SP)
			s.SP += 2
			stackSet(s, r, v)
			s.PC = next
			return base
		}

	// --- 8/16-bit INC/DEC ---

	case op&0xC7 == 0x04: // INC r8
		idx := (op >> 3) & 0x07
		return func(s *cpu.State, bb bus.Bus) int {
			writeR8(s, bb, idx, alu.Inc8(s, readR8(s, bb, idx)))
			s.PC = next
			return base
		}
	case op&0xC7 == 0x05: // DEC r8
		idx := (op >> 3) & 0x07
		return func(s *cpu.State, bb bus.Bus) int {
			writeR8(s, bb, idx, alu.Dec8(s, readR8(s, bb, idx)))
			s.PC = next
			return base
		}

	case op&0xCF == 0x03: // INC rr
		pair := cpu.Reg16((op >> 4) & 0x03)
		return func(s *cpu.State, bb bus.Bus) int { s.Set16(pair, s.Get16(pair)+1); s.PC = next; return base }
	case op&0xCF == 0x0B: // DEC rr
		pair := cpu.Reg16((op >> 4) & 0x03)
		return func(s *cpu.State, bb bus.Bus) int { s.Set16(pair, s.Get16(pair)-1); s.PC = next; return base }

	case op&0xCF == 0x09: // ADD HL,rr
		pair := cpu.Reg16((op >> 4) & 0x03)
		return func(s *cpu.State, bb bus.Bus) int { s.SetHL(alu.AddHL(s, s.HL(), s.Get16(pair))); s.PC = next; return base }

	// --- accumulator rotates and misc single-byte ALU ---

	case op == 0x07:
		return func(s *cpu.State, bb bus.Bus) int { s.A = alu.Rlca(s, s.A); s.PC = next; return base }
	case op == 0x0F:
		return func(s *cpu.State, bb bus.Bus) int { s.A = alu.Rrca(s, s.A); s.PC = next; return base }
	case op == 0x17:
		return func(s *cpu.State, bb bus.Bus) int { s.A = alu.Rla(s, s.A); s.PC = next; return base }
	case op == 0x1F:
		return func(s *cpu.State, bb bus.Bus) int { s.A = alu.Rra(s, s.A); s.PC = next; return base }
	case op == 0x27:
		return func(s *cpu.State, bb bus.Bus) int { s.A = alu.Daa(s, s.A); s.PC = next; return base }
	case op == 0x2F:
		return func(s *cpu.State, bb bus.Bus) int { s.A = alu.Cpl(s, s.A); s.PC = next; return base }
	case op == 0x37:
		return func(s *cpu.State, bb bus.Bus) int { alu.Scf(s); s.PC = next; return base }
	case op == 0x3F:
		return func(s *cpu.State, bb bus.Bus) int { alu.Ccf(s); s.PC = next; return base }

	// --- ALU A,r and A,n ---

	case op >= 0x80 && op <= 0xBF:
		row, src := byte((op-0x80)/8), byte((op-0x80)%8)
		return aluRegStep(row, src, next, base)

	case op&0xC7 == 0xC6: // ALU A,n
		row := (op >> 3) & 0x07
		imm := ins.Imm8(b)
		return aluImmStep(row, imm, next, base)

	// --- jumps, calls, returns ---

	case op == 0xC3: // JP nn
		target := ins.Imm16(b)
		return func(s *cpu.State, bb bus.Bus) int { s.PC = target; return base }
	case op == 0x18: // JR r8
		target := ins.ImmRel(b)
		return func(s *cpu.State, bb bus.Bus) int { s.PC = target; return base }
	case op == 0xE9: // JP (HL)
		return func(s *cpu.State, bb bus.Bus) int { s.PC = s.HL(); return base }

	case op&0xE7 == 0x20: // JR cc,r8
		cond := condIndex(op)
		target := ins.ImmRel(b)
		taken, notTaken := ins.Cycles.Taken, ins.Cycles.NotTaken
		return func(s *cpu.State, bb bus.Bus) int {
			if condTrue(s, cond) {
				s.PC = target
				return taken
			}
			s.PC = next
			return notTaken
		}
	case op&0xE7 == 0xC2: // JP cc,nn
		cond := condIndex(op)
		target := ins.Imm16(b)
		taken, notTaken := ins.Cycles.Taken, ins.Cycles.NotTaken
		return func(s *cpu.State, bb bus.Bus) int {
			if condTrue(s, cond) {
				s.PC = target
				return taken
			}
			s.PC = next
			return notTaken
		}

	case op == 0xCD: // CALL nn
		target := ins.Imm16(b)
		return func(s *cpu.State, bb bus.Bus) int {
			s.SP -= 2
			bb.Write16(s.SP, next)
			s.PC = target
			return base
		}
	case op&0xE7 == 0xC4: // CALL cc,nn
		cond := condIndex(op)
		target := ins.Imm16(b)
		taken, notTaken := ins.Cycles.Taken, ins.Cycles.NotTaken
		return func(s *cpu.State, bb bus.Bus) int {
			if condTrue(s, cond) {
				s.SP -= 2
				bb.Write16(s.SP, next)
				s.PC = target
				return taken
			}
			s.PC = next
			return notTaken
		}

	case op&0xC7 == 0xC7: // RST n
		target := opcode.RSTTargets[op]
		return func(s *cpu.State, bb bus.Bus) int {
			s.SP -= 2
			bb.Write16(s.SP, next)
			s.PC = target
			return base
		}

	case op == 0xC9: // RET
		return func(s *cpu.State, bb bus.Bus) int {
			s.PC = bb.Read16(s.SP)
			s.SP += 2
			return base
		}
	case op == 0xD9: // RETI
		return func(s *cpu.State, bb bus.Bus) int {
			s.PC = bb.Read16(s.SP)
			s.SP += 2
			s.IME = true
			return base
		}
	case op&0xE7 == 0xC0: // RET cc
		cond := condIndex(op)
		taken, notTaken := ins.Cycles.Taken, ins.Cycles.NotTaken
		return func(s *cpu.State, bb bus.Bus) int {
			if condTrue(s, cond) {
				s.PC = bb.Read16(s.SP)
				s.SP += 2
				return taken
			}
			s.PC = next
			return notTaken
		}
	}

	missing.Record(op)
	return fixedPC(next, base)
}

// aluRegStep builds the step for one ALU A,r grid slot (row = operation,
// src = r8 grid index).
func aluRegStep(row, src byte, next uint16, base int) step {
	return func(s *cpu.State, bb bus.Bus) int {
		v := readR8(s, bb, src)
		applyALU(s, row, v)
		s.PC = next
		return base
	}
}

func aluImmStep(row byte, imm byte, next uint16, base int) step {
	return func(s *cpu.State, bb bus.Bus) int {
		applyALU(s, row, imm)
		s.PC = next
		return base
	}
}

func applyALU(s *cpu.State, row byte, v byte) {
	switch row {
	case 0:
		s.A = alu.Add8(s, s.A, v)
	case 1:
		s.A = alu.Adc8(s, s.A, v)
	case 2:
		s.A = alu.Sub8(s, s.A, v)
	case 3:
		s.A = alu.Sbc8(s, s.A, v)
	case 4:
		s.A = alu.And8(s, s.A, v)
	case 5:
		s.A = alu.Xor8(s, s.A, v)
	case 6:
		s.A = alu.Or8(s, s.A, v)
	case 7:
		alu.Cp8(s, s.A, v)
	}
}

// haltStep implements HALT, including the documented HALT bug: if IME is
// false and an interrupt is already pending at the moment HALT executes,
// real hardware fails to advance PC past the opcode, so the byte
// immediately following HALT is fetched and executed twice. Reproduced
// here by leaving PC at the HALT instruction's own address instead of
// past it, when opts.HaltBugEnabled and the trigger condition holds.
func haltStep(ins decode.Instruction, b bus.Bus, opts Options) step {
	next := ins.NextAddress()
	here := ins.Address
	base := ins.Cycles.Base
	return func(s *cpu.State, bb bus.Bus) int {
		s.Halted = true
		pending := bb.Read8(0xFFFF)&bb.Read8(0xFF0F)&0x1F != 0
		if opts.HaltBugEnabled && !s.IME && pending {
			s.PC = here
		} else {
			s.PC = next
		}
		return base
	}
}

// addSPSigned implements the shared SP+r8 arithmetic used by both ADD
// SP,r8 and LD HL,SP+r8: flags are computed from the low byte exactly
// like an 8-bit add, Z and N are always cleared.
func addSPSigned(s *cpu.State, offset int8) uint16 {
	sp := s.SP
	v := uint16(int32(sp) + int32(offset))
	h := (sp&0x0F)+(uint16(byte(offset))&0x0F) > 0x0F
	c := (sp&0xFF)+uint16(byte(offset)) > 0xFF
	s.SetZero(false)
	s.SetSub(false)
	s.SetHalf(h)
	s.SetCarry(c)
	return v
}

func stackGet(s *cpu.State, r cpu.Reg16Stack) uint16 {
	switch r {
	case cpu.StackBC:
		return s.BC()
	case cpu.StackDE:
		return s.DE()
	case cpu.StackHL:
		return s.HL()
	default:
		return s.AF()
	}
}

func stackSet(s *cpu.State, r cpu.Reg16Stack, v uint16) {
	switch r {
	case cpu.StackBC:
		s.SetBC(v)
	case cpu.StackDE:
		s.SetDE(v)
	case cpu.StackHL:
		s.SetHL(v)
	default:
		s.SetAF(v) // masks the low nibble of F, see cpu.State.SetAF
	}
}

func fixedPC(next uint16, cycles int) step {
	return func(s *cpu.State, bb bus.Bus) int {
		s.PC = next
		return cycles
	}
}

// compileCB lowers a CB-prefixed instruction: rotate/shift/swap grid,
// then BIT/RES/SET, each parameterized by bit index and register index.
func compileCB(ins decode.Instruction) step {
	sub := ins.CBOpcode
	next := ins.NextAddress()
	base := ins.Cycles.Base
	reg := sub % 8

	if sub < 0x40 {
		row := sub / 8
		fn := cbRotateFn(row)
		return func(s *cpu.State, bb bus.Bus) int {
			writeR8(s, bb, reg, fn(s, readR8(s, bb, reg)))
			s.PC = next
			return base
		}
	}

	bit := uint((sub - 0x40) / 8 % 8)

	switch {
	case sub < 0x80: // BIT b,r
		return func(s *cpu.State, bb bus.Bus) int {
			alu.Bit(s, readR8(s, bb, reg), bit)
			s.PC = next
			return base
		}
	case sub < 0xC0: // RES b,r
		return func(s *cpu.State, bb bus.Bus) int {
			writeR8(s, bb, reg, alu.ResBit(readR8(s, bb, reg), bit))
			s.PC = next
			return base
		}
	default: // SET b,r
		return func(s *cpu.State, bb bus.Bus) int {
			writeR8(s, bb, reg, alu.SetBit(readR8(s, bb, reg), bit))
			s.PC = next
			return base
		}
	}
}

func cbRotateFn(row byte) func(*cpu.State, byte) byte {
	switch row {
	case 0:
		return alu.Rlc
	case 1:
		return alu.Rrc
	case 2:
		return alu.Rl
	case 3:
		return alu.Rr
	case 4:
		return alu.Sla
	case 5:
		return alu.Sra
	case 6:
		return alu.Swap
	default:
		return alu.Srl
	}
}
