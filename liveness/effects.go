// Package liveness implements the two intra-block dataflow passes the
// transpiler consults before emitting code for a block (spec.md §4.3): a
// backward liveness pass that finds writes whose value is never observed
// again before the block ends, and a narrowly-scoped forward constant-fold
// pass over ADD A,r and XOR A,A.
//
// Both passes operate over the plain registers and the flag bits as a
// single eight-variable domain {A,B,C,D,E,H,L,F}; neither tracks memory.
// A (HL) operand in the LD, ALU and CB grids counts as a read of H and L;
// a CB rotate or shift of (HL), and every opcode without a precise model
// (the (BC)/(DE)/(a16) memory forms among them), counts as reading and
// writing all eight variables.
package liveness

import "gbrecompiler/decode"

// RegSet is a bitset over the eight dataflow variables.
type RegSet uint16

const (
	RA RegSet = 1 << iota
	RB
	RC
	RD
	RE
	RH
	RL
	RF
)

func (s RegSet) Has(r RegSet) bool { return s&r != 0 }

// Effect is the read/write footprint of one instruction over the tracked
// register set.
type Effect struct {
	Reads  RegSet
	Writes RegSet
}

// gridRegSet mirrors opcode.RegIndex's B,C,D,E,H,L,(HL),A ordering; index 6
// ((HL)) has no direct bit since it names memory, not a tracked register.
var gridRegSet = [8]RegSet{RB, RC, RD, RE, RH, RL, 0, RA}

// allRegs is the conservative over-approximation used for any instruction
// this package doesn't model precisely: reading and writing everything is
// always sound for liveness (it just forgoes an elision opportunity) and
// for constant folding (it just forgoes a fold).
const allRegs = RA | RB | RC | RD | RE | RH | RL | RF

// fixedEffects holds the non-grid opcodes (0x00-0x3F, 0xC0-0xFF) that are
// modeled precisely. Anything absent from this map and outside the two
// regular grids falls back to allRegs/allRegs.
var fixedEffects map[byte]Effect

func init() {
	fixedEffects = map[byte]Effect{
		0x00: {}, // NOP

		0x04: {Reads: RB, Writes: RB | RF},
		0x05: {Reads: RB, Writes: RB | RF},
		0x06: {Writes: RB}, // LD B,n
		0x0C: {Reads: RC, Writes: RC | RF},
		0x0D: {Reads: RC, Writes: RC | RF},
		0x0E: {Writes: RC},
		0x14: {Reads: RD, Writes: RD | RF},
		0x15: {Reads: RD, Writes: RD | RF},
		0x16: {Writes: RD},
		0x1C: {Reads: RE, Writes: RE | RF},
		0x1D: {Reads: RE, Writes: RE | RF},
		0x1E: {Writes: RE},
		0x24: {Reads: RH, Writes: RH | RF},
		0x25: {Reads: RH, Writes: RH | RF},
		0x26: {Writes: RH},
		0x2C: {Reads: RL, Writes: RL | RF},
		0x2D: {Reads: RL, Writes: RL | RF},
		0x2E: {Writes: RL},
		0x3C: {Reads: RA, Writes: RA | RF},
		0x3D: {Reads: RA, Writes: RA | RF},
		0x3E: {Writes: RA}, // LD A,n

		0x07: {Reads: RA, Writes: RA | RF}, // RLCA
		0x0F: {Reads: RA, Writes: RA | RF}, // RRCA
		0x17: {Reads: RA, Writes: RA | RF}, // RLA
		0x1F: {Reads: RA, Writes: RA | RF}, // RRA
		0x27: {Reads: RA, Writes: RA | RF}, // DAA
		0x2F: {Reads: RA, Writes: RA | RF}, // CPL
		0x37: {Writes: RF},                 // SCF
		0x3F: {Reads: RF, Writes: RF},       // CCF

		0x09: {Reads: RB | RC | RH | RL, Writes: RH | RL | RF}, // ADD HL,BC
		0x19: {Reads: RD | RE | RH | RL, Writes: RH | RL | RF}, // ADD HL,DE
		0x29: {Reads: RH | RL, Writes: RH | RL | RF},           // ADD HL,HL
		0x39: {Reads: RH | RL, Writes: RH | RL | RF},           // ADD HL,SP (SP untracked)

		0xF3: {}, // DI
		0xFB: {}, // EI
		0x76: {}, // HALT
		0x10: {}, // STOP

		0xC6: {Reads: RA, Writes: RA | RF},           // ADD A,n
		0xCE: {Reads: RA | RF, Writes: RA | RF},       // ADC A,n
		0xD6: {Reads: RA, Writes: RA | RF},           // SUB n
		0xDE: {Reads: RA | RF, Writes: RA | RF},       // SBC A,n
		0xE6: {Reads: RA, Writes: RA | RF},           // AND n
		0xEE: {Reads: RA, Writes: RA | RF},           // XOR n
		0xF6: {Reads: RA, Writes: RA | RF},           // OR n
		0xFE: {Reads: RA, Writes: RF},                // CP n (A unmodified)
	}

	// These opcodes rewrite only some flag bits and keep the rest, so the
	// F they leave behind depends on the F they found.
	for _, op := range []byte{
		0x04, 0x05, 0x0C, 0x0D, 0x14, 0x15, 0x1C, 0x1D,
		0x24, 0x25, 0x2C, 0x2D, 0x3C, 0x3D, // INC/DEC r keep C
		0x17, 0x1F, // RLA, RRA shift the carry in
		0x27, 0x2F, 0x37, // DAA reads N/H/C; CPL and SCF keep Z
		0x09, 0x19, 0x29, 0x39, // ADD HL keeps Z
	} {
		eff := fixedEffects[op]
		eff.Reads |= RF
		fixedEffects[op] = eff
	}
}

// Effects reports the read/write footprint of a non-CB opcode byte.
func Effects(op byte) Effect {
	switch {
	case op >= 0x40 && op <= 0x7F: // LD grid
		dst, src := (op-0x40)/8, (op-0x40)%8
		if op == 0x76 {
			return Effect{} // HALT, not LD (HL),(HL)
		}
		eff := Effect{Reads: gridRegSet[src], Writes: gridRegSet[dst]}
		if dst == 6 || src == 6 {
			eff.Reads |= RH | RL
		}
		return eff

	case op >= 0x80 && op <= 0xBF: // ALU A,r grid
		row, src := (op-0x80)/8, (op-0x80)%8
		eff := Effect{Reads: RA | gridRegSet[src], Writes: RF}
		if src == 6 {
			eff.Reads |= RH | RL
		}
		if row != 7 { // everything but CP writes A
			eff.Writes |= RA
		}
		if row == 1 || row == 3 { // ADC, SBC read the carry flag too
			eff.Reads |= RF
		}
		return eff
	}

	if eff, ok := fixedEffects[op]; ok {
		return eff
	}
	return Effect{Reads: allRegs, Writes: allRegs}
}

// CBEffects reports the read/write footprint of a CB-prefixed sub-opcode.
func CBEffects(sub byte) Effect {
	reg := sub % 8
	target := gridRegSet[reg]
	memAddr := RegSet(0)
	if reg == 6 {
		memAddr = RH | RL
	}

	switch {
	case sub < 0x40: // rotate/shift/swap grid: reads+writes the register, writes F
		if reg == 6 { // the memory write is untracked: never elidable
			return Effect{Reads: allRegs, Writes: allRegs}
		}
		eff := Effect{Reads: target, Writes: target | RF}
		if row := sub / 8; row == 2 || row == 3 { // RL, RR shift the carry in
			eff.Reads |= RF
		}
		return eff
	case sub < 0x80: // BIT b,r: reads the register, writes F (C kept)
		return Effect{Reads: target | memAddr | RF, Writes: RF}
	default: // RES/SET b,r: reads+writes the register, flags untouched
		return Effect{Reads: target | memAddr, Writes: target}
	}
}

// InstructionEffect reports the effect of a decoded instruction, routing
// to Effects or CBEffects as appropriate.
func InstructionEffect(ins decode.Instruction) Effect {
	if ins.Prefixed {
		return CBEffects(ins.CBOpcode)
	}
	return Effects(ins.Opcode)
}

// DeadWrites runs the backward liveness pass over a straight-line
// instruction sequence and reports, for each index, whether that
// instruction's register writes are never read before being overwritten
// or the block ends. Register state live at block exit is assumed fully
// live (the analysis is intra-block only; it never assumes anything about
// what the successor block needs). An instruction whose footprint is the
// all-variable fallback is never reported dead, since that footprint also
// stands for effects outside the tracked set (memory, SP, PC).
func DeadWrites(instrs []decode.Instruction) []bool {
	dead := make([]bool, len(instrs))
	live := RegSet(allRegs)

	for i := len(instrs) - 1; i >= 0; i-- {
		eff := InstructionEffect(instrs[i])
		if eff.Writes != 0 && eff.Writes != allRegs && eff.Writes&live == 0 {
			dead[i] = true
		}
		live = (live &^ eff.Writes) | eff.Reads
	}
	return dead
}
