// Package decode turns a byte address into a single Instruction: opcode,
// canonical mnemonic, byte length, and cycle cost, per spec.md §4.1. A
// decoded Instruction is immutable and carries no operand values — the
// block analyzer and transpiler re-read immediate bytes from the bus
// themselves using Address and Length, the same way the CPU itself would
// fetch them during execution.
package decode

import (
	"fmt"

	"gbrecompiler/bus"
	"gbrecompiler/opcode"
)

// Instruction is one decoded instruction: opcode, mnemonic, length, cycles,
// and the address it was fetched from.
type Instruction struct {
	Address  uint16
	Opcode   byte
	Prefixed bool // true if this is a CB-prefixed instruction
	CBOpcode byte // second byte, meaningful only when Prefixed

	Mnemonic string
	Length   byte
	Cycles   opcode.Cycles

	// Defined is false for illegal opcode bytes (spec.md §4.1's OP_0xNN
	// fallback); the recompiler treats these as 1-byte/4-cycle NOPs but
	// keeps the flag so telemetry can still report them as anomalies.
	Defined bool
}

// Decode reads the instruction at addr. It never reads past addr+1 to
// classify the opcode; any further immediate bytes are the caller's
// responsibility to fetch (via Imm8/Imm16/ImmRel below) once Length is known.
func Decode(b bus.Bus, addr uint16) Instruction {
	first := b.Read8(addr)
	if first == 0xCB {
		second := b.Read8(addr + 1)
		entry := opcode.CB[second]
		return Instruction{
			Address:  addr,
			Opcode:   first,
			Prefixed: true,
			CBOpcode: second,
			Mnemonic: entry.Mnemonic,
			Length:   entry.Length,
			Cycles:   entry.Cycles,
			Defined:  entry.Defined,
		}
	}

	entry := opcode.Main[first]
	return Instruction{
		Address:  addr,
		Opcode:   first,
		Mnemonic: entry.Mnemonic,
		Length:   entry.Length,
		Cycles:   entry.Cycles,
		Defined:  entry.Defined,
	}
}

// NextAddress returns the address immediately after this instruction,
// i.e. the address a non-branching fetch would continue at.
func (i Instruction) NextAddress() uint16 {
	return i.Address + uint16(i.Length)
}

// Imm8 re-reads this instruction's single immediate byte (2-byte forms:
// LD r,n, ADD A,n, LDH, JR, CB-prefixed forms never have one).
func (i Instruction) Imm8(b bus.Bus) byte {
	return b.Read8(i.Address + 1)
}

// Imm16 re-reads this instruction's 16-bit immediate (3-byte forms: LD
// rr,nn, JP nn, CALL nn).
func (i Instruction) Imm16(b bus.Bus) uint16 {
	return b.Read16(i.Address + 1)
}

// ImmRel re-reads this instruction's signed 8-bit relative displacement
// (JR forms) and resolves it against the address immediately following the
// instruction, matching the CPU's own PC-relative addressing.
func (i Instruction) ImmRel(b bus.Bus) uint16 {
	offset := int8(i.Imm8(b))
	return uint16(int32(i.NextAddress()) + int32(offset))
}

func (i Instruction) String() string {
	if i.Prefixed {
		return fmt.Sprintf("%04X: CB %02X  %s", i.Address, i.CBOpcode, i.Mnemonic)
	}
	return fmt.Sprintf("%04X: %02X  %s", i.Address, i.Opcode, i.Mnemonic)
}
