package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedEntries(t *testing.T) {
	assert.Equal(t, Entry{Mnemonic: "NOP", Length: 1, Cycles: un(4), Defined: true}, Main[0x00])
	assert.Equal(t, byte(3), Main[0x01].Length)
	assert.Equal(t, "LD (nn), SP", Main[0x08].Mnemonic)
	assert.True(t, Main[0x20].Cycles.Conditional)
	assert.Equal(t, 12, Main[0x20].Cycles.Taken)
	assert.Equal(t, 8, Main[0x20].Cycles.NotTaken)
}

func TestUndefinedOpcodesFallBackToOPx(t *testing.T) {
	assert.Equal(t, "OP_0xD3", Main[0xD3].Mnemonic)
	assert.Equal(t, byte(1), Main[0xD3].Length)
	assert.Equal(t, un(4), Main[0xD3].Cycles)
}

func TestLoadGridCoversAllSlotsExceptHalt(t *testing.T) {
	assert.Equal(t, "HALT", Main[0x76].Mnemonic)
	assert.Equal(t, "LD B, C", Main[0x41].Mnemonic)
	assert.Equal(t, 8, Main[0x46].Cycles.Base, "LD B, (HL) costs 8")
	assert.Equal(t, 8, Main[0x70].Cycles.Base, "LD (HL), B costs 8")
	assert.Equal(t, 4, Main[0x78].Cycles.Base, "LD A, B costs 4")
}

func TestALUGrid(t *testing.T) {
	assert.Equal(t, "ADD A, B", Main[0x80].Mnemonic)
	assert.Equal(t, "CP A", Main[0xBF].Mnemonic)
	assert.Equal(t, 8, Main[0x86].Cycles.Base, "ADD A, (HL) costs 8")
	assert.Equal(t, "XOR A", Main[0xAF].Mnemonic)
}

func TestCBRotateGrid(t *testing.T) {
	assert.Equal(t, "RLC B", CB[0x00].Mnemonic)
	assert.Equal(t, "SRL A", CB[0x3F].Mnemonic)
	assert.Equal(t, 16, CB[0x06].Cycles.Base, "RLC (HL) costs 16")
	assert.Equal(t, 8, CB[0x00].Cycles.Base)
}

func TestCBBitResSet(t *testing.T) {
	assert.Equal(t, "BIT 0, B", CB[0x40].Mnemonic)
	assert.Equal(t, "BIT 7, A", CB[0x7F].Mnemonic)
	assert.Equal(t, 12, CB[0x46].Cycles.Base, "BIT 0, (HL) costs 12")

	assert.Equal(t, "RES 0, B", CB[0x80].Mnemonic)
	assert.Equal(t, 16, CB[0x86].Cycles.Base, "RES 0, (HL) costs 16")

	assert.Equal(t, "SET 7, A", CB[0xFF].Mnemonic)
	assert.Equal(t, 16, CB[0xC6].Cycles.Base, "SET 0, (HL) costs 16")
}

func TestRSTTargets(t *testing.T) {
	assert.Equal(t, uint16(0x00), RSTTargets[0xC7])
	assert.Equal(t, uint16(0x38), RSTTargets[0xFF])
	assert.Len(t, RSTTargets, 8)
}
