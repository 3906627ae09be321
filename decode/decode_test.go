package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbrecompiler/bus"
)

func TestDecodeSimpleOpcode(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x00})
	ins := Decode(b, 0x100)
	assert.Equal(t, "NOP", ins.Mnemonic)
	assert.Equal(t, byte(1), ins.Length)
	assert.Equal(t, uint16(0x101), ins.NextAddress())
	assert.True(t, ins.Defined)
}

func TestDecodeCBPrefixed(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0xCB, 0x7C}) // BIT 7, H
	ins := Decode(b, 0x100)
	assert.True(t, ins.Prefixed)
	assert.Equal(t, byte(0x7C), ins.CBOpcode)
	assert.Equal(t, "BIT 7, H", ins.Mnemonic)
	assert.Equal(t, byte(2), ins.Length)
	assert.Equal(t, uint16(0x102), ins.NextAddress())
}

func TestDecodeImmediates(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x3E, 0x42}) // LD A, n
	ins := Decode(b, 0x100)
	assert.Equal(t, byte(0x42), ins.Imm8(b))

	b.LoadAt(0x200, []byte{0x21, 0x34, 0x12}) // LD HL, nn
	ins2 := Decode(b, 0x200)
	assert.Equal(t, uint16(0x1234), ins2.Imm16(b))
}

func TestDecodeRelativeJump(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x18, 0xFE}) // JR r8, -2 -> infinite loop at 0x100
	ins := Decode(b, 0x100)
	assert.Equal(t, uint16(0x100), ins.ImmRel(b))

	b.LoadAt(0x200, []byte{0x18, 0x05}) // JR +5
	ins2 := Decode(b, 0x200)
	assert.Equal(t, uint16(0x207), ins2.ImmRel(b))
}

func TestDecodeUndefinedOpcode(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0xD3})
	ins := Decode(b, 0x100)
	assert.False(t, ins.Defined)
	assert.Equal(t, "OP_0xD3", ins.Mnemonic)
}

func TestDecodeConditionalCycles(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x20, 0x00}) // JR NZ, r8
	ins := Decode(b, 0x100)
	assert.True(t, ins.Cycles.Conditional)
	assert.Equal(t, 12, ins.Cycles.Taken)
	assert.Equal(t, 8, ins.Cycles.NotTaken)
}
