package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbrecompiler/bus"
	"gbrecompiler/config"
	"gbrecompiler/cpu"
	"gbrecompiler/transpile"
)

func TestStepExecutesOneFullInstructionPerCall(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0xC000, []byte{0x3E, 0x07, 0x3C}) // LD A,7 ; INC A -- RAM-resident
	s := cpu.New()
	s.PC = 0xC000
	missing := transpile.NewMissingSet()

	cycles := Step(s, b, config.DefaultQuirks(), missing)
	assert.Equal(t, 8, cycles)
	assert.Equal(t, uint16(0xC002), s.PC)
	assert.Equal(t, byte(7), s.A)

	cycles = Step(s, b, config.DefaultQuirks(), missing)
	assert.Equal(t, 4, cycles)
	assert.Equal(t, uint16(0xC003), s.PC)
	assert.Equal(t, byte(8), s.A)
}

func TestStepReflectsSelfModifyingWrites(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0xC000, []byte{0x3C}) // INC A
	s := cpu.New()
	s.PC = 0xC000
	missing := transpile.NewMissingSet()

	Step(s, b, config.DefaultQuirks(), missing)
	assert.Equal(t, byte(1), s.A)

	// Self-modify: rewrite the instruction in place to DEC A before the
	// next fetch. Since jit never caches, the new byte is honored
	// immediately.
	b.Write8(0xC000, 0x3D)
	s.PC = 0xC000
	Step(s, b, config.DefaultQuirks(), missing)
	assert.Equal(t, byte(0), s.A)
}
