package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbrecompiler/bus"
	"gbrecompiler/config"
)

func TestRunExecutesUntilHaltedAndIdles(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x3E, 0x05, 0x3C, 0x76}) // LD A,5 ; INC A ; HALT
	cfg := config.Default()
	cfg.EntryPoint = 0x100
	e := New(b, cfg)

	result := e.Run(8 + 4 + 4 + haltIdleCost*3)

	assert.Equal(t, byte(6), e.State.A)
	assert.True(t, e.State.Halted)
	assert.False(t, result.Stopped)
}

func TestRunHonorsStop(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x10, 0x00}) // STOP
	cfg := config.Default()
	cfg.EntryPoint = 0x100
	e := New(b, cfg)

	result := e.Run(1000)
	assert.True(t, result.Stopped)
	assert.True(t, e.State.Stopped)
}

func TestRunServicesVBlankInterruptFromHalt(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x76}) // HALT
	cfg := config.Default()
	cfg.EntryPoint = 0x100
	cfg.Quirks.HaltBug = false // isolate the wake/service path from the bug
	e := New(b, cfg)
	e.State.IME = false

	e.Run(4)
	assert.True(t, e.State.Halted)

	e.State.IME = true
	b.Write8(0xFFFF, 0x01) // IE: VBlank
	b.Write8(0xFF0F, 0x01) // IF: VBlank pending
	e.State.SP = 0xFFFE

	e.Run(interruptCost)

	assert.Equal(t, uint16(0x40), e.State.PC, "jumped to the VBlank vector")
	assert.False(t, e.State.IME, "servicing an interrupt clears IME")
	assert.Equal(t, byte(0x00), b.Read8(0xFF0F), "IF bit 0 cleared")
	assert.False(t, e.State.Halted, "waking from HALT clears the halted flag")
}

func TestRunInterleavesRAMViaJIT(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0xC000, []byte{0x3E, 0x09, 0x76}) // LD A,9 ; HALT, in WRAM
	cfg := config.Default()
	cfg.EntryPoint = 0xC000
	e := New(b, cfg)

	e.Run(8 + 4 + haltIdleCost)

	assert.Equal(t, byte(9), e.State.A)
	assert.True(t, e.State.Halted)
}

func TestSelfModifyingWriteInvalidatesCachedBlock(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0xC000, []byte{0x3C, 0x76}) // INC A ; HALT, in WRAM
	cfg := config.Default()
	cfg.EntryPoint = 0xC000
	e := New(b, cfg)

	e.Run(4 + 4 + haltIdleCost)
	assert.Equal(t, byte(1), e.State.A)
	assert.Equal(t, 1, e.Cache.Len())

	// Patch INC A into DEC A at its own address and rerun from the start;
	// the cached block must be evicted so the new byte takes effect.
	e.Bus.Write8(0xC000, 0x3D)
	e.State.PC = 0xC000
	e.State.Halted = false

	e.Run(4 + 4 + haltIdleCost)
	assert.Equal(t, byte(0), e.State.A, "stale cached block would have kept incrementing")
}

func TestBreakOnLDBBStopsBeforeExecutingThenSteps(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x40, 0x76}) // LD B,B ; HALT
	cfg := config.Default()
	cfg.EntryPoint = 0x100
	cfg.Quirks.BreakOnLDBB = true
	e := New(b, cfg)

	result := e.Run(100)
	assert.True(t, result.BreakHit)
	assert.Equal(t, uint16(0x100), e.State.PC, "stopped before executing the breakpoint opcode")

	result = e.Run(4 + haltIdleCost)
	assert.False(t, result.BreakHit, "the second Run steps past the same address instead of re-triggering")
	assert.True(t, e.State.Halted)
}

func TestEnsureCompiledReusesCache(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x00, 0xC3, 0x00, 0x01}) // NOP ; JP 0x0100 (loop)
	cfg := config.Default()
	cfg.EntryPoint = 0x100
	e := New(b, cfg)

	e.Run(4 + 16)
	assert.Equal(t, 1, e.Cache.Len())
	e.Run(4 + 16)
	assert.Equal(t, 1, e.Cache.Len(), "the loop's single block is reused, not recompiled")
}
