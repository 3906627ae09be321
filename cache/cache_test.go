package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbrecompiler/block"
	"gbrecompiler/bus"
	"gbrecompiler/transpile"
)

func compileAt(b *bus.Flat, addr uint16) (*block.BasicBlock, *transpile.CompiledBlock) {
	blk := block.NewAnalyzer(b).AnalyzeFrom(addr)[addr]
	return blk, transpile.Compile(blk, b, transpile.Options{}, transpile.NewMissingSet())
}

func TestPutAndGetROMBlock(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x00, 0x76}) // NOP ; HALT, entirely in ROM
	c := New(b)
	blk, compiled := compileAt(b, 0x100)
	c.Put(blk, compiled)

	got, ok := c.Get(0x100)
	assert.True(t, ok)
	assert.Same(t, compiled, got)
	assert.Equal(t, 1, c.Len())
}

func TestWAMBlockIsInvalidatedOnWrite(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0xC000, []byte{0x00, 0x76}) // WRAM-resident block
	c := New(b)
	blk, compiled := compileAt(b, 0xC000)
	c.Put(blk, compiled)

	assert.Equal(t, 1, c.Len())
	n := c.Invalidate(0xC000)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, c.Len())

	_, ok := c.Get(0xC000)
	assert.False(t, ok)
}

func TestROMBlockIsNeverInvalidated(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0x100, []byte{0x00, 0x76})
	c := New(b)
	blk, compiled := compileAt(b, 0x100)
	c.Put(blk, compiled)

	n := c.Invalidate(0x100)
	assert.Equal(t, 0, n, "ROM is never reverse-indexed, so invalidation is a no-op")
	_, ok := c.Get(0x100)
	assert.True(t, ok)
}

func TestInvalidateAnyByteInBlockRangeEvictsIt(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0xC000, []byte{0x04, 0x76}) // INC B ; HALT, 2 bytes
	c := New(b)
	blk, compiled := compileAt(b, 0xC000)
	c.Put(blk, compiled)

	n := c.Invalidate(0xC001) // second byte, not the block's start address
	assert.Equal(t, 1, n)
	_, ok := c.Get(0xC000)
	assert.False(t, ok)
}

func TestResetClearsEverything(t *testing.T) {
	b := bus.NewFlat()
	b.LoadAt(0xC000, []byte{0x76})
	c := New(b)
	blk, compiled := compileAt(b, 0xC000)
	c.Put(blk, compiled)
	c.Reset()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(0xC000)
	assert.False(t, ok)
}
