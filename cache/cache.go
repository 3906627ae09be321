// Package cache holds compiled blocks keyed by their entry address, and a
// reverse index from byte address to the block(s) that cover it so a RAM
// write can invalidate exactly the blocks it might have changed. ROM is
// immutable and is never indexed or invalidated, per spec.md §4.5.
package cache

import (
	"gbrecompiler/block"
	"gbrecompiler/bus"
	"gbrecompiler/transpile"
)

type entry struct {
	blk      *block.BasicBlock
	compiled *transpile.CompiledBlock
}

// Cache maps block-entry addresses to their compiled form.
type Cache struct {
	b       bus.Bus
	blocks  map[uint16]*entry
	reverse map[uint16]map[uint16]struct{} // byte addr -> set of block-start addrs covering it
}

func New(b bus.Bus) *Cache {
	return &Cache{
		b:       b,
		blocks:  map[uint16]*entry{},
		reverse: map[uint16]map[uint16]struct{}{},
	}
}

// Get returns the compiled block starting at addr, if present.
func (c *Cache) Get(addr uint16) (*transpile.CompiledBlock, bool) {
	e, ok := c.blocks[addr]
	if !ok {
		return nil, false
	}
	return e.compiled, true
}

// Put registers a freshly compiled block. Blocks whose entry address lies
// outside ROM are additionally reverse-indexed over every byte they span,
// so a later write anywhere in that range invalidates them; ROM blocks
// skip indexing entirely, since ROM content never changes.
func (c *Cache) Put(blk *block.BasicBlock, compiled *transpile.CompiledBlock) {
	c.blocks[blk.Address] = &entry{blk: blk, compiled: compiled}

	if c.b.Kind(blk.Address) == bus.ROM {
		return
	}
	for addr := blk.Address; addr != blk.EndAddress(); addr++ {
		if c.reverse[addr] == nil {
			c.reverse[addr] = map[uint16]struct{}{}
		}
		c.reverse[addr][blk.Address] = struct{}{}
	}
}

// Invalidate evicts every cached block that covers addr, as required after
// a write to that address. Returns how many blocks were evicted. A no-op
// for addresses never indexed by Put (ROM, or addresses no block has
// covered yet).
func (c *Cache) Invalidate(addr uint16) int {
	starts, ok := c.reverse[addr]
	if !ok {
		return 0
	}

	n := 0
	for start := range starts {
		e, exists := c.blocks[start]
		if !exists {
			continue
		}
		for a := e.blk.Address; a != e.blk.EndAddress(); a++ {
			delete(c.reverse[a], start)
			if len(c.reverse[a]) == 0 {
				delete(c.reverse, a)
			}
		}
		delete(c.blocks, start)
		n++
	}
	return n
}

// Len reports how many blocks are currently cached.
func (c *Cache) Len() int { return len(c.blocks) }

// Reset drops every cached block and the reverse index, as used when
// swapping cartridges or restarting the engine.
func (c *Cache) Reset() {
	c.blocks = map[uint16]*entry{}
	c.reverse = map[uint16]map[uint16]struct{}{}
}
