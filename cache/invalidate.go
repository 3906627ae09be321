package cache

import "gbrecompiler/bus"

// InvalidatingBus wraps a bus.Bus so that every write also consults the
// cache's reverse index and evicts any compiled block the write touches,
// per spec.md §4.5. The engine runs all reads and writes through one of
// these rather than the raw bus, so self-modifying code can never execute
// a stale compiled block: the write that modifies it evicts it before the
// next fetch reaches that address.
type InvalidatingBus struct {
	bus.Bus
	cache *Cache
}

// NewInvalidatingBus returns a Bus that behaves exactly like b, except
// Write8/Write16 also invalidate c.
func NewInvalidatingBus(b bus.Bus, c *Cache) *InvalidatingBus {
	return &InvalidatingBus{Bus: b, cache: c}
}

func (w *InvalidatingBus) Write8(addr uint16, val byte) {
	w.Bus.Write8(addr, val)
	w.cache.Invalidate(addr)
}

// Write16 invalidates both bytes it touches individually rather than
// delegating to the embedded Bus's Write16 and invalidating once: a Bus
// implementation is free to implement Write16 without routing through
// Write8, so this method cannot assume Write8 above already ran.
func (w *InvalidatingBus) Write16(addr uint16, val uint16) {
	w.Bus.Write16(addr, val)
	w.cache.Invalidate(addr)
	w.cache.Invalidate(addr + 1)
}
