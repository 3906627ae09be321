// Package engine drives execution: fetch a block (or a single instruction
// for RAM addresses), run it, service interrupts between blocks, and
// repeat. This is the cooperative, single-threaded scheduling loop
// spec.md §5 describes — there is never more than one goroutine touching
// cpu.State, so none of its fields need synchronization.
package engine

import (
	"fmt"

	"gbrecompiler/block"
	"gbrecompiler/bus"
	"gbrecompiler/cache"
	"gbrecompiler/config"
	"gbrecompiler/cpu"
	"gbrecompiler/jit"
	"gbrecompiler/transpile"
)

// interruptVectors lists the five interrupt bits in priority order
// (lowest bit serviced first), each mapped to its fixed jump vector.
var interruptVectors = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

// interruptCost is the fixed cycle charge for servicing one interrupt,
// per spec.md §5.
const interruptCost = 20

// haltIdleCost is charged per Run iteration spent halted with nothing
// pending, so a halted CPU still advances the cycle budget instead of
// spinning Run forever without making progress.
const haltIdleCost = 4

// RunResult reports what happened during one Run call.
type RunResult struct {
	CyclesExecuted int
	Stopped        bool // true if STOP is still in effect when Run returned
	BreakHit       bool // true if Quirks.BreakOnLDBB fired (see atBreakpoint)
	Reason         string
}

// Engine owns the CPU state, the bus, and the block cache, and drives
// execution against them.
type Engine struct {
	State    *cpu.State
	Bus      bus.Bus
	Cache    *cache.Cache
	Analyzer *block.Analyzer
	Cfg      config.Config
	Missing  *transpile.MissingSet

	lastBreakPC    uint16
	lastBreakValid bool
}

// New builds an Engine with a fresh CPU state at cfg.EntryPoint. Every read
// and write the engine, its blocks, and the embedded JIT perform goes
// through a cache.InvalidatingBus wrapping b, so a write to any address a
// cached block covers evicts that block before it can run stale (spec.md
// §4.5); callers never need to invalidate anything themselves.
func New(b bus.Bus, cfg config.Config) *Engine {
	s := cpu.New()
	s.PC = cfg.EntryPoint
	c := cache.New(b)
	wrapped := cache.NewInvalidatingBus(b, c)
	return &Engine{
		State:    s,
		Bus:      wrapped,
		Cache:    c,
		Analyzer: block.NewAnalyzer(wrapped),
		Cfg:      cfg,
		Missing:  transpile.NewMissingSet(),
	}
}

// Run executes until at least budgetCycles have elapsed, STOP takes
// effect, or a BreakOnLDBB breakpoint fires. A halted CPU with no pending
// interrupt idles at haltIdleCost cycles per iteration until the budget
// runs out. It always finishes the block or JIT step in flight before checking the
// budget, so CyclesExecuted can exceed budgetCycles slightly.
func (e *Engine) Run(budgetCycles int) RunResult {
	total := 0
	for total < budgetCycles {
		if e.State.Stopped {
			return RunResult{CyclesExecuted: total, Stopped: true, Reason: "stopped"}
		}

		if e.State.Halted {
			if e.pendingInterruptBits() == 0 {
				total += haltIdleCost
				continue
			}
			e.State.Halted = false
		}

		if e.State.IME {
			if cost, serviced := e.serviceInterrupt(); serviced {
				total += cost
				continue
			}
		}

		if e.atBreakpoint() {
			return RunResult{CyclesExecuted: total, Reason: "breakpoint", BreakHit: true}
		}

		total += e.step()
	}
	return RunResult{CyclesExecuted: total, Stopped: e.State.Stopped, Reason: "budget exhausted"}
}

// atBreakpoint implements Quirks.BreakOnLDBB: "LD B,B" (0x40) is otherwise
// a semantically inert register copy, a convention some homebrew
// toolchains repurpose as a debugger trap. When the quirk is on and PC is
// freshly arrived at such an opcode, Run stops before executing it so the
// caller (the bubbletea inspector) can show the break; calling Run again
// steps past it instead of reporting the same address forever, since the
// opcode's actual effect is a no-op either way. Disabled by default, and a
// no-op on emitted semantics even when enabled.
func (e *Engine) atBreakpoint() bool {
	if !e.Cfg.Quirks.BreakOnLDBB {
		return false
	}
	if e.Bus.Read8(e.State.PC) != 0x40 {
		e.lastBreakValid = false
		return false
	}
	if e.lastBreakValid && e.lastBreakPC == e.State.PC {
		return false
	}
	e.lastBreakPC = e.State.PC
	e.lastBreakValid = true
	return true
}

// step executes whatever is at the current PC: a cached or freshly
// compiled block for ROM, or a single JIT-stepped instruction for RAM.
func (e *Engine) step() int {
	addr := e.State.PC
	if e.Bus.Kind(addr) != bus.ROM {
		return jit.Step(e.State, e.Bus, e.Cfg.Quirks, e.Missing)
	}

	compiled := e.ensureCompiled(addr)
	if e.Cfg.Trace != nil {
		e.Cfg.Trace(traceLine(addr, compiled))
	}
	return compiled.Execute(e.State, e.Bus)
}

// ensureCompiled returns the compiled block at addr, analyzing and
// compiling (and caching) it and everything statically reachable from it
// if this is the first time execution has reached it.
func (e *Engine) ensureCompiled(addr uint16) *transpile.CompiledBlock {
	if compiled, ok := e.Cache.Get(addr); ok {
		return compiled
	}

	opts := transpile.Options{HaltBugEnabled: e.Cfg.Quirks.HaltBug}
	blocks := e.Analyzer.AnalyzeFrom(addr)

	var entry *transpile.CompiledBlock
	for a, blk := range blocks {
		compiled := transpile.Compile(blk, e.Bus, opts, e.Missing)
		e.Cache.Put(blk, compiled)
		if a == addr {
			entry = compiled
		}
	}
	return entry
}

// pendingInterruptBits is IE & IF, masked to the five implemented bits.
func (e *Engine) pendingInterruptBits() byte {
	return e.Bus.Read8(bus.AddrIE) & e.Bus.Read8(bus.AddrIF) & 0x1F
}

// serviceInterrupt runs the highest-priority pending, enabled interrupt,
// if any: clears IME, clears its IF bit, pushes PC, and jumps to its
// vector. Interrupts are only ever serviced between blocks/JIT steps,
// never mid-instruction, matching the cooperative scheduling model.
func (e *Engine) serviceInterrupt() (cost int, serviced bool) {
	pending := e.pendingInterruptBits()
	if pending == 0 {
		return 0, false
	}

	for bit := 0; bit < len(interruptVectors); bit++ {
		if pending&(1<<bit) == 0 {
			continue
		}
		e.State.IME = false
		iflag := e.Bus.Read8(bus.AddrIF)
		e.Bus.Write8(bus.AddrIF, iflag&^(1<<bit))
		e.State.SP -= 2
		e.Bus.Write16(e.State.SP, e.State.PC)
		e.State.PC = interruptVectors[bit]
		return interruptCost, true
	}
	return 0, false
}

func traceLine(addr uint16, cb *transpile.CompiledBlock) string {
	return fmt.Sprintf("block %04X (%d steps)", addr, len(cb.Steps))
}
