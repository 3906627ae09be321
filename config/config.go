// Package config holds the recompiler's run-time configuration: hardware
// quirks the engine may opt into or out of, and the small set of knobs the
// CLI exposes (entry point, tracing). Nothing here depends on the rest of
// the module, so every other package can depend on it without risk of an
// import cycle.
package config

// Quirks toggles documented console-specific behaviors that are easy to
// get subtly wrong. HaltBug settles an open hardware question one way;
// BreakOnLDBB is a debugging convenience. See DESIGN.md for both.
type Quirks struct {
	// HaltBug reproduces the documented HALT instruction bug: executing
	// HALT while IME is false with an interrupt already pending leaves
	// PC pointing at the HALT opcode instead of past it. Defaults to
	// true; real cartridges occasionally rely on it.
	HaltBug bool

	// BreakOnLDBB treats "LD B,B" (opcode 0x40) as a debugger breakpoint
	// marker instead of a no-op register copy, a convention some
	// homebrew toolchains use to signal "stop here". Off by default:
	// with it off, LD B,B behaves exactly like any other LD r,r' slot.
	// The engine checks for it only where a compiled block or a JIT step
	// begins; an LD B,B inside a compiled block runs without stopping.
	BreakOnLDBB bool
}

// DefaultQuirks matches stock hardware behavior as closely as a
// recompiler reasonably can, with the debugger convenience off.
func DefaultQuirks() Quirks {
	return Quirks{HaltBug: true, BreakOnLDBB: false}
}

// Config is the full set of knobs the engine and CLI consult.
type Config struct {
	Quirks Quirks

	// EntryPoint is the address execution starts from. The console's
	// real boot sequence always lands at 0x0100 once the boot ROM hands
	// off; callers bypassing boot-ROM emulation set this directly.
	EntryPoint uint16

	// Trace, when non-nil, receives one line of text per executed block
	// (address and instruction count); instructions run through the JIT
	// are not traced. The CLI's run subcommand sets it for --trace.
	Trace func(line string)
}

// Default returns a Config with quirks at their defaults and EntryPoint
// set to the standard post-boot-ROM address.
func Default() Config {
	return Config{Quirks: DefaultQuirks(), EntryPoint: 0x0100}
}
