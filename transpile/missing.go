package transpile

import "sync"

// MissingSet records opcodes the transpiler had to fall back to a generic
// NOP for, because the byte decoded to an undefined/illegal opcode or to
// one this package doesn't yet special-case. It is instance-scoped rather
// than a package global so that multiple engines (e.g. a debugger instance
// and a headless run) compiling concurrently never share telemetry state.
type MissingSet struct {
	mu   sync.Mutex
	seen map[byte]int
}

// NewMissingSet returns an empty, ready-to-use set.
func NewMissingSet() *MissingSet {
	return &MissingSet{seen: map[byte]int{}}
}

// Record notes one occurrence of opcode op being compiled via the generic
// fallback path. Safe for concurrent use.
func (m *MissingSet) Record(op byte) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[op]++
}

// Counts returns a snapshot of how many times each fallback opcode was hit.
func (m *MissingSet) Counts() map[byte]int {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[byte]int, len(m.seen))
	for k, v := range m.seen {
		out[k] = v
	}
	return out
}
