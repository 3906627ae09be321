// Package debugger is an interactive single-stepper for the recompiler's
// engine, generalized from the teacher's 6502 register/memory-page TUI into
// a block-level inspector: each keypress advances the engine by one
// compiled block or one JIT step, never by raw opcode, since that is the
// recompiler's real unit of execution. No symbols, no source maps, no
// breakpoint expressions on variable names — only raw block, register, and
// cache state, which keeps this inside the no-symbolic-debugging non-goal.
package debugger

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"gbrecompiler/bus"
	"gbrecompiler/engine"
)

type model struct {
	eng       *engine.Engine
	lastAddr  uint16
	lastCost  int
	lastBreak bool
	history   []string
	err       error
}

const historyLines = 12

// Init starts the inspector with the engine as New left it (PC at its
// configured entry point); nothing further to load.
func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case " ", "n":
		m.lastAddr = m.eng.State.PC
		result := m.eng.Run(1)
		m.lastCost = result.CyclesExecuted
		m.lastBreak = result.BreakHit
		m.history = append(m.history, m.stepLine())
		if len(m.history) > historyLines {
			m.history = m.history[len(m.history)-historyLines:]
		}
		if result.Stopped {
			m.err = fmt.Errorf("CPU executed STOP")
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) stepLine() string {
	line := fmt.Sprintf("%04X -> %04X (%d cycles, %s)",
		m.lastAddr, m.eng.State.PC, m.lastCost, m.eng.Bus.Kind(m.lastAddr))
	if m.lastBreak {
		line += "  [LD B,B breakpoint]"
	}
	return line
}

func (m model) registers() string {
	s := m.eng.State
	return fmt.Sprintf(`
PC: %04X   SP: %04X
A:  %02X  F: %02X
B:  %02X  C: %02X
D:  %02X  E: %02X
H:  %02X  L: %02X
IME: %-5v HALT: %-5v STOP: %-5v
Z:%v N:%v H:%v C:%v
`,
		s.PC, s.SP,
		s.A, s.F,
		s.B, s.C,
		s.D, s.E,
		s.H, s.L,
		s.IME, s.Halted, s.Stopped,
		s.Zero(), s.Sub(), s.Half(), s.Carry(),
	)
}

// pageLine renders 16 bytes starting at addr as a hex row, bracketing PC.
func (m model) pageLine(addr uint16) string {
	line := fmt.Sprintf("%04X | ", addr)
	for i := 0; i < 16; i++ {
		a := addr + uint16(i)
		b := m.eng.Bus.Read8(a)
		if a == m.eng.State.PC {
			line += fmt.Sprintf("[%02X]", b)
		} else {
			line += fmt.Sprintf(" %02X ", b)
		}
	}
	return line
}

func (m model) memoryPane() string {
	base := m.eng.State.PC &^ 0x000F
	lines := make([]string, 0, 5)
	lines = append(lines, "addr |                  bytes")
	for row := -1; row < 4; row++ {
		lines = append(lines, m.pageLine(base+uint16(row*16)))
	}
	return strings.Join(lines, "\n")
}

func (m model) cacheLine() string {
	return fmt.Sprintf("cache: %d compiled blocks  missing opcodes: %d",
		m.eng.Cache.Len(), len(m.eng.Missing.Counts()))
}

func (m model) blockDump() string {
	if m.eng.Bus.Kind(m.eng.State.PC) != bus.ROM {
		return "(RAM: executing one JIT-stepped instruction, not a cached block)"
	}
	compiled, ok := m.eng.Cache.Get(m.eng.State.PC)
	if !ok {
		return "(not yet compiled)"
	}
	return spew.Sdump(compiled)
}

func (m model) View() string {
	top := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.memoryPane(),
		m.registers(),
	)
	return lipgloss.JoinVertical(
		lipgloss.Left,
		top,
		"",
		m.cacheLine(),
		m.blockDump(),
		"",
		strings.Join(m.history, "\n"),
		"",
		"space/n: step one block   q: quit",
	)
}

// Run launches the interactive inspector against eng. It blocks until the
// user quits or the engine hits STOP.
func Run(eng *engine.Engine) error {
	p := tea.NewProgram(model{eng: eng})
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(model); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
