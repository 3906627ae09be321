// Command gonerun drives the recompiler core against a raw ROM image from
// the command line: run it for a cycle budget, disassemble it into basic
// blocks without executing anything, or step through it interactively.
// Structured as a cobra root command with subcommands, modeled on
// z80opt's cmd/z80opt/main.go (enumerate/target/verify/stoke/...).
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"gbrecompiler/block"
	"gbrecompiler/bus"
	"gbrecompiler/config"
	"gbrecompiler/debugger"
	"gbrecompiler/engine"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gonerun",
		Short: "Static/dynamic recompiler for the LR35902 (run, disassemble, or step a ROM)",
	}

	rootCmd.AddCommand(newRunCmd(), newDisasmCmd(), newDebugCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadROM reads romPath in full and drops it at address 0 of a fresh flat
// bus, panicking on a read failure exactly the way the teacher's
// Cpu.LoadProgram panics on a malformed program, since neither loader has
// any caller left to recover once its input cannot be trusted.
func loadROM(romPath string) *bus.Flat {
	data, err := os.ReadFile(romPath)
	if err != nil {
		panic(fmt.Errorf("gonerun: reading ROM %q: %w", romPath, err))
	}
	b := bus.NewFlat()
	b.LoadAt(0, data)
	return b
}

func parseHex16(s string) (uint16, error) {
	v, err := strconv.ParseUint(trimHexPrefix(s), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	return uint16(v), nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}

func newRunCmd() *cobra.Command {
	var entryStr string
	var cycles int
	var haltBug bool
	var breakLDBB bool
	var trace bool

	cmd := &cobra.Command{
		Use:   "run [rom]",
		Short: "Execute a ROM image for a cycle budget and report the final CPU state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := parseHex16(entryStr)
			if err != nil {
				return err
			}

			b := loadROM(args[0])
			cfg := config.Default()
			cfg.EntryPoint = entry
			cfg.Quirks.HaltBug = haltBug
			cfg.Quirks.BreakOnLDBB = breakLDBB
			if trace {
				cfg.Trace = func(line string) { fmt.Println(line) }
			}

			eng := engine.New(b, cfg)
			result := eng.Run(cycles)

			fmt.Printf("stopped: %s (%d cycles executed)\n", result.Reason, result.CyclesExecuted)
			fmt.Printf("PC=%04X SP=%04X A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X\n",
				eng.State.PC, eng.State.SP, eng.State.A, eng.State.F,
				eng.State.B, eng.State.C, eng.State.D, eng.State.E, eng.State.H, eng.State.L)
			fmt.Printf("IME=%v halted=%v stopped=%v\n", eng.State.IME, eng.State.Halted, eng.State.Stopped)
			fmt.Printf("blocks cached: %d\n", eng.Cache.Len())

			if missing := eng.Missing.Counts(); len(missing) > 0 {
				fmt.Println("missing instructions (fell back to NOP):")
				for op, n := range missing {
					fmt.Printf("  0x%02X: %d time(s)\n", op, n)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entryStr, "entry", "0100", "Entry point address (hex, no prefix needed)")
	cmd.Flags().IntVar(&cycles, "cycles", 4_000_000, "Cycle budget to run for")
	cmd.Flags().BoolVar(&haltBug, "halt-bug", true, "Emulate the documented HALT instruction bug")
	cmd.Flags().BoolVar(&breakLDBB, "break-ld-bb", false, "Treat LD B,B as a debugger breakpoint trap")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print one line per executed block")
	return cmd
}

func newDisasmCmd() *cobra.Command {
	var entryStr string

	cmd := &cobra.Command{
		Use:   "disasm [rom]",
		Short: "Discover basic blocks reachable from an address and print them, without executing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := parseHex16(entryStr)
			if err != nil {
				return err
			}

			b := loadROM(args[0])
			analyzer := block.NewAnalyzer(b)
			blocks := analyzer.AnalyzeFrom(entry)

			addrs := make([]uint16, 0, len(blocks))
			for a := range blocks {
				addrs = append(addrs, a)
			}
			sortUint16s(addrs)

			for _, a := range addrs {
				blk := blocks[a]
				fmt.Printf("block %04X-%04X (exit=%v, targets=%v)\n",
					blk.Address, blk.EndAddress(), exitName(blk.Exit), blk.Targets)
				for _, ins := range blk.Instructions {
					fmt.Printf("  %s\n", ins.String())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entryStr, "entry", "0100", "Address to start analysis from (hex)")
	return cmd
}

func newDebugCmd() *cobra.Command {
	var entryStr string
	var breakLDBB bool

	cmd := &cobra.Command{
		Use:   "debug [rom]",
		Short: "Launch the interactive block-level single-stepper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := parseHex16(entryStr)
			if err != nil {
				return err
			}

			b := loadROM(args[0])
			cfg := config.Default()
			cfg.EntryPoint = entry
			cfg.Quirks.BreakOnLDBB = breakLDBB
			eng := engine.New(b, cfg)
			return debugger.Run(eng)
		},
	}

	cmd.Flags().StringVar(&entryStr, "entry", "0100", "Entry point address (hex)")
	cmd.Flags().BoolVar(&breakLDBB, "break-ld-bb", false, "Treat LD B,B as a debugger breakpoint trap")
	return cmd
}

func sortUint16s(a []uint16) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}

func exitName(k block.ExitKind) string {
	switch k {
	case block.ExitFallthrough:
		return "fallthrough"
	case block.ExitJump:
		return "jump"
	case block.ExitBranch:
		return "branch"
	case block.ExitCall:
		return "call"
	case block.ExitIndirect:
		return "indirect"
	case block.ExitReturn:
		return "return"
	case block.ExitCondReturn:
		return "cond-return"
	case block.ExitHalt:
		return "halt"
	case block.ExitStop:
		return "stop"
	}
	return "unknown"
}
