// Package block discovers basic blocks in a byte view of memory, per
// spec.md §4.2: a two-pass algorithm that first scans ahead a bounded
// distance to find local jump targets, then assembles the actual blocks
// so that no block ever straddles a known jump target.
package block

import (
	"gbrecompiler/bus"
	"gbrecompiler/decode"
	"gbrecompiler/opcode"
)

// MaxScan bounds how many instructions Pass 1 decodes ahead of a candidate
// block start while looking for local jump targets. Targets discovered
// beyond this window are still handled correctly (Pass 2 simply starts a
// new block the first time it reaches one), this only limits how far
// ahead of time a split point can be pre-seeded.
const MaxScan = 50

// MaxBlockInstructions is the hard cap on instructions per block; a block
// that hits the cap without otherwise terminating ends with ExitFallthrough
// at the next address. This keeps block size bounded regardless of
// how straight-line the code is, the same way a decode loop bounds a
// time slice.
const MaxBlockInstructions = 100

// ExitKind classifies how a block's last instruction hands off control.
type ExitKind int

const (
	// ExitFallthrough means the block ended without a control-flow
	// instruction: either it hit MaxBlockInstructions, or it ran up to
	// the start of an already-known block.
	ExitFallthrough ExitKind = iota
	// ExitJump is an unconditional jump (JP nn, JR r8) to a statically
	// known target.
	ExitJump
	// ExitBranch is a conditional jump (JP cc,nn / JR cc,r8): Targets[0]
	// is the taken address, Targets[1] the not-taken fallthrough.
	ExitBranch
	// ExitCall is CALL/CALL cc/RST: Targets[0] is the call target,
	// Targets[1] the return address (where execution resumes once the
	// callee returns).
	ExitCall
	// ExitIndirect is JP (HL): the target depends on a register value
	// and cannot be resolved by static analysis.
	ExitIndirect
	// ExitReturn is RET/RETI: the target comes off the stack at runtime.
	ExitReturn
	// ExitCondReturn is RET cc: Targets[0] is the not-taken fallthrough;
	// the taken path is stack-resolved like ExitReturn.
	ExitCondReturn
	// ExitHalt is HALT: execution resumes at the next address once an
	// interrupt wakes the CPU (see engine's interrupt servicing).
	ExitHalt
	// ExitStop is STOP: same shape as ExitHalt, kept distinct because
	// the engine does not resume from it: Run returns while the CPU is
	// stopped, and no interrupt wakes it.
	ExitStop
)

// BasicBlock is a maximal straight-line run of instructions with exactly
// one entry (its Address) and one exit.
type BasicBlock struct {
	Address      uint16
	Instructions []decode.Instruction
	Exit         ExitKind
	Targets      []uint16
}

// EndAddress returns the address immediately after the block's last
// instruction.
func (b *BasicBlock) EndAddress() uint16 {
	if len(b.Instructions) == 0 {
		return b.Address
	}
	return b.Instructions[len(b.Instructions)-1].NextAddress()
}

// classify inspects a decoded instruction and reports whether it
// terminates a block, and if so, its exit kind and statically-known
// successor addresses.
func classify(ins decode.Instruction, b bus.Bus) (kind ExitKind, targets []uint16, terminal bool) {
	if ins.Prefixed {
		return 0, nil, false
	}

	switch ins.Opcode {
	case 0xC3: // JP nn
		return ExitJump, []uint16{ins.Imm16(b)}, true
	case 0x18: // JR r8
		return ExitJump, []uint16{ins.ImmRel(b)}, true
	case 0xE9: // JP (HL)
		return ExitIndirect, nil, true

	case 0xC2, 0xCA, 0xD2, 0xDA: // JP cc,nn
		return ExitBranch, []uint16{ins.Imm16(b), ins.NextAddress()}, true
	case 0x20, 0x28, 0x30, 0x38: // JR cc,r8
		return ExitBranch, []uint16{ins.ImmRel(b), ins.NextAddress()}, true

	case 0xCD: // CALL nn
		return ExitCall, []uint16{ins.Imm16(b), ins.NextAddress()}, true
	case 0xC4, 0xCC, 0xD4, 0xDC: // CALL cc,nn
		return ExitCall, []uint16{ins.Imm16(b), ins.NextAddress()}, true
	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST n
		return ExitCall, []uint16{opcode.RSTTargets[ins.Opcode], ins.NextAddress()}, true

	case 0xC9: // RET
		return ExitReturn, nil, true
	case 0xD9: // RETI
		return ExitReturn, nil, true
	case 0xC0, 0xC8, 0xD0, 0xD8: // RET cc
		return ExitCondReturn, []uint16{ins.NextAddress()}, true

	case 0x76: // HALT
		return ExitHalt, []uint16{ins.NextAddress()}, true
	case 0x10: // STOP
		return ExitStop, []uint16{ins.NextAddress()}, true
	}

	return 0, nil, false
}

// Analyzer discovers and caches basic blocks against a byte view. It does
// not own the bytes: callers decide when to re-run Analyze after the
// underlying memory changes (see the cache package's RAM invalidation).
type Analyzer struct {
	Bus         bus.Bus
	blockStarts map[uint16]bool
}

func NewAnalyzer(b bus.Bus) *Analyzer {
	return &Analyzer{Bus: b, blockStarts: map[uint16]bool{}}
}

// AnalyzeFrom runs the two-pass algorithm starting at entry and returns
// every block reachable from it through statically-known control flow.
// The ExitIndirect target and the stack-resolved targets of ExitReturn and
// ExitCondReturn are not followed here (ExitCondReturn's fallthrough is);
// the engine discovers and analyzes those targets lazily as
// execution actually reaches them.
func (a *Analyzer) AnalyzeFrom(entry uint16) map[uint16]*BasicBlock {
	a.seedLocalTargets(entry)

	blocks := map[uint16]*BasicBlock{}
	worklist := []uint16{entry}

	for len(worklist) > 0 {
		addr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if _, done := blocks[addr]; done {
			continue
		}

		blk := a.assembleBlock(addr)
		blocks[addr] = blk

		for _, t := range blk.Targets {
			if _, done := blocks[t]; !done {
				worklist = append(worklist, t)
			}
		}
	}

	return blocks
}

// seedLocalTargets is Pass 1: it decodes up to MaxScan instructions ahead
// of start, recording every statically-known jump/branch/call target it
// finds as a required block-start address, so Pass 2 never assembles a
// block that runs through the middle of a later-discovered loop or branch
// target.
func (a *Analyzer) seedLocalTargets(start uint16) {
	addr := start
	for i := 0; i < MaxScan; i++ {
		ins := decode.Decode(a.Bus, addr)
		kind, targets, terminal := classify(ins, a.Bus)
		for _, t := range targets {
			a.blockStarts[t] = true
		}
		if terminal {
			if kind == ExitIndirect || kind == ExitReturn || kind == ExitHalt || kind == ExitStop {
				return
			}
			// Continue seeding past conditional branches, calls and
			// conditional returns within the scan window so loop bodies
			// get fully seeded; stop at an unconditional jump.
			if kind == ExitJump {
				return
			}
		}
		addr = ins.NextAddress()
	}
}

// assembleBlock is Pass 2 for a single block: decode sequentially from
// addr until a terminator, the MaxBlockInstructions cap, or the start of
// another known block is reached.
func (a *Analyzer) assembleBlock(addr uint16) *BasicBlock {
	blk := &BasicBlock{Address: addr}

	for i := 0; i < MaxBlockInstructions; i++ {
		cur := blk.Address
		if len(blk.Instructions) > 0 {
			cur = blk.Instructions[len(blk.Instructions)-1].NextAddress()
		}
		if i > 0 && a.blockStarts[cur] {
			blk.Exit = ExitFallthrough
			blk.Targets = []uint16{cur}
			return blk
		}

		ins := decode.Decode(a.Bus, cur)
		blk.Instructions = append(blk.Instructions, ins)

		kind, targets, terminal := classify(ins, a.Bus)
		if terminal {
			blk.Exit = kind
			blk.Targets = targets
			for _, t := range targets {
				a.blockStarts[t] = true
			}
			return blk
		}
	}

	blk.Exit = ExitFallthrough
	blk.Targets = []uint16{blk.EndAddress()}
	return blk
}
