package liveness

import (
	"gbrecompiler/bus"
	"gbrecompiler/decode"
)

// FoldKind distinguishes the two patterns this pass recognizes.
type FoldKind int

const (
	FoldNone FoldKind = iota
	FoldXorSelf // XOR A,A -> constant 0, independent of A's prior value
	FoldAddConst
)

// Fold is the outcome of folding one instruction: the instruction at
// Index can be replaced by loading Value into A directly instead of
// executing the original opcode. Half and Carry are only meaningful for
// FoldAddConst — recomputed from the two folded operands exactly as
// alu.Add8 would derive them, so a folded ADD A,r still reports the
// reference interpreter's H and C (spec.md §4.3, §8).
type Fold struct {
	Index int
	Kind  FoldKind
	Value byte
	Half  bool
	Carry bool
}

// lattice tracks, for each of the eight plain-register grid slots
// (opcode.RegIndex order, (HL) excluded), whether its value is a known
// compile-time constant. ok=false means bottom (not yet observed) or top
// (observed but not constant) — the pass never needs to distinguish the
// two, since either way no fold applies.
type lattice struct {
	known [8]bool
	value [8]byte
}

func (l *lattice) set(idx byte, v byte) {
	l.known[idx] = true
	l.value[idx] = v
}

func (l *lattice) clear(idx byte) {
	l.known[idx] = false
}

func (l *lattice) get(idx byte) (byte, bool) {
	return l.value[idx], l.known[idx]
}

// regIndexOf returns the grid index (0-7, (HL) excluded) a RegSet bit
// corresponds to, or -1 if it names more than one register or none.
func regIndexOf(r RegSet) int {
	switch r {
	case RB:
		return 0
	case RC:
		return 1
	case RD:
		return 2
	case RE:
		return 3
	case RH:
		return 4
	case RL:
		return 5
	case RA:
		return 7
	}
	return -1
}

// immLoadTargets maps the six single-register immediate loads (LD r,n) to
// their grid index, so the pass can seed the lattice without re-deriving
// operand semantics from the opcode table.
var immLoadTargets = map[byte]byte{
	0x06: 0, // LD B,n
	0x0E: 1, // LD C,n
	0x16: 2, // LD D,n
	0x1E: 3, // LD E,n
	0x26: 4, // LD H,n
	0x2E: 5, // LD L,n
	0x3E: 7, // LD A,n
}

// ConstantFold runs the forward pass described in spec.md §4.3: folding is
// deliberately restricted to two patterns, XOR A,A (always 0, regardless of
// A's incoming value) and ADD A,r where r's value was established by a
// preceding LD r,n in the same block. Every other instruction only updates
// or invalidates the lattice; it is never itself a fold candidate.
func ConstantFold(instrs []decode.Instruction, b bus.Bus) []Fold {
	var folds []Fold
	var l lattice

	for i, ins := range instrs {
		if ins.Prefixed {
			clearWrites(&l, CBEffects(ins.CBOpcode))
			continue
		}

		switch {
		case ins.Opcode == 0xAF: // XOR A,A
			folds = append(folds, Fold{Index: i, Kind: FoldXorSelf, Value: 0})
			l.set(7, 0)
			continue

		case ins.Opcode >= 0x80 && ins.Opcode <= 0x87: // ADD A,r (incl. ADD A,A)
			src := byte(ins.Opcode - 0x80)
			if src != 6 { // (HL) operand is memory, never foldable here
				if a, aOK := l.get(7); aOK {
					if v, vOK := l.get(src); vOK {
						sum := a + v
						half := (a&0x0F)+(v&0x0F) > 0x0F
						carry := uint16(a)+uint16(v) > 0xFF
						folds = append(folds, Fold{Index: i, Kind: FoldAddConst, Value: sum, Half: half, Carry: carry})
						l.set(7, sum)
						continue
					}
				}
			}
			l.clear(7)
			continue

		}

		if idx, ok := immLoadTargets[ins.Opcode]; ok {
			l.set(idx, ins.Imm8(b))
			continue
		}

		clearWrites(&l, Effects(ins.Opcode))
	}

	return folds
}

// clearWrites invalidates any lattice slot an instruction's effect writes;
// the pass never attempts to track values across any write it didn't
// explicitly special-case above.
func clearWrites(l *lattice, eff Effect) {
	for _, r := range []RegSet{RA, RB, RC, RD, RE, RH, RL} {
		if eff.Writes.Has(r) {
			if idx := regIndexOf(r); idx >= 0 {
				l.clear(byte(idx))
			}
		}
	}
}
