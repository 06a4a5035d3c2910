// Package coverage implements the Coverage-Matrix Builder collaborator
// of spec.md §4.2 (component C2): it turns a classified instruction
// into the flat list of bit/exception witnesses the search driver must
// satisfy, pruned by the per-mnemonic semantic rules of spec.md §4.2.
// The exception list and the SETcc one-bit bound are table lookups;
// the other pruning rules are switch statements on the mnemonic in
// computeStaticFacts and regCells.
package coverage

import (
	"math/bits"

	"github.com/sarchlab/m2sim/classify"
	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/reg"
)

// ExceptionKind mirrors spec.md §3's ExceptionKind.
type ExceptionKind int

const (
	ExceptionNone ExceptionKind = iota
	ExceptionDivideError
	ExceptionIntegerOverflow
)

func (k ExceptionKind) String() string {
	switch k {
	case ExceptionDivideError:
		return "INT_DIVIDE_ERROR"
	case ExceptionIntegerOverflow:
		return "INT_OVERFLOW"
	default:
		return "NONE"
	}
}

// Cell is one coverage-matrix entry: either a bit witness (Exception
// is ExceptionNone) or an exception witness (Reg is reg.None and
// BitPos/ExpectedBit are unused), never both.
type Cell struct {
	Exception   ExceptionKind
	Reg         reg.Id
	BitPos      uint16
	ExpectedBit uint8
}

// exceptionsByMnemonic lists the exceptions each mnemonic may raise.
// Only DIV can fault in this oracle's mnemonic set (spec.md §5).
var exceptionsByMnemonic = map[decode.Mnemonic][]ExceptionKind{
	decode.DIV: {ExceptionDivideError, ExceptionIntegerOverflow},
}

// setccMnemonics upper-bounds coverage to a single bit: the
// destination of a SETcc is always a 0/1 byte.
var setccMnemonics = map[decode.Mnemonic]bool{
	decode.SETB: true, decode.SETNB: true, decode.SETZ: true, decode.SETNZ: true,
	decode.SETS: true, decode.SETNS: true, decode.SETO: true, decode.SETNO: true,
	decode.SETP: true, decode.SETNP: true, decode.SETL: true, decode.SETGE: true,
	decode.SETLE: true, decode.SETG: true,
}

// staticFacts are the per-instruction predicates spec.md §4.2 computes
// before applying any pruning rule.
type staticFacts struct {
	dstSrcSame bool
	rightIsImm bool
	rightZero  bool
	immValue   uint64

	resultAlwaysZero   bool
	firstBitAlwaysZero bool
	numBitsZero        uint16
}

func computeStaticFacts(instr decode.Instruction) staticFacts {
	var f staticFacts

	if len(instr.Operands) >= 2 {
		op0, op1 := instr.Operands[0], instr.Operands[1]
		if op0.Type == decode.OperandRegister && op1.Type == decode.OperandRegister {
			f.dstSrcSame = op0.Reg == op1.Reg
		}
		if op1.Type == decode.OperandImmediate {
			f.rightIsImm = true
			f.immValue = op1.ImmU
			f.rightZero = op1.ImmU == 0
		}
	}

	switch instr.Mnemonic {
	case decode.SUB, decode.CMP, decode.XOR:
		f.resultAlwaysZero = f.dstSrcSame
	case decode.AND, decode.TEST, decode.MOV:
		f.resultAlwaysZero = f.rightIsImm && f.rightZero
	case decode.BSWAP:
		f.resultAlwaysZero = instr.OperandWidth <= 16
	}

	if instr.Mnemonic == decode.ADD {
		f.firstBitAlwaysZero = f.dstSrcSame
	}
	if instr.Mnemonic == decode.LEA && len(instr.Operands) >= 2 {
		mem := instr.Operands[1].Mem
		if mem.Base != reg.None && mem.Base == mem.Index && mem.Scale == 1 && mem.Disp == 0 {
			f.firstBitAlwaysZero = true
		}
		if mem.Base == reg.None && mem.Index != reg.None && mem.Scale > 1 {
			f.numBitsZero = uint16(bits.TrailingZeros8(mem.Scale))
		}
	}

	return f
}

// Build runs the Coverage-Matrix Builder over a decoded instruction
// and its classification.
func Build(instr decode.Instruction, cls classify.Result) []Cell {
	facts := computeStaticFacts(instr)

	var cells []Cell
	for _, r := range cls.RegsModified {
		cells = append(cells, regCells(instr, facts, r)...)
	}
	cells = append(cells, flagCells(instr, cls, facts)...)
	cells = append(cells, exceptionCells(instr.Mnemonic)...)
	return cells
}

func maxBits(instr decode.Instruction, width uint16) uint16 {
	if setccMnemonics[instr.Mnemonic] {
		return 1
	}
	if instr.Mnemonic == decode.LEA {
		return instr.AddressWidth
	}
	return width
}

func regCells(instr decode.Instruction, facts staticFacts, r reg.Id) []Cell {
	width := reg.WidthBits(r, instr.Mode)
	maxB := maxBits(instr, width)

	var cells []Cell
	for bitPos := uint16(0); bitPos < width; bitPos++ {
		testZero := true
		testOne := bitPos >= facts.numBitsZero && !facts.resultAlwaysZero && bitPos < maxB

		if facts.rightIsImm {
			kBit := (facts.immValue >> bitPos) & 1
			switch instr.Mnemonic {
			case decode.MOV:
				testZero = kBit == 0
				testOne = kBit == 1
			case decode.OR:
				testZero = kBit == 0
			case decode.AND:
				testOne = kBit != 0
			case decode.BTR:
				testOne = (facts.immValue%uint64(instr.OperandWidth)) != uint64(bitPos)
			}
		}

		if bitPos == 0 && facts.firstBitAlwaysZero {
			testOne = false
		}

		if testZero {
			cells = append(cells, Cell{Reg: r, BitPos: bitPos, ExpectedBit: 0})
		}
		if testOne {
			cells = append(cells, Cell{Reg: r, BitPos: bitPos, ExpectedBit: 1})
		}
	}
	return cells
}

func flagCells(instr decode.Instruction, cls classify.Result, facts staticFacts) []Cell {
	var cells []Cell
	for i := uint(0); i < 32; i++ {
		flag := decode.FlagMask(1 << i)

		if !facts.rightIsImm && cls.FlagsModified&flag != 0 {
			zero, one := flagPolarities(flag, facts)
			if zero {
				cells = append(cells, Cell{Reg: reg.Flags, BitPos: uint16(i), ExpectedBit: 0})
			}
			if one {
				cells = append(cells, Cell{Reg: reg.Flags, BitPos: uint16(i), ExpectedBit: 1})
			}
		}
		if cls.FlagsSet0&flag != 0 {
			cells = append(cells, Cell{Reg: reg.Flags, BitPos: uint16(i), ExpectedBit: 0})
		}
		if cls.FlagsSet1&flag != 0 {
			cells = append(cells, Cell{Reg: reg.Flags, BitPos: uint16(i), ExpectedBit: 1})
		}
	}
	return cells
}

// flagPolarities reports which of the 0/1 polarities of flag should be
// emitted, applying spec.md §4.2's per-flag gating rules.
func flagPolarities(flag decode.FlagMask, facts staticFacts) (zero, one bool) {
	switch flag {
	case decode.FlagZF, decode.FlagPF:
		return !facts.resultAlwaysZero, true
	case decode.FlagCF, decode.FlagAF:
		return true, !facts.resultAlwaysZero && !facts.rightZero
	case decode.FlagOF:
		return true, !facts.dstSrcSame && !facts.rightZero
	case decode.FlagSF:
		return true, !facts.resultAlwaysZero
	default:
		return true, true
	}
}

func exceptionCells(m decode.Mnemonic) []Cell {
	var cells []Cell
	for _, k := range exceptionsByMnemonic[m] {
		cells = append(cells, Cell{Exception: k, Reg: reg.None})
	}
	return cells
}
