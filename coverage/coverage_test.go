package coverage_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/classify"
	"github.com/sarchlab/m2sim/coverage"
	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/reg"
)

func build(instr decode.Instruction) []coverage.Cell {
	cls := classify.Classify(instr)
	return coverage.Build(instr, cls)
}

func regCellsFor(cells []coverage.Cell, r reg.Id) []coverage.Cell {
	var out []coverage.Cell
	for _, c := range cells {
		if c.Exception == coverage.ExceptionNone && c.Reg == r {
			out = append(out, c)
		}
	}
	return out
}

func hasCell(cells []coverage.Cell, bitPos uint16, expected uint8) bool {
	for _, c := range cells {
		if c.BitPos == bitPos && c.ExpectedBit == expected {
			return true
		}
	}
	return false
}

var _ = Describe("Coverage matrix pruning", func() {
	It("prunes polarity 1 everywhere for XOR EAX,EAX (result_always_zero)", func() {
		instr := decode.Instruction{
			Mnemonic: decode.XOR,
			Mode:     reg.ModeLong64,
			Operands: []decode.Operand{
				{Type: decode.OperandRegister, Reg: reg.EAX, Actions: decode.ActionRead | decode.ActionWrite},
				{Type: decode.OperandRegister, Reg: reg.EAX, Actions: decode.ActionRead},
			},
			Flags: decode.FlagEffects{
				Modified: decode.FlagPF | decode.FlagAF | decode.FlagZF | decode.FlagSF,
				Set0:     decode.FlagCF | decode.FlagOF,
			},
		}

		cells := build(instr)
		regCells := regCellsFor(cells, reg.EAX)
		Expect(regCells).To(HaveLen(32))
		for _, c := range regCells {
			Expect(c.ExpectedBit).To(Equal(uint8(0)))
		}

		flagCells := regCellsFor(cells, reg.Flags)
		Expect(hasCell(flagCells, 6, 1)).To(BeTrue(), "ZF=1 is always reachable")
		Expect(hasCell(flagCells, 6, 0)).To(BeFalse(), "ZF=0 is unreachable when the result is always zero")
		Expect(hasCell(flagCells, 2, 1)).To(BeTrue(), "PF=1 is always reachable")
		Expect(hasCell(flagCells, 2, 0)).To(BeFalse())
		Expect(hasCell(flagCells, 0, 0)).To(BeTrue(), "CF is forced to 0")
		Expect(hasCell(flagCells, 11, 0)).To(BeTrue(), "OF is forced to 0")
	})

	It("collapses each bit to the immediate's own value for MOV EAX,imm", func() {
		instr := decode.Instruction{
			Mnemonic: decode.MOV,
			Mode:     reg.ModeLong64,
			Operands: []decode.Operand{
				{Type: decode.OperandRegister, Reg: reg.EAX, Actions: decode.ActionWrite},
				{Type: decode.OperandImmediate, ImmU: 0x5},
			},
		}

		cells := build(instr)
		regCells := regCellsFor(cells, reg.EAX)
		Expect(regCells).To(HaveLen(32))
		Expect(hasCell(regCells, 0, 1)).To(BeTrue())
		Expect(hasCell(regCells, 0, 0)).To(BeFalse())
		Expect(hasCell(regCells, 1, 0)).To(BeTrue())
		Expect(hasCell(regCells, 1, 1)).To(BeFalse())
	})

	It("only tests polarity 1 where the mask's bit is set for AND EAX,0x0F", func() {
		instr := decode.Instruction{
			Mnemonic: decode.AND,
			Mode:     reg.ModeLong64,
			Operands: []decode.Operand{
				{Type: decode.OperandRegister, Reg: reg.EAX, Actions: decode.ActionRead | decode.ActionWrite},
				{Type: decode.OperandImmediate, ImmU: 0x0F},
			},
		}

		cells := build(instr)
		regCells := regCellsFor(cells, reg.EAX)
		Expect(hasCell(regCells, 0, 1)).To(BeTrue())
		Expect(hasCell(regCells, 0, 0)).To(BeTrue())
		Expect(hasCell(regCells, 4, 1)).To(BeFalse(), "bit 4 of the mask is 0, so it can never be set")
		Expect(hasCell(regCells, 4, 0)).To(BeTrue())
	})

	It("prunes to always-zero for BSWAP AX (width <= 16)", func() {
		instr := decode.Instruction{
			Mnemonic:     decode.BSWAP,
			Mode:         reg.ModeLong64,
			OperandWidth: 16,
			Operands: []decode.Operand{
				{Type: decode.OperandRegister, Reg: reg.AX, Actions: decode.ActionRead | decode.ActionWrite},
			},
		}

		cells := build(instr)
		regCells := regCellsFor(cells, reg.AX)
		Expect(regCells).To(HaveLen(16))
		for _, c := range regCells {
			Expect(c.ExpectedBit).To(Equal(uint8(0)))
		}
	})

	It("prunes polarity 1 only at bit 0 for LEA RAX,[RBX+RBX*1] (aliased base/index)", func() {
		instr := decode.Instruction{
			Mnemonic:     decode.LEA,
			Mode:         reg.ModeLong64,
			AddressWidth: 64,
			Operands: []decode.Operand{
				{Type: decode.OperandRegister, Reg: reg.RAX, Actions: decode.ActionWrite},
				{
					Type:    decode.OperandMemory,
					Actions: decode.ActionRead,
					Mem:     decode.MemOperand{Base: reg.RBX, Index: reg.RBX, Scale: 1},
				},
			},
		}

		cells := build(instr)
		regCells := regCellsFor(cells, reg.RAX)
		Expect(hasCell(regCells, 0, 1)).To(BeFalse(), "the low bit of a doubled value is always 0")
		Expect(hasCell(regCells, 0, 0)).To(BeTrue())
		Expect(hasCell(regCells, 1, 1)).To(BeTrue())
	})

	It("prunes the low log2(scale) bits for LEA RAX,[RDX*4] (scaled index, no base)", func() {
		instr := decode.Instruction{
			Mnemonic:     decode.LEA,
			Mode:         reg.ModeLong64,
			AddressWidth: 64,
			Operands: []decode.Operand{
				{Type: decode.OperandRegister, Reg: reg.RAX, Actions: decode.ActionWrite},
				{
					Type:    decode.OperandMemory,
					Actions: decode.ActionRead,
					Mem:     decode.MemOperand{Index: reg.RDX, Scale: 4},
				},
			},
		}

		cells := build(instr)
		regCells := regCellsFor(cells, reg.RAX)
		Expect(hasCell(regCells, 0, 1)).To(BeFalse())
		Expect(hasCell(regCells, 1, 1)).To(BeFalse())
		Expect(hasCell(regCells, 2, 1)).To(BeTrue())
	})

	It("emits both divide-error and overflow exception cells for DIV", func() {
		instr := decode.Instruction{
			Mnemonic: decode.DIV,
			Mode:     reg.ModeLong64,
			Operands: []decode.Operand{
				{Type: decode.OperandRegister, Reg: reg.RCX, Actions: decode.ActionRead},
			},
		}

		cells := build(instr)
		var kinds []coverage.ExceptionKind
		for _, c := range cells {
			if c.Exception != coverage.ExceptionNone {
				kinds = append(kinds, c.Exception)
			}
		}
		Expect(kinds).To(ConsistOf(coverage.ExceptionDivideError, coverage.ExceptionIntegerOverflow))
	})
})
