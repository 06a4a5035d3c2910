package decode_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/reg"
)

var _ = Describe("X86AsmDecoder", func() {
	var d *decode.X86AsmDecoder

	BeforeEach(func() {
		d = decode.NewX86AsmDecoder()
	})

	It("decodes XOR EAX, EAX (31 C0)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x31, 0xC0})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Mnemonic).To(Equal(decode.XOR))
		Expect(instr.Operands).To(HaveLen(2))
		Expect(instr.Operands[0].Type).To(Equal(decode.OperandRegister))
		Expect(instr.Operands[0].Reg).To(Equal(reg.EAX))
		Expect(instr.Operands[1].Reg).To(Equal(reg.EAX))
	})

	It("decodes MOV EAX, 0x00000001 (B8 01 00 00 00)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0xB8, 0x01, 0x00, 0x00, 0x00})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Mnemonic).To(Equal(decode.MOV))
		Expect(instr.Operands[1].Type).To(Equal(decode.OperandImmediate))
		Expect(instr.Operands[1].ImmU).To(Equal(uint64(1)))
	})

	It("decodes AND EAX, 0x0F (83 E0 0F)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x83, 0xE0, 0x0F})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Mnemonic).To(Equal(decode.AND))
		Expect(instr.Operands[1].ImmU).To(Equal(uint64(0x0F)))
	})

	It("decodes DIV RCX with implicit RAX/RDX operands (48 F7 F1)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x48, 0xF7, 0xF1})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Mnemonic).To(Equal(decode.DIV))
		Expect(instr.Operands).To(HaveLen(3))
		Expect(instr.Operands[0].Reg).To(Equal(reg.RCX))
		Expect(instr.Operands[1].Reg).To(Equal(reg.RAX))
		Expect(instr.Operands[2].Reg).To(Equal(reg.RDX))
	})

	It("decodes MUL RCX with a write-only implicit RDX (48 F7 E1)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x48, 0xF7, 0xE1})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Mnemonic).To(Equal(decode.MUL))
		Expect(instr.Operands).To(HaveLen(3))
		Expect(instr.Operands[1].Reg).To(Equal(reg.RAX))
		Expect(instr.Operands[1].Actions).To(Equal(decode.ActionRead | decode.ActionWrite))
		Expect(instr.Operands[2].Reg).To(Equal(reg.RDX))
		Expect(instr.Operands[2].Actions).To(Equal(decode.ActionWrite))
	})

	It("decodes DIV RCX with a read-write implicit RDX (48 F7 F1)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x48, 0xF7, 0xF1})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Operands[2].Reg).To(Equal(reg.RDX))
		Expect(instr.Operands[2].Actions).To(Equal(decode.ActionRead | decode.ActionWrite))
	})

	It("decodes LEA RAX, [RBX+RBX*1] (48 8D 04 1B)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x48, 0x8D, 0x04, 0x1B})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Mnemonic).To(Equal(decode.LEA))
		Expect(instr.Operands[1].Type).To(Equal(decode.OperandMemory))
		Expect(instr.Operands[1].Mem.Base).To(Equal(reg.RBX))
		Expect(instr.Operands[1].Mem.Index).To(Equal(reg.RBX))
	})

	It("decodes BSWAP AX (66 0F C8)", func() {
		instr, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x66, 0x0F, 0xC8})
		Expect(err).NotTo(HaveOccurred())
		Expect(instr.Mnemonic).To(Equal(decode.BSWAP))
		Expect(instr.Operands[0].Reg).To(Equal(reg.AX))
	})

	It("rejects truncated input", func() {
		_, err := d.Decode(reg.ModeLong64, 0x1000, []byte{0x0F})
		Expect(err).To(HaveOccurred())
	})
})
