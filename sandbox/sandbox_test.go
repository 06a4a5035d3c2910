package sandbox_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/reg"
	"github.com/sarchlab/m2sim/sandbox"
)

var _ = Describe("Sandbox", func() {
	var d *decode.X86AsmDecoder

	BeforeEach(func() {
		d = decode.NewX86AsmDecoder()
	})

	It("zeroes RAX and sets ZF for XOR EAX,EAX", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x31, 0xC0}, d)
		sb.SetRegValue(reg.RAX, 0xDEADBEEFDEADBEEF)
		sb.SetFlags(0)

		ok, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(sb.ExecutionStatus()).To(Equal(sandbox.Success))
		Expect(sb.GetRegValue(reg.EAX)).To(Equal(uint64(0)))
		Expect(sb.Flags() & uint32(decode.FlagZF)).NotTo(BeZero())
		Expect(sb.Flags() & uint32(decode.FlagCF)).To(BeZero())
	})

	It("loads the immediate for MOV EAX,1", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0xB8, 0x01, 0x00, 0x00, 0x00}, d)
		sb.SetRegValue(reg.RAX, 0xFFFFFFFFFFFFFFFF)

		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.GetRegValue(reg.EAX)).To(Equal(uint64(1)))
		Expect(sb.GetRegValue(reg.RAX)).To(Equal(uint64(1)), "32-bit write zero-extends into the 64-bit root")
	})

	It("masks the low nibble for AND EAX,0x0F", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x83, 0xE0, 0x0F}, d)
		sb.SetRegValue(reg.RAX, 0xFF)

		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.GetRegValue(reg.EAX)).To(Equal(uint64(0x0F)))
	})

	It("reports divide error for DIV RCX with a zero divisor", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x48, 0xF7, 0xF1}, d)
		sb.SetRegValue(reg.RCX, 0)
		sb.SetRegValue(reg.RAX, 100)
		sb.SetRegValue(reg.RDX, 0)

		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.ExecutionStatus()).To(Equal(sandbox.ExceptionIntDivideError))
	})

	It("reports integer overflow for DIV RCX when the quotient cannot fit", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x48, 0xF7, 0xF1}, d)
		sb.SetRegValue(reg.RCX, 1)
		sb.SetRegValue(reg.RAX, 0)
		sb.SetRegValue(reg.RDX, 1) // dividend = 2^64, quotient overflows a 64-bit register

		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.ExecutionStatus()).To(Equal(sandbox.ExceptionIntOverflow))
	})

	It("computes a normal DIV RCX quotient/remainder", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x48, 0xF7, 0xF1}, d)
		sb.SetRegValue(reg.RCX, 3)
		sb.SetRegValue(reg.RAX, 10)
		sb.SetRegValue(reg.RDX, 0)

		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.ExecutionStatus()).To(Equal(sandbox.Success))
		Expect(sb.GetRegValue(reg.RAX)).To(Equal(uint64(3)))
		Expect(sb.GetRegValue(reg.RDX)).To(Equal(uint64(1)))
	})

	It("computes the effective address for LEA RAX,[RBX+RBX*1]", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x48, 0x8D, 0x04, 0x1B}, d)
		sb.SetRegValue(reg.RBX, 5)

		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.GetRegValue(reg.RAX)).To(Equal(uint64(10)))
	})

	It("zeroes AX and preserves the rest of RAX for BSWAP AX", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x66, 0x0F, 0xC8}, d)
		sb.SetRegValue(reg.RAX, 0x1122334455667788)

		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.GetRegValue(reg.AX)).To(Equal(uint64(0)))
		Expect(sb.GetRegValue(reg.RAX)).To(Equal(uint64(0x1122334455660000)))
	})

	It("reports IllegalInstruction when the decoder rejects the bytes", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x0F}, d)
		_, err := sb.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(sb.ExecutionStatus()).To(Equal(sandbox.IllegalInstruction))
	})
})
