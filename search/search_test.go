package search_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/classify"
	"github.com/sarchlab/m2sim/coverage"
	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/reg"
	"github.com/sarchlab/m2sim/runconfig"
	"github.com/sarchlab/m2sim/sandbox"
	"github.com/sarchlab/m2sim/search"
)

var _ = Describe("Input-Search Driver", func() {
	var d *decode.X86AsmDecoder

	BeforeEach(func() {
		d = decode.NewX86AsmDecoder()
	})

	It("witnesses every cell of XOR EAX,EAX with an always-zero result", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x31, 0xC0}, d)
		instr := sb.Instruction()
		cls := classify.Classify(instr)
		cells := coverage.Build(instr, cls)

		drv := search.New(sb, instr, cls, nil, nil)
		group, err := drv.Run(cells)

		Expect(err).NotTo(HaveOccurred())
		Expect(group.Illegal).To(BeFalse())
		Expect(group.Entries).NotTo(BeEmpty())
		Expect(group.Entries).To(HaveLen(len(cells)), "every cell is witnessed")

		for _, entry := range group.Entries {
			if entry.OutputRegs == nil {
				continue
			}
			Expect(entry.OutputRegs[reg.RAX][0]).To(Equal(byte(0)))
			Expect(entry.OutputRegs[reg.RAX][1]).To(Equal(byte(0)))
			Expect(entry.OutputRegs[reg.RAX][2]).To(Equal(byte(0)))
			Expect(entry.OutputRegs[reg.RAX][3]).To(Equal(byte(0)))
		}
	})

	It("marks the group illegal and stops after the first cell on a bad encoding", func() {
		sb := sandbox.New(reg.ModeLong64, []byte{0x0F}, d)
		instr := sb.Instruction()
		cls := classify.Classify(instr)
		cells := []coverage.Cell{
			{Reg: reg.EAX, BitPos: 0, ExpectedBit: 0},
			{Reg: reg.EAX, BitPos: 1, ExpectedBit: 0},
		}

		drv := search.New(sb, instr, cls, nil, nil)
		group, err := drv.Run(cells)

		Expect(err).NotTo(HaveOccurred())
		Expect(group.Illegal).To(BeTrue())
		Expect(group.Entries).To(BeEmpty())
	})

	It("derives the same witnessed inputs from two drivers sharing a PRNGSeed", func() {
		runOnce := func() map[reg.Id][]byte {
			cfg := runconfig.Default()
			cfg.PRNGSeed = 42

			sb := sandbox.New(reg.ModeLong64, []byte{0x31, 0xC8}, d) // XOR EAX,ECX
			instr := sb.Instruction()
			cls := classify.Classify(instr)
			cells := coverage.Build(instr, cls)

			drv := search.New(sb, instr, cls, cfg, nil)
			group, err := drv.Run(cells)
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Entries).NotTo(BeEmpty())
			return group.Entries[0].InputRegs
		}

		first := runOnce()
		second := runOnce()
		Expect(first).To(Equal(second), "the same PRNGSeed must reproduce the same search")
	})

	It("honors a custom AbortThreshold and reports giving up on an unreachable cell", func() {
		cfg := runconfig.Default()
		cfg.AbortThreshold = 5

		sb := sandbox.New(reg.ModeLong64, []byte{0x31, 0xC8}, d) // XOR EAX,ECX
		instr := sb.Instruction()
		cls := classify.Classify(instr)

		var diagnostics strings.Builder
		drv := search.New(sb, instr, cls, cfg, &diagnostics)

		// BitPos 99 lies outside EAX's 32 bits, so outputMatches can
		// never succeed regardless of how many inputs are tried.
		cells := []coverage.Cell{{Reg: reg.EAX, BitPos: 99, ExpectedBit: 1}}
		group, err := drv.Run(cells)

		Expect(err).NotTo(HaveOccurred())
		Expect(group.Entries).To(BeEmpty())
		Expect(diagnostics.String()).To(ContainSubstring("probably impossible"))
	})
})
