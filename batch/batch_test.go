package batch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/batch"
	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/runconfig"
)

type fixedEnumerator struct{ encodings [][]byte }

func (f fixedEnumerator) Encodings(decode.Mnemonic) [][]byte { return f.encodings }

var _ = Describe("Batch Orchestrator", func() {
	It("drops illegal encodings and sorts survivors by operand width ascending", func() {
		enc := fixedEnumerator{encodings: [][]byte{
			{0x31, 0xC0},       // XOR EAX,EAX — 32-bit
			{0x0F},             // not a valid opcode by itself — illegal
			{0x66, 0x31, 0xC0}, // XOR AX,AX — 16-bit
		}}

		var progressCalls []int
		o := &batch.Orchestrator{
			Decoder:    decode.NewX86AsmDecoder(),
			Enumerator: enc,
			Config:     runconfig.Default(),
			Progress:   func(current, total int) { progressCalls = append(progressCalls, current) },
		}

		groups, err := o.Run(decode.XOR)
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(HaveLen(2))

		Expect(groups[0].Bytes).To(Equal([]byte{0x66, 0x31, 0xC0}))
		Expect(groups[1].Bytes).To(Equal([]byte{0x31, 0xC0}))

		for _, g := range groups {
			Expect(g.Illegal).To(BeFalse())
			Expect(g.Entries).NotTo(BeEmpty())
		}

		Expect(progressCalls).To(HaveLen(3))
	})

	It("returns no groups when every encoding is illegal", func() {
		enc := fixedEnumerator{encodings: [][]byte{{0x0F}, {0x0F}}}
		o := &batch.Orchestrator{
			Decoder:    decode.NewX86AsmDecoder(),
			Enumerator: enc,
			Config:     runconfig.Default(),
		}

		groups, err := o.Run(decode.XOR)
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(BeEmpty())
	})
})
