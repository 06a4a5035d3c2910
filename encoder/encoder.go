// Package encoder implements the Encoding Enumerator collaborator of
// spec.md §6: for a given mnemonic it produces the stream of raw
// byte sequences the batch orchestrator feeds to the decoder and
// sandbox. Grounded in the declarative, per-instruction byte-template
// style the retrieved google/syzkaller ifuzz/x86 package uses to
// describe opcodes (prefix/opcode/modrm/immediate fields), simplified
// here to the fixed low-register set (RAX..RDI, no REX.R/X/B
// extension) and the handful of addressing forms this oracle's
// mnemonic set needs — see DESIGN.md for why R8-R15 and memory
// operands beyond LEA's base+index use are not enumerated.
package encoder

import "github.com/sarchlab/m2sim/decode"

// Enumerator produces the byte-sequence stream for one mnemonic.
type Enumerator interface {
	Encodings(m decode.Mnemonic) [][]byte
}

// TableEnumerator is the default Enumerator, backed by per-mnemonic
// encoding-template functions.
type TableEnumerator struct{}

// New constructs the default Enumerator.
func New() *TableEnumerator { return &TableEnumerator{} }

// Encodings implements Enumerator.
func (e *TableEnumerator) Encodings(m decode.Mnemonic) [][]byte {
	return encodingsFor(m)
}

// lowRegOrder lists the eight low GPR families this encoder restricts
// itself to, indexed by their 3-bit register number (A=0 .. DI=7),
// which is the same in both operand widths.
var lowRegOrder = []string{"A", "C", "D", "B", "SP", "BP", "SI", "DI"}

func modrm(mod, regField, rm byte) byte {
	return mod<<6 | (regField&7)<<3 | (rm & 7)
}

func rexW() byte { return 0x48 }

func regRegALU(opcodeEvGv byte, w bool, dstNum, srcNum byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, opcodeEvGv, modrm(3, srcNum, dstNum))
	return out
}

var group1Field = map[decode.Mnemonic]byte{
	decode.ADD: 0, decode.OR: 1, decode.ADC: 2, decode.SBB: 3,
	decode.AND: 4, decode.SUB: 5, decode.XOR: 6, decode.CMP: 7,
}

var evGvOpcode = map[decode.Mnemonic]byte{
	decode.ADD: 0x01, decode.OR: 0x09, decode.ADC: 0x11, decode.SBB: 0x19,
	decode.AND: 0x21, decode.SUB: 0x29, decode.XOR: 0x31, decode.CMP: 0x39,
	decode.MOV: 0x89, decode.TEST: 0x85,
}

func group1Imm8(w bool, field, dstNum, imm8 byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0x83, modrm(3, field, dstNum), imm8)
	return out
}

func movImm32(w bool, dstNum byte, imm32 uint32) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0xB8+dstNum)
	out = append(out, byte(imm32), byte(imm32>>8), byte(imm32>>16), byte(imm32>>24))
	if w {
		// With REX.W, B8+r takes a 64-bit immediate; its upper half is zero.
		out = append(out, 0x00, 0x00, 0x00, 0x00)
	}
	return out
}

func testEaxImm32(w bool, imm32 uint32) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0xA9, byte(imm32), byte(imm32>>8), byte(imm32>>16), byte(imm32>>24))
	return out
}

var shiftField = map[decode.Mnemonic]byte{
	decode.ROL: 0, decode.ROR: 1, decode.SHL: 4, decode.SHR: 5, decode.SAR: 7,
}

func shiftImm8(w bool, field, dstNum, imm8 byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0xC1, modrm(3, field, dstNum), imm8)
	return out
}

var btField = map[decode.Mnemonic]byte{
	decode.BT: 4, decode.BTS: 5, decode.BTR: 6, decode.BTC: 7,
}

func btGroupImm8(w bool, field, dstNum, bitIdx byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0x0F, 0xBA, modrm(3, field, dstNum), bitIdx)
	return out
}

var singleOpField = map[decode.Mnemonic]byte{
	decode.NOT: 2, decode.NEG: 3, decode.MUL: 4, decode.IMUL: 5, decode.DIV: 6,
}

func singleOpF7(w bool, field, dstNum byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0xF7, modrm(3, field, dstNum))
	return out
}

func incDecFF(w bool, field, dstNum byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0xFF, modrm(3, field, dstNum))
	return out
}

func imul2(w bool, dstNum, srcNum byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0x0F, 0xAF, modrm(3, dstNum, srcNum))
	return out
}

func bswap(w16, w64 bool, regNum byte) []byte {
	out := []byte{}
	if w16 {
		out = append(out, 0x66)
	}
	if w64 {
		out = append(out, rexW())
	}
	out = append(out, 0x0F, 0xC8+regNum)
	return out
}

func leaRegIndexScale(w bool, dstNum, baseNum, indexNum, scaleBits byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0x8D, modrm(0, dstNum, 0x04))
	out = append(out, scaleBits<<6|(indexNum&7)<<3|(baseNum&7))
	return out
}

func leaScaledIndexNoBase(w bool, dstNum, indexNum, scaleBits byte) []byte {
	out := []byte{}
	if w {
		out = append(out, rexW())
	}
	out = append(out, 0x8D, modrm(0, dstNum, 0x04))
	out = append(out, scaleBits<<6|(indexNum&7)<<3|0x05)
	out = append(out, 0x00, 0x00, 0x00, 0x00)
	return out
}

func setcc(opcode byte, dstNum byte) []byte {
	return []byte{0x0F, opcode, modrm(3, 0, dstNum)}
}

var setccOpcode = map[decode.Mnemonic]byte{
	decode.SETB: 0x92, decode.SETNB: 0x93, decode.SETZ: 0x94, decode.SETNZ: 0x95,
	decode.SETS: 0x98, decode.SETNS: 0x99, decode.SETO: 0x90, decode.SETNO: 0x91,
	decode.SETP: 0x9A, decode.SETNP: 0x9B, decode.SETL: 0x9C, decode.SETGE: 0x9D,
	decode.SETLE: 0x9E, decode.SETG: 0x9F,
}

// Register numbers within the low-8 set this encoder restricts to:
// A=0 C=1 D=2 B=3 SP=4 BP=5 SI=6 DI=7.
const (
	numA  = 0
	numC  = 1
	numD  = 2
	numB  = 3
	numSP = 4
)

func encodingsFor(m decode.Mnemonic) [][]byte {
	var out [][]byte

	if opcode, ok := evGvOpcode[m]; ok && m != decode.TEST {
		for _, w := range []bool{false, true} {
			out = append(out, regRegALU(opcode, w, numA, numA)) // dst_src_same case
			out = append(out, regRegALU(opcode, w, numA, numC))
		}
	}

	if field, ok := group1Field[m]; ok {
		for _, w := range []bool{false, true} {
			out = append(out, group1Imm8(w, field, numA, 0x00))
			out = append(out, group1Imm8(w, field, numA, 0x0F))
		}
	}

	switch m {
	case decode.MOV:
		out = append(out, movImm32(false, numA, 0x00000001))
		out = append(out, movImm32(true, numA, 0xFFFFFFFF))

	case decode.TEST:
		for _, w := range []bool{false, true} {
			out = append(out, regRegALU(evGvOpcode[decode.TEST], w, numA, numA))
			out = append(out, regRegALU(evGvOpcode[decode.TEST], w, numA, numC))
			out = append(out, testEaxImm32(w, 0x0000000F))
		}

	case decode.INC, decode.DEC:
		field := byte(0)
		if m == decode.DEC {
			field = 1
		}
		for _, w := range []bool{false, true} {
			out = append(out, incDecFF(w, field, numA))
		}

	case decode.NOT, decode.NEG, decode.MUL, decode.DIV:
		field := singleOpField[m]
		for _, w := range []bool{false, true} {
			out = append(out, singleOpF7(w, field, numC))
		}

	case decode.IMUL:
		for _, w := range []bool{false, true} {
			out = append(out, imul2(w, numA, numC))
			out = append(out, imul2(w, numA, numA))
		}

	case decode.BSWAP:
		out = append(out, bswap(true, false, numA))  // 16-bit, pruned to always-zero
		out = append(out, bswap(false, false, numA)) // 32-bit
		out = append(out, bswap(false, true, numA))  // 64-bit

	case decode.BT, decode.BTC, decode.BTR, decode.BTS:
		field := btField[m]
		for _, w := range []bool{false, true} {
			out = append(out, btGroupImm8(w, field, numA, 0x03))
		}

	case decode.SHL, decode.SHR, decode.SAR, decode.ROL, decode.ROR:
		field := shiftField[m]
		for _, w := range []bool{false, true} {
			out = append(out, shiftImm8(w, field, numA, 0x01))
			out = append(out, shiftImm8(w, field, numA, 0x03))
		}

	case decode.LEA:
		out = append(out, leaRegIndexScale(true, numA, numB, numB, 0))   // [RBX+RBX*1] — first_bit_always_zero
		out = append(out, leaRegIndexScale(true, numA, numB, numC, 0))   // [RBX+RCX*1]
		out = append(out, leaScaledIndexNoBase(true, numA, numD, 2))     // [RDX*4], no base — num_bits_zero=2

	default:
		if opcode, ok := setccOpcode[m]; ok {
			out = append(out, setcc(opcode, numA))
		}
	}

	return out
}
