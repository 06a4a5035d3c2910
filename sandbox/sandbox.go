// Package sandbox implements the Execution Sandbox collaborator of
// spec.md §6: a scoped register-file abstraction that loads one
// encoding, lets it run exactly once, and reports an execution-status
// code. Because Go has no portable, unsafe-free way to map executable
// memory and trap SIGFPE/SIGILL for a guest instruction (see
// DESIGN.md), this sandbox is a software ALU emulator grounded on the
// teacher's emu/alu.go and emu/emulator.go: it decodes once at
// construction, then computes the instruction's result and flag
// effects directly against an in-memory register file, producing the
// same execution-status taxonomy a hardware sandbox would.
package sandbox

import (
	"math/bits"

	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/reg"
)

// Status mirrors the Execution Sandbox contract's execution_status().
type Status int

const (
	Success Status = iota
	ExceptionIntDivideError
	ExceptionIntOverflow
	IllegalInstruction
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case ExceptionIntDivideError:
		return "INT_DIVIDE_ERROR"
	case ExceptionIntOverflow:
		return "INT_OVERFLOW"
	case IllegalInstruction:
		return "ILLEGAL_INSTRUCTION"
	default:
		return "UNKNOWN"
	}
}

// codeBaseAddress is the fixed load address reported by CodeAddress.
// No loader or relocation is modeled (see DESIGN.md); one fixed
// address is sufficient since the oracle never branches or reads
// memory relative to it.
const codeBaseAddress = 0x401000

// Sandbox is a scoped, per-worker execution context for one encoding.
type Sandbox struct {
	mode      reg.Mode
	code      []byte
	instr     decode.Instruction
	decodeErr error

	regs   map[reg.Id]uint64
	flags  uint32
	status Status
}

// New constructs a Sandbox for code_bytes under the given machine
// mode, decoding it immediately with decoder. A decode failure is
// recorded, not returned as an error: per spec.md §7, an encoding the
// decoder cannot make sense of is reported through
// ExecutionStatus()==IllegalInstruction on the first Execute call,
// exactly like a hardware SIGILL would be.
func New(mode reg.Mode, code []byte, decoder decode.Decoder) *Sandbox {
	s := &Sandbox{
		mode: mode,
		code: code,
		regs: make(map[reg.Id]uint64),
	}
	instr, err := decoder.Decode(mode, codeBaseAddress, code)
	if err != nil {
		s.decodeErr = err
		return s
	}
	s.instr = instr
	return s
}

// Instruction exposes the decode this sandbox resolved at
// construction, for callers (the search driver) that need the
// operand/flag metadata alongside execution.
func (s *Sandbox) Instruction() decode.Instruction { return s.instr }

// CodeAddress implements the Execution Sandbox contract's
// code_address().
func (s *Sandbox) CodeAddress() uint64 { return codeBaseAddress }

func widthMask(width uint16) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(width) - 1
}

func signBit(width uint16) uint64 {
	return uint64(1) << uint(width-1)
}

func parityEven(v uint64) bool {
	return bits.OnesCount8(uint8(v))%2 == 0
}

func (s *Sandbox) extract(id reg.Id) uint64 {
	root := reg.LargestEnclosing(id, s.mode)
	width := reg.WidthBits(id, s.mode)
	offset := reg.Offset(id)
	v := s.regs[root] >> (uint(offset) * 8)
	return v & widthMask(width)
}

func (s *Sandbox) splice(id reg.Id, value uint64) {
	root := reg.LargestEnclosing(id, s.mode)
	width := reg.WidthBits(id, s.mode)
	offset := reg.Offset(id)
	m := widthMask(width)
	value &= m

	cur := s.regs[root]
	switch {
	case width == 64:
		s.regs[root] = value
	case width == 32 && offset == 0:
		// Writing a 32-bit GPR zero-extends into the full 64-bit root.
		s.regs[root] = value
	default:
		shift := uint(offset) * 8
		clear := m << shift
		s.regs[root] = (cur &^ clear) | (value << shift)
	}
}

// SetRegBytes implements the Execution Sandbox contract's
// set_reg_bytes(reg, bytes). bytes is little-endian and sized to id's
// own width; id may be a root register or any sub-register view.
func (s *Sandbox) SetRegBytes(id reg.Id, data []byte) {
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	s.splice(id, v)
}

// GetRegBytes implements get_reg_bytes(reg) -> bytes.
func (s *Sandbox) GetRegBytes(id reg.Id) []byte {
	width := reg.WidthBits(id, s.mode)
	v := s.extract(id)
	out := make([]byte, width/8)
	for i := range out {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// SetRegValue implements set_reg_value<T>(reg, T) for the uint64
// representation used throughout this module.
func (s *Sandbox) SetRegValue(id reg.Id, v uint64) { s.splice(id, v) }

// GetRegValue implements get_reg_value<T>(reg) -> T.
func (s *Sandbox) GetRegValue(id reg.Id) uint64 { return s.extract(id) }

// SetFlags loads the full 32-bit flags register before execution.
func (s *Sandbox) SetFlags(v uint32) { s.flags = v }

// Flags reads the full 32-bit flags register.
func (s *Sandbox) Flags() uint32 { return s.flags }

// ExecutionStatus implements execution_status().
func (s *Sandbox) ExecutionStatus() Status { return s.status }

// computed carries the boolean flag values one ALU operation derived,
// independent of which of them the mnemonic actually exposes.
type computed struct {
	CF, PF, AF, ZF, SF, OF bool
}

func zspFlags(width uint16, result uint64) (zf, sf, pf bool) {
	return result == 0, result&signBit(width) != 0, parityEven(result)
}

func addComputed(width uint16, a, b, result uint64) computed {
	zf, sf, pf := zspFlags(width, result)
	cf := result < (a & widthMask(width))
	of := (a&signBit(width) == b&signBit(width)) && (a&signBit(width) != result&signBit(width))
	af := (a&0xF)+(b&0xF) > 0xF
	return computed{CF: cf, PF: pf, AF: af, ZF: zf, SF: sf, OF: of}
}

func subComputed(width uint16, a, b, result uint64) computed {
	zf, sf, pf := zspFlags(width, result)
	cf := (a & widthMask(width)) < (b & widthMask(width))
	of := (a&signBit(width) != b&signBit(width)) && (b&signBit(width) == result&signBit(width))
	af := (a & 0xF) < (b & 0xF)
	return computed{CF: cf, PF: pf, AF: af, ZF: zf, SF: sf, OF: of}
}

func logicComputed(width uint16, result uint64) computed {
	zf, sf, pf := zspFlags(width, result)
	return computed{CF: false, PF: pf, AF: false, ZF: zf, SF: sf, OF: false}
}

func applyFlags(current uint32, eff decode.FlagEffects, c computed) uint32 {
	set := func(mask decode.FlagMask, bit bool, flagBit decode.FlagMask) uint32 {
		if mask&flagBit == 0 {
			return current
		}
		if bit {
			return current | uint32(flagBit)
		}
		return current &^ uint32(flagBit)
	}
	current = set(eff.Modified, c.CF, decode.FlagCF)
	current = set(eff.Modified, c.PF, decode.FlagPF)
	current = set(eff.Modified, c.AF, decode.FlagAF)
	current = set(eff.Modified, c.ZF, decode.FlagZF)
	current = set(eff.Modified, c.SF, decode.FlagSF)
	current = set(eff.Modified, c.OF, decode.FlagOF)
	current &^= uint32(eff.Set0)
	current |= uint32(eff.Set1)
	return current
}

func (s *Sandbox) operandValue(op decode.Operand, width uint16) uint64 {
	switch op.Type {
	case decode.OperandRegister:
		return s.extract(op.Reg)
	case decode.OperandImmediate:
		return op.ImmU & widthMask(width)
	default:
		return 0
	}
}

// Execute implements execute() -> bool ok, running the decoded
// instruction exactly once against this sandbox's register file.
func (s *Sandbox) Execute() (bool, error) {
	if s.decodeErr != nil {
		s.status = IllegalInstruction
		return true, nil
	}

	width := s.instr.OperandWidth
	ops := s.instr.Operands
	eff := s.instr.Flags
	s.status = Success

	switch s.instr.Mnemonic {
	case decode.MOV:
		s.splice(ops[0].Reg, s.operandValue(ops[1], width))

	case decode.ADD, decode.ADC:
		a := s.extract(ops[0].Reg)
		b := s.operandValue(ops[1], width)
		carry := uint64(0)
		if s.instr.Mnemonic == decode.ADC && s.flags&uint32(decode.FlagCF) != 0 {
			carry = 1
		}
		result := (a + b + carry) & widthMask(width)
		s.splice(ops[0].Reg, result)
		s.flags = applyFlags(s.flags, eff, addComputed(width, a, b+carry, result))

	case decode.SUB, decode.SBB, decode.CMP:
		a := s.extract(ops[0].Reg)
		b := s.operandValue(ops[1], width)
		borrow := uint64(0)
		if s.instr.Mnemonic == decode.SBB && s.flags&uint32(decode.FlagCF) != 0 {
			borrow = 1
		}
		result := (a - b - borrow) & widthMask(width)
		if s.instr.Mnemonic != decode.CMP {
			s.splice(ops[0].Reg, result)
		}
		s.flags = applyFlags(s.flags, eff, subComputed(width, a, b+borrow, result))

	case decode.AND, decode.TEST:
		a := s.extract(ops[0].Reg)
		b := s.operandValue(ops[1], width)
		result := a & b
		if s.instr.Mnemonic != decode.TEST {
			s.splice(ops[0].Reg, result)
		}
		s.flags = applyFlags(s.flags, eff, logicComputed(width, result))

	case decode.OR:
		a := s.extract(ops[0].Reg)
		b := s.operandValue(ops[1], width)
		result := a | b
		s.splice(ops[0].Reg, result)
		s.flags = applyFlags(s.flags, eff, logicComputed(width, result))

	case decode.XOR:
		a := s.extract(ops[0].Reg)
		b := s.operandValue(ops[1], width)
		result := a ^ b
		s.splice(ops[0].Reg, result)
		s.flags = applyFlags(s.flags, eff, logicComputed(width, result))

	case decode.NOT:
		result := (^s.extract(ops[0].Reg)) & widthMask(width)
		s.splice(ops[0].Reg, result)

	case decode.NEG:
		a := s.extract(ops[0].Reg)
		result := (0 - a) & widthMask(width)
		s.splice(ops[0].Reg, result)
		s.flags = applyFlags(s.flags, eff, subComputed(width, 0, a, result))

	case decode.INC, decode.DEC:
		a := s.extract(ops[0].Reg)
		delta := uint64(1)
		var result uint64
		var c computed
		if s.instr.Mnemonic == decode.INC {
			result = (a + delta) & widthMask(width)
			c = addComputed(width, a, delta, result)
		} else {
			result = (a - delta) & widthMask(width)
			c = subComputed(width, a, delta, result)
		}
		s.splice(ops[0].Reg, result)
		s.flags = applyFlags(s.flags, eff, c)

	case decode.LEA:
		mem := ops[1].Mem
		base := uint64(0)
		if mem.Base != reg.None {
			base = s.extract(mem.Base)
		}
		index := uint64(0)
		if mem.Index != reg.None {
			index = s.extract(mem.Index)
		}
		scale := uint64(mem.Scale)
		if scale == 0 {
			scale = 1
		}
		addr := base + index*scale + uint64(mem.Disp)
		s.splice(ops[0].Reg, addr&widthMask(s.instr.AddressWidth))

	case decode.BSWAP:
		// 16-bit-and-narrower BSWAP is an architecturally reserved
		// form; this sandbox models it as always producing zero,
		// matching the result_always_zero pruning rule applied to it
		// in the coverage matrix.
		if width <= 16 {
			s.splice(ops[0].Reg, 0)
			break
		}
		a := s.extract(ops[0].Reg)
		n := width / 8
		var result uint64
		for i := uint16(0); i < n; i++ {
			b := byte(a >> (i * 8))
			result |= uint64(b) << ((n - 1 - i) * 8)
		}
		s.splice(ops[0].Reg, result)

	case decode.BT, decode.BTC, decode.BTR, decode.BTS:
		a := s.extract(ops[0].Reg)
		pos := s.operandValue(ops[1], width) % uint64(width)
		bit := (a >> pos) & 1
		result := a
		switch s.instr.Mnemonic {
		case decode.BTC:
			result ^= 1 << pos
		case decode.BTR:
			result &^= 1 << pos
		case decode.BTS:
			result |= 1 << pos
		}
		if s.instr.Mnemonic != decode.BT {
			s.splice(ops[0].Reg, result)
		}
		s.flags = applyFlags(s.flags, eff, computed{CF: bit != 0})

	case decode.SHL, decode.SHR, decode.SAR, decode.ROL, decode.ROR:
		s.executeShiftOrRotate(ops, width, eff)

	case decode.MUL:
		a := s.extract(ops[0].Reg)
		b := s.extract(ops[1].Reg) // implicit accumulator, attached by decode
		loMasked := (a * b) & widthMask(width)
		hiPart := fullProductHigh(a, b, width)
		s.splice(ops[1].Reg, loMasked)
		s.splice(ops[2].Reg, hiPart)
		c := computed{CF: hiPart != 0, OF: hiPart != 0}
		s.flags = applyFlags(s.flags, eff, c)

	case decode.IMUL:
		a := int64(signExtend(s.extract(ops[0].Reg), width))
		b := int64(signExtend(s.operandValue(ops[1], width), width))
		full := a * b
		result := uint64(full) & widthMask(width)
		s.splice(ops[0].Reg, result)
		truncatedSignExtended := int64(signExtend(result, width))
		overflow := full != truncatedSignExtended
		s.flags = applyFlags(s.flags, eff, computed{CF: overflow, OF: overflow})

	case decode.DIV:
		divisor := s.extract(ops[0].Reg)
		lo := s.extract(ops[1].Reg)
		hi := s.extract(ops[2].Reg)
		if divisor == 0 {
			s.status = ExceptionIntDivideError
			return true, nil
		}
		var quotient, remainder uint64
		if width == 64 {
			if hi >= divisor {
				s.status = ExceptionIntOverflow
				return true, nil
			}
			quotient, remainder = bits.Div64(hi, lo, divisor)
		} else {
			dividend := (hi << width) | lo
			quotient = dividend / divisor
			remainder = dividend % divisor
			if quotient > widthMask(width) {
				s.status = ExceptionIntOverflow
				return true, nil
			}
		}
		s.splice(ops[1].Reg, quotient)
		s.splice(ops[2].Reg, remainder)

	default:
		if cond, ok := conditionEval[s.instr.Mnemonic]; ok {
			var v uint64
			if cond(s.flags) {
				v = 1
			}
			s.splice(ops[0].Reg, v)
		}
	}

	return true, nil
}

func signExtend(v uint64, width uint16) uint64 {
	if width >= 64 {
		return v
	}
	if v&signBit(width) == 0 {
		return v
	}
	return v | ^widthMask(width)
}

func fullProductHigh(a, b uint64, width uint16) uint64 {
	if width == 64 {
		hi, _ := bits.Mul64(a, b)
		return hi
	}
	full := a * b
	return (full >> width) & widthMask(width)
}

// conditionEval evaluates each SETcc variant's condition against the
// flags register.
var conditionEval = map[decode.Mnemonic]func(flags uint32) bool{
	decode.SETB:   func(f uint32) bool { return f&uint32(decode.FlagCF) != 0 },
	decode.SETNB:  func(f uint32) bool { return f&uint32(decode.FlagCF) == 0 },
	decode.SETZ:   func(f uint32) bool { return f&uint32(decode.FlagZF) != 0 },
	decode.SETNZ:  func(f uint32) bool { return f&uint32(decode.FlagZF) == 0 },
	decode.SETS:   func(f uint32) bool { return f&uint32(decode.FlagSF) != 0 },
	decode.SETNS:  func(f uint32) bool { return f&uint32(decode.FlagSF) == 0 },
	decode.SETO:   func(f uint32) bool { return f&uint32(decode.FlagOF) != 0 },
	decode.SETNO:  func(f uint32) bool { return f&uint32(decode.FlagOF) == 0 },
	decode.SETP:   func(f uint32) bool { return f&uint32(decode.FlagPF) != 0 },
	decode.SETNP:  func(f uint32) bool { return f&uint32(decode.FlagPF) == 0 },
	decode.SETL:   func(f uint32) bool { return sfFlag(f) != ofFlag(f) },
	decode.SETGE:  func(f uint32) bool { return sfFlag(f) == ofFlag(f) },
	decode.SETLE:  func(f uint32) bool { return sfFlag(f) != ofFlag(f) || f&uint32(decode.FlagZF) != 0 },
	decode.SETG:   func(f uint32) bool { return sfFlag(f) == ofFlag(f) && f&uint32(decode.FlagZF) == 0 },
}

func sfFlag(f uint32) bool { return f&uint32(decode.FlagSF) != 0 }
func ofFlag(f uint32) bool { return f&uint32(decode.FlagOF) != 0 }

func (s *Sandbox) executeShiftOrRotate(ops []decode.Operand, width uint16, eff decode.FlagEffects) {
	a := s.extract(ops[0].Reg)
	countMask := uint64(0x1F)
	if width == 64 {
		countMask = 0x3F
	}
	count := s.operandValue(ops[1], width) & countMask
	if count == 0 {
		return
	}

	var result uint64
	var cf, of bool
	m := widthMask(width)

	switch s.instr.Mnemonic {
	case decode.SHL:
		shifted := a << count
		result = shifted & m
		cf = count <= uint64(width) && (a<<(count-1))&signBit(width) != 0
		of = result&signBit(width) != 0 != cf
	case decode.SHR:
		cf = (a>>(count-1))&1 != 0
		result = (a & m) >> count
		of = count == 1 && a&signBit(width) != 0
	case decode.SAR:
		signed := int64(signExtend(a, width))
		cf = (a>>(count-1))&1 != 0
		result = uint64(signed>>count) & m
		of = false
	case decode.ROL:
		n := uint(width)
		c := uint(count) % n
		result = ((a << c) | (a >> (n - c))) & m
		cf = result&1 != 0
		of = cf != (result&signBit(width) != 0)
	case decode.ROR:
		n := uint(width)
		c := uint(count) % n
		result = ((a >> c) | (a << (n - c))) & m
		cf = result&signBit(width) != 0
		msb := result & signBit(width)
		secondMsb := (result << 1) & signBit(width)
		of = (msb != 0) != (secondMsb != 0)
	}

	s.splice(ops[0].Reg, result)
	zf, sf, pf := zspFlags(width, result)
	s.flags = applyFlags(s.flags, eff, computed{CF: cf, OF: of, ZF: zf, SF: sf, PF: pf})
}
