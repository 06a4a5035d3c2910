package decode

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/sarchlab/m2sim/reg"
)

// X86AsmDecoder implements Decoder using golang.org/x/arch/x86/x86asm
// for the structural decode (which bytes mean which registers, memory
// operands, and immediates) layered with this package's static
// per-mnemonic action/flag-effect tables, which x86asm itself does not
// carry (it is a disassembler, not a semantics database).
type X86AsmDecoder struct{}

// NewX86AsmDecoder constructs the default Decoder.
func NewX86AsmDecoder() *X86AsmDecoder {
	return &X86AsmDecoder{}
}

// Decode implements Decoder.
func (d *X86AsmDecoder) Decode(mode reg.Mode, address uint64, code []byte) (Instruction, error) {
	bits := 64
	if mode == reg.ModeLegacy32 {
		bits = 32
	}

	inst, err := x86asm.Decode(code, bits)
	if err != nil {
		return Instruction{}, fmt.Errorf("decode: %w", err)
	}

	mnemonic, ok := mnemonicFromOpString(inst.Op.String())
	if !ok {
		return Instruction{}, fmt.Errorf("decode: unsupported mnemonic %q", inst.Op.String())
	}

	ops, err := decodeOperands(mnemonic, inst, mode)
	if err != nil {
		return Instruction{}, err
	}

	width := operandWidth(mnemonic, ops)

	out := Instruction{
		Mnemonic:     mnemonic,
		Mode:         mode,
		AddressWidth: addressWidth(mode),
		OperandWidth: width,
		Operands:     ops,
		Flags:        flagEffectsFor(mnemonic),
	}
	out.Text = renderText(out)

	out.Operands = attachImplicitOperands(mnemonic, width, ops)
	return out, nil
}

func addressWidth(mode reg.Mode) uint16 {
	if mode == reg.ModeLegacy32 {
		return 32
	}
	return 64
}

// decodeOperands walks x86asm's decoded Args (dst-first) and attaches
// this package's per-mnemonic read/write action template.
func decodeOperands(m Mnemonic, inst x86asm.Inst, mode reg.Mode) ([]Operand, error) {
	tmpl := actionTemplate[m]

	var ops []Operand
	pos := 0
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}

		var op Operand
		switch a := arg.(type) {
		case x86asm.Reg:
			id := regFromX86Asm(a)
			if id == reg.None {
				return nil, fmt.Errorf("decode: unrecognized register %q", a.String())
			}
			op = Operand{Type: OperandRegister, Reg: id}
		case x86asm.Mem:
			op = Operand{
				Type: OperandMemory,
				Mem: MemOperand{
					Base:  regFromX86Asm(a.Base),
					Index: regFromX86Asm(a.Index),
					Scale: a.Scale,
					Disp:  a.Disp,
				},
			}
		case x86asm.Imm:
			v := int64(a)
			op = Operand{Type: OperandImmediate, ImmS: v, ImmU: uint64(v)}
		default:
			return nil, fmt.Errorf("decode: unsupported operand kind %T", a)
		}

		if pos < len(tmpl) {
			op.Actions = tmpl[pos]
		}
		ops = append(ops, op)
		pos++
	}

	return ops, nil
}

// operandWidth derives the instruction's nominal operand width: the
// width of the widest register operand (for SETcc, its byte-sized
// destination), falling back to 32 (the common default operand size
// in 64-bit mode) when no register operand is present.
func operandWidth(m Mnemonic, ops []Operand) uint16 {
	var best uint16
	for _, op := range ops {
		if op.Type != OperandRegister {
			continue
		}
		w := reg.WidthBits(op.Reg, reg.ModeLong64)
		if w > best {
			best = w
		}
	}
	if best == 0 {
		return 32
	}
	return best
}

var mnemonicSynonyms = map[string]Mnemonic{
	"MOV":   MOV,
	"ADD":   ADD,
	"ADC":   ADC,
	"SUB":   SUB,
	"SBB":   SBB,
	"AND":   AND,
	"OR":    OR,
	"XOR":   XOR,
	"CMP":   CMP,
	"TEST":  TEST,
	"LEA":   LEA,
	"INC":   INC,
	"DEC":   DEC,
	"NOT":   NOT,
	"NEG":   NEG,
	"DIV":   DIV,
	"MUL":   MUL,
	"IMUL":  IMUL,
	"BSWAP": BSWAP,
	"BT":    BT,
	"BTC":   BTC,
	"BTR":   BTR,
	"BTS":   BTS,
	"SHL":   SHL,
	"SAL":   SHL,
	"SHR":   SHR,
	"SAR":   SAR,
	"ROL":   ROL,
	"ROR":   ROR,
	"SETB":   SETB,
	"SETC":   SETB,
	"SETNAE": SETB,
	"SETAE":  SETNB,
	"SETNB":  SETNB,
	"SETNC":  SETNB,
	"SETE":   SETZ,
	"SETZ":   SETZ,
	"SETNE":  SETNZ,
	"SETNZ":  SETNZ,
	"SETS":   SETS,
	"SETNS":  SETNS,
	"SETO":   SETO,
	"SETNO":  SETNO,
	"SETP":   SETP,
	"SETPE":  SETP,
	"SETNP":  SETNP,
	"SETPO":  SETNP,
	"SETL":   SETL,
	"SETNGE": SETL,
	"SETGE":  SETGE,
	"SETNL":  SETGE,
	"SETLE":  SETLE,
	"SETNG":  SETLE,
	"SETG":   SETG,
	"SETNLE": SETG,
}

func mnemonicFromOpString(s string) (Mnemonic, bool) {
	m, ok := mnemonicSynonyms[strings.ToUpper(strings.TrimSpace(s))]
	return m, ok
}

var regByName = buildRegByName()

func buildRegByName() map[string]reg.Id {
	m := map[string]reg.Id{}
	add := func(id reg.Id, names ...string) {
		for _, n := range names {
			m[n] = id
		}
	}
	add(reg.AL, "AL")
	add(reg.CL, "CL")
	add(reg.DL, "DL")
	add(reg.BL, "BL")
	add(reg.SPL, "SPL", "SPB")
	add(reg.BPL, "BPL", "BPB")
	add(reg.SIL, "SIL", "SIB")
	add(reg.DIL, "DIL", "DIB")
	add(reg.R8B, "R8B")
	add(reg.R9B, "R9B")
	add(reg.R10B, "R10B")
	add(reg.R11B, "R11B")
	add(reg.R12B, "R12B")
	add(reg.R13B, "R13B")
	add(reg.R14B, "R14B")
	add(reg.R15B, "R15B")
	add(reg.AH, "AH")
	add(reg.CH, "CH")
	add(reg.DH, "DH")
	add(reg.BH, "BH")
	add(reg.AX, "AX")
	add(reg.CX, "CX")
	add(reg.DX, "DX")
	add(reg.BX, "BX")
	add(reg.SP, "SP")
	add(reg.BP, "BP")
	add(reg.SI, "SI")
	add(reg.DI, "DI")
	add(reg.R8W, "R8W")
	add(reg.R9W, "R9W")
	add(reg.R10W, "R10W")
	add(reg.R11W, "R11W")
	add(reg.R12W, "R12W")
	add(reg.R13W, "R13W")
	add(reg.R14W, "R14W")
	add(reg.R15W, "R15W")
	add(reg.EAX, "EAX")
	add(reg.ECX, "ECX")
	add(reg.EDX, "EDX")
	add(reg.EBX, "EBX")
	add(reg.ESP, "ESP")
	add(reg.EBP, "EBP")
	add(reg.ESI, "ESI")
	add(reg.EDI, "EDI")
	add(reg.R8D, "R8D")
	add(reg.R9D, "R9D")
	add(reg.R10D, "R10D")
	add(reg.R11D, "R11D")
	add(reg.R12D, "R12D")
	add(reg.R13D, "R13D")
	add(reg.R14D, "R14D")
	add(reg.R15D, "R15D")
	add(reg.RAX, "RAX")
	add(reg.RCX, "RCX")
	add(reg.RDX, "RDX")
	add(reg.RBX, "RBX")
	add(reg.RSP, "RSP")
	add(reg.RBP, "RBP")
	add(reg.RSI, "RSI")
	add(reg.RDI, "RDI")
	add(reg.R8, "R8")
	add(reg.R9, "R9")
	add(reg.R10, "R10")
	add(reg.R11, "R11")
	add(reg.R12, "R12")
	add(reg.R13, "R13")
	add(reg.R14, "R14")
	add(reg.R15, "R15")
	add(reg.RIP, "RIP")
	add(reg.EIP, "EIP")
	return m
}

func regFromX86Asm(r x86asm.Reg) reg.Id {
	if r == 0 {
		return reg.None
	}
	if id, ok := regByName[strings.ToUpper(r.String())]; ok {
		return id
	}
	return reg.None
}

func renderText(instr Instruction) string {
	var b strings.Builder
	b.WriteString(instr.Mnemonic.String())
	for i, op := range instr.Operands {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		switch op.Type {
		case OperandRegister:
			b.WriteString(op.Reg.String())
		case OperandMemory:
			fmt.Fprintf(&b, "[%s+%s*%d+0x%X]", op.Mem.Base, op.Mem.Index, op.Mem.Scale, op.Mem.Disp)
		case OperandImmediate:
			fmt.Fprintf(&b, "0x%X", op.ImmU)
		}
	}
	return b.String()
}
