// Package reg models the x86-64 architectural register file: opaque
// register identifiers, their width/class, and the aliasing rules
// (sub-register -> largest-enclosing root) the rest of the oracle
// relies on.
package reg

// Id is an opaque identifier of an architectural register (byte, word,
// dword, or qword GPR; the flags pseudo-register; or None).
type Id uint16

// Mode selects which root registers a sub-register enclosing-query
// resolves to: the full 64-bit file in long mode, or the 32-bit file
// in legacy/compatibility mode.
type Mode uint8

const (
	ModeLong64 Mode = iota
	ModeLegacy32
)

// Class groups registers that share a width and enclosing-rule shape.
type Class uint8

const (
	ClassNone Class = iota
	ClassGPR8L
	ClassGPR8H
	ClassGPR16
	ClassGPR32
	ClassGPR64
	ClassFlags
	ClassInstrPointer
)

// Register identifiers. None is the zero value so an unset Id is
// always recognizable. Flags is a pseudo-register used only inside
// coverage cells to mean "the flags register" in the abstract; it is
// distinct from the architectural EFLAGS/RFLAGS registers, which are
// filtered whenever they appear as explicit operands (see Filtered).
const (
	None Id = iota

	AL
	CL
	DL
	BL
	SPL
	BPL
	SIL
	DIL
	R8B
	R9B
	R10B
	R11B
	R12B
	R13B
	R14B
	R15B

	AH
	CH
	DH
	BH

	AX
	CX
	DX
	BX
	SP
	BP
	SI
	DI
	R8W
	R9W
	R10W
	R11W
	R12W
	R13W
	R14W
	R15W

	EAX
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
	R8D
	R9D
	R10D
	R11D
	R12D
	R13D
	R14D
	R15D

	RAX
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	EFLAGS
	RFLAGS
	EIP
	RIP

	Flags
)

type info struct {
	name    string
	class   Class
	bits    uint16
	family  int // index into the 16 general-purpose register families, or -1
	offset  uint8
}

// family maps each GPR to one of the 16 architectural register
// families (0=A, 1=C, 2=D, 3=B, 4=SP, 5=BP, 6=SI, 7=DI, 8..15=R8..R15).
var table = map[Id]info{
	None: {"NONE", ClassNone, 0, -1, 0},

	AL:  {"AL", ClassGPR8L, 8, 0, 0},
	CL:  {"CL", ClassGPR8L, 8, 1, 0},
	DL:  {"DL", ClassGPR8L, 8, 2, 0},
	BL:  {"BL", ClassGPR8L, 8, 3, 0},
	SPL: {"SPL", ClassGPR8L, 8, 4, 0},
	BPL: {"BPL", ClassGPR8L, 8, 5, 0},
	SIL: {"SIL", ClassGPR8L, 8, 6, 0},
	DIL: {"DIL", ClassGPR8L, 8, 7, 0},
	R8B: {"R8B", ClassGPR8L, 8, 8, 0},
	R9B: {"R9B", ClassGPR8L, 8, 9, 0},
	R10B: {"R10B", ClassGPR8L, 8, 10, 0},
	R11B: {"R11B", ClassGPR8L, 8, 11, 0},
	R12B: {"R12B", ClassGPR8L, 8, 12, 0},
	R13B: {"R13B", ClassGPR8L, 8, 13, 0},
	R14B: {"R14B", ClassGPR8L, 8, 14, 0},
	R15B: {"R15B", ClassGPR8L, 8, 15, 0},

	AH: {"AH", ClassGPR8H, 8, 0, 1},
	CH: {"CH", ClassGPR8H, 8, 1, 1},
	DH: {"DH", ClassGPR8H, 8, 2, 1},
	BH: {"BH", ClassGPR8H, 8, 3, 1},

	AX:   {"AX", ClassGPR16, 16, 0, 0},
	CX:   {"CX", ClassGPR16, 16, 1, 0},
	DX:   {"DX", ClassGPR16, 16, 2, 0},
	BX:   {"BX", ClassGPR16, 16, 3, 0},
	SP:   {"SP", ClassGPR16, 16, 4, 0},
	BP:   {"BP", ClassGPR16, 16, 5, 0},
	SI:   {"SI", ClassGPR16, 16, 6, 0},
	DI:   {"DI", ClassGPR16, 16, 7, 0},
	R8W:  {"R8W", ClassGPR16, 16, 8, 0},
	R9W:  {"R9W", ClassGPR16, 16, 9, 0},
	R10W: {"R10W", ClassGPR16, 16, 10, 0},
	R11W: {"R11W", ClassGPR16, 16, 11, 0},
	R12W: {"R12W", ClassGPR16, 16, 12, 0},
	R13W: {"R13W", ClassGPR16, 16, 13, 0},
	R14W: {"R14W", ClassGPR16, 16, 14, 0},
	R15W: {"R15W", ClassGPR16, 16, 15, 0},

	EAX:  {"EAX", ClassGPR32, 32, 0, 0},
	ECX:  {"ECX", ClassGPR32, 32, 1, 0},
	EDX:  {"EDX", ClassGPR32, 32, 2, 0},
	EBX:  {"EBX", ClassGPR32, 32, 3, 0},
	ESP:  {"ESP", ClassGPR32, 32, 4, 0},
	EBP:  {"EBP", ClassGPR32, 32, 5, 0},
	ESI:  {"ESI", ClassGPR32, 32, 6, 0},
	EDI:  {"EDI", ClassGPR32, 32, 7, 0},
	R8D:  {"R8D", ClassGPR32, 32, 8, 0},
	R9D:  {"R9D", ClassGPR32, 32, 9, 0},
	R10D: {"R10D", ClassGPR32, 32, 10, 0},
	R11D: {"R11D", ClassGPR32, 32, 11, 0},
	R12D: {"R12D", ClassGPR32, 32, 12, 0},
	R13D: {"R13D", ClassGPR32, 32, 13, 0},
	R14D: {"R14D", ClassGPR32, 32, 14, 0},
	R15D: {"R15D", ClassGPR32, 32, 15, 0},

	RAX: {"RAX", ClassGPR64, 64, 0, 0},
	RCX: {"RCX", ClassGPR64, 64, 1, 0},
	RDX: {"RDX", ClassGPR64, 64, 2, 0},
	RBX: {"RBX", ClassGPR64, 64, 3, 0},
	RSP: {"RSP", ClassGPR64, 64, 4, 0},
	RBP: {"RBP", ClassGPR64, 64, 5, 0},
	RSI: {"RSI", ClassGPR64, 64, 6, 0},
	RDI: {"RDI", ClassGPR64, 64, 7, 0},
	R8:  {"R8", ClassGPR64, 64, 8, 0},
	R9:  {"R9", ClassGPR64, 64, 9, 0},
	R10: {"R10", ClassGPR64, 64, 10, 0},
	R11: {"R11", ClassGPR64, 64, 11, 0},
	R12: {"R12", ClassGPR64, 64, 12, 0},
	R13: {"R13", ClassGPR64, 64, 13, 0},
	R14: {"R14", ClassGPR64, 64, 14, 0},
	R15: {"R15", ClassGPR64, 64, 15, 0},

	EFLAGS: {"EFLAGS", ClassFlags, 32, -1, 0},
	RFLAGS: {"RFLAGS", ClassFlags, 64, -1, 0},
	EIP:    {"EIP", ClassInstrPointer, 32, -1, 0},
	RIP:    {"RIP", ClassInstrPointer, 64, -1, 0},

	Flags: {"FLAGS", ClassFlags, 32, -1, 0},
}

// familyRoot64[f] / familyRoot32[f] give the largest-enclosing register
// of family f in each mode.
var familyRoot64 = [16]Id{RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15}
var familyRoot32 = [16]Id{EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI, R8D, R9D, R10D, R11D, R12D, R13D, R14D, R15D}

// highByteToWord remaps AH/BH/CH/DH to their word-sized counterpart,
// per spec.md §4.1's "remap high-byte registers" step.
var highByteToWord = map[Id]Id{AH: AX, BH: BX, CH: CX, DH: DX}

// String returns the canonical uppercase register name used in the
// serialized output format.
func (r Id) String() string {
	if i, ok := table[r]; ok {
		return i.name
	}
	return "NONE"
}

// ClassOf reports the register class of r.
func ClassOf(r Id) Class {
	return table[r].class
}

// WidthBits reports the bit width of r. Mode is accepted for interface
// symmetry with LargestEnclosing; a register's own width never
// depends on machine mode in this model.
func WidthBits(r Id, _ Mode) uint16 {
	return table[r].bits
}

// LargestEnclosing returns the largest architectural register that
// encloses r under the given machine mode: a GPR family's root is its
// 64-bit member in long mode and its 32-bit member in legacy mode.
// Flags and instruction-pointer registers enclose themselves.
func LargestEnclosing(r Id, mode Mode) Id {
	inf, ok := table[r]
	if !ok || inf.family < 0 {
		return r
	}
	if mode == ModeLong64 {
		return familyRoot64[inf.family]
	}
	return familyRoot32[inf.family]
}

// Offset returns the byte offset within the enclosing root register at
// which r's sub-register view begins: 1 for AH/BH/CH/DH, else 0.
func Offset(r Id) uint8 {
	return table[r].offset
}

// RemapHighByte maps AH/BH/CH/DH to their enclosing word register
// (AX/BX/CX/DX); every other register maps to itself.
func RemapHighByte(r Id) Id {
	if w, ok := highByteToWord[r]; ok {
		return w
	}
	return r
}

// Filtered reports whether r must never be treated as an input or
// output of interest: instruction-pointer variants and the
// architectural flags registers when referenced directly as operands.
func Filtered(r Id) bool {
	switch r {
	case None, EIP, RIP, EFLAGS, RFLAGS:
		return true
	}
	return false
}

// Bytes is a little-endian byte sequence sized to a register's width.
type Bytes []byte

// Clone returns an independent copy of b.
func (b Bytes) Clone() Bytes {
	out := make(Bytes, len(b))
	copy(out, b)
	return out
}
