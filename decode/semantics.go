package decode

import "github.com/sarchlab/m2sim/reg"

// actionTemplate gives the read/write actions for each *explicit*
// operand position, in the dst-first order x86asm.Inst.Args reports.
// Mnemonics with implicit operands (DIV, MUL) attach them in
// attachImplicitOperands instead of here.
var actionTemplate = map[Mnemonic][]Action{
	MOV:   {ActionWrite, ActionRead},
	ADD:   {ActionRead | ActionWrite, ActionRead},
	ADC:   {ActionRead | ActionWrite, ActionRead},
	SUB:   {ActionRead | ActionWrite, ActionRead},
	SBB:   {ActionRead | ActionWrite, ActionRead},
	AND:   {ActionRead | ActionWrite, ActionRead},
	OR:    {ActionRead | ActionWrite, ActionRead},
	XOR:   {ActionRead | ActionWrite, ActionRead},
	CMP:   {ActionRead, ActionRead},
	TEST:  {ActionRead, ActionRead},
	LEA:   {ActionWrite, ActionRead},
	INC:   {ActionRead | ActionWrite},
	DEC:   {ActionRead | ActionWrite},
	NOT:   {ActionRead | ActionWrite},
	NEG:   {ActionRead | ActionWrite},
	DIV:   {ActionRead},
	MUL:   {ActionRead},
	IMUL:  {ActionRead | ActionWrite, ActionRead},
	BSWAP: {ActionRead | ActionWrite},
	BT:    {ActionRead, ActionRead},
	BTC:   {ActionRead | ActionWrite, ActionRead},
	BTR:   {ActionRead | ActionWrite, ActionRead},
	BTS:   {ActionRead | ActionWrite, ActionRead},
	SHL:   {ActionRead | ActionWrite, ActionRead},
	SHR:   {ActionRead | ActionWrite, ActionRead},
	SAR:   {ActionRead | ActionWrite, ActionRead},
	ROL:   {ActionRead | ActionWrite, ActionRead},
	ROR:   {ActionRead | ActionWrite, ActionRead},
	SETB:  {ActionWrite},
	SETNB: {ActionWrite},
	SETZ:  {ActionWrite},
	SETNZ: {ActionWrite},
	SETS:  {ActionWrite},
	SETNS: {ActionWrite},
	SETO:  {ActionWrite},
	SETNO: {ActionWrite},
	SETP:  {ActionWrite},
	SETNP: {ActionWrite},
	SETL:  {ActionWrite},
	SETGE: {ActionWrite},
	SETLE: {ActionWrite},
	SETG:  {ActionWrite},
}

// flagEffectsTable gives each mnemonic's flag-effect bitmaps, in the
// Decoder contract's four-bitmap shape (spec.md §6), which has no
// fifth "undefined" category. AF after a logical instruction
// (architecturally unspecified) is folded into Modified; the other
// unspecified flags (e.g. ZF/SF/PF/AF after MUL, IMUL and the bit
// tests, AF after shifts) appear in none of the bitmaps.
var flagEffectsTable = map[Mnemonic]FlagEffects{
	ADD: {Modified: FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF},
	ADC: {Modified: FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF, Tested: FlagCF},
	SUB: {Modified: FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF},
	SBB: {Modified: FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF, Tested: FlagCF},
	CMP: {Modified: FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF},
	AND: {Modified: FlagPF | FlagAF | FlagZF | FlagSF, Set0: FlagCF | FlagOF},
	OR:  {Modified: FlagPF | FlagAF | FlagZF | FlagSF, Set0: FlagCF | FlagOF},
	XOR: {Modified: FlagPF | FlagAF | FlagZF | FlagSF, Set0: FlagCF | FlagOF},
	TEST: {Modified: FlagPF | FlagAF | FlagZF | FlagSF, Set0: FlagCF | FlagOF},
	INC: {Modified: FlagPF | FlagAF | FlagZF | FlagSF | FlagOF},
	DEC: {Modified: FlagPF | FlagAF | FlagZF | FlagSF | FlagOF},
	NEG: {Modified: FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF},
	MUL:  {Modified: FlagCF | FlagOF},
	IMUL: {Modified: FlagCF | FlagOF},
	BT:  {Modified: FlagCF},
	BTC: {Modified: FlagCF},
	BTR: {Modified: FlagCF},
	BTS: {Modified: FlagCF},
	SHL: {Modified: FlagCF | FlagPF | FlagZF | FlagSF | FlagOF, Tested: 0},
	SHR: {Modified: FlagCF | FlagPF | FlagZF | FlagSF | FlagOF},
	SAR: {Modified: FlagCF | FlagPF | FlagZF | FlagSF | FlagOF},
	ROL: {Modified: FlagCF | FlagOF},
	ROR: {Modified: FlagCF | FlagOF},
}

// testedByCondition gives the flags each SETcc variant reads to
// evaluate its condition.
var testedByCondition = map[Mnemonic]FlagMask{
	SETB:  FlagCF,
	SETNB: FlagCF,
	SETZ:  FlagZF,
	SETNZ: FlagZF,
	SETS:  FlagSF,
	SETNS: FlagSF,
	SETO:  FlagOF,
	SETNO: FlagOF,
	SETP:  FlagPF,
	SETNP: FlagPF,
	SETL:  FlagSF | FlagOF,
	SETGE: FlagSF | FlagOF,
	SETLE: FlagZF | FlagSF | FlagOF,
	SETG:  FlagZF | FlagSF | FlagOF,
}

func flagEffectsFor(m Mnemonic) FlagEffects {
	if fe, ok := flagEffectsTable[m]; ok {
		return fe
	}
	if tested, ok := testedByCondition[m]; ok {
		return FlagEffects{Tested: tested}
	}
	return FlagEffects{}
}

// attachImplicitOperands appends the hidden accumulator operands DIV
// and MUL read and write, beyond the single explicit divisor/
// multiplicand operand x86asm reports. Supported only at 32-bit and
// 64-bit operand widths (see DESIGN.md): the irregular AX/AH:AL and
// DX:AX pairings used by 8-bit and 16-bit forms are out of scope.
func attachImplicitOperands(m Mnemonic, width uint16, ops []Operand) []Operand {
	if m != DIV && m != MUL {
		return ops
	}
	var lo, hi reg.Id
	switch width {
	case 32:
		lo, hi = reg.EAX, reg.EDX
	case 64:
		lo, hi = reg.RAX, reg.RDX
	default:
		return ops
	}
	// lo (RAX/EAX) is always a read-modify-write: DIV's dividend low
	// half, MUL's multiplicand and the low half of its product. hi
	// (RDX/EDX) is read-modify-write for DIV (the dividend high half
	// and remainder) but write-only for MUL, which never reads RDX/EDX
	// as an input — it only ever writes the high half of the product.
	hiAction := ActionWrite
	if m == DIV {
		hiAction = ActionRead | ActionWrite
	}
	ops = append(ops,
		Operand{Type: OperandRegister, Actions: ActionRead | ActionWrite, Reg: lo},
		Operand{Type: OperandRegister, Actions: hiAction, Reg: hi},
	)
	return ops
}
