// Package classify implements the Operand Classifier (spec.md §4.1,
// component C1): deriving the read/write register sets, flag-effect
// masks, and register-aliasing canonicalization a decoded instruction
// implies.
package classify

import (
	"sort"

	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/reg"
)

// Result holds the Operand Classifier's output for one decoded
// instruction.
type Result struct {
	RegsModified []reg.Id
	RegsRead     []reg.Id
	FlagsModified decode.FlagMask
	FlagsSet0     decode.FlagMask
	FlagsSet1     decode.FlagMask
	FlagsRead     decode.FlagMask
}

// Classify runs the Operand Classifier over a decoded instruction.
func Classify(instr decode.Instruction) Result {
	return Result{
		RegsModified:  regsModified(instr),
		RegsRead:      regsRead(instr),
		FlagsModified: instr.Flags.Modified,
		FlagsSet0:     instr.Flags.Set0,
		FlagsSet1:     instr.Flags.Set1,
		FlagsRead:     instr.Flags.Tested,
	}
}

// sortRegs orders registers widest-first, breaking ties by register
// declaration (reg.Id) order, per spec.md §4.1's sort contract.
func sortRegs(mode reg.Mode, regs []reg.Id) []reg.Id {
	out := append([]reg.Id(nil), regs...)
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := reg.WidthBits(out[i], mode), reg.WidthBits(out[j], mode)
		if wi != wj {
			return wi > wj
		}
		return out[i] < out[j]
	})
	return out
}

func regsModified(instr decode.Instruction) []reg.Id {
	seen := map[reg.Id]bool{}
	var out []reg.Id
	for _, op := range instr.Operands {
		if op.Type != decode.OperandRegister {
			continue
		}
		if op.Actions&decode.ActionWrite == 0 {
			continue
		}
		if reg.Filtered(op.Reg) {
			continue
		}
		if !seen[op.Reg] {
			seen[op.Reg] = true
			out = append(out, op.Reg)
		}
	}
	return sortRegs(instr.Mode, out)
}

// RegOffset returns the byte offset within the enclosing root register
// at which a sub-register's view begins (1 for AH/BH/CH/DH, else 0).
func RegOffset(r reg.Id) uint8 {
	return reg.Offset(r)
}

func regsRead(instr decode.Instruction) []reg.Id {
	var raw []reg.Id
	add := func(r reg.Id) {
		if r != reg.None && !reg.Filtered(r) {
			raw = append(raw, r)
		}
	}

	for _, op := range instr.Operands {
		switch op.Type {
		case decode.OperandRegister:
			if op.Actions&decode.ActionRead != 0 {
				add(op.Reg)
			}
		case decode.OperandMemory:
			add(op.Mem.Base)
			add(op.Mem.Index)
		}
	}

	// Registers narrower than 32 bits are semantically read even when
	// marked pure-write: the upper bits of their enclosing root are
	// preserved across the instruction.
	for _, op := range instr.Operands {
		if op.Type != decode.OperandRegister {
			continue
		}
		cls := reg.ClassOf(op.Reg)
		if cls == reg.ClassGPR8L || cls == reg.ClassGPR8H || cls == reg.ClassGPR16 {
			add(op.Reg)
		}
	}

	return sortRegs(instr.Mode, aliasCollapse(instr.Mode, raw))
}

// aliasCollapse groups registers by their largest-enclosing root and
// keeps, per group, the widest member seen — then remaps high-byte
// registers (AH/BH/CH/DH) to their word counterpart so downstream
// indexing uses a contiguous low-offset view.
func aliasCollapse(mode reg.Mode, regs []reg.Id) []reg.Id {
	byRoot := map[reg.Id]reg.Id{}
	order := []reg.Id{}
	for _, r := range regs {
		root := reg.LargestEnclosing(r, mode)
		remapped := reg.RemapHighByte(r)
		if cur, ok := byRoot[root]; ok {
			if reg.WidthBits(remapped, mode) > reg.WidthBits(cur, mode) {
				byRoot[root] = remapped
			}
		} else {
			byRoot[root] = remapped
			order = append(order, root)
		}
	}

	out := make([]reg.Id, 0, len(order))
	seen := map[reg.Id]bool{}
	for _, root := range order {
		r := byRoot[root]
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
