// Package serialize implements the output format of spec.md §6: one
// text file per mnemonic, one header line per TestGroup followed by
// one line per TestEntry.
package serialize

import (
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/record"
	"github.com/sarchlab/m2sim/reg"
)

// Path returns the output file path for a mnemonic under dir, per
// spec.md §6: "testdata/<MNEMONIC>.txt".
func Path(dir string, m decode.Mnemonic) string {
	return filepath.Join(dir, m.String()+".txt")
}

// WriteGroups serializes one mnemonic's TestGroups to w in the format
// spec.md §6 defines.
func WriteGroups(w io.Writer, groups []record.TestGroup, disasm func(record.TestGroup) string) error {
	for _, g := range groups {
		if err := writeGroup(w, g, disasm(g)); err != nil {
			return fmt.Errorf("failed to write test group at 0x%x: %w", g.Address, err)
		}
	}
	return nil
}

func writeGroup(w io.Writer, g record.TestGroup, disasm string) error {
	header := fmt.Sprintf("instr:0x%x;#%s;%s;%d\n", g.Address, hex.EncodeToString(g.Bytes), disasm, len(g.Entries))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	for _, e := range g.Entries {
		if _, err := io.WriteString(w, entryLine(e)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func entryLine(e record.TestEntry) string {
	line := " in:" + regList(e.InputRegs)
	if e.HasInputFlags {
		line += flagsField(e.InputRegs, e.InputFlags)
	}
	line += "|out:" + regList(e.OutputRegs)
	if e.HasOutputFlags {
		line += flagsField(e.OutputRegs, e.OutputFlags)
	}
	if e.Exception != 0 {
		line += "|exception:" + e.Exception.String()
	}
	return line
}

// flagsField renders the ",flags:#<hex32>" suffix, comma-prefixed
// only when the register list it follows is non-empty.
func flagsField(regs map[reg.Id][]byte, flags uint32) string {
	// Little-endian byte order, as spec.md §6 requires.
	le := []byte{byte(flags), byte(flags >> 8), byte(flags >> 16), byte(flags >> 24)}
	hexFlags := hex.EncodeToString(le)
	if len(regs) == 0 {
		return "flags:#" + hexFlags
	}
	return ",flags:#" + hexFlags
}

func regList(regs map[reg.Id][]byte) string {
	keys := sortedRegKeys(regs)
	out := ""
	for i, r := range keys {
		if i > 0 {
			out += ","
		}
		out += r.String() + ":#" + hex.EncodeToString(regs[r])
	}
	return out
}

func sortedRegKeys(regs map[reg.Id][]byte) []reg.Id {
	keys := make([]reg.Id, 0, len(regs))
	for r := range regs {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
