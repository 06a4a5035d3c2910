// Package record implements the Observation Recorder collaborator of
// spec.md §4.4 (component C4): it gives TestEntry its total ordering,
// sorts and deduplicates the entries a search driver collects for one
// encoding, and decides whether the resulting TestGroup is worth
// keeping.
package record

import (
	"bytes"
	"sort"

	"github.com/sarchlab/m2sim/coverage"
	"github.com/sarchlab/m2sim/reg"
)

// TestEntry is one observed input/output vector, keyed by root
// register per spec.md §3. InputFlags/OutputFlags are optional: a
// mnemonic that reads or modifies no flags never attaches one.
type TestEntry struct {
	InputRegs     map[reg.Id][]byte
	InputFlags    uint32
	HasInputFlags bool

	OutputRegs     map[reg.Id][]byte
	OutputFlags    uint32
	HasOutputFlags bool

	Exception coverage.ExceptionKind
}

// TestGroup is the per-encoding bundle spec.md §3 describes: the
// address and bytes of one encoding plus its witnessed entries.
type TestGroup struct {
	Address uint64
	Bytes   []byte
	Text    string
	Entries []TestEntry
	Illegal bool
}

func regKeys(m map[reg.Id][]byte) []reg.Id {
	keys := make([]reg.Id, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func compareRegs(a, b map[reg.Id][]byte) int {
	ak, bk := regKeys(a), regKeys(b)
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if ak[i] != bk[i] {
			if ak[i] < bk[i] {
				return -1
			}
			return 1
		}
		if c := bytes.Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	switch {
	case len(ak) < len(bk):
		return -1
	case len(ak) > len(bk):
		return 1
	default:
		return 0
	}
}

func compareOptionalFlags(aHas bool, aVal uint32, bHas bool, bVal uint32) int {
	if aHas != bHas {
		if !aHas {
			return -1
		}
		return 1
	}
	if !aHas {
		return 0
	}
	switch {
	case aVal < bVal:
		return -1
	case aVal > bVal:
		return 1
	default:
		return 0
	}
}

// Compare implements the total order of spec.md §3: the lexicographic
// tuple (input_regs, input_flags, output_regs, output_flags, exception).
func Compare(a, b TestEntry) int {
	if c := compareRegs(a.InputRegs, b.InputRegs); c != 0 {
		return c
	}
	if c := compareOptionalFlags(a.HasInputFlags, a.InputFlags, b.HasInputFlags, b.InputFlags); c != 0 {
		return c
	}
	if c := compareRegs(a.OutputRegs, b.OutputRegs); c != 0 {
		return c
	}
	if c := compareOptionalFlags(a.HasOutputFlags, a.OutputFlags, b.HasOutputFlags, b.OutputFlags); c != 0 {
		return c
	}
	switch {
	case a.Exception < b.Exception:
		return -1
	case a.Exception > b.Exception:
		return 1
	default:
		return 0
	}
}

// SortAndDedup applies the total order and collapses adjacent equal
// entries, per spec.md §4.4.
func SortAndDedup(entries []TestEntry) []TestEntry {
	sort.Slice(entries, func(i, j int) bool { return Compare(entries[i], entries[j]) < 0 })

	out := entries[:0]
	for i, e := range entries {
		if i == 0 || Compare(entries[i-1], e) != 0 {
			out = append(out, e)
		}
	}
	return out
}

// Normalize returns g with its entries sorted and deduplicated.
func Normalize(g TestGroup) TestGroup {
	g.Entries = SortAndDedup(g.Entries)
	return g
}

// ShouldDrop reports whether g carries nothing worth serializing: an
// empty entry list from an encoding that also turned out illegal.
func ShouldDrop(g TestGroup) bool {
	return len(g.Entries) == 0 && g.Illegal
}
