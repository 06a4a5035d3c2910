// Package search implements the Input-Search Driver collaborator of
// spec.md §4.3 (component C3): for one coverage cell it mutates a live
// sandbox's inputs until the cell is witnessed, bounding the attempt
// count and recognizing illegal encodings and sandbox failures.
package search

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/sarchlab/m2sim/classify"
	"github.com/sarchlab/m2sim/coverage"
	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/inputgen"
	"github.com/sarchlab/m2sim/record"
	"github.com/sarchlab/m2sim/reg"
	"github.com/sarchlab/m2sim/runconfig"
	"github.com/sarchlab/m2sim/sandbox"
)

// allTestedFlags is the union of flags the clear-output pre-step
// presets when a cell expects polarity 0, per spec.md §4.3 step 1.
const allTestedFlags = decode.FlagCF | decode.FlagPF | decode.FlagAF |
	decode.FlagZF | decode.FlagSF | decode.FlagOF

// Outcome classifies how a single cell's search concluded.
type Outcome int

const (
	OutcomeWitnessed Outcome = iota
	OutcomeGaveUp
	OutcomeIllegal
	OutcomeSandboxFailure
)

// Driver runs the per-cell search loop of spec.md §4.3 against one
// already-constructed sandbox (one encoding, one worker).
type Driver struct {
	sb          *sandbox.Sandbox
	instr       decode.Instruction
	cls         classify.Result
	cfg         *runconfig.Config
	prng        *rand.Rand
	diagnostics io.Writer
}

// New constructs a Driver. cfg supplies the abort threshold, immediate
// divisor, report-threshold percentage, and PRNG seed offset
// (runconfig.Default() is used when cfg is nil). diagnostics may be
// nil to disable the kReportInputsThreshold hook.
func New(sb *sandbox.Sandbox, instr decode.Instruction, cls classify.Result, cfg *runconfig.Config, diagnostics io.Writer) *Driver {
	if cfg == nil {
		cfg = runconfig.Default()
	}
	return &Driver{
		sb:          sb,
		instr:       instr,
		cls:         cls,
		cfg:         cfg,
		prng:        rand.New(rand.NewSource(int64(instr.Mnemonic) + 1 + cfg.PRNGSeed)),
		diagnostics: diagnostics,
	}
}

func anyOperandImmediate(instr decode.Instruction) bool {
	for _, op := range instr.Operands {
		if op.Type == decode.OperandImmediate {
			return true
		}
	}
	return false
}

// maxAttempts is the per-cell attempt budget for a non-immediate
// encoding (cfg.AbortThreshold); it is divided by cfg.ImmediateAbortDivisor
// when any operand is an immediate, since the search space is then
// much smaller.
func maxAttempts(instr decode.Instruction, cfg *runconfig.Config) int {
	if anyOperandImmediate(instr) {
		return cfg.AbortThreshold / cfg.ImmediateAbortDivisor
	}
	return cfg.AbortThreshold
}

// Run searches every cell in order, returning the accumulated
// TestGroup. A non-nil error means the encoding must be abandoned
// entirely (sandbox construction/execution failure); the caller
// should not serialize the returned group in that case.
func (d *Driver) Run(cells []coverage.Cell) (record.TestGroup, error) {
	group := record.TestGroup{
		Address: d.sb.CodeAddress(),
	}

	for _, cell := range cells {
		entry, outcome, err := d.searchCell(cell)
		switch outcome {
		case OutcomeWitnessed:
			group.Entries = append(group.Entries, entry)
		case OutcomeIllegal:
			group.Illegal = true
			return group, nil
		case OutcomeSandboxFailure:
			return record.TestGroup{}, err
		case OutcomeGaveUp:
			d.logf("probably impossible: %s bit %d=%d reg %s\n",
				d.instr.Mnemonic, cell.BitPos, cell.ExpectedBit, cell.Reg)
		}
	}

	return group, nil
}

func (d *Driver) logf(format string, args ...any) {
	if d.diagnostics != nil {
		fmt.Fprintf(d.diagnostics, format, args...)
	}
}

// searchCell runs the per-cell loop of spec.md §4.3.
func (d *Driver) searchCell(cell coverage.Cell) (record.TestEntry, Outcome, error) {
	limit := maxAttempts(d.instr, d.cfg)
	reportAt := int(float64(limit) * d.cfg.ReportInputsThresholdPct)

	gens := make(map[reg.Id]*inputgen.Generator, len(d.cls.RegsRead))
	for _, r := range d.cls.RegsRead {
		gens[r] = inputgen.New(int(reg.WidthBits(r, d.instr.Mode)), d.prng)
	}
	flagPRNG := rand.New(rand.NewSource(d.prng.Int63()))

	for iteration := 0; iteration < limit; iteration++ {
		clearOutput(d.sb, d.instr.Mode, cell)

		inputRegs, inputFlags, hasInputFlags := d.advanceInputs(gens, flagPRNG, iteration)

		if iteration == reportAt {
			d.logf("search for %s bit %d=%d reg %s crossed %.0f%% of its budget; last inputs: %v\n",
				d.instr.Mnemonic, cell.BitPos, cell.ExpectedBit, cell.Reg, d.cfg.ReportInputsThresholdPct*100, inputRegs)
		}

		ok, err := d.sb.Execute()
		if err != nil {
			return record.TestEntry{}, OutcomeSandboxFailure, err
		}
		if !ok {
			continue
		}

		status := d.sb.ExecutionStatus()
		if status == sandbox.IllegalInstruction {
			return record.TestEntry{}, OutcomeIllegal, nil
		}

		if cell.Exception != coverage.ExceptionNone {
			if statusMatchesException(status, cell.Exception) {
				return record.TestEntry{
					InputRegs:     inputRegs,
					InputFlags:    inputFlags,
					HasInputFlags: hasInputFlags,
					Exception:     cell.Exception,
				}, OutcomeWitnessed, nil
			}
			continue
		}

		if status != sandbox.Success {
			continue
		}

		if !d.outputMatches(cell) {
			continue
		}

		outputRegs, outputFlags, hasOutputFlags := d.snapshotOutputs()
		return record.TestEntry{
			InputRegs:      inputRegs,
			InputFlags:     inputFlags,
			HasInputFlags:  hasInputFlags,
			OutputRegs:     outputRegs,
			OutputFlags:    outputFlags,
			HasOutputFlags: hasOutputFlags,
			Exception:      coverage.ExceptionNone,
		}, OutcomeWitnessed, nil
	}

	return record.TestEntry{}, OutcomeGaveUp, nil
}

func statusMatchesException(status sandbox.Status, exception coverage.ExceptionKind) bool {
	switch exception {
	case coverage.ExceptionDivideError:
		return status == sandbox.ExceptionIntDivideError
	case coverage.ExceptionIntegerOverflow:
		return status == sandbox.ExceptionIntOverflow
	default:
		return false
	}
}

func poisonPattern(widthBytes int) []byte {
	buf := make([]byte, widthBytes)
	for i := range buf {
		buf[i] = 0xCC
	}
	return buf
}

// advanceInputs implements spec.md §4.3 step 2: poison each read
// register's enclosing root at its full width, then splice in each
// register's own width from its Input Generator — leaving the rest of
// the root poisoned so a read that strays outside the declared
// operand width surfaces as 0xCC in the result — then advance the
// generators with the staggered-odometer rule, and finally draw the
// input flags.
func (d *Driver) advanceInputs(
	gens map[reg.Id]*inputgen.Generator,
	flagPRNG *rand.Rand,
	iteration int,
) (map[reg.Id][]byte, uint32, bool) {
	for _, r := range d.cls.RegsRead {
		root := reg.LargestEnclosing(r, d.instr.Mode)
		d.sb.SetRegBytes(root, poisonPattern(int(reg.WidthBits(root, d.instr.Mode))/8))
	}

	for _, r := range d.cls.RegsRead {
		d.sb.SetRegBytes(r, gens[r].Current())
	}

	// Staggered odometer: when a generator wraps on every third
	// iteration, the generators after it are not advanced this round.
	for _, r := range d.cls.RegsRead {
		if gens[r].Advance() && (iteration+1)%3 == 0 {
			break
		}
	}

	inputRegs := make(map[reg.Id][]byte)
	seen := make(map[reg.Id]bool)
	for _, r := range d.cls.RegsRead {
		root := reg.LargestEnclosing(r, d.instr.Mode)
		if seen[root] {
			continue
		}
		seen[root] = true
		inputRegs[root] = d.sb.GetRegBytes(root)
	}

	var inputFlags uint32
	hasInputFlags := false
	if d.cls.FlagsRead != 0 {
		hasInputFlags = true
		inputFlags = flagPRNG.Uint32() &^ uint32(decode.FlagTF)
		d.sb.SetFlags(inputFlags)
	}

	return inputRegs, inputFlags, hasInputFlags
}

// clearOutput implements spec.md §4.3 step 1: preset the cell's
// target (a register bit or the flags register) to the polarity
// opposite of what the cell expects, so a pass can only come from the
// real execution.
func clearOutput(sb *sandbox.Sandbox, mode reg.Mode, cell coverage.Cell) {
	if cell.Exception != coverage.ExceptionNone {
		sb.SetFlags(0)
		return
	}

	var fill byte
	var flagsBaseline uint32
	if cell.ExpectedBit == 0 {
		fill = 0xFF
		flagsBaseline = uint32(allTestedFlags)
	}

	if cell.Reg != reg.Flags {
		widthBytes := int(reg.WidthBits(cell.Reg, mode)) / 8
		buf := make([]byte, widthBytes)
		for i := range buf {
			buf[i] = fill
		}
		sb.SetRegBytes(cell.Reg, buf)
	}
	sb.SetFlags(flagsBaseline)
}

// outputMatches implements spec.md §4.3 step 4's bit check.
func (d *Driver) outputMatches(cell coverage.Cell) bool {
	var bit uint8
	if cell.Reg == reg.Flags {
		bit = uint8((d.sb.Flags() >> cell.BitPos) & 1)
	} else {
		data := d.sb.GetRegBytes(cell.Reg)
		byteIdx := cell.BitPos / 8
		if int(byteIdx) >= len(data) {
			return false
		}
		bit = (data[byteIdx] >> (cell.BitPos % 8)) & 1
	}
	return bit == cell.ExpectedBit
}

// snapshotOutputs captures every modified root register (and, if any
// flag was modified, the flags register with IF masked off) once a
// cell's output check has passed.
func (d *Driver) snapshotOutputs() (map[reg.Id][]byte, uint32, bool) {
	outputRegs := make(map[reg.Id][]byte)
	seen := make(map[reg.Id]bool)
	for _, r := range d.cls.RegsModified {
		root := reg.LargestEnclosing(r, d.instr.Mode)
		if seen[root] {
			continue
		}
		seen[root] = true
		outputRegs[root] = d.sb.GetRegBytes(root)
	}

	if d.cls.FlagsModified == 0 {
		return outputRegs, 0, false
	}
	return outputRegs, d.sb.Flags() &^ uint32(decode.FlagIF), true
}
