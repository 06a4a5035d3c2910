// Package batch implements the Batch Orchestrator collaborator of
// spec.md §4.5 and §5 (component C5): for one mnemonic it runs the
// classify/coverage/search pipeline across every encoding in a
// worker pool, then stably sorts and hands off the surviving
// TestGroups.
package batch

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/m2sim/classify"
	"github.com/sarchlab/m2sim/coverage"
	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/encoder"
	"github.com/sarchlab/m2sim/record"
	"github.com/sarchlab/m2sim/reg"
	"github.com/sarchlab/m2sim/runconfig"
	"github.com/sarchlab/m2sim/sandbox"
	"github.com/sarchlab/m2sim/search"
)

// Orchestrator runs C1-C4 across every encoding of a mnemonic.
type Orchestrator struct {
	Decoder     decode.Decoder
	Enumerator  encoder.Enumerator
	Config      *runconfig.Config
	Diagnostics io.Writer

	// Progress, when set, is called after every encoding finishes
	// (successfully or not) with the running count and the total,
	// mirroring spec.md §5's atomic progress counter.
	Progress func(current, total int)
}

type result struct {
	group        record.TestGroup
	operandWidth uint16
}

// Run executes the orchestrator for one mnemonic and returns the
// surviving, sorted TestGroups.
func (o *Orchestrator) Run(m decode.Mnemonic) ([]record.TestGroup, error) {
	encodings := o.Enumerator.Encodings(m)
	total := len(encodings)

	var mu sync.Mutex
	var results []result
	var completed int

	var g errgroup.Group
	if o.Config != nil && o.Config.WorkerCount > 0 {
		g.SetLimit(o.Config.WorkerCount)
	}

	for _, enc := range encodings {
		enc := enc
		g.Go(func() error {
			r, keep, err := o.runOne(enc)

			mu.Lock()
			completed++
			if o.Progress != nil {
				o.Progress(completed, total)
			}
			if keep {
				results = append(results, r)
			}
			mu.Unlock()

			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("mnemonic %s: %w", m, err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].operandWidth != results[j].operandWidth {
			return results[i].operandWidth < results[j].operandWidth
		}
		return bytes.Compare(results[i].group.Bytes, results[j].group.Bytes) < 0
	})

	groups := make([]record.TestGroup, len(results))
	for i, r := range results {
		groups[i] = r.group
	}
	return groups, nil
}

// runOne runs the pipeline for a single encoding. A search failure is
// logged to Diagnostics and the encoding is abandoned with a nil
// error, so the rest of the batch keeps running (spec.md §7); keep is
// false whenever there is nothing worth serializing, whether from a
// failure, an illegal encoding, or a clean but empty result.
func (o *Orchestrator) runOne(enc []byte) (result, bool, error) {
	sb := sandbox.New(reg.ModeLong64, enc, o.Decoder)
	instr := sb.Instruction()
	cls := classify.Classify(instr)
	cells := coverage.Build(instr, cls)

	drv := search.New(sb, instr, cls, o.Config, o.Diagnostics)
	group, err := drv.Run(cells)
	if err != nil {
		fmt.Fprintf(o.diagnosticsOrDiscard(), "abandoning encoding %x: %v\n", enc, err)
		return result{}, false, nil
	}

	group.Bytes = enc
	group.Address = sb.CodeAddress()
	group.Text = instr.Text
	normalized := record.Normalize(group)
	if record.ShouldDrop(normalized) || normalized.Illegal || len(normalized.Entries) == 0 {
		return result{}, false, nil
	}

	return result{group: normalized, operandWidth: instr.OperandWidth}, true, nil
}

func (o *Orchestrator) diagnosticsOrDiscard() io.Writer {
	if o.Diagnostics != nil {
		return o.Diagnostics
	}
	return io.Discard
}
