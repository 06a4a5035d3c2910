// Package main provides the entry point for the x86 instruction
// semantics oracle: for every supported mnemonic it searches out a
// bit-exact coverage of its flag and register effects and writes one
// testdata/<MNEMONIC>.txt file per mnemonic.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/m2sim/batch"
	"github.com/sarchlab/m2sim/decode"
	"github.com/sarchlab/m2sim/encoder"
	"github.com/sarchlab/m2sim/logging"
	"github.com/sarchlab/m2sim/record"
	"github.com/sarchlab/m2sim/runconfig"
	"github.com/sarchlab/m2sim/serialize"
)

var (
	configPath = flag.String("config", "", "Path to a run configuration JSON file")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading run config: %v\n", err)
		os.Exit(1)
	}

	mnemonics, err := resolveMnemonics(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving mnemonic list: %v\n", err)
		os.Exit(1)
	}

	dec := decode.NewX86AsmDecoder()
	enc := encoder.New()

	var diagnostics io.Writer
	if *verbose {
		diagnostics = os.Stderr
	}

	failures := 0
	for _, m := range mnemonics {
		outPath := serialize.Path(cfg.OutputDir, m)
		if !cfg.AlwaysRegenerate {
			if _, err := os.Stat(outPath); err == nil {
				logging.Printf("skipping %s (already generated)", m)
				continue
			}
		}

		if err := runMnemonic(dec, enc, cfg, m, outPath, diagnostics); err != nil {
			logging.Printf("failed %s: %v", m, err)
			failures++
			continue
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (*runconfig.Config, error) {
	if path == "" {
		return runconfig.Default(), nil
	}
	return runconfig.Load(path)
}

func resolveMnemonics(cfg *runconfig.Config) ([]decode.Mnemonic, error) {
	if len(cfg.Mnemonics) == 0 {
		return decode.All(), nil
	}

	byName := make(map[string]decode.Mnemonic, len(decode.All()))
	for _, m := range decode.All() {
		byName[m.String()] = m
	}

	out := make([]decode.Mnemonic, 0, len(cfg.Mnemonics))
	for _, name := range cfg.Mnemonics {
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown mnemonic %q", name)
		}
		out = append(out, m)
	}
	return out, nil
}

func runMnemonic(
	dec decode.Decoder,
	enc encoder.Enumerator,
	cfg *runconfig.Config,
	m decode.Mnemonic,
	outPath string,
	diagnostics io.Writer,
) error {
	logging.StartProgress(fmt.Sprintf("searching %s", m))
	defer logging.EndProgress()

	o := &batch.Orchestrator{
		Decoder:     dec,
		Enumerator:  enc,
		Config:      cfg,
		Diagnostics: diagnostics,
		Progress:    logging.UpdateProgress,
	}

	groups, err := o.Run(m)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()

	return serialize.WriteGroups(f, groups, func(g record.TestGroup) string { return g.Text })
}
