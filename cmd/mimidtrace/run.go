package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nihei9/mimidtrace/internal/config"
	"github.com/nihei9/mimidtrace/internal/parsetree"
	"github.com/nihei9/mimidtrace/internal/symbol"
	"github.com/nihei9/mimidtrace/miner"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:     "run <config file path>",
		Short:   "Trace every seed and mine a grammar in one pass",
		Example: `  mimidtrace run mimidtrace.conf`,
		Args:    cobra.ExactArgs(1),
		RunE:    runRun,
	}
	rootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(args[0])
	if err != nil {
		return fmt.Errorf("cannot load configuration: %w", err)
	}

	log, err := openLogger(s)
	if err != nil {
		return err
	}

	oracle, err := symbol.Open(s.BinaryFile, s.IgnoreFuncsRegex)
	if err != nil {
		return fmt.Errorf("cannot open binary: %w", err)
	}
	defer oracle.Close()

	seeds, err := listSeeds(s.SeedDirectory)
	if err != nil {
		return fmt.Errorf("cannot list seeds: %w", err)
	}
	if s.NumberOfSeeds > 0 && len(seeds) > s.NumberOfSeeds {
		seeds = seeds[:s.NumberOfSeeds]
	}
	if err := os.MkdirAll(s.OutputDirectory, 0755); err != nil {
		return fmt.Errorf("cannot create output_directory: %w", err)
	}

	// Traces accumulate in seed order as they complete; the Miner
	// incrementally re-merges on every seed so a grammar file is
	// durable on disk at every trace boundary (spec.md §5's
	// cancellation requirement), rather than only at the very end.
	var traces []*parsetree.Trace
	g := miner.Corpus(nil)
	outPath := filepath.Join(s.OutputDirectory, "parsing_g.json")

	for _, seed := range seeds {
		input, err := os.ReadFile(seed.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed %v: cannot read: %v\n", seed.Name, err)
			continue
		}

		trace, err := traceSeed(s, oracle, log, seed.Name, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed %v: %v\n", seed.Name, err)
			if isFatalTraceErr(err) {
				return fmt.Errorf("aborting: %w", err)
			}
			continue
		}
		if err := writeTraceFile(s.OutputDirectory, seed.Name, trace); err != nil {
			fmt.Fprintf(os.Stderr, "seed %v: cannot write trace file: %v\n", seed.Name, err)
		}
		traces = append(traces, trace)

		g = miner.Corpus(traces)
		if err := writeGrammarFile(g, outPath); err != nil {
			return fmt.Errorf("cannot write grammar file: %w", err)
		}
		fmt.Fprintf(os.Stdout, "traced %v, merged grammar now has %v nonterminals\n", seed.Name, len(g.Nonterminals()))
	}

	return nil
}
