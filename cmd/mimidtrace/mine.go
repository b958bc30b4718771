package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nihei9/mimidtrace/internal/config"
	"github.com/nihei9/mimidtrace/internal/parsetree"
	"github.com/nihei9/mimidtrace/miner"
	"github.com/spf13/cobra"
)

var mineFlags = struct {
	output *string
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "mine <config file path>",
		Short:   "Induce a grammar from every .trace file in output_directory",
		Example: `  mimidtrace mine mimidtrace.conf -o parsing_g.json`,
		Args:    cobra.ExactArgs(1),
		RunE:    runMine,
	}
	mineFlags.output = cmd.Flags().StringP("output", "o", "", "output file path (default <output_directory>/parsing_g.json)")
	rootCmd.AddCommand(cmd)
}

func runMine(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(args[0])
	if err != nil {
		return fmt.Errorf("cannot load configuration: %w", err)
	}

	traces, err := loadTraceFiles(s.OutputDirectory)
	if err != nil {
		return fmt.Errorf("cannot load trace files: %w", err)
	}
	if len(traces) == 0 {
		return fmt.Errorf("no .trace files found in %v; run 'mimidtrace trace' first", s.OutputDirectory)
	}

	g := miner.Corpus(traces)

	out := *mineFlags.output
	if out == "" {
		out = filepath.Join(s.OutputDirectory, "parsing_g.json")
	}
	if err := writeGrammarFile(g, out); err != nil {
		return fmt.Errorf("cannot write grammar file: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %v (%v nonterminals, from %v traces)\n", out, len(g.Nonterminals()), len(traces))
	return nil
}

// loadTraceFiles reads every *.trace file in dir, sorted by name so the
// resulting traces slice is in the lexical seed order spec.md §5 (iii)
// requires before feeding them to miner.Corpus.
func loadTraceFiles(dir string) ([]*parsetree.Trace, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".trace" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var traces []*parsetree.Trace
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		t, err := parsetree.ReadTrace(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%v: %w", name, err)
		}
		traces = append(traces, t)
	}
	return traces, nil
}
