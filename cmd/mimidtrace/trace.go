package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nihei9/mimidtrace/internal/config"
	"github.com/nihei9/mimidtrace/internal/mimiderr"
	"github.com/nihei9/mimidtrace/internal/obs"
	"github.com/nihei9/mimidtrace/internal/parsetree"
	"github.com/nihei9/mimidtrace/internal/symbol"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:     "trace <config file path>",
		Short:   "Trace every seed in seed_directory and write a .trace file per seed",
		Example: `  mimidtrace trace mimidtrace.conf`,
		Args:    cobra.ExactArgs(1),
		RunE:    runTrace,
	}
	rootCmd.AddCommand(cmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
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

	failed := false
	for _, seed := range seeds {
		input, err := os.ReadFile(seed.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed %v: cannot read: %v\n", seed.Name, err)
			failed = true
			continue
		}

		trace, err := traceSeed(s, oracle, log, seed.Name, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed %v: %v\n", seed.Name, err)
			if isFatalTraceErr(err) {
				return fmt.Errorf("aborting: %w", err)
			}
			failed = true
			continue
		}

		if err := writeTraceFile(s.OutputDirectory, seed.Name, trace); err != nil {
			fmt.Fprintf(os.Stderr, "seed %v: cannot write trace file: %v\n", seed.Name, err)
			failed = true
			continue
		}
		fmt.Fprintf(os.Stdout, "traced %v: %v bytes, partial=%v truncated=%v\n", seed.Name, trace.N, trace.PartiallyConsumed, trace.Truncated)
	}

	if failed {
		return errors.New("one or more seeds failed to trace")
	}
	return nil
}

// maxTraceAttempts bounds the small, fixed number of retries spec.md §7
// allows for BackendUnresponsive/DebuggerProtocolError before the seed is
// given up on. InconsistentTree gets its own, narrower bound ("retry
// once; else skip seed").
const maxTraceAttempts = 3

// inconsistentTreeAttempts is the bound for KindInconsistentTree: one
// retry, then skip.
const inconsistentTreeAttempts = 2

// traceSeed retries a failed trace with a fresh Adapter/Launch per
// attempt (spec.md §4.E step 5's "retry up to a small bounded number of
// times with a fresh launch"), branching on the error's Kind: a Fatal
// error aborts immediately (the caller checks isFatalTraceErr and stops
// the whole run rather than just this seed), a Retryable error is
// reattempted up to its bound, and anything else is returned as-is.
func traceSeed(s *config.Settings, oracle *symbol.Oracle, log *obs.Logger, seedName string, input []byte) (*parsetree.Trace, error) {
	var err error
	var trace *parsetree.Trace
	for attempt := 1; ; attempt++ {
		trace, err = traceSeedOnce(s, oracle, log, seedName, input)
		if err == nil {
			return trace, nil
		}

		me, ok := err.(*mimiderr.Error)
		if !ok || me.Fatal() || !me.Retryable() {
			return nil, err
		}

		bound := maxTraceAttempts
		if me.Kind == mimiderr.KindInconsistentTree {
			bound = inconsistentTreeAttempts
		}
		if attempt >= bound {
			log.Warningf("seed %v: giving up after %v attempt(s): %v", seedName, attempt, err)
			return nil, err
		}
		log.Warningf("seed %v: attempt %v failed, retrying with a fresh launch: %v", seedName, attempt, err)
	}
}

// isFatalTraceErr reports whether traceSeed's error should abort the
// whole run rather than just skip the one seed it came from (spec.md
// §7's Fatal kinds — a misconfigured entrypoint or exhausted watchpoint
// budget won't get better on the next seed either).
func isFatalTraceErr(err error) bool {
	me, ok := err.(*mimiderr.Error)
	return ok && me.Fatal()
}

// traceSeedOnce runs one Trace call with its own Adapter session, the
// way spec.md §5 requires ("one seed is processed to completion before
// the next") — a fresh debugger session per seed rather than reusing
// one across seeds, since the Adapter contract scopes Launch/Close to a
// single traced process lifetime. traceSeed calls this once per retry
// attempt so a fresh launch backs every attempt.
func traceSeedOnce(s *config.Settings, oracle *symbol.Oracle, log *obs.Logger, seedName string, input []byte) (*parsetree.Trace, error) {
	adapter, err := openAdapter(s)
	if err != nil {
		return nil, err
	}
	defer adapter.Close()

	// input_channel=serial delivers the seed over a UART ahead of the
	// run rather than through the debugger session itself.
	if err := deliverSeedOutOfBand(s, input); err != nil {
		return nil, fmt.Errorf("seed %v: %w", seedName, err)
	}

	tr := newTracer(s, oracle, adapter, log)
	return tr.Trace(context.Background(), seedName, s.BinaryFile, nil, input)
}

func writeTraceFile(outputDir, seedName string, trace *parsetree.Trace) error {
	f, err := os.OpenFile(traceFilePath(outputDir, seedName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return parsetree.WriteTrace(f, trace)
}
