package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nihei9/mimidtrace/internal/config"
	"github.com/nihei9/mimidtrace/internal/debugger"
	"github.com/nihei9/mimidtrace/internal/debugger/direct"
	"github.com/nihei9/mimidtrace/internal/debugger/onchip"
	"github.com/nihei9/mimidtrace/internal/debugger/sandbox"
	"github.com/nihei9/mimidtrace/internal/mimiderr"
	"github.com/nihei9/mimidtrace/internal/obs"
	"github.com/nihei9/mimidtrace/internal/serialio"
	"github.com/nihei9/mimidtrace/internal/symbol"
	"github.com/nihei9/mimidtrace/internal/tracer"
)

// deliverSeedOutOfBand handles the input_channel=serial case (spec.md
// §6): the seed doesn't reach the target through Adapter.Launch at all,
// it's written to a literal UART the target reads from, ahead of the
// debugger continuing it past its entrypoint breakpoint. For the
// file/stdin channels this does nothing: the seed bytes are only handed
// to Adapter.Launch, and the direct backend (which the sandbox and
// on-chip backends wrap) neither passes a seed file path to the program
// nor writes the seed to its stdin.
func deliverSeedOutOfBand(s *config.Settings, input []byte) error {
	if s.InputChannel != config.InputChannelSerial {
		return nil
	}
	return serialio.WriteSeed(s.SerialPort, s.SerialBaudRate, input)
}

// openAdapter builds the Adapter backend the configured instance= kind
// selects (spec.md §6), the way vartan's readGrammar centralizes one
// piece of setup logic shared by several subcommands.
func openAdapter(s *config.Settings) (debugger.Adapter, error) {
	timeout := time.Duration(s.TimeoutSeconds) * time.Second
	switch s.Backend {
	case config.BackendDirect:
		return direct.New(direct.Options{
			GDBPath:         s.GDBPath,
			Timeout:         timeout,
			WatchpointCount: s.WatchpointCount,
		})
	case config.BackendOnChip:
		return onchip.New(onchip.Options{
			GDBPath:          s.GDBPath,
			GDBServerPath:    s.GDBServerPath,
			GDBServerAddress: s.GDBServerAddress,
			WatchpointCount:  s.WatchpointCount,
			Timeout:          timeout,
		})
	case config.BackendMemorySandbox:
		return sandbox.New(sandbox.Options{
			GDBPath: s.GDBPath,
			Timeout: timeout,
		})
	default:
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("unsupported instance: %v", s.Backend))
	}
}

func callSiteQualifier(s *config.Settings) symbol.Qualifier {
	if s.CallSiteQualifier == config.CallSiteQualifierCallSite {
		return symbol.QualifyByCallSite
	}
	return symbol.QualifyByFunction
}

func newTracer(s *config.Settings, oracle *symbol.Oracle, adapter debugger.Adapter, log *obs.Logger) *tracer.Tracer {
	return tracer.New(adapter, oracle, tracer.Config{
		Entrypoint:        s.Entrypoint,
		Exitpoint:         s.Exitpoint,
		InputBuffer:       s.InputBuffer,
		WatchpointCount:   s.WatchpointCount,
		DelayWatchpoint:   s.DelayWatchpoint,
		CallSiteQualifier: callSiteQualifier(s),
		RelaunchPerWindow: s.ResetPolicy == config.WatchpointResetRelaunch,
	}, log)
}

func openLogger(s *config.Settings) (*obs.Logger, error) {
	lvl, err := obs.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, mimiderr.New(mimiderr.KindConfigInvalid, err)
	}
	return obs.New(lvl), nil
}

// seedFile is one byte-file seed read from seed_directory.
type seedFile struct {
	Name string
	Path string
}

// listSeeds reads seed_directory and returns its entries sorted by
// name, the lexical file order spec.md §5 (iii) requires for
// deterministic alternative insertion order.
func listSeeds(dir string) ([]seedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, mimiderr.New(mimiderr.KindConfigInvalid, err)
	}
	var seeds []seedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		seeds = append(seeds, seedFile{Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].Name < seeds[j].Name })
	return seeds, nil
}

func traceFilePath(outputDir, seedName string) string {
	return filepath.Join(outputDir, seedName+".trace")
}
