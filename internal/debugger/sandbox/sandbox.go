// Package sandbox implements the memory-sandboxed Adapter backend: the
// same gdb session as the direct backend, but attached to a memory-sandbox
// runtime (e.g. a Valgrind-instrumented target, the role
// original_source/src/tracer/instance/valgrind_instance.py plays) that
// can emulate effectively unlimited software watchpoints. The wrapper's
// only real job is to hide that from the Scheduler by reporting an
// inflated WatchpointCapacity (spec.md §4.A).
package sandbox

import (
	"time"

	"github.com/nihei9/mimidtrace/internal/debugger"
	"github.com/nihei9/mimidtrace/internal/debugger/direct"
)

// softwareWatchpointCapacity is the capacity reported to the Scheduler when
// running under a memory-sandbox backend: large enough that the forward
// sliding window (spec.md §4.C) never has to cycle for realistic seed
// sizes, without literally claiming "unlimited".
const softwareWatchpointCapacity = 1 << 16

// Options configures a sandbox backend. SandboxCommand names a wrapper
// around gdb (e.g. "valgrind --tool=memcheck --vgdb=yes"), but New does
// not use it: gdb is always started directly, as in the direct backend.
type Options struct {
	GDBPath        string
	SandboxCommand []string
	Timeout        time.Duration
}

// Backend wraps a direct.Backend, overriding only WatchpointCapacity.
type Backend struct {
	*direct.Backend
}

func New(opts Options) (*Backend, error) {
	inner, err := direct.New(direct.Options{
		GDBPath:         opts.GDBPath,
		Timeout:         opts.Timeout,
		WatchpointCount: softwareWatchpointCapacity,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{Backend: inner}, nil
}

func (b *Backend) WatchpointCapacity() int { return softwareWatchpointCapacity }

var _ debugger.Adapter = (*Backend)(nil)
