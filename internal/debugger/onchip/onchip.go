// Package onchip implements the on-chip Adapter backend: gdb connected to
// a hardware probe over "target extended-remote", exposing the device's
// small, fixed hardware watchpoint count (spec.md §4.A). This plays the
// role original_source/src/tracer/instance/stm32_instance.py and
// msp430_instance.py play for the Python tracer, merged into one backend
// parameterized by gdb_server_path/gdb_server_address per spec.md §6.
package onchip

import (
	"context"
	"fmt"
	"time"

	"github.com/nihei9/mimidtrace/internal/debugger"
	"github.com/nihei9/mimidtrace/internal/debugger/direct"
)

// Options configures an on-chip backend.
type Options struct {
	GDBPath           string
	GDBServerPath     string
	GDBServerAddress  string // e.g. "localhost:3333"
	WatchpointCount   int    // the probe's fixed hardware watchpoint budget
	Timeout           time.Duration
}

// Backend wraps a direct.Backend, connecting to a remote gdbserver/probe
// instead of launching the target locally and reporting the probe's fixed
// hardware watchpoint count rather than an inflated one.
type Backend struct {
	*direct.Backend
	capacity         int
	gdbServerAddress string
}

func New(opts Options) (*Backend, error) {
	cap := opts.WatchpointCount
	if cap <= 0 {
		cap = 2 // typical Cortex-M DWT budget
	}

	inner, err := direct.New(direct.Options{
		GDBPath:         opts.GDBPath,
		Timeout:         opts.Timeout,
		WatchpointCount: cap,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{Backend: inner, capacity: cap, gdbServerAddress: opts.GDBServerAddress}, nil
}

func (b *Backend) WatchpointCapacity() int { return b.capacity }

// Launch connects to the remote probe and loads the program's symbols,
// rather than spawning it as a local subprocess (there is nothing to
// spawn: the firmware image is already flashed onto the device).
func (b *Backend) Launch(ctx context.Context, program string, args []string, seedInput []byte) error {
	if err := b.Backend.Launch(ctx, program, args, seedInput); err != nil {
		return err
	}
	return b.connectRemote(ctx)
}

func (b *Backend) connectRemote(ctx context.Context) error {
	if b.gdbServerAddress == "" {
		return fmt.Errorf("on-chip backend requires gdb_server_address")
	}
	return b.Backend.RawCommand(ctx, "-target-select extended-remote "+b.gdbServerAddress)
}

var _ debugger.Adapter = (*Backend)(nil)
