package tracer

import (
	"context"
	"testing"

	"github.com/nihei9/mimidtrace/internal/debugger"
	"github.com/nihei9/mimidtrace/internal/obs"
	"github.com/nihei9/mimidtrace/internal/symbol"
)

const fakeBase = uint64(0x1000)

// fakeAdapter plays back a fixed script of stops and backtraces, enough
// to drive the state machine through one seed the way a real gdb session
// would for "1+2": parse_expr reads '1' and '2' directly and calls
// parse_term for '+'.
type fakeAdapter struct {
	stops      []debugger.StopEvent
	backtraces [][]debugger.Frame
	stopIdx    int
	btIdx      int
	nextWP     int
}

func (f *fakeAdapter) Launch(ctx context.Context, program string, args []string, seedInput []byte) error {
	return nil
}
func (f *fakeAdapter) SetBreakpoint(ctx context.Context, location string) error   { return nil }
func (f *fakeAdapter) ClearBreakpoint(ctx context.Context, location string) error { return nil }

func (f *fakeAdapter) ContinueUntilStop(ctx context.Context) (debugger.StopEvent, error) {
	ev := f.stops[f.stopIdx]
	f.stopIdx++
	return ev, nil
}
func (f *fakeAdapter) StepInstruction(ctx context.Context) (debugger.StopEvent, error) {
	return debugger.StopEvent{}, nil
}
func (f *fakeAdapter) StepOut(ctx context.Context) (debugger.StopEvent, error) {
	return debugger.StopEvent{}, nil
}
func (f *fakeAdapter) ReadMemory(ctx context.Context, addr uint64, length int) ([]byte, error) {
	return make([]byte, length), nil
}
func (f *fakeAdapter) WriteMemory(ctx context.Context, addr uint64, data []byte) error { return nil }
func (f *fakeAdapter) GetRegisters(ctx context.Context) (debugger.Registers, error) {
	return debugger.Registers{}, nil
}
func (f *fakeAdapter) ResolveSymbol(ctx context.Context, name string) (uint64, error) {
	return fakeBase, nil
}
func (f *fakeAdapter) GetBacktrace(ctx context.Context) ([]debugger.Frame, error) {
	bt := f.backtraces[f.btIdx]
	f.btIdx++
	return bt, nil
}
func (f *fakeAdapter) SetWatchpoint(ctx context.Context, addr uint64, length int, kind debugger.WatchpointKind) (debugger.WatchpointID, error) {
	f.nextWP++
	return debugger.WatchpointID(f.nextWP), nil
}
func (f *fakeAdapter) ClearWatchpoint(ctx context.Context, id debugger.WatchpointID) error { return nil }
func (f *fakeAdapter) WatchpointCapacity() int                                             { return 8 }
func (f *fakeAdapter) Close() error                                                        { return nil }

var _ debugger.Adapter = (*fakeAdapter)(nil)

func newCalcAdapter() *fakeAdapter {
	exprFrame := debugger.Frame{Symbol: "parse_expr", File: "calc.c", Line: 10, Depth: 0}
	termFrame := debugger.Frame{Symbol: "parse_term", File: "calc.c", Line: 20, Depth: 0}

	return &fakeAdapter{
		stops: []debugger.StopEvent{
			{Reason: debugger.StopBreakpoint},
			{Reason: debugger.StopWatchpointHit, Addr: fakeBase + 0},
			{Reason: debugger.StopWatchpointHit, Addr: fakeBase + 1},
			{Reason: debugger.StopWatchpointHit, Addr: fakeBase + 2},
			{Reason: debugger.StopExited, ExitCode: 0},
		},
		backtraces: [][]debugger.Frame{
			{exprFrame},             // AtEntry
			{exprFrame},             // hit on '1': still in parse_expr
			{termFrame, exprFrame},  // hit on '+': now inside parse_term
			{exprFrame},             // hit on '2': parse_term has returned
		},
	}
}

func oracleWithNoIgnores() *symbol.Oracle {
	return &symbol.Oracle{}
}

func TestTraceCalculator(t *testing.T) {
	adapter := newCalcAdapter()
	cfg := Config{
		Entrypoint:        "parse_expr",
		InputBuffer:       "input_buf",
		WatchpointCount:   3,
		CallSiteQualifier: symbol.QualifyByFunction,
	}
	tr := New(adapter, oracleWithNoIgnores(), cfg, obs.New(obs.LevelCritical))

	trace, err := tr.Trace(context.Background(), "calc-1", "/bin/calc", nil, []byte("1+2"))
	if err != nil {
		t.Fatalf("Trace() error = %v", err)
	}

	if got := string(trace.Root.Yield()); got != "1+2" {
		t.Fatalf("Yield() = %q; want %q", got, "1+2")
	}
	if trace.Root.Frame.CallSite.Function != "parse_expr" {
		t.Fatalf("root CallSite = %v; want parse_expr", trace.Root.Frame.CallSite)
	}
	if len(trace.Root.Children) != 1 {
		t.Fatalf("root has %d children; want 1 (parse_term)", len(trace.Root.Children))
	}
	term := trace.Root.Children[0]
	if term.Frame.CallSite.Function != "parse_term" {
		t.Fatalf("child CallSite = %v; want parse_term", term.Frame.CallSite)
	}
	if got := string(term.Yield()); got != "+" {
		t.Fatalf("parse_term Yield() = %q; want %q", got, "+")
	}
	if trace.PartiallyConsumed {
		t.Fatalf("PartiallyConsumed = true; want false")
	}
}
