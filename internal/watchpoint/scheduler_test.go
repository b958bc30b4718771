package watchpoint

import (
	"reflect"
	"sort"
	"testing"
)

func TestFrontierAndReplan(t *testing.T) {
	s := New(10, 4, false)
	win := s.InitialWindow()
	if !reflect.DeepEqual(win, []int{0, 1, 2, 3}) {
		t.Fatalf("InitialWindow() = %v; want [0 1 2 3]", win)
	}
	if f := s.Frontier(); f != 0 {
		t.Fatalf("Frontier() = %v; want 0", f)
	}

	s.Observe(1, 0)
	s.Observe(0, 0)
	// 0 and 1 are Hit; frontier should now be 2, and Replan should disarm
	// nothing below it was already armed at indices < 2 other than 0,1
	// which are gone, and should top the window back up to 4 wide.
	disarm, arm := s.Replan()
	sort.Ints(disarm)
	sort.Ints(arm)
	if !reflect.DeepEqual(disarm, []int{0, 1}) {
		t.Fatalf("disarm = %v; want [0 1]", disarm)
	}
	if !reflect.DeepEqual(arm, []int{4, 5}) {
		t.Fatalf("arm = %v; want [4 5]", arm)
	}
	if !reflect.DeepEqual(s.Armed(), []int{2, 3, 4, 5}) {
		t.Fatalf("Armed() = %v; want [2 3 4 5]", s.Armed())
	}
}

func TestObserveNonDelayedIsImmediate(t *testing.T) {
	s := New(5, 2, false)
	got := s.Observe(0, 3)
	want := []Attribution{{Index: 0, Depth: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Observe() = %+v; want %+v", got, want)
	}
}

func TestObserveIgnoresReReadOfAlreadyHit(t *testing.T) {
	s := New(5, 2, false)
	s.Observe(0, 3)
	if got := s.Observe(0, 5); got != nil {
		t.Fatalf("Observe() of already-hit index = %+v; want nil", got)
	}
}

func TestDelayedAttributionPrefersDeeperFrame(t *testing.T) {
	s := New(5, 2, true)

	// index 0 first read at depth 1 (still pending)...
	if got := s.Observe(0, 1); got != nil {
		t.Fatalf("Observe() = %+v; want nil (still pending)", got)
	}
	// ...then re-read at a deeper frame, depth 2: updates in place, no
	// finalization yet.
	if got := s.Observe(0, 2); got != nil {
		t.Fatalf("Observe() = %+v; want nil (re-read updates depth)", got)
	}

	// a sibling call at the same depth (2) returns; we're still AT depth
	// 2 (the frame holding the pending attribution is still the
	// innermost open frame), so nothing has been "left" yet.
	if got := s.FinalizeOnDepthLeave(2); got != nil {
		t.Fatalf("FinalizeOnDepthLeave(2) = %+v; want nil (frame still active)", got)
	}

	// the frame itself now returns, and depth drops to 1: depth 2 has
	// truly been left, so the attribution finalizes at depth 2.
	got := s.FinalizeOnDepthLeave(1)
	want := []Attribution{{Index: 0, Depth: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FinalizeOnDepthLeave(1) = %+v; want %+v", got, want)
	}
}

func TestDelayedAttributionResolvesOnNextDistinctIndex(t *testing.T) {
	s := New(5, 2, true)
	s.Observe(0, 1)
	got := s.Observe(1, 1)
	want := []Attribution{{Index: 0, Depth: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Observe(1,...) = %+v; want %+v (index 0 finalized)", got, want)
	}
}

func TestFlushFinalizesTrailingPending(t *testing.T) {
	s := New(5, 2, true)
	// Reading 0..4 in order finalizes each index when the next one is
	// read, leaving only the last index, 4, pending.
	for i := 0; i < 5; i++ {
		s.Observe(i, 0)
	}
	got := s.Flush()
	want := []Attribution{{Index: 4, Depth: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flush() = %+v; want %+v", got, want)
	}
	if !s.Done() {
		t.Fatalf("Done() = false after Flush of last index")
	}
}

func TestSingleStepMode(t *testing.T) {
	if !New(10, 0, false).SingleStepMode() {
		t.Fatalf("SingleStepMode() = false for capacity 0")
	}
	if New(10, 1, false).SingleStepMode() {
		t.Fatalf("SingleStepMode() = true for capacity 1")
	}
}

func TestReplanNeverExceedsCapacity(t *testing.T) {
	s := New(100, 4, false)
	s.InitialWindow()
	for i := 0; i < 20; i++ {
		s.Observe(i, 0)
		disarm, arm := s.Replan()
		_ = disarm
		_ = arm
		if len(s.Armed()) > 4 {
			t.Fatalf("Armed() has %d entries after step %d; want <= 4", len(s.Armed()), i)
		}
	}
}
