// Package watchpoint implements the Watchpoint Scheduler (spec.md §4.C,
// Component C): the forward sliding window over a hardware watchpoint
// budget, and the optional delayed-watchpoint policy. Armed and Hit are
// kept as ordered sets the way npillmayer-gorgo/lr/tables.go keeps its LR
// state set in a treeset.Set, so the frontier (min of [0,n) \ Hit) and the
// "everything below the frontier is resolved" sweep are ordered-set
// operations instead of hand-rolled sorted-slice bookkeeping.
package watchpoint

import (
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"

	"github.com/nihei9/mimidtrace/internal/mimiderr"
)

// Attribution is one finalized index→depth assignment the Scheduler hands
// back to the Tracer Loop for recording into the open parse-tree node at
// that depth.
type Attribution struct {
	Index int
	Depth int
}

type pendingAttribution struct {
	index int
	depth int
}

// Scheduler maintains Armed and Hit over [0, n) for one trace, per the
// invariant in spec.md §4.C.
type Scheduler struct {
	n        int
	capacity int // W; see SingleStepMode for capacity == 0
	delay    bool

	armed   *treeset.Set
	hit     *treeset.Set
	pending *pendingAttribution
}

// New creates a Scheduler for an input of length n, a hardware watchpoint
// budget capacity, and the delayed-watchpoint policy flag (DELAY_WP,
// spec.md §6).
func New(n, capacity int, delay bool) *Scheduler {
	return &Scheduler{
		n:        n,
		capacity: capacity,
		delay:    delay,
		armed:    treeset.NewWith(utils.IntComparator),
		hit:      treeset.NewWith(utils.IntComparator),
	}
}

// SingleStepMode reports whether W == 0 (spec.md §4.C edge cases). The
// Tracer Loop does not single-step instructions and never builds a
// Scheduler with capacity 0: for W == 0 it uses a window of one
// watchpoint instead.
func (s *Scheduler) SingleStepMode() bool { return s.capacity == 0 }

// Done reports whether every index in [0, n) has been attributed.
func (s *Scheduler) Done() bool { return s.hit.Size() >= s.n }

// Frontier returns min([0,n) \ Hit), or n if every index is resolved.
func (s *Scheduler) Frontier() int {
	for i := 0; i < s.n; i++ {
		if !s.hit.Contains(i) {
			return i
		}
	}
	return s.n
}

// Armed reports the currently armed indices, in ascending order.
func (s *Scheduler) Armed() []int {
	return intValues(s.armed)
}

// Replan recomputes Armed after a stop: indices below the frontier are
// dropped (they're resolved), and the window is filled back up to
// capacity starting at the frontier (spec.md §4.C, "forward sliding
// window"). It returns the indices newly disarmed and newly armed so the
// caller can issue the matching ClearWatchpoint/SetWatchpoint calls.
func (s *Scheduler) Replan() (disarm, arm []int) {
	f := s.Frontier()

	for _, i := range intValues(s.armed) {
		if i < f {
			s.armed.Remove(i)
			disarm = append(disarm, i)
		}
	}

	for i := f; i < s.n && s.armed.Size() < s.capacity; i++ {
		if s.armed.Contains(i) || s.hit.Contains(i) {
			continue
		}
		s.armed.Add(i)
		arm = append(arm, i)
	}

	if s.armed.Size() > s.capacity {
		// Invariant violation: the scheduler itself armed more than its
		// budget. This is a bug, not a runtime condition (spec.md §7).
		panic(mimiderr.New(mimiderr.KindWatchpointBudgetExceeded, nil))
	}

	return disarm, arm
}

// InitialWindow returns the indices to arm at AtEntry, before any stop has
// occurred (spec.md §4.D AtEntry: "initialize Armed := {0..min(W,n)-1}").
func (s *Scheduler) InitialWindow() []int {
	upper := s.capacity
	if upper > s.n {
		upper = s.n
	}
	var win []int
	for i := 0; i < upper; i++ {
		s.armed.Add(i)
		win = append(win, i)
	}
	return win
}

// Observe records a watchpoint hit on index at the given stack depth and
// returns the Attributions that are now finalized as a result (zero, one,
// or — when a previously pending index is superseded — more than one).
//
// If index is already in Hit, this is a re-read of an already-attributed
// byte (spec.md §4.C "re-arming across resets"): it unblocks execution but
// must not be treated as a new assignment, so Observe returns nil.
func (s *Scheduler) Observe(index, depth int) []Attribution {
	if s.hit.Contains(index) {
		return nil
	}

	if !s.delay {
		s.hit.Add(index)
		return []Attribution{{Index: index, Depth: depth}}
	}

	if s.pending != nil && s.pending.index == index {
		// The same byte was read again, from a different frame. Per
		// spec.md §4.C, a deeper re-read wins; a shallower-or-equal
		// re-read changes nothing (the frame never left depth d).
		if depth > s.pending.depth {
			s.pending.depth = depth
		}
		return nil
	}

	var resolved []Attribution
	if s.pending != nil {
		resolved = append(resolved, Attribution{Index: s.pending.index, Depth: s.pending.depth})
		s.hit.Add(s.pending.index)
	}
	s.pending = &pendingAttribution{index: index, depth: depth}
	return resolved
}

// FinalizeOnDepthLeave finalizes the pending attribution once execution
// has strictly left the depth it was tentatively attributed at — i.e. the
// frame F that holds it has itself returned, not merely a deeper sibling
// of F (spec.md §4.C: "if execution leaves depth d without a deeper read,
// i is finalized at F"). currentDepth == pending.depth means F is still
// the innermost open frame and may yet issue a deeper read; that is not
// "leaving" depth d.
func (s *Scheduler) FinalizeOnDepthLeave(currentDepth int) []Attribution {
	if s.pending == nil || currentDepth >= s.pending.depth {
		return nil
	}
	r := Attribution{Index: s.pending.index, Depth: s.pending.depth}
	s.hit.Add(s.pending.index)
	s.pending = nil
	return []Attribution{r}
}

// Flush finalizes any attribution still pending when the trace ends
// (spec.md §4.D AtExit: "close all open ParseNodes").
func (s *Scheduler) Flush() []Attribution {
	if s.pending == nil {
		return nil
	}
	r := Attribution{Index: s.pending.index, Depth: s.pending.depth}
	s.hit.Add(s.pending.index)
	s.pending = nil
	return []Attribution{r}
}

func intValues(set *treeset.Set) []int {
	vals := set.Values()
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = v.(int)
	}
	return out
}
