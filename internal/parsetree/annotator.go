package parsetree

import "github.com/nihei9/mimidtrace/internal/mimiderr"

// Trace is the annotated parse tree for one seed (spec.md §3).
type Trace struct {
	Seed              string
	N                 int
	Root              *ParseNode
	Truncated         bool // §4.C edge case: target crashed or timed out mid-trace
	PartiallyConsumed bool // §4.E step 4: parser stopped before consuming all of n
}

// Annotate runs the Tree Annotator (spec.md §4.E) over a raw, as-traced
// root: collapsing ignored frames, closing ranges bottom-up, filling gaps
// as owned literal spans, applying the unread-tail policy, and checking
// sibling disjointness.
func Annotate(seed string, input []byte, root *ParseNode, truncated bool, shouldIgnore func(string) bool) (*Trace, error) {
	root, err := collapseRoot(root, shouldIgnore)
	if err != nil {
		return nil, err.WithSeed(seed)
	}

	closeRanges(root)
	fillOwnedSpans(root, input)

	partial := false
	n := len(input)
	if root.Range.Hi < n {
		tail := OwnedSpan{Range: ConsumedRange{Lo: root.Range.Hi, Hi: n}, Bytes: input[root.Range.Hi:n]}
		root.Owned = append(root.Owned, tail)
		root.Range.Hi = n
		partial = true
	}

	if derr := checkDisjoint(root); derr != nil {
		return nil, derr.WithSeed(seed)
	}

	return &Trace{
		Seed:              seed,
		N:                 n,
		Root:              root,
		Truncated:         truncated,
		PartiallyConsumed: partial,
	}, nil
}

// collapseRoot applies step 1 (ignored-frame collapse) and handles the
// degenerate case where the root itself would be spliced away — which
// should never happen, since the entrypoint frame is never ignored, but
// is treated as an inconsistency rather than silently picking a new root.
func collapseRoot(root *ParseNode, shouldIgnore func(string) bool) (*ParseNode, *mimiderr.Error) {
	kept, orphanReads := collapseIgnored(root, shouldIgnore)
	if len(kept) != 1 || kept[0] != root {
		return nil, mimiderr.New(mimiderr.KindInconsistentTree, errEntrypointIgnored)
	}
	root.DirectReads = mergeSortedInts(root.DirectReads, orphanReads)
	return root, nil
}

var errEntrypointIgnored = inconsistentErr("entrypoint frame matched the ignore predicate")

type inconsistentErr string

func (e inconsistentErr) Error() string { return string(e) }

// collapseIgnored removes any frame whose symbol matches shouldIgnore,
// splicing its children into its parent's position (spec.md §4.E step
//1), and bubbles up any of its own DirectReads as orphanReads so the
// caller can fold them into whichever kept ancestor now owns that
// position — per §9's note that ignored, dynamically-dispatched-into
// symbols should be transparent.
func collapseIgnored(node *ParseNode, shouldIgnore func(string) bool) (kept []*ParseNode, orphanReads []int) {
	var newChildren []*ParseNode
	var childOrphans []int
	for _, c := range node.Children {
		k, o := collapseIgnored(c, shouldIgnore)
		newChildren = append(newChildren, k...)
		childOrphans = append(childOrphans, o...)
	}
	node.Children = newChildren
	node.DirectReads = mergeSortedInts(node.DirectReads, childOrphans)

	if shouldIgnore(node.Frame.CallSite.Function) {
		return node.Children, node.DirectReads
	}
	return []*ParseNode{node}, nil
}

// closeRanges implements step 2: postorder range closure from direct
// reads and already-closed children.
func closeRanges(node *ParseNode) {
	for _, c := range node.Children {
		closeRanges(c)
	}

	lo, hi := node.OpenedAt, node.OpenedAt
	has := false
	extend := func(a, b int) {
		if !has {
			lo, hi, has = a, b, true
			return
		}
		if a < lo {
			lo = a
		}
		if b > hi {
			hi = b
		}
	}
	for _, i := range node.DirectReads {
		extend(i, i+1)
	}
	for _, c := range node.Children {
		if !c.Range.Empty() {
			extend(c.Range.Lo, c.Range.Hi)
		}
	}
	node.Range = ConsumedRange{Lo: lo, Hi: hi}
}

// fillOwnedSpans implements step 3: any sub-range of [node.Lo, node.Hi)
// not covered by a child becomes a literal owned span over the raw seed
// bytes.
func fillOwnedSpans(node *ParseNode, input []byte) {
	for _, c := range node.Children {
		fillOwnedSpans(c, input)
	}

	var spans []OwnedSpan
	cursor := node.Range.Lo
	for _, c := range node.Children {
		if c.Range.Lo > cursor {
			spans = append(spans, OwnedSpan{Range: ConsumedRange{cursor, c.Range.Lo}, Bytes: input[cursor:c.Range.Lo]})
		}
		cursor = c.Range.Hi
	}
	if cursor < node.Range.Hi {
		spans = append(spans, OwnedSpan{Range: ConsumedRange{cursor, node.Range.Hi}, Bytes: input[cursor:node.Range.Hi]})
	}
	node.Owned = spans
}

// checkDisjoint implements step 5: sibling ranges must be pairwise
// disjoint and strictly increasing, per the Nesting invariant.
func checkDisjoint(node *ParseNode) *mimiderr.Error {
	prevHi := node.Range.Lo
	for _, c := range node.Children {
		if c.Range.Lo < prevHi {
			return mimiderr.New(mimiderr.KindInconsistentTree,
				inconsistentErr("overlapping sibling ranges under "+node.Frame.CallSite.String()))
		}
		if err := checkDisjoint(c); err != nil {
			return err
		}
		prevHi = c.Range.Hi
	}
	if prevHi > node.Range.Hi {
		return mimiderr.New(mimiderr.KindInconsistentTree,
			inconsistentErr("child range escapes parent bound under "+node.Frame.CallSite.String()))
	}
	return nil
}

func mergeSortedInts(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	out := append(append([]int{}, a...), b...)
	// DirectReads arrives already sorted from both sources (attribution
	// order is monotonic, spec.md §4.D); a single insertion sort pass
	// over the short orphan tail is enough and avoids pulling in sort
	// for what's usually zero or one elements.
	for i := len(a); i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
