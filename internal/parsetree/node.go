// Package parsetree implements the Tree Annotator (spec.md §4.E,
// Component E): turning a raw, as-traced frame tree into a well-formed
// parse tree with closed, gap-filled, pairwise-disjoint ranges. The tree
// shape itself (FrameID, ConsumedRange, ordered children, owned spans)
// mirrors original_source/src/input/parse_tree.py's ParseTree/ParseNode,
// adapted into value types the Tracer builds incrementally as it opens
// and closes frames, and the Annotator then closes, gap-fills, and
// validates.
package parsetree

import "github.com/nihei9/mimidtrace/internal/symbol"

// ConsumedRange is the half-open [Lo, Hi) span of input indices a frame
// consumed (spec.md §3).
type ConsumedRange struct {
	Lo int
	Hi int
}

func (r ConsumedRange) Empty() bool { return r.Lo >= r.Hi }

func (r ConsumedRange) Len() int { return r.Hi - r.Lo }

// FrameID is the runtime identity of one activation (spec.md §3):
// CallSiteKey plus stack depth plus a per-trace activation counter,
// distinguishing concurrent or recursive activations sharing a
// CallSiteKey.
type FrameID struct {
	CallSite   symbol.CallSiteKey
	Depth      int
	Activation int
}

// OwnedSpan is a sub-range of a node's ConsumedRange not covered by any
// child: a literal terminal run (spec.md §3, §4.E step 3).
type OwnedSpan struct {
	Range ConsumedRange
	Bytes []byte
}

// ParseNode is one frame in the as-traced call tree. The Tracer builds
// these bottom-up as frames open and close, recording each directly-read
// index via RecordRead; the Annotator then computes Range and Owned from
// DirectReads and the (already-closed) Children.
type ParseNode struct {
	Frame    FrameID
	Range    ConsumedRange // zero until Annotate closes it
	Children []*ParseNode
	Owned    []OwnedSpan

	// OpenedAt is the input-index cursor at the moment the Tracer opened
	// this frame — the position an epsilon frame (one that consumes
	// nothing, directly or via children) should occupy in its parent's
	// left-to-right order.
	OpenedAt int

	// DirectReads are indices attributed to this frame itself (not to
	// any child), in attribution order. Kept by the Tracer; consumed by
	// Annotate's range-closure step, after which it is not read again.
	DirectReads []int
}

// NewParseNode creates an empty node for frame id, opened while the input
// cursor sat at openedAt.
func NewParseNode(id FrameID, openedAt int) *ParseNode {
	return &ParseNode{Frame: id, OpenedAt: openedAt}
}

// RecordRead attributes index i directly to n. i must be >= any
// previously recorded index and >= any already-closed child's Hi; the
// Tracer is responsible for that ordering (spec.md §4.D's "ordering
// guarantee").
func (n *ParseNode) RecordRead(i int) {
	n.DirectReads = append(n.DirectReads, i)
}

// AddChild appends an already-closed child (or one still being traced;
// its Range is read lazily by Annotate, after the child itself closes).
func (n *ParseNode) AddChild(c *ParseNode) {
	n.Children = append(n.Children, c)
}

// Yield concatenates this node's terminal bytes in left-to-right order:
// the interleaving of owned spans and descendant yields, per §4.F's
// alternative-extraction order. Owned and Children are each already in
// increasing-Range.Lo order after Annotate runs, so a merge by Lo
// reproduces the original byte sequence.
func (n *ParseNode) Yield() []byte {
	var out []byte
	ci, oi := 0, 0
	for ci < len(n.Children) || oi < len(n.Owned) {
		if oi < len(n.Owned) && (ci >= len(n.Children) || n.Owned[oi].Range.Lo < n.Children[ci].Range.Lo) {
			out = append(out, n.Owned[oi].Bytes...)
			oi++
		} else {
			out = append(out, n.Children[ci].Yield()...)
			ci++
		}
	}
	return out
}
