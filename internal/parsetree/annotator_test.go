package parsetree

import (
	"reflect"
	"testing"

	"github.com/nihei9/mimidtrace/internal/symbol"
)

func key(fn string) symbol.CallSiteKey { return symbol.CallSiteKey{Function: fn} }

func TestAnnotateGapFillingAndYield(t *testing.T) {
	input := []byte("1+2")

	root := NewParseNode(FrameID{CallSite: key("parse_expr")}, 0)
	root.RecordRead(0) // "1", read directly by parse_expr before calling parse_term
	term := NewParseNode(FrameID{CallSite: key("parse_term")}, 1)
	term.RecordRead(1) // "+"
	root.AddChild(term)
	root.RecordRead(2) // "2"

	tr, err := Annotate("s1", input, root, false, func(string) bool { return false })
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if tr.Root.Range != (ConsumedRange{0, 3}) {
		t.Fatalf("root.Range = %v; want [0,3)", tr.Root.Range)
	}
	if got := string(tr.Root.Yield()); got != "1+2" {
		t.Fatalf("Yield() = %q; want %q", got, "1+2")
	}
	if tr.PartiallyConsumed {
		t.Fatalf("PartiallyConsumed = true; want false")
	}
}

func TestAnnotateIgnoredFrameSplicesChildren(t *testing.T) {
	input := []byte("ab")

	root := NewParseNode(FrameID{CallSite: key("parse_root")}, 0)
	thunk := NewParseNode(FrameID{CallSite: key("_dl_runtime_resolve")}, 0)
	leaf := NewParseNode(FrameID{CallSite: key("parse_leaf")}, 0)
	leaf.RecordRead(0)
	leaf.RecordRead(1)
	thunk.AddChild(leaf)
	root.AddChild(thunk)

	tr, err := Annotate("s1", input, root, false, func(sym string) bool { return sym == "_dl_runtime_resolve" })
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if len(tr.Root.Children) != 1 || tr.Root.Children[0] != leaf {
		t.Fatalf("ignored frame was not spliced out: children = %+v", tr.Root.Children)
	}
}

func TestAnnotateUnreadTailFlagsPartial(t *testing.T) {
	input := []byte("1;garbage")

	root := NewParseNode(FrameID{CallSite: key("parse_stmt")}, 0)
	root.RecordRead(0)
	// The calculator stops at ';' without reading it, so ';' starts the
	// unread tail.

	tr, err := Annotate("s1", input, root, false, func(string) bool { return false })
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if !tr.PartiallyConsumed {
		t.Fatalf("PartiallyConsumed = false; want true")
	}
	want := []byte(";garbage")
	last := tr.Root.Owned[len(tr.Root.Owned)-1]
	if !reflect.DeepEqual(last.Bytes, want) {
		t.Fatalf("trailing owned span = %q; want %q", last.Bytes, want)
	}
	if tr.Root.Range.Hi != len(input) {
		t.Fatalf("Root.Range.Hi = %v; want %v", tr.Root.Range.Hi, len(input))
	}
}

func TestAnnotateDetectsOverlappingSiblings(t *testing.T) {
	input := []byte("abcd")

	root := NewParseNode(FrameID{CallSite: key("parse_root")}, 0)
	a := NewParseNode(FrameID{CallSite: key("a")}, 0)
	a.RecordRead(0)
	a.RecordRead(1)
	a.RecordRead(2)
	b := NewParseNode(FrameID{CallSite: key("b")}, 0)
	b.RecordRead(1) // overlaps a's [0,3)
	b.RecordRead(3)
	root.AddChild(a)
	root.AddChild(b)

	_, err := Annotate("s1", input, root, false, func(string) bool { return false })
	if err == nil {
		t.Fatalf("Annotate() error = nil; want InconsistentTree")
	}
}

func TestAnnotateEpsilonNodeUsesOpenedAt(t *testing.T) {
	input := []byte("ab")

	root := NewParseNode(FrameID{CallSite: key("parse_root")}, 0)
	root.RecordRead(0)
	empty := NewParseNode(FrameID{CallSite: key("parse_optional")}, 1) // never reads anything
	root.AddChild(empty)
	root.RecordRead(1)

	tr, err := Annotate("s1", input, root, false, func(string) bool { return false })
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if !empty.Range.Empty() {
		t.Fatalf("empty.Range = %v; want an empty range", empty.Range)
	}
	if empty.Range.Lo != 1 {
		t.Fatalf("empty.Range.Lo = %v; want 1 (its OpenedAt)", empty.Range.Lo)
	}
	if got := string(tr.Root.Yield()); got != "ab" {
		t.Fatalf("Yield() = %q; want %q", got, "ab")
	}
}
