// Package miner implements the Grammar Inducer (spec.md §4.F, Component
// F): accumulating a mined Grammar from annotated parse trees across a
// corpus of seeds, and replaying a mined grammar's derivation against a
// trace to check self-consistency. Grounded on
// original_source/src/miner/mine.py's to_grammar/merge_grammar pipeline,
// reshaped into Go value-returning functions in vartan's tester.go style
// (one Result per input, accumulated by a driving loop) rather than
// mine.py's in-place dict mutation.
package miner

import (
	"sort"

	"github.com/nihei9/mimidtrace/grammar"
	"github.com/nihei9/mimidtrace/internal/parsetree"
)

// Induce extracts one seed's contribution to a Grammar (spec.md §4.F's
// "nonterminal naming" and "alternative extraction"), rooted at the
// entrypoint's CallSiteKey. It does not prune; callers accumulate
// across seeds via Grammar.Merge and prune once at the end (spec.md
// §5's ordering guarantee (iii): alternative insertion order must
// follow seed file order, so pruning mid-corpus would be premature).
func Induce(tree *parsetree.Trace) *grammar.Grammar {
	g := grammar.New(nonterminalName(tree.Root.Frame))
	induceNode(g, tree.Root)
	return g
}

// induceNode extracts node's own alternative (spec.md §4.F's
// left-to-right interleaving of owned spans and child references) and
// recurses into each child so every reachable nonterminal gets its
// contribution from this tree, in pre-order (spec.md §5 (iii)).
func induceNode(g *grammar.Grammar, node *parsetree.ParseNode) {
	nt := nonterminalName(node.Frame)
	g.AddAlternative(nt, extractAlternative(node))
	for _, c := range node.Children {
		induceNode(g, c)
	}
}

// extractAlternative walks node's owned spans and children in
// increasing Range.Lo order (the same merge Yield performs) and emits
// one symbol per owned span (a terminal literal) or child (a
// nonterminal reference). Adjacent owned spans (such as a trailing gap
// followed by the unread tail) are coalesced into one terminal literal
// (spec.md §4.F "literal coalescing"). A node with an empty
// ConsumedRange and no children produces nil, the epsilon alternative
// spec.md §4.F calls for.
func extractAlternative(node *parsetree.ParseNode) []grammar.Symbol {
	var symbols []grammar.Symbol
	ci, oi := 0, 0
	for ci < len(node.Children) || oi < len(node.Owned) {
		if oi < len(node.Owned) && (ci >= len(node.Children) || node.Owned[oi].Range.Lo < node.Children[ci].Range.Lo) {
			if last := len(symbols) - 1; last >= 0 && symbols[last].Terminal {
				symbols[last].Literal = append(symbols[last].Literal, node.Owned[oi].Bytes...)
			} else {
				symbols = append(symbols, grammar.NewTerminal(node.Owned[oi].Bytes))
			}
			oi++
		} else {
			symbols = append(symbols, grammar.NewNonterminalRef(nonterminalName(node.Children[ci].Frame)))
			ci++
		}
	}
	return symbols
}

func nonterminalName(id parsetree.FrameID) string {
	return id.CallSite.String()
}

// Corpus accumulates Induce's per-seed grammars into one merged
// Grammar, then applies the two closure passes spec.md §4.F requires
// before the grammar is considered final: reachability pruning and
// non-terminating-nonterminal elimination (mine.py's grammar_gc and
// eliminate_non_terminating_vars). Seeds are merged in the order
// given, which callers must already have sorted into lexical file
// order per spec.md §5 (iii).
func Corpus(traces []*parsetree.Trace) *grammar.Grammar {
	if len(traces) == 0 {
		return grammar.New("")
	}
	merged := Induce(traces[0])
	for _, tr := range traces[1:] {
		merged.Merge(Induce(tr))
	}
	merged.PruneUnreachable()
	merged.PruneNonTerminating()
	merged.PruneUnreachable()
	return merged
}

// SortedSeedNames returns names sorted lexically, the deterministic
// seed-ordering spec.md §5 (iii) requires before feeding traces to
// Corpus in file order.
func SortedSeedNames(names []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	return out
}
