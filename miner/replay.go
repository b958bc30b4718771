package miner

import (
	"bytes"
	"fmt"

	"github.com/nihei9/mimidtrace/grammar"
	"github.com/nihei9/mimidtrace/internal/parsetree"
)

// ReplayResult reports whether a mined Grammar can reproduce one
// seed's trace by following exactly the derivation choices recorded in
// the trace itself (spec.md §8's "Grammar reproduces seeds" invariant),
// in vartan tester.go's TestResult style: one result per input, a nil
// Error meaning success.
type ReplayResult struct {
	Seed  string
	Error error
}

func (r *ReplayResult) String() string {
	if r.Error != nil {
		return fmt.Sprintf("Failed %v: %v", r.Seed, r.Error)
	}
	return fmt.Sprintf("Passed %v", r.Seed)
}

// Replay re-derives trace's byte sequence by walking g along the
// alternative that induced each node of trace.Root, rather than by
// searching g for any derivation — this checks that the specific
// grammar produced by merging this seed's (and others') contributions
// still contains, verbatim, the alternative this seed needs, which is
// what spec.md §8's invariant asks for (a generic recognizer run is a
// strictly weaker check: it would pass even if a later pruning pass
// had coincidentally left a *different* derivation of the same
// string).
func Replay(g *grammar.Grammar, seed string, input []byte, trace *parsetree.Trace) *ReplayResult {
	out, err := replayNode(g, trace.Root)
	if err != nil {
		return &ReplayResult{Seed: seed, Error: err}
	}
	if !bytes.Equal(out, input) {
		return &ReplayResult{Seed: seed, Error: fmt.Errorf("replayed %q; want %q", out, input)}
	}
	return &ReplayResult{Seed: seed}
}

func replayNode(g *grammar.Grammar, node *parsetree.ParseNode) ([]byte, error) {
	nt := nonterminalName(node.Frame)
	want := extractAlternative(node)
	if !grammarHasAlternative(g, nt, want) {
		return nil, fmt.Errorf("grammar has no alternative for <%s> matching this node's derivation", nt)
	}

	var out []byte
	ci, oi := 0, 0
	for ci < len(node.Children) || oi < len(node.Owned) {
		if oi < len(node.Owned) && (ci >= len(node.Children) || node.Owned[oi].Range.Lo < node.Children[ci].Range.Lo) {
			out = append(out, node.Owned[oi].Bytes...)
			oi++
		} else {
			child := node.Children[ci]
			bs, err := replayNode(g, child)
			if err != nil {
				return nil, err
			}
			out = append(out, bs...)
			ci++
		}
	}
	return out, nil
}

// grammarHasAlternative reports whether nt's alternatives in g include
// one with the exact symbol sequence want, under the same byte-content
// equality Grammar.AddAlternative dedups by.
func grammarHasAlternative(g *grammar.Grammar, nt string, want []grammar.Symbol) bool {
	for _, alt := range g.Alternatives(nt) {
		if symbolsEqual(alt.Symbols, want) {
			return true
		}
	}
	return false
}

func symbolsEqual(a, b []grammar.Symbol) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Terminal != b[i].Terminal {
			return false
		}
		if a[i].Terminal {
			if !bytes.Equal(a[i].Literal, b[i].Literal) {
				return false
			}
		} else if a[i].Nonterminal != b[i].Nonterminal {
			return false
		}
	}
	return true
}

// ReplayAll runs Replay over every (seed, trace) pair and returns one
// result per seed, the same flat batch shape tester.go's Tester.Run
// returns for its test cases.
func ReplayAll(g *grammar.Grammar, seeds []string, inputs [][]byte, traces []*parsetree.Trace) []*ReplayResult {
	var rs []*ReplayResult
	for i, seed := range seeds {
		rs = append(rs, Replay(g, seed, inputs[i], traces[i]))
	}
	return rs
}
