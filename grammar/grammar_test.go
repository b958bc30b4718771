package grammar

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestAddAlternativeDedups(t *testing.T) {
	g := New("expr")
	added1 := g.AddAlternative("expr", []Symbol{NewTerminal([]byte("1"))})
	added2 := g.AddAlternative("expr", []Symbol{NewTerminal([]byte("1"))})
	if !added1 {
		t.Fatalf("first AddAlternative() = false; want true")
	}
	if added2 {
		t.Fatalf("duplicate AddAlternative() = true; want false")
	}
	if got := len(g.Alternatives("expr")); got != 1 {
		t.Fatalf("len(Alternatives) = %d; want 1", got)
	}
}

func TestAddAlternativeOrderPreserved(t *testing.T) {
	g := New("expr")
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("a"))})
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("b"))})
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("a"))}) // dup, ignored

	alts := g.Alternatives("expr")
	if len(alts) != 2 {
		t.Fatalf("len(Alternatives) = %d; want 2", len(alts))
	}
	if string(alts[0].Symbols[0].Literal) != "a" || string(alts[1].Symbols[0].Literal) != "b" {
		t.Fatalf("order not preserved: %v", alts)
	}
}

func TestPruneUnreachable(t *testing.T) {
	g := New("expr")
	g.AddAlternative("expr", []Symbol{NewNonterminalRef("term")})
	g.AddAlternative("term", []Symbol{NewTerminal([]byte("1"))})
	g.AddAlternative("dead", []Symbol{NewTerminal([]byte("x"))})

	g.PruneUnreachable()

	if g.HasNonterminal("dead") {
		t.Fatalf("PruneUnreachable() left unreachable nonterminal \"dead\"")
	}
	if !g.HasNonterminal("term") {
		t.Fatalf("PruneUnreachable() dropped reachable nonterminal \"term\"")
	}
}

func TestPruneUnreachableDropsReferencingAlternative(t *testing.T) {
	g := New("expr")
	// One alternative reaches "term" directly; another references the
	// unreachable "dead" and must be dropped once dead is pruned.
	g.AddAlternative("expr", []Symbol{NewNonterminalRef("term")})
	g.AddAlternative("term", []Symbol{NewTerminal([]byte("1"))})
	// "unreachableHolder" is itself unreachable, so its alternative
	// referencing "dead" disappears along with it, and "dead" disappears
	// too since nothing else refers to it.
	g.AddAlternative("unreachableHolder", []Symbol{NewNonterminalRef("dead")})
	g.AddAlternative("dead", []Symbol{NewTerminal([]byte("x"))})

	g.PruneUnreachable()

	if g.HasNonterminal("unreachableHolder") || g.HasNonterminal("dead") {
		t.Fatalf("PruneUnreachable() left unreachable nonterminals")
	}
}

func TestPruneNonTerminating(t *testing.T) {
	g := New("expr")
	g.AddAlternative("expr", []Symbol{NewNonterminalRef("loop")})
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("ok"))})
	// "loop" only ever refers to itself: it can never bottom out.
	g.AddAlternative("loop", []Symbol{NewNonterminalRef("loop")})

	g.PruneNonTerminating()

	if g.HasNonterminal("loop") {
		t.Fatalf("PruneNonTerminating() left non-terminating nonterminal \"loop\"")
	}
	if !g.HasNonterminal("expr") {
		t.Fatalf("PruneNonTerminating() dropped terminating nonterminal \"expr\"")
	}
	alts := g.Alternatives("expr")
	if len(alts) != 1 || string(alts[0].Symbols[0].Literal) != "ok" {
		t.Fatalf("Alternatives(expr) = %v; want only the literal \"ok\" alternative", alts)
	}
}

func TestPruneNonTerminatingPinsStart(t *testing.T) {
	g := New("expr")
	// Every alternative of "expr" goes through "loop", which never
	// bottoms out: a truncated trace could leave a grammar in exactly
	// this shape.
	g.AddAlternative("expr", []Symbol{NewNonterminalRef("loop")})
	g.AddAlternative("loop", []Symbol{NewNonterminalRef("loop")})

	g.PruneNonTerminating()

	if !g.HasNonterminal("expr") {
		t.Fatalf("PruneNonTerminating() dropped the start nonterminal")
	}
	if got := len(g.Alternatives("expr")); got != 0 {
		t.Fatalf("Alternatives(expr) = %d; want 0 (its only alternative referenced a pruned nonterminal)", got)
	}
}

func TestMergeUnionsAcrossSeeds(t *testing.T) {
	a := New("expr")
	a.AddAlternative("expr", []Symbol{NewTerminal([]byte("1"))})

	b := New("expr")
	b.AddAlternative("expr", []Symbol{NewTerminal([]byte("2"))})
	b.AddAlternative("expr", []Symbol{NewTerminal([]byte("1"))}) // overlap with a

	a.Merge(b)

	alts := a.Alternatives("expr")
	if len(alts) != 2 {
		t.Fatalf("len(Alternatives) after Merge = %d; want 2", len(alts))
	}
}

func TestEpsilonAlternative(t *testing.T) {
	g := New("opt")
	g.AddAlternative("opt", nil)
	alts := g.Alternatives("opt")
	if len(alts) != 1 || len(alts[0].Symbols) != 0 {
		t.Fatalf("Alternatives(opt) = %v; want one empty alternative", alts)
	}
}

func TestSerializeFormat(t *testing.T) {
	g := New("expr")
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("1")), NewNonterminalRef("op"), NewTerminal([]byte("2"))})
	g.AddAlternative("op", []Symbol{NewTerminal([]byte("+"))})

	out, err := Serialize(g)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Serialize() produced invalid JSON: %v\n%s", err, out)
	}
	if decoded["[start]"] != "<expr>" {
		t.Fatalf("[start] = %v; want <expr>", decoded["[start]"])
	}
	g2, ok := decoded["[grammar]"].(map[string]interface{})
	if !ok {
		t.Fatalf("[grammar] is not an object: %v", decoded["[grammar]"])
	}
	exprAlts, ok := g2["<expr>"].([]interface{})
	if !ok || len(exprAlts) != 1 {
		t.Fatalf("[grammar][<expr>] = %v; want one alternative", g2["<expr>"])
	}
	first := exprAlts[0].([]interface{})
	if first[0] != "1" || first[1] != "<op>" || first[2] != "2" {
		t.Fatalf("alternative = %v; want [1 <op> 2]", first)
	}
}

func TestSerializeCoalescesAdjacentLiterals(t *testing.T) {
	g := New("expr")
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("a")), NewTerminal([]byte("b"))})

	out, err := Serialize(g)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	g2 := decoded["[grammar]"].(map[string]interface{})
	alts := g2["<expr>"].([]interface{})
	alt := alts[0].([]interface{})
	if len(alt) != 1 || alt[0] != "ab" {
		t.Fatalf("alternative = %v; want coalesced [ab]", alt)
	}
}

func TestDeserializeRoundTrips(t *testing.T) {
	g := New("expr")
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("1")), NewNonterminalRef("op"), NewTerminal([]byte("2"))})
	g.AddAlternative("expr", []Symbol{NewTerminal([]byte("5"))})
	g.AddAlternative("op", []Symbol{NewTerminal([]byte("+"))})
	g.AddAlternative("op", nil) // epsilon

	out, err := Serialize(g)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	g2, err := Deserialize(out)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if g2.Start() != g.Start() {
		t.Fatalf("Start() = %v; want %v", g2.Start(), g.Start())
	}
	if !reflect.DeepEqual(g2.Nonterminals(), g.Nonterminals()) {
		t.Fatalf("Nonterminals() = %v; want %v", g2.Nonterminals(), g.Nonterminals())
	}
	for _, nt := range g.Nonterminals() {
		a1, a2 := g.Alternatives(nt), g2.Alternatives(nt)
		if len(a1) != len(a2) {
			t.Fatalf("Alternatives(%v) len = %d; want %d", nt, len(a2), len(a1))
		}
		for i := range a1 {
			if !symbolSlicesEqual(a1[i].Symbols, a2[i].Symbols) {
				t.Fatalf("Alternatives(%v)[%d] = %v; want %v", nt, i, a2[i].Symbols, a1[i].Symbols)
			}
		}
	}
}

func symbolSlicesEqual(a, b []Symbol) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Terminal != b[i].Terminal {
			return false
		}
		if a[i].Terminal {
			if string(a[i].Literal) != string(b[i].Literal) {
				return false
			}
		} else if a[i].Nonterminal != b[i].Nonterminal {
			return false
		}
	}
	return true
}
