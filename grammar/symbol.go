// Package grammar holds the Grammar data structure the Miner produces
// (spec.md §3, §4.F): nonterminals mapped to deduplicated, ordered
// alternatives of terminal literals and nonterminal references.
// Grounded on vartan's own grammar/symbol.go (a tagged nil/terminal/
// nonterminal symbol value) and grammar/production.go (hash-identified
// right-hand sides), generalized from vartan's interned-integer symbol
// table to mined nonterminal names, since the Miner's vocabulary isn't
// known ahead of compilation the way a hand-authored grammar's is.
package grammar

import "fmt"

// Symbol is one element of an alternative's right-hand side: either a
// terminal literal (raw input bytes) or a reference to another
// nonterminal (spec.md §3's Grammar definition).
type Symbol struct {
	Terminal    bool
	Literal     []byte
	Nonterminal string
}

func NewTerminal(b []byte) Symbol {
	return Symbol{Terminal: true, Literal: append([]byte{}, b...)}
}

func NewNonterminalRef(name string) Symbol {
	return Symbol{Nonterminal: name}
}

func (s Symbol) String() string {
	if s.Terminal {
		return fmt.Sprintf("%q", s.Literal)
	}
	return "<" + s.Nonterminal + ">"
}

// byteKey renders s into a form suitable for hashing an alternative's
// identity (genAlternativeID below): a tag byte so a terminal can never
// collide with a nonterminal reference, followed by its content.
func (s Symbol) byteKey() []byte {
	if s.Terminal {
		return append([]byte{'T'}, s.Literal...)
	}
	return append([]byte{'N'}, []byte(s.Nonterminal)...)
}
