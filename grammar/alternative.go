package grammar

import (
	"crypto/sha256"
)

// alternativeID identifies an Alternative by the content of its
// right-hand side, the same way vartan's production.go identifies a
// production by sha256 over its encoded lhs+rhs (genProductionID):
// two alternatives with the same sequence of symbols are the same
// alternative, regardless of which derivation produced them.
type alternativeID [32]byte

// Alternative is one right-hand side a nonterminal can expand to: an
// ordered sequence of terminal literals and nonterminal references
// (spec.md §3, §4.F "alternative extraction").
type Alternative struct {
	Symbols []Symbol
	id      alternativeID
}

func newAlternative(symbols []Symbol) *Alternative {
	a := &Alternative{Symbols: symbols}
	a.id = genAlternativeID(symbols)
	return a
}

func genAlternativeID(symbols []Symbol) alternativeID {
	var buf []byte
	for _, s := range symbols {
		k := s.byteKey()
		// length-prefix each symbol's key so "ab"+"c" can't hash the same
		// as "a"+"bc"; vartan's genProductionID doesn't need this because
		// its rhs is already a fixed-width []symbol, but ours mixes
		// variable-length literals with named nonterminal refs.
		buf = append(buf, byte(len(k)>>24), byte(len(k)>>16), byte(len(k)>>8), byte(len(k)))
		buf = append(buf, k...)
	}
	return sha256.Sum256(buf)
}

// alternativeSet dedups alternatives for one nonterminal by id while
// keeping first-seen order, the way vartan's productionSet dedups by
// productionID within a lhs2Prods bucket (grammar/production.go).
type alternativeSet struct {
	ordered []*Alternative
	byID    map[alternativeID]*Alternative
}

func newAlternativeSet() *alternativeSet {
	return &alternativeSet{byID: map[alternativeID]*Alternative{}}
}

// add inserts symbols as an alternative if no equal one is already
// present, returning whether it was newly added.
func (s *alternativeSet) add(symbols []Symbol) bool {
	a := newAlternative(symbols)
	if _, ok := s.byID[a.id]; ok {
		return false
	}
	s.byID[a.id] = a
	s.ordered = append(s.ordered, a)
	return true
}
