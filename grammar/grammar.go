package grammar

import "fmt"

// Grammar is a mined context-free grammar: nonterminals mapped to their
// deduplicated alternatives, in first-seen order (spec.md §3's Grammar
// type, §4.F, §8's determinism requirement). Ordering is kept explicit
// via the nonterminals slice rather than relying on map iteration,
// since spec.md requires stable, diffable output and Go map iteration
// order is randomized.
type Grammar struct {
	start        string
	nonterminals []string
	rules        map[string]*alternativeSet
}

func New(start string) *Grammar {
	return &Grammar{
		start: start,
		rules: map[string]*alternativeSet{},
	}
}

func (g *Grammar) Start() string {
	return g.start
}

// AddAlternative records one alternative for nonterminal lhs, adding
// lhs to the grammar (at the end of the nonterminal order) if this is
// its first alternative. Returns whether the alternative was new; a
// duplicate (by content, not identity) is silently absorbed, the same
// dedup vartan's productionSet.append performs.
func (g *Grammar) AddAlternative(lhs string, symbols []Symbol) bool {
	set, ok := g.rules[lhs]
	if !ok {
		set = newAlternativeSet()
		g.rules[lhs] = set
		g.nonterminals = append(g.nonterminals, lhs)
	}
	return set.add(symbols)
}

// Nonterminals returns the grammar's nonterminals in first-seen order.
func (g *Grammar) Nonterminals() []string {
	return g.nonterminals
}

// Alternatives returns nt's alternatives in first-seen order, or nil
// if nt isn't part of the grammar.
func (g *Grammar) Alternatives(nt string) []*Alternative {
	set, ok := g.rules[nt]
	if !ok {
		return nil
	}
	return set.ordered
}

func (g *Grammar) HasNonterminal(nt string) bool {
	_, ok := g.rules[nt]
	return ok
}

// Merge unions other's alternatives into g (spec.md §4.F: alternative
// sets are unioned across all seeds in a corpus), preserving g's
// existing order and appending any nonterminal/alternative combination
// g doesn't already have. Grounded on mine.py's merge_grammar, which
// performs the same set union of right-hand sides per nonterminal.
func (g *Grammar) Merge(other *Grammar) {
	for _, nt := range other.nonterminals {
		for _, alt := range other.Alternatives(nt) {
			g.AddAlternative(nt, alt.Symbols)
		}
	}
}

// PruneUnreachable removes nonterminals that cannot be reached from
// the start symbol by following nonterminal references transitively,
// the reachability pass spec.md §4.F calls for after merging alternative
// sets across seeds. Grounded on mine.py's eliminate_unreachable_vars.
func (g *Grammar) PruneUnreachable() {
	reachable := map[string]bool{}
	var visit func(nt string)
	visit = func(nt string) {
		if reachable[nt] {
			return
		}
		reachable[nt] = true
		for _, alt := range g.Alternatives(nt) {
			for _, sym := range alt.Symbols {
				if !sym.Terminal {
					visit(sym.Nonterminal)
				}
			}
		}
	}
	if g.HasNonterminal(g.start) {
		visit(g.start)
	}
	g.filterNonterminals(reachable)
}

// PruneNonTerminating removes nonterminals that have no alternative
// composed entirely of terminals or other terminating nonterminals —
// i.e. nonterminals that can never bottom out and produce a finite
// string. Grounded on mine.py's eliminate_non_terminating_vars, which
// runs a similar fixed-point closure before emitting the final grammar.
func (g *Grammar) PruneNonTerminating() {
	terminating := map[string]bool{}
	for {
		changed := false
		for _, nt := range g.nonterminals {
			if terminating[nt] {
				continue
			}
			for _, alt := range g.Alternatives(nt) {
				if altTerminates(alt, terminating) {
					terminating[nt] = true
					changed = true
					break
				}
			}
		}
		if !changed {
			break
		}
	}
	// A truncated or inconsistent trace can leave the start nonterminal
	// with no alternative that bottoms out, but spec.md §3/§8 require it
	// to stay present regardless — a [start] key pointing at an absent
	// nonterminal is worse than a start rule with zero alternatives.
	// Its own non-terminating alternatives are still dropped below by
	// referencesDropped; pinning it here only keeps the key, not any
	// particular alternative.
	if g.HasNonterminal(g.start) {
		terminating[g.start] = true
	}
	g.filterNonterminals(terminating)
}

func altTerminates(alt *Alternative, terminating map[string]bool) bool {
	for _, sym := range alt.Symbols {
		if sym.Terminal {
			continue
		}
		if !terminating[sym.Nonterminal] {
			return false
		}
	}
	return true
}

// filterNonterminals keeps only nonterminals in keep, dropping their
// rules entirely and dropping any alternative elsewhere in the
// grammar that references a dropped nonterminal (such an alternative
// can no longer be expanded, so it isn't derivable either).
func (g *Grammar) filterNonterminals(keep map[string]bool) {
	var kept []string
	for _, nt := range g.nonterminals {
		if keep[nt] {
			kept = append(kept, nt)
		} else {
			delete(g.rules, nt)
		}
	}
	g.nonterminals = kept

	for _, nt := range g.nonterminals {
		set := g.rules[nt]
		var ordered []*Alternative
		byID := map[alternativeID]*Alternative{}
		for _, alt := range set.ordered {
			if referencesDropped(alt, keep) {
				continue
			}
			ordered = append(ordered, alt)
			byID[alt.id] = alt
		}
		set.ordered = ordered
		set.byID = byID
	}
}

func referencesDropped(alt *Alternative, keep map[string]bool) bool {
	for _, sym := range alt.Symbols {
		if !sym.Terminal && !keep[sym.Nonterminal] {
			return true
		}
	}
	return false
}

func (g *Grammar) String() string {
	return fmt.Sprintf("Grammar{start=%s, nonterminals=%d}", g.start, len(g.nonterminals))
}
