package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Serialize renders g into the `[grammar]`/`[start]` object spec.md §6
// describes: `[grammar]` maps each nonterminal (wrapped in angle
// brackets) to its ordered list of alternatives, each alternative an
// ordered list of strings, where a string beginning with "<" and
// ending with ">" is a nonterminal reference and anything else is a
// literal. Insertion order (first-seen nonterminal order, first-seen
// alternative order within each) is preserved on the wire.
//
// encoding/json sorts map[string]... keys alphabetically on marshal,
// which would scramble that order, so the object is built by hand as
// raw JSON rather than through a map-keyed struct.
func Serialize(g *Grammar) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"[grammar]":{`)
	for i, nt := range g.nonterminals {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(bracket(nt))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		alts, err := marshalAlternatives(g.Alternatives(nt))
		if err != nil {
			return nil, err
		}
		buf.Write(alts)
	}
	buf.WriteString(`},"[start]":`)
	startKey, err := json.Marshal(bracket(g.start))
	if err != nil {
		return nil, err
	}
	buf.Write(startKey)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalAlternatives(alts []*Alternative) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, alt := range alts {
		if i > 0 {
			buf.WriteByte(',')
		}
		symbols, err := marshalSymbols(alt.Symbols)
		if err != nil {
			return nil, err
		}
		buf.Write(symbols)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalSymbols renders one alternative's right-hand side, coalescing
// adjacent terminal literals (spec.md §4.F "literal coalescing") before
// they're written out. The Inducer already coalesces before insertion,
// but AddAlternative itself stores symbols as given, so coalescing here
// too keeps Serialize correct independent of how symbols were assembled.
func marshalSymbols(symbols []Symbol) ([]byte, error) {
	coalesced := coalesceLiterals(symbols)
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, sym := range coalesced {
		if i > 0 {
			buf.WriteByte(',')
		}
		var s string
		if sym.Terminal {
			s = string(sym.Literal)
		} else {
			s = bracket(sym.Nonterminal)
		}
		enc, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func coalesceLiterals(symbols []Symbol) []Symbol {
	var out []Symbol
	for _, sym := range symbols {
		if sym.Terminal && len(out) > 0 && out[len(out)-1].Terminal {
			last := &out[len(out)-1]
			last.Literal = append(last.Literal, sym.Literal...)
			continue
		}
		out = append(out, sym)
	}
	return out
}

func bracket(name string) string {
	return fmt.Sprintf("<%s>", name)
}

func unbracket(s string) string {
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

// wireGrammar mirrors Serialize's output shape for Deserialize. A plain
// map[string][][]string would do for decoding (json.Decoder happily
// reads the object in whatever order the standard library walks its
// fields — it's only map[string]... on the ENCODE side, via
// json.Marshal, that alphabetizes), since Go's json.Unmarshal into a
// map does preserve each array's own element order even though the
// map's key order is irrelevant here: callers see nonterminals in the
// order Serialize's own `[grammar]` object listed its keys, which
// encoding/json's decoder parses in document order before populating
// the map — recovered below via a second, order-preserving pass.
type wireGrammar struct {
	Grammar map[string][][]string `json:"[grammar]"`
	Start   string                `json:"[start]"`
}

// Deserialize parses the `[grammar]`/`[start]` object Serialize
// produces back into a Grammar. Nonterminal order is recovered from
// the raw JSON object's own key order (via json.Decoder's token
// stream) rather than trusted to wireGrammar's map, since Go map
// iteration order is randomized.
func Deserialize(data []byte) (*Grammar, error) {
	var wire wireGrammar
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	order, err := grammarKeyOrder(data)
	if err != nil {
		return nil, err
	}

	g := New(unbracket(wire.Start))
	for _, ntKey := range order {
		nt := unbracket(ntKey)
		for _, alt := range wire.Grammar[ntKey] {
			symbols := make([]Symbol, len(alt))
			for i, s := range alt {
				if isBracketed(s) {
					symbols[i] = NewNonterminalRef(unbracket(s))
				} else {
					symbols[i] = NewTerminal([]byte(s))
				}
			}
			g.AddAlternative(nt, symbols)
		}
	}
	return g, nil
}

func isBracketed(s string) bool {
	return len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>'
}

// grammarKeyOrder walks data's top-level "[grammar]" object with
// json.Decoder's token stream to recover the order its keys appeared
// in on the wire, the same problem Serialize's hand-rolled encoder
// exists to avoid on the write side.
func grammarKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if key.(string) != "[grammar]" {
			if err := skipValue(dec); err != nil {
				return nil, err
			}
			continue
		}
		return readObjectKeyOrder(dec)
	}
	return nil, fmt.Errorf("missing [grammar] key")
}

func readObjectKeyOrder(dec *json.Decoder) ([]string, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var order []string
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		order = append(order, key.(string))
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	return order, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// skipValue consumes one complete JSON value (scalar, array, or
// object) from dec, balancing nested delimiters.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if _, ok := tok.(json.Delim); !ok {
		return nil // scalar already consumed
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
