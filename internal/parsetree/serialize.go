package parsetree

import (
	"encoding/json"
	"io"
)

// WriteTrace persists t as the stable per-seed trace file spec.md §6
// calls for, in the same encoding/json style vartan's cmd/vartan/
// compile.go uses to persist its CompiledGrammar: every field of
// ParseNode/Trace is already exported and order-bearing only through
// slices (Children, Owned, DirectReads), which json.Marshal preserves
// as-is, so no custom MarshalJSON is needed the way grammar.Serialize
// needed one for its map-shaped output.
func WriteTrace(w io.Writer, t *Trace) error {
	enc := json.NewEncoder(w)
	return enc.Encode(t)
}

func ReadTrace(r io.Reader) (*Trace, error) {
	var t Trace
	dec := json.NewDecoder(r)
	if err := dec.Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}
