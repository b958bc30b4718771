package main

import (
	"os"
	"path/filepath"

	"github.com/nihei9/mimidtrace/grammar"
)

// writeGrammarFile serializes g and replaces path atomically (spec.md
// §5's "the Grammar file is atomically replaced"): write to a temp file
// in the same directory, then rename over the destination, so a reader
// never observes a partially written grammar file.
func writeGrammarFile(g *grammar.Grammar, path string) error {
	out, err := grammar.Serialize(g)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mimidtrace-grammar-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
