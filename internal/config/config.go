// Package config parses the key=value, [SECTION]-delimited configuration
// file format described in spec.md §6. No ini/config-file library appears
// anywhere in the retrieved example corpus, so this scans lines by hand the
// way vartan's own grammar/lexical/parser/lexer.go hand-scans its DSL with
// a bufio.Scanner — see DESIGN.md for the standard-library justification.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nihei9/mimidtrace/internal/mimiderr"
)

// Config is a parsed configuration file: a set of named sections, each a
// set of key=value pairs. The distilled format has no nesting beyond
// sections, and vartan's own DSL parsers don't build an AST for something
// this flat either — a map of maps is enough.
type Config struct {
	sections map[string]map[string]string
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mimiderr.New(mimiderr.KindConfigInvalid, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a configuration stream.
func Parse(r io.Reader) (*Config, error) {
	c := &Config{sections: map[string]map[string]string{"": {}}}

	section := ""
	s := bufio.NewScanner(r)
	row := 0
	for s.Scan() {
		row++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, mimiderr.New(mimiderr.KindConfigInvalid,
					fmt.Errorf("unterminated section header: %v", line)).WithSource("", row)
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := c.sections[section]; !ok {
				c.sections[section] = map[string]string{}
			}
			continue
		}

		i := strings.Index(line, "=")
		if i < 0 {
			return nil, mimiderr.New(mimiderr.KindConfigInvalid,
				fmt.Errorf("expected key=value, got: %v", line)).WithSource("", row)
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if key == "" {
			return nil, mimiderr.New(mimiderr.KindConfigInvalid,
				fmt.Errorf("empty key in: %v", line)).WithSource("", row)
		}
		c.sections[section][key] = val
	}
	if err := s.Err(); err != nil {
		return nil, mimiderr.New(mimiderr.KindConfigInvalid, err)
	}

	return c, nil
}

// Get returns the raw string value of key in section, and whether it was
// present.
func (c *Config) Get(section, key string) (string, bool) {
	sec, ok := c.sections[section]
	if !ok {
		return "", false
	}
	v, ok := sec[key]
	return v, ok
}

// GetDefault returns the value of key in section, or fallback if absent.
func (c *Config) GetDefault(section, key, fallback string) string {
	v, ok := c.Get(section, key)
	if !ok {
		return fallback
	}
	return v
}

// Require returns the value of key in section, or a ConfigInvalid error.
func (c *Config) Require(section, key string) (string, error) {
	v, ok := c.Get(section, key)
	if !ok {
		return "", mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("missing required key %v in section [%v]", key, section))
	}
	return v, nil
}

// GetInt returns the integer value of key in section, or fallback if absent.
func (c *Config) GetInt(section, key string, fallback int) (int, error) {
	v, ok := c.Get(section, key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("key %v in section [%v] must be an integer, got %q: %w", key, section, v, err))
	}
	return n, nil
}
