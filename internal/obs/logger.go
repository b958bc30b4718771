// Package obs provides the leveled logging used by every component of the
// tracer and miner pipeline, built on pterm the way npillmayer-gorgo's
// terex REPL drives pterm.Info/pterm.Error for leveled, colorized output.
package obs

import (
	"fmt"

	"github.com/pterm/pterm"
)

// Level is one of the five log levels recognized by the config file
// (spec.md §6, log_level).
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

func ParseLevel(s string) (Level, error) {
	switch s {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log_level: %v", s)
	}
}

// Logger is a minimum-severity filter over pterm's leveled printers.
type Logger struct {
	min Level
}

func New(min Level) *Logger {
	pterm.EnableDebugMessages()
	return &Logger{min: min}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.min > LevelDebug {
		return
	}
	pterm.Debug.Println(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	if l.min > LevelInfo {
		return
	}
	pterm.Info.Println(fmt.Sprintf(format, args...))
}

func (l *Logger) Warningf(format string, args ...any) {
	if l.min > LevelWarning {
		return
	}
	pterm.Warning.Println(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l.min > LevelError {
		return
	}
	pterm.Error.Println(fmt.Sprintf(format, args...))
}

// Criticalf logs at CRITICAL and terminates the process, matching the
// fatal-at-startup propagation policy for ConfigInvalid/SymbolNotFound
// (spec.md §7).
func (l *Logger) Criticalf(format string, args ...any) {
	pterm.Fatal.Println(fmt.Sprintf(format, args...))
}

// PrintTree renders a labeled tree with pterm's tree printer. No
// subcommand calls it; `mimidtrace trace` has no tree-printing flag.
func PrintTree(label string, root pterm.TreeNode) {
	pterm.Println(label)
	pterm.DefaultTree.WithRoot(root).Render()
}
