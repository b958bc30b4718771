package direct

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nihei9/mimidtrace/internal/debugger"
)

// miRecord is a parsed MI result record: the handful of fields this
// backend actually needs, picked out of gdb's name=value/tuple/list
// syntax by a small hand-rolled scanner, the same posture as vartan's own
// grammar/lexical/parser/lexer.go for its regex-pattern mini-language.
type miRecord struct {
	raw            string
	class          string // "done", "running", "error", ...
	fields         map[string]string
	frames         []debugger.Frame
	registerValues []registerValue
}

type registerValue struct {
	name  string
	value string
}

// mi sends one MI command and blocks for its ^done/^error result record,
// honoring the backend's configured per-command timeout.
func (b *Backend) mi(ctx context.Context, cmd string) (*miRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.token++
	tok := b.token
	line := fmt.Sprintf("%d%s\n", tok, cmd)

	if _, err := b.stdin.Write([]byte(line)); err != nil {
		return nil, &debugger.BackendUnresponsive{Command: cmd}
	}

	deadline := time.Now().Add(b.timeout)
	for {
		if b.timeout > 0 && time.Now().After(deadline) {
			return nil, &debugger.BackendUnresponsive{Command: cmd}
		}

		raw, err := b.stdout.ReadString('\n')
		if err != nil {
			return nil, &debugger.BackendUnresponsive{Command: cmd}
		}
		raw = strings.TrimRight(raw, "\r\n")
		if raw == "" || raw == "(gdb)" {
			continue
		}

		rec, isResult, recTok := parseMIRecord(raw)
		if !isResult || recTok != tok {
			// Async/stream records (*, =, ~, &, @) belong to waitStop,
			// not to this command's result; they're handled there.
			continue
		}
		if rec.class == "error" {
			return nil, &debugger.ProtocolError{Raw: raw, Err: fmt.Errorf("%v", rec.fields["msg"])}
		}
		return rec, nil
	}
}

// waitStop blocks until gdb reports an asynchronous stop (*stopped) and
// classifies it into a debugger.StopEvent.
func (b *Backend) waitStop(ctx context.Context) (debugger.StopEvent, error) {
	deadline := time.Now().Add(b.timeout)
	for {
		if b.timeout > 0 && time.Now().After(deadline) {
			return debugger.StopEvent{}, &debugger.BackendUnresponsive{Command: "*stopped"}
		}

		raw, err := b.stdout.ReadString('\n')
		if err != nil {
			return debugger.StopEvent{}, &debugger.BackendUnresponsive{Command: "*stopped"}
		}
		raw = strings.TrimRight(raw, "\r\n")
		if !strings.HasPrefix(raw, "*stopped") {
			continue
		}

		rec, _, _ := parseMIRecord(raw)
		return classifyStop(rec), nil
	}
}

func classifyStop(rec *miRecord) debugger.StopEvent {
	reason := rec.fields["reason"]
	switch {
	case reason == "breakpoint-hit":
		return debugger.StopEvent{Reason: debugger.StopBreakpoint}
	case strings.Contains(reason, "watchpoint-trigger"):
		addr, _ := parseAddrExpr(rec.fields["hw-rwpt-addr"])
		num, _ := strconv.Atoi(rec.fields["wpnum"])
		return debugger.StopEvent{Reason: debugger.StopWatchpointHit, WatchpointID: debugger.WatchpointID(num), Addr: addr}
	case reason == "exited-normally" || reason == "exited":
		code, _ := strconv.Atoi(rec.fields["exit-code"])
		return debugger.StopEvent{Reason: debugger.StopExited, ExitCode: code}
	case reason == "signal-received":
		return debugger.StopEvent{Reason: debugger.StopSignal, SignalName: rec.fields["signal-name"]}
	default:
		return debugger.StopEvent{Reason: debugger.StopSignal, SignalName: "unknown"}
	}
}

// parseMIRecord splits an MI line into its token (if a result record),
// class, and a flat field map. This intentionally does not build a full
// tuple/list tree: every command this backend issues is shaped so the
// fields it needs come back at the top level or in one of the two
// aggregate slices (frames, registerValues).
func parseMIRecord(line string) (rec *miRecord, isResult bool, token int) {
	rec = &miRecord{raw: line, fields: map[string]string{}}

	body := line
	// Strip a leading numeric token from a result record: "42^done,...".
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	if i > 0 && i < len(body) && body[i] == '^' {
		token, _ = strconv.Atoi(body[:i])
		isResult = true
		body = body[i+1:]
	} else if len(body) > 0 && (body[0] == '*' || body[0] == '=') {
		body = body[1:]
	} else {
		return rec, false, 0
	}

	comma := strings.IndexByte(body, ',')
	if comma < 0 {
		rec.class = body
		return rec, isResult, token
	}
	rec.class = body[:comma]
	rest := body[comma+1:]

	for _, kv := range splitTopLevel(rest) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		// "stack" and "register-values" carry a list of nested tuples
		// (stack=[frame={...},frame={...}], register-values=[{...},{...}]);
		// the blanket brace/bracket trim below would flatten that
		// structure, so these two are recursed into instead of trimmed.
		switch k {
		case "stack":
			rec.frames = append(rec.frames, parseFrameList(v)...)
			continue
		case "register-values":
			rec.registerValues = append(rec.registerValues, parseRegisterValueList(v)...)
			continue
		}
		v = strings.Trim(v, `"{}[]`)
		rec.fields[k] = v
		switch k {
		case "frame":
			rec.frames = append(rec.frames, parseFrame(v))
		}
	}
	return rec, isResult, token
}

// parseFrameList parses the value of a "stack=[frame={...},frame={...}]"
// field (v is everything after "stack="), one frame per element.
func parseFrameList(v string) []debugger.Frame {
	var frames []debugger.Frame
	for _, item := range splitTopLevel(stripBrackets(v, '[', ']')) {
		item = strings.TrimSpace(item)
		body := strings.TrimPrefix(item, "frame=")
		if body == item {
			continue
		}
		frames = append(frames, parseFrame(stripBrackets(body, '{', '}')))
	}
	return frames
}

// parseRegisterValueList parses the value of a
// "register-values=[{number="0",value="0x.."},...]" field.
func parseRegisterValueList(v string) []registerValue {
	var vals []registerValue
	for _, item := range splitTopLevel(stripBrackets(v, '[', ']')) {
		item = stripBrackets(strings.TrimSpace(item), '{', '}')
		rv := registerValue{}
		for _, kv := range splitTopLevel(item) {
			k, val, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			val = strings.Trim(val, `"`)
			switch k {
			case "number":
				rv.name = val
			case "value":
				rv.value = val
			}
		}
		vals = append(vals, rv)
	}
	return vals
}

// stripBrackets removes one matching pair of enclosing open/close bytes,
// if present, leaving the string untouched otherwise.
func stripBrackets(s string, open, close byte) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == open && s[len(s)-1] == close {
		return s[1 : len(s)-1]
	}
	return s
}

// splitTopLevel splits a comma-separated MI value list without splitting
// inside nested {...}/[...] groups.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseFrame(v string) debugger.Frame {
	f := debugger.Frame{}
	for _, kv := range splitTopLevel(v) {
		k, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		val = strings.Trim(val, `"`)
		switch k {
		case "func":
			f.Symbol = val
		case "file":
			f.File = val
		case "line":
			n, _ := strconv.Atoi(val)
			f.Line = n
		case "addr":
			a, _ := parseAddrExpr(val)
			f.Addr = a
		case "level":
			n, _ := strconv.Atoi(val)
			f.Depth = n
		}
	}
	return f
}

func parseAddrExpr(v string) (uint64, error) {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "0x")
	n, err := strconv.ParseUint(v, 16, 64)
	return n, err
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func quoteArgs(args []string) string {
	return strings.Join(args, " ")
}
