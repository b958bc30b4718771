package config

import (
	"fmt"

	"github.com/nihei9/mimidtrace/internal/mimiderr"
)

// InputChannel selects how the seed is delivered to the traced program
// (spec.md §6, input_channel).
type InputChannel string

const (
	InputChannelFile   = InputChannel("file")
	InputChannelStdin  = InputChannel("stdin")
	InputChannelSerial = InputChannel("serial")
)

// BackendKind selects the debugger backend (spec.md §6, instance).
type BackendKind string

const (
	BackendDirect        = BackendKind("direct")
	BackendMemorySandbox = BackendKind("memory-sandbox")
	BackendOnChip        = BackendKind("on-chip")
)

// CallSiteQualifier resolves the first Open Question of spec.md §9: whether
// CallSiteKey needs the caller's call-site location to disambiguate
// same-function calls reached through different callers.
type CallSiteQualifier string

const (
	CallSiteQualifierFunction  = CallSiteQualifier("function")
	CallSiteQualifierCallSite  = CallSiteQualifier("call-site")
)

// WatchpointResetPolicy selects how the Tracer Loop responds to a hardware
// budget smaller than the input length (SPEC_FULL.md E.3 item 1).
type WatchpointResetPolicy string

const (
	WatchpointResetRelocate = WatchpointResetPolicy("relocate")
	WatchpointResetRelaunch = WatchpointResetPolicy("relaunch")
)

// Settings is the fully validated, strongly typed view of the [GDB]-style
// configuration section described in spec.md §6.
type Settings struct {
	SeedDirectory    string
	EvalDirectory    string
	OutputDirectory  string
	BinaryFile       string
	InputChannel     InputChannel
	SerialPort       string
	SerialBaudRate   int
	GDBPath          string
	Backend          BackendKind
	GDBServerPath    string
	GDBServerAddress string
	IgnoreFuncsRegex string
	WatchpointType   string
	WatchpointCount  int // -1 means unlimited (software)
	TimeoutSeconds   int
	Entrypoint       string
	Exitpoint        string
	InputBuffer      string
	LogLevel         string

	NumberOfSeeds     int
	OriginalMimid     bool
	DelayWatchpoint   bool
	PrecisionSetSize  int
	CallSiteQualifier CallSiteQualifier
	ResetPolicy       WatchpointResetPolicy
}

// LoadSettings reads and validates the [GDB] section of a configuration
// file into a Settings value.
func LoadSettings(path string) (*Settings, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return c.Settings()
}

// Settings validates and extracts a Settings value from an already parsed
// Config.
func (c *Config) Settings() (*Settings, error) {
	const sec = "GDB"

	s := &Settings{}
	var err error

	if s.BinaryFile, err = c.Require(sec, "binary_file"); err != nil {
		return nil, err
	}
	if s.SeedDirectory, err = c.Require(sec, "seed_directory"); err != nil {
		return nil, err
	}
	s.EvalDirectory = c.GetDefault(sec, "eval_directory", "")
	if s.OutputDirectory, err = c.Require(sec, "output_directory"); err != nil {
		return nil, err
	}

	s.InputChannel = InputChannel(c.GetDefault(sec, "input_channel", string(InputChannelFile)))
	switch s.InputChannel {
	case InputChannelFile, InputChannelStdin, InputChannelSerial:
	default:
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("invalid input_channel: %v", s.InputChannel))
	}
	s.SerialPort = c.GetDefault(sec, "port", "")
	if s.SerialBaudRate, err = c.GetInt(sec, "baud_rate", 115200); err != nil {
		return nil, err
	}
	if s.InputChannel == InputChannelSerial && s.SerialPort == "" {
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("input_channel=serial requires port"))
	}

	s.GDBPath = c.GetDefault(sec, "gdb_path", "gdb")
	s.Backend = BackendKind(c.GetDefault(sec, "instance", string(BackendDirect)))
	switch s.Backend {
	case BackendDirect, BackendMemorySandbox, BackendOnChip:
	default:
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("invalid instance: %v", s.Backend))
	}
	s.GDBServerPath = c.GetDefault(sec, "gdb_server_path", "")
	s.GDBServerAddress = c.GetDefault(sec, "gdb_server_address", "")
	if s.Backend == BackendOnChip && (s.GDBServerPath == "" || s.GDBServerAddress == "") {
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("instance=on-chip requires gdb_server_path and gdb_server_address"))
	}

	s.IgnoreFuncsRegex = c.GetDefault(sec, "ignore_functions_regex", defaultIgnoreRegex)
	s.WatchpointType = c.GetDefault(sec, "watchpoint_type", "char")
	if s.WatchpointCount, err = c.GetInt(sec, "watchpoint_count", 4); err != nil {
		return nil, err
	}
	if s.WatchpointCount < -1 {
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("watchpoint_count must be >= -1, got %v", s.WatchpointCount))
	}
	if s.TimeoutSeconds, err = c.GetInt(sec, "timeout", 30); err != nil {
		return nil, err
	}

	if s.Entrypoint, err = c.Require(sec, "entrypoint"); err != nil {
		return nil, err
	}
	s.Exitpoint = c.GetDefault(sec, "exitpoint", "")
	if s.InputBuffer, err = c.Require(sec, "input_buffer"); err != nil {
		return nil, err
	}
	s.LogLevel = c.GetDefault(sec, "log_level", "INFO")

	if s.NumberOfSeeds, err = c.GetInt(sec, "NUMBER_OF_SEEDS", 0); err != nil {
		return nil, err
	}
	s.OriginalMimid = c.GetDefault(sec, "ORIGINAL_MIMID", "0") == "1"
	s.DelayWatchpoint = c.GetDefault(sec, "DELAY_WP", "0") == "1"
	if s.PrecisionSetSize, err = c.GetInt(sec, "PRECISION_SET_SIZE", 0); err != nil {
		return nil, err
	}

	s.CallSiteQualifier = CallSiteQualifier(c.GetDefault(sec, "call_site_qualifier", string(CallSiteQualifierFunction)))
	switch s.CallSiteQualifier {
	case CallSiteQualifierFunction, CallSiteQualifierCallSite:
	default:
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("invalid call_site_qualifier: %v", s.CallSiteQualifier))
	}

	s.ResetPolicy = WatchpointResetPolicy(c.GetDefault(sec, "watchpoint_reset_policy", string(WatchpointResetRelocate)))
	switch s.ResetPolicy {
	case WatchpointResetRelocate, WatchpointResetRelaunch:
	default:
		return nil, mimiderr.New(mimiderr.KindConfigInvalid,
			fmt.Errorf("invalid watchpoint_reset_policy: %v", s.ResetPolicy))
	}

	return s, nil
}

// defaultIgnoreRegex matches dynamic-linker thunks and common debugger
// backend helper symbols, per spec.md §4.B.
const defaultIgnoreRegex = `^(_dl_|\.plt|__libc_|_init$|_fini$)`
