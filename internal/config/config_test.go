package config

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		caption string
		src     string
		section string
		key     string
		want    string
		wantOK  bool
	}{
		{
			caption: "a key in an explicit section",
			src: `
[GDB]
entrypoint=parse_expr
`,
			section: "GDB",
			key:     "entrypoint",
			want:    "parse_expr",
			wantOK:  true,
		},
		{
			caption: "comments and blank lines are skipped",
			src: `
# a comment
[GDB]
; another comment
watchpoint_count=4

entrypoint=main
`,
			section: "GDB",
			key:     "watchpoint_count",
			want:    "4",
			wantOK:  true,
		},
		{
			caption: "missing key",
			src: `
[GDB]
entrypoint=main
`,
			section: "GDB",
			key:     "exitpoint",
			want:    "",
			wantOK:  false,
		},
		{
			caption: "missing section",
			src: `
[GDB]
entrypoint=main
`,
			section: "EVAL",
			key:     "entrypoint",
			want:    "",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			c, err := Parse(strings.NewReader(tt.src))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := c.Get(tt.section, tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Get(%v, %v) = (%v, %v); want (%v, %v)", tt.section, tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		caption string
		src     string
	}{
		{
			caption: "unterminated section header",
			src:     "[GDB\nentrypoint=main\n",
		},
		{
			caption: "line without =",
			src:     "[GDB]\nentrypoint\n",
		},
		{
			caption: "empty key",
			src:     "[GDB]\n=main\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			if err == nil {
				t.Fatalf("expected an error, got nil")
			}
		})
	}
}

func TestSettingsDefaults(t *testing.T) {
	src := `
[GDB]
binary_file=/tmp/calc
seed_directory=/tmp/seeds
output_directory=/tmp/out
entrypoint=parse_expr
input_buffer=input_buf
`
	c, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := c.Settings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.InputChannel != InputChannelFile {
		t.Errorf("InputChannel = %v; want %v", s.InputChannel, InputChannelFile)
	}
	if s.Backend != BackendDirect {
		t.Errorf("Backend = %v; want %v", s.Backend, BackendDirect)
	}
	if s.WatchpointCount != 4 {
		t.Errorf("WatchpointCount = %v; want 4", s.WatchpointCount)
	}
	if s.CallSiteQualifier != CallSiteQualifierFunction {
		t.Errorf("CallSiteQualifier = %v; want %v", s.CallSiteQualifier, CallSiteQualifierFunction)
	}
	if s.ResetPolicy != WatchpointResetRelocate {
		t.Errorf("ResetPolicy = %v; want %v", s.ResetPolicy, WatchpointResetRelocate)
	}
}

func TestSettingsMissingRequired(t *testing.T) {
	src := `
[GDB]
seed_directory=/tmp/seeds
`
	c, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Settings(); err == nil {
		t.Fatalf("expected an error for missing binary_file")
	}
}
