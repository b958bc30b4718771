package symbol

import (
	"regexp"
	"testing"
)

func TestOracleShouldIgnore(t *testing.T) {
	tests := []struct {
		caption string
		regex   string
		symbol  string
		want    bool
	}{
		{caption: "no pattern configured", regex: "", symbol: "__libc_start_main", want: false},
		{caption: "matches a dynamic linker thunk", regex: `^_dl_`, symbol: "_dl_runtime_resolve", want: true},
		{caption: "does not match the parser's own function", regex: `^_dl_`, symbol: "parse_expr", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			o := &Oracle{}
			if tt.regex != "" {
				o.ignore = regexp.MustCompile(tt.regex)
			}
			if got := o.ShouldIgnore(tt.symbol); got != tt.want {
				t.Errorf("ShouldIgnore(%v) = %v; want %v", tt.symbol, got, tt.want)
			}
		})
	}
}

func TestMakeCallSiteKey(t *testing.T) {
	tests := []struct {
		caption    string
		q          Qualifier
		callee     string
		callerFile string
		callerLine int
		want       CallSiteKey
	}{
		{
			caption: "function-only, the default",
			q:       QualifyByFunction,
			callee:  "parse_term",
			want:    CallSiteKey{Function: "parse_term"},
		},
		{
			caption:    "qualified by call site",
			q:          QualifyByCallSite,
			callee:     "parse_term",
			callerFile: "calc.c",
			callerLine: 42,
			want:       CallSiteKey{Function: "parse_term", CallerLocation: "calc.c:42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			got := MakeCallSiteKey(tt.q, tt.callee, tt.callerFile, tt.callerLine)
			if got != tt.want {
				t.Errorf("MakeCallSiteKey(...) = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestCallSiteKeyString(t *testing.T) {
	tests := []struct {
		caption string
		key     CallSiteKey
		want    string
	}{
		{caption: "function only", key: CallSiteKey{Function: "parse_expr"}, want: "parse_expr"},
		{
			caption: "with caller location",
			key:     CallSiteKey{Function: "parse_expr", CallerLocation: "calc.c:10"},
			want:    "parse_expr@calc.c:10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %v; want %v", got, tt.want)
			}
		})
	}
}
