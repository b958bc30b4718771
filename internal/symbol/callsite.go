package symbol

import "fmt"

// Qualifier selects whether CallSiteKey disambiguates same-function calls
// by their caller's call site, resolving the first Open Question of
// spec.md §9. The prototype conflates the two; this implementation exposes
// the choice and defaults to function-only, as directed.
type Qualifier int

const (
	QualifyByFunction Qualifier = iota
	QualifyByCallSite
)

// CallSiteKey is the stable identifier for "the same call in the grammar
// sense" (spec.md §3): the function symbol, optionally qualified by the
// call site of its caller.
type CallSiteKey struct {
	Function       string
	CallerLocation string // "" unless Qualifier == QualifyByCallSite
}

func (k CallSiteKey) String() string {
	if k.CallerLocation == "" {
		return k.Function
	}
	return fmt.Sprintf("%s@%s", k.Function, k.CallerLocation)
}

// MakeCallSiteKey builds a CallSiteKey for a call to callee, observed from
// a caller stopped at callerFile:callerLine, honoring the configured
// Qualifier.
func MakeCallSiteKey(q Qualifier, callee, callerFile string, callerLine int) CallSiteKey {
	if q == QualifyByFunction {
		return CallSiteKey{Function: callee}
	}
	return CallSiteKey{Function: callee, CallerLocation: fmt.Sprintf("%s:%d", callerFile, callerLine)}
}
