package errstore

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

const defaultMatchTimeout = 100 * time.Millisecond

// PatternError reports a pattern that could not be compiled or evaluated.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// compilePatterns compiles each pattern with ECMAScript semantics. Patterns that
// fail to compile are reported and left out of the result.
func compilePatterns(patterns []string, timeout time.Duration) ([]*regexp2.Regexp, []error) {
	compiled := make([]*regexp2.Regexp, 0, len(patterns))
	var errs []error
	for _, p := range patterns {
		re, err := regexp2.Compile(p, regexp2.ECMAScript)
		if err != nil {
			errs = append(errs, &PatternError{Pattern: p, Err: err})
			continue
		}
		re.MatchTimeout = timeout
		compiled = append(compiled, re)
	}
	return compiled, errs
}

// matchPattern reports whether re is found anywhere in code.
func matchPattern(re *regexp2.Regexp, code string) (bool, error) {
	ok, err := re.MatchString(code)
	if err != nil {
		return false, &PatternError{Pattern: re.String(), Err: err}
	}
	return ok, nil
}

// matchAny tests code against every pattern. A pattern that errors counts as
// no match and the error is returned alongside the result.
func matchAny(res []*regexp2.Regexp, code string) (bool, []error) {
	var errs []error
	for _, re := range res {
		ok, err := matchPattern(re, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, errs
		}
	}
	return false, errs
}
