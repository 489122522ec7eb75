// Package rules dispatches module paths to transform rules.
//
// The rule table is an ordered list of (predicate, transform) pairs evaluated
// linearly. The first rule whose exclusion does not match and whose test does
// match wins. Declaration order is part of the contract: a narrow rule placed
// after a broad one is never selected.
package rules

import (
	"regexp"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Rule is one compiled entry of the rule table.
type Rule struct {
	Name        string
	Test        *regexp.Regexp
	Exclude     *regexp.Regexp
	Use         string
	Options     config.Options
	Fingerprint string
}

// Matches reports whether the rule applies to a slash-separated path.
func (r *Rule) Matches(path string) bool {
	if r.Exclude != nil && r.Exclude.MatchString(path) {
		return false
	}
	return r.Test.MatchString(path)
}

// Matcher holds the ordered rule table. It is immutable and safe for
// concurrent use.
type Matcher struct {
	rules []*Rule
}

// NewMatcher compiles the configured rules. A rule that repeats the test and
// exclusion of an earlier rule can never be selected and is rejected with a
// rule-match ambiguity error.
func NewMatcher(cfgs []config.RuleConfig) (*Matcher, error) {
	m := &Matcher{rules: make([]*Rule, 0, len(cfgs))}
	seen := make(map[[2]string]string, len(cfgs))
	for _, rc := range cfgs {
		test, err := regexp.Compile(rc.Test)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "invalid rule test pattern").
				WithContext("rule", rc.Name).
				Build()
		}
		var exclude *regexp.Regexp
		if rc.Exclude != "" {
			exclude, err = regexp.Compile(rc.Exclude)
			if err != nil {
				return nil, errors.WrapError(err, errors.CategoryConfig, "invalid rule exclude pattern").
					WithContext("rule", rc.Name).
					Build()
			}
		}
		key := [2]string{rc.Test, rc.Exclude}
		if prev, dup := seen[key]; dup {
			return nil, errors.RuleMatchAmbiguity(rc.Name, prev).Build()
		}
		seen[key] = rc.Name
		m.rules = append(m.rules, &Rule{
			Name:        rc.Name,
			Test:        test,
			Exclude:     exclude,
			Use:         rc.Use,
			Options:     rc.Options,
			Fingerprint: rc.Fingerprint(),
		})
	}
	return m, nil
}

// Match returns the first applicable rule for path, or false when no rule
// applies and the module passes through unmodified.
func (m *Matcher) Match(path string) (*Rule, bool) {
	for _, r := range m.rules {
		if r.Matches(path) {
			return r, true
		}
	}
	return nil, false
}

// Rules returns the compiled table in declaration order.
func (m *Matcher) Rules() []*Rule {
	out := make([]*Rule, len(m.rules))
	copy(out, m.rules)
	return out
}
