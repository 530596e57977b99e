// Package typemap guesses a 12-bit legacy file type from name-regex,
// mode-mask, or default rules, as configured by the typemap config section.
package typemap

import (
	"os"
	"regexp"
)

// Rule is one typemap entry: NamePattern (if non-nil) matches the leaf
// name; ModeMask/ModeValue (if Mask != 0) matches file mode bits.
// Type is the 12-bit legacy type assigned when the rule fires.
type Rule struct {
	NamePattern *regexp.Regexp
	ModeMask    os.FileMode
	ModeValue   os.FileMode
	Type        uint16
}

// DefaultType is returned when no rule matches.
const DefaultType uint16 = 0xFFD

// Map holds the ordered rule list; the first matching rule wins.
type Map struct {
	rules []Rule
}

// New builds a Map from already-compiled rules. An empty pattern means "no
// name constraint"; a zero mask means "no mode constraint".
func New(rules []Rule) *Map {
	return &Map{rules: rules}
}

// Guess returns the legacy type for name/mode, or DefaultType.
func (m *Map) Guess(name string, mode os.FileMode) uint16 {
	for _, r := range m.rules {
		if r.NamePattern != nil && !r.NamePattern.MatchString(name) {
			continue
		}
		if r.ModeMask != 0 && mode&r.ModeMask != r.ModeValue {
			continue
		}
		return r.Type
	}
	return DefaultType
}

// CompileRule builds a Rule from string config fields; namePattern may be
// empty to skip the name constraint.
func CompileRule(namePattern string, modeMask, modeValue os.FileMode, typ uint16) (Rule, error) {
	var re *regexp.Regexp
	if namePattern != "" {
		var err error
		re, err = regexp.Compile(namePattern)
		if err != nil {
			return Rule{}, err
		}
	}
	return Rule{NamePattern: re, ModeMask: modeMask, ModeValue: modeValue, Type: typ}, nil
}
