package config

import "regexp"

// MethodMatcher identifies a method reference by owning-class name and
// method name, using regex matching when the pattern compiles as one and
// falling back to exact string matching otherwise. This is the safe-escape
// matching mechanism: a method reference passed to a tracked value is a
// "safe" escape when it matches one of the configured MethodMatchers.
type MethodMatcher struct {
	Class  string `yaml:"class"`
	Method string `yaml:"method"`

	classRegex  *regexp.Regexp
	methodRegex *regexp.Regexp
}

// Compile precomputes the regexes used by Matches. Safe to call multiple
// times; a pattern that fails to compile as a regex falls back to exact
// string comparison.
func (m *MethodMatcher) Compile() {
	if r, err := regexp.Compile(m.Class); err == nil {
		m.classRegex = r
	}
	if r, err := regexp.Compile(m.Method); err == nil {
		m.methodRegex = r
	}
}

// Matches reports whether the given owning-class name and method name match
// this matcher. Empty fields in the matcher match anything.
func (m *MethodMatcher) Matches(class, method string) bool {
	return matchField(m.classRegex, m.Class, class) && matchField(m.methodRegex, m.Method, method)
}

func matchField(re *regexp.Regexp, pattern, value string) bool {
	if pattern == "" {
		return true
	}
	if re != nil {
		return re.MatchString(value)
	}
	return pattern == value
}

// SafeEscapeSet is a compiled collection of MethodMatchers, used by the
// block analyzer to decide whether passing a tracked value to a given
// method is a safe escape or a real one.
type SafeEscapeSet struct {
	matchers []MethodMatcher
}

// NewSafeEscapeSet compiles a SafeEscapeSet from the given matchers.
func NewSafeEscapeSet(matchers []MethodMatcher) *SafeEscapeSet {
	s := &SafeEscapeSet{matchers: make([]MethodMatcher, len(matchers))}
	copy(s.matchers, matchers)
	for i := range s.matchers {
		s.matchers[i].Compile()
	}
	return s
}

// IsSafe reports whether the given owning-class and method names are
// covered by any configured matcher.
func (s *SafeEscapeSet) IsSafe(class, method string) bool {
	if s == nil {
		return false
	}
	for _, m := range s.matchers {
		if m.Matches(class, method) {
			return true
		}
	}
	return false
}
