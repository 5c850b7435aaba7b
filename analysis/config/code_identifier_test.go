package config

import "testing"

func TestMethodMatcherExactMatch(t *testing.T) {
	m := MethodMatcher{Class: "Logger", Method: "log"}
	m.Compile()

	if !m.Matches("Logger", "log") {
		t.Errorf("expected exact class/method match to succeed")
	}
	if m.Matches("Logger", "warn") {
		t.Errorf("expected a different method name not to match")
	}
}

func TestMethodMatcherRegex(t *testing.T) {
	m := MethodMatcher{Class: "com\\.example\\..*Logger", Method: ".*"}
	m.Compile()

	if !m.Matches("com.example.util.ConsoleLogger", "log") {
		t.Errorf("expected the class regex to match a qualified logger name")
	}
	if m.Matches("com.example.util.Other", "log") {
		t.Errorf("expected a non-matching class not to match")
	}
}

func TestMethodMatcherEmptyFieldsMatchAnything(t *testing.T) {
	m := MethodMatcher{Class: "", Method: "log"}
	m.Compile()

	if !m.Matches("AnyClass", "log") {
		t.Errorf("an empty Class pattern should match any class name")
	}
	if m.Matches("AnyClass", "other") {
		t.Errorf("a non-empty Method pattern should still have to match")
	}
}

func TestSafeEscapeSetIsSafe(t *testing.T) {
	s := NewSafeEscapeSet([]MethodMatcher{
		{Class: "Logger", Method: "log"},
		{Class: "Metrics", Method: "record"},
	})

	if !s.IsSafe("Logger", "log") {
		t.Errorf("expected Logger.log to be a configured safe escape")
	}
	if s.IsSafe("Logger", "other") {
		t.Errorf("expected a non-configured method not to be safe")
	}
}

func TestSafeEscapeSetNilIsNeverSafe(t *testing.T) {
	var s *SafeEscapeSet
	if s.IsSafe("Anything", "anything") {
		t.Errorf("a nil SafeEscapeSet should never report a method as safe")
	}
}
