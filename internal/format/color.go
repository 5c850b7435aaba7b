// Package format provides small ANSI-coloring helpers for command-line
// output, gated on whether stdout is actually a terminal.
package format

import (
	"fmt"

	"golang.org/x/term"
)

// Faint, Warn and Good wrap their arguments in an ANSI escape sequence when
// stdout is a terminal, and are no-ops (plain fmt.Sprint) otherwise.
var (
	Faint = color("\033[2m%s\033[0m")
	Warn  = color("\033[1;33m%s\033[0m")
	Good  = color("\033[1;32m%s\033[0m")
	Bad   = color("\033[1;31m%s\033[0m")
)

func color(code string) func(...any) string {
	return func(args ...any) string {
		if term.IsTerminal(1) {
			return fmt.Sprintf(code, fmt.Sprint(args...))
		}
		return fmt.Sprint(args...)
	}
}
