// Package strutil holds small string helpers shared by the outputs.
package strutil

import (
	"strings"
	"unicode/utf8"
)

// NormalizeUpper trims surrounding whitespace and converts to upper case.
// Use for callsigns and decoded text headed for an upper-case-only display.
func NormalizeUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// Fit returns the last width runes of value, right-padded with spaces to
// exactly width runes. Keeping the tail shows the most recent keying on a
// fixed-width display.
func Fit(value string, width int) string {
	if width <= 0 {
		return ""
	}
	n := utf8.RuneCountInString(value)
	if n > width {
		runes := []rune(value)
		return string(runes[n-width:])
	}
	return value + strings.Repeat(" ", width-n)
}

// SingleLine collapses newlines and tabs so value fits on one display row.
func SingleLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
