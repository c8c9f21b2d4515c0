// Package utils holds small text helpers shared by the services and the ops
// notifier.
package utils

import (
	"strings"
	"unicode"
)

// CleanText trims s and drops control characters other than newline and
// tab. Used for free text supplied by callers (notes, cancel reasons, item
// names) before it is stored or echoed to dashboards.
func CleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// SingleLine collapses every run of whitespace in s to one space
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
