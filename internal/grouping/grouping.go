// Package grouping maps an item's descriptive fields to group keys.
// All functions are pure: the same display text always yields the same keys.
package grouping

import (
	"regexp"
	"strings"
)

// Mode selects which fields participate in grouping.
type Mode string

const (
	ModeSymbol Mode = "symbol" // symbol only
	ModeName   Mode = "name"   // name only
	ModeBoth   Mode = "both"   // one combined key, only when both fields are present
	ModeEither Mode = "either" // one key per non-empty field
)

// Key prefixes keep symbol and name keys from ever colliding.
const (
	prefixSymbol = "S:"
	prefixName   = "N:"
	prefixBoth   = "SN:"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSymbol, ModeName, ModeBoth, ModeEither:
		return true
	}
	return false
}

// whitespaceRe matches runs of whitespace.
var whitespaceRe = regexp.MustCompile(`\s+`)

// disallowedRe matches anything outside lowercase alphanumerics, CJK
// unified ideographs and space.
var disallowedRe = regexp.MustCompile(`[^a-z0-9\x{4e00}-\x{9fa5} ]+`)

// Normalize lowercases, trims, collapses whitespace and strips characters
// outside the allowed set.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(disallowedRe.ReplaceAllString(s, ""))
}

// Keys returns the group keys for the given symbol and name under mode.
// An unknown mode behaves like ModeEither.
func Keys(symbol, name string, mode Mode) []string {
	s := Normalize(symbol)
	n := Normalize(name)

	switch mode {
	case ModeSymbol:
		if s == "" {
			return nil
		}
		return []string{prefixSymbol + s}
	case ModeName:
		if n == "" {
			return nil
		}
		return []string{prefixName + n}
	case ModeBoth:
		if s == "" || n == "" {
			return nil
		}
		return []string{prefixBoth + s + "|" + n}
	}

	var keys []string
	if s != "" {
		keys = append(keys, prefixSymbol+s)
	}
	if n != "" {
		keys = append(keys, prefixName+n)
	}
	return keys
}
