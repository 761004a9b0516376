// Package model defines the item and identity types shared by the
// detection pipeline. Items are produced fresh by a feed on every scan;
// nothing here is retained across scans.
package model

import "strings"

// Identity uniquely identifies a token launch across all columns.
type Identity struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

// String returns "chain:address".
func (id Identity) String() string {
	return id.Chain + ":" + id.Address
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Chain == "" && id.Address == ""
}

// Short returns a truncated address suitable for status lines.
func (id Identity) Short() string {
	addr := id.Address
	if len(addr) > 8 {
		addr = addr[:8] + "..."
	}
	return id.Chain + "/" + addr
}

// ParseIdentity parses the "chain:address" form produced by String.
func ParseIdentity(s string) (Identity, bool) {
	chain, addr, ok := strings.Cut(s, ":")
	if !ok || chain == "" || addr == "" {
		return Identity{}, false
	}
	return Identity{Chain: chain, Address: addr}, true
}

// Item is one row observed in a column during a single scan.
type Item struct {
	Identity Identity

	// Descriptive fields used for grouping.
	Symbol string
	Name   string

	// Keys is filled by grouping. Empty means the item is never classified.
	Keys []string

	// RecencyMs is time since creation in milliseconds. Larger is older.
	// Nil when the feed could not parse an age.
	RecencyMs *int64

	// Position is the slot index reported by the feed.
	Position int

	Visible bool
}

// HasRecency reports whether the item carries a parsable age.
func (it Item) HasRecency() bool {
	return it.RecencyMs != nil
}

// Recency returns the age in milliseconds, or -1 when unknown.
func (it Item) Recency() int64 {
	if it.RecencyMs == nil {
		return -1
	}
	return *it.RecencyMs
}

// Ms is a convenience for building recency values.
func Ms(v int64) *int64 {
	return &v
}

// Target is the item selected for an automated action.
type Target struct {
	Identity  Identity
	Key       string // group key whose episode fired
	RecencyMs *int64
	Position  int
	Distinct  int // distinct identities observed in the window when fired
}
