package feed

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wfce/gmgn-filter/internal/model"
)

// Row is one raw listing slot as scraped from the page.
type Row struct {
	Href   string `json:"href"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Age    string `json:"age"`
	Slot   int    `json:"slot"`
	Hidden bool   `json:"hidden,omitempty"`
}

var (
	ageRe  = regexp.MustCompile(`^(\d+)\s*([smhd])$`)
	hrefRe = regexp.MustCompile(`^/([^/]+)/token/([^/?#]+)`)
)

var ageUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseAge converts listing age text such as "40s" or "3m" to
// milliseconds. ok is false for anything else, including ages too large
// to represent.
func ParseAge(s string) (int64, bool) {
	m := ageRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	unit := ageUnits[m[2]].Milliseconds()
	if err != nil || n > math.MaxInt64/unit {
		return 0, false
	}
	return n * unit, true
}

// ParseHref extracts the identity from a "/<chain>/token/<address>" link.
func ParseHref(href string) (model.Identity, bool) {
	m := hrefRe.FindStringSubmatch(href)
	if m == nil {
		return model.Identity{}, false
	}
	return model.Identity{Chain: m[1], Address: m[2]}, true
}

// ParseRow turns a raw row into an item. Rows without a token link are
// dropped; an unreadable age leaves RecencyMs nil.
func ParseRow(r Row) (model.Item, bool) {
	id, ok := ParseHref(r.Href)
	if !ok {
		return model.Item{}, false
	}

	it := model.Item{
		Identity: id,
		Symbol:   strings.TrimSpace(r.Symbol),
		Name:     strings.TrimSpace(r.Name),
		Position: r.Slot,
		Visible:  !r.Hidden,
	}
	if ms, ok := ParseAge(r.Age); ok {
		it.RecencyMs = model.Ms(ms)
	}
	return it, true
}

// ParseRows parses rows in order, skipping unusable ones.
func ParseRows(rows []Row) []model.Item {
	items := make([]model.Item, 0, len(rows))
	for _, r := range rows {
		if it, ok := ParseRow(r); ok {
			items = append(items, it)
		}
	}
	return items
}
