package geopackage

import (
	"fmt"
	"strings"

	"github.com/urbanform/hexpipe/internal/aoi"
)

// Column names must survive GDAL and SQLite: keep some headroom below
// typical driver limits.
const maxColumnLen = 60

// SanitizeColumnName normalizes a name into a safe column identifier:
// transliterated to ASCII, lowercased, with every run of characters
// outside [a-z0-9] collapsed into a single underscore, no leading or
// trailing underscore, truncated to maxColumnLen. The charset matches the
// AOI slug rules, so slugs pass through unchanged.
func SanitizeColumnName(name string) string {
	s := aoi.Slugify(name)
	if len(s) > maxColumnLen {
		s = strings.TrimRight(s[:maxColumnLen], "_")
	}
	return s
}

// SanitizeColumnNames sanitizes a full column list, suffixing duplicates
// so every resulting name is unique.
func SanitizeColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		safe := SanitizeColumnName(name)
		if safe == "" {
			safe = fmt.Sprintf("col_%d", i)
		}
		base := safe
		for n := 1; seen[safe]; n++ {
			suffix := fmt.Sprintf("_%d", n)
			trimmed := base
			if len(trimmed)+len(suffix) > maxColumnLen {
				trimmed = trimmed[:maxColumnLen-len(suffix)]
			}
			safe = trimmed + suffix
		}
		seen[safe] = true
		out[i] = safe
	}
	return out
}
