package aoi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/biter777/countries"

	"github.com/urbanform/hexpipe/internal/models"
)

// Registry resolves AOI group names into ordered city lists. It is a pure
// lookup over the static configuration: no side effects, no network.
type Registry struct {
	groups map[string][]string
}

// NewRegistry creates a registry from the configured group mapping.
func NewRegistry(groups map[string][]string) *Registry {
	return &Registry{groups: groups}
}

// Group returns the AOI display names belonging to the named group, in
// declaration order with duplicates removed. Unknown groups are a
// ConfigurationError.
func (r *Registry) Group(name string) ([]string, error) {
	cities, ok := r.groups[name]
	if !ok {
		return nil, &models.ConfigurationError{
			Reason: fmt.Sprintf("unknown AOI group %q (known: %s)", name, strings.Join(r.GroupNames(), ", ")),
		}
	}

	seen := make(map[string]bool, len(cities))
	out := make([]string, 0, len(cities))
	for _, c := range cities {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// GroupNames returns all configured group names, sorted.
func (r *Registry) GroupNames() []string {
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnsureCountry appends the country to an AOI name unless it is already
// present, so "Yarra, Victoria" becomes "Yarra, Victoria, Australia".
func EnsureCountry(name, country string) string {
	if country == "" || strings.Contains(strings.ToLower(name), strings.ToLower(country)) {
		return name
	}
	return fmt.Sprintf("%s, %s", name, country)
}

// ValidCountry reports whether the name is a recognized country.
func ValidCountry(name string) bool {
	return countries.ByName(name) != countries.Unknown
}
