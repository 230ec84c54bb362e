// Package resource describes the EEDM reference resources the API exposes.
// Every resource is served by the same generic controller; a Definition only
// carries what differs between them.
package resource

import (
	"slices"
	"sort"
)

// Definition is one EEDM resource.
type Definition struct {
	// Name is the route segment, e.g. "student-cohorts".
	Name string
	// Versions lists the supported major versions of the media type.
	Versions []int
	// Permission required to read the resource. Empty means any authenticated caller.
	Permission string
	// Paged resources honor offset/limit and report X-Total-Count.
	Paged        bool
	DefaultLimit int
	MaxLimit     int
	// Filters lists the criteria keys accepted on GET /{resource}.
	Filters []string
}

// LatestVersion returns the highest supported version.
func (d Definition) LatestVersion() int {
	if len(d.Versions) == 0 {
		return 0
	}
	return slices.Max(d.Versions)
}

// SupportsVersion reports whether v is one of the supported versions.
func (d Definition) SupportsVersion(v int) bool {
	return slices.Contains(d.Versions, v)
}

// AllowsFilter reports whether key may appear in criteria.
func (d Definition) AllowsFilter(key string) bool {
	return slices.Contains(d.Filters, key)
}

var basicFilters = []string{"code", "title"}

// Catalog holds the resource definitions keyed by name.
type Catalog struct {
	defs map[string]Definition
}

// NewCatalog builds a catalog from defs. Later duplicates replace earlier ones.
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		c.defs[d.Name] = d
	}
	return c
}

// Lookup returns the definition registered under name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// All returns every definition ordered by name.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Default returns the built-in reference resources.
func Default() *Catalog {
	return NewCatalog(
		Definition{Name: "academic-catalogs", Versions: []int{6}, Filters: basicFilters},
		Definition{Name: "academic-honors", Versions: []int{6}, Filters: basicFilters},
		Definition{Name: "academic-levels", Versions: []int{6}, Filters: basicFilters},
		Definition{Name: "admission-application-sources", Versions: []int{7}, Filters: basicFilters},
		Definition{Name: "admission-application-types", Versions: []int{6}, Filters: basicFilters},
		Definition{Name: "admission-decision-types", Versions: []int{6, 11}, Filters: basicFilters},
		Definition{Name: "admission-populations", Versions: []int{6}, Filters: basicFilters},
		Definition{Name: "financial-aid-fund-categories", Versions: []int{9}, Filters: basicFilters},
		Definition{Name: "financial-aid-fund-classifications", Versions: []int{9}, Filters: basicFilters},
		Definition{
			Name:     "financial-aid-years",
			Versions: []int{9},
			Filters:  []string{"code", "title", "status"},
		},
		Definition{Name: "instructional-methods", Versions: []int{6}, Filters: basicFilters},
		Definition{Name: "student-classifications", Versions: []int{6}, Filters: basicFilters},
		Definition{
			Name:         "student-cohorts",
			Versions:     []int{7, 16},
			Permission:   "VIEW.STUDENT.COHORTS",
			Paged:        true,
			DefaultLimit: 100,
			MaxLimit:     500,
			Filters:      []string{"code", "title", "cohortType"},
		},
		Definition{Name: "student-types", Versions: []int{6, 7}, Filters: basicFilters},
	)
}
