package resource

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Filter decides whether a directory entry, identified by its base name, is
// part of a category. It is applied to files and directories alike at every
// level of the category tree.
type Filter func(name string) bool

// AcceptAll includes every entry.
func AcceptAll(string) bool { return true }

// PropertiesOnly includes only java style *.properties files.
func PropertiesOnly(name string) bool {
	return strings.HasSuffix(name, ".properties")
}

// ExcludeStyleDefinitions drops style definitions (sld, ysld, xml and css),
// keeping icons and other files referenced by styles.
func ExcludeStyleDefinitions(name string) bool {
	lower := strings.ToLower(name)
	return !strings.HasSuffix(lower, "sld") &&
		!strings.HasSuffix(lower, ".xml") &&
		!strings.HasSuffix(lower, ".css")
}

// Category is a named subdirectory of the resource tree and its filter.
type Category struct {
	Name   string
	Accept Filter
}

// Registry is an immutable set of categories, iterated in name order.
type Registry struct {
	categories []Category
}

// NewRegistry validates the categories and freezes them. Names must be
// single, unique path elements and every category needs a filter.
func NewRegistry(categories ...Category) (*Registry, error) {
	seen := make(map[string]struct{}, len(categories))
	frozen := make([]Category, 0, len(categories))
	for _, c := range categories {
		if c.Name == "" || c.Name == "." || c.Name == ".." || strings.ContainsAny(c.Name, `/\`) || filepath.Base(c.Name) != c.Name {
			return nil, fmt.Errorf("invalid category name %q", c.Name)
		}
		if c.Accept == nil {
			return nil, fmt.Errorf("category %q has no filter", c.Name)
		}
		if _, ok := seen[c.Name]; ok {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		frozen = append(frozen, c)
	}
	sort.Slice(frozen, func(i, j int) bool { return frozen[i].Name < frozen[j].Name })

	return &Registry{categories: frozen}, nil
}

// DefaultRegistry returns the auxiliary resource categories of a catalog
// data directory.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Category{Name: "demo", Accept: AcceptAll},
		Category{Name: "images", Accept: AcceptAll},
		Category{Name: "logs", Accept: PropertiesOnly},
		Category{Name: "palettes", Accept: AcceptAll},
		Category{Name: "plugIns", Accept: AcceptAll},
		Category{Name: "styles", Accept: ExcludeStyleDefinitions},
		Category{Name: "user_projections", Accept: AcceptAll},
		Category{Name: "validation", Accept: AcceptAll},
		Category{Name: "www", Accept: AcceptAll},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Categories returns a copy of the registered categories.
func (r *Registry) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

func (r *Registry) Lookup(name string) (Category, bool) {
	for _, c := range r.categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

func (r *Registry) Len() int {
	return len(r.categories)
}
