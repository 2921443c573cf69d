// Package category defines the closed architectural taxonomy and the ordered
// rule tables that map file paths and reference strings into it.
package category

import "fmt"

// Category is one architectural bucket. The set is closed.
type Category string

const (
	Types              Category = "types"
	CoreInterfaces     Category = "core-interfaces"
	CoreServices       Category = "core-services"
	Core               Category = "core"
	Analysis           Category = "analysis"
	Security           Category = "security"
	Observability      Category = "observability"
	MessagingInterface Category = "messaging-interface"
	CLI                Category = "cli"
	Other              Category = "other"
)

// layering lists the taxonomy from foundational to integration.
// The index of a category is its tie-break rank.
var layering = []Category{
	Types,
	CoreInterfaces,
	CoreServices,
	Core,
	Analysis,
	Security,
	Observability,
	MessagingInterface,
	CLI,
	Other,
}

// All returns every category in layering order.
func All() []Category {
	out := make([]Category, len(layering))
	copy(out, layering)
	return out
}

// Rank returns the static layering priority of c (lower comes first).
// Unknown values rank after every known category.
func Rank(c Category) int {
	for i, l := range layering {
		if l == c {
			return i
		}
	}
	return len(layering)
}

// Valid reports whether c belongs to the taxonomy.
func (c Category) Valid() bool {
	return Rank(c) < len(layering)
}

func (c Category) String() string {
	return string(c)
}

// Parse converts a string into a Category.
func Parse(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
