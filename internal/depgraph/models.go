package depgraph

import "github.com/efebarandurmaz/layermap/internal/category"

// Edge is a category-level dependency: references found in files of From
// that resolve to To. References is sorted and duplicate free.
type Edge struct {
	From       category.Category `json:"from"`
	To         category.Category `json:"to"`
	References []string          `json:"references"`
}

// Weight is the number of distinct references carried by the edge.
func (e Edge) Weight() int {
	return len(e.References)
}

// IsSelf reports whether the edge starts and ends in the same category.
func (e Edge) IsSelf() bool {
	return e.From == e.To
}

// Graph is a directed multigraph over categories. Each (from, to) pair owns
// a set of raw reference strings.
type Graph struct {
	nodes map[category.Category]struct{}
	edges map[category.Category]map[category.Category]map[string]struct{}
}

// GraphStats holds computed metrics about the graph
type GraphStats struct {
	TotalCategories     int                       `json:"total_categories"`
	TotalEdges          int                       `json:"total_edges"`
	TotalReferences     int                       `json:"total_references"`
	SelfEdges           int                       `json:"self_edges"`
	MaxFanOut           int                       `json:"max_fan_out"` // most distinct outgoing references
	MaxFanIn            int                       `json:"max_fan_in"`  // most distinct incoming references
	HotspotCategory     category.Category         `json:"hotspot_category"`
	ConnectedComponents int                       `json:"connected_components"`
	CyclicDeps          [][]category.Category     `json:"cyclic_deps,omitempty"`
	FanIn               map[category.Category]int `json:"fan_in"`
	FanOut              map[category.Category]int `json:"fan_out"`
}
