package depgraph

import (
	"sort"

	"github.com/efebarandurmaz/layermap/internal/category"
)

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[category.Category]struct{}),
		edges: make(map[category.Category]map[category.Category]map[string]struct{}),
	}
}

// AddNode records c as observed, with or without edges.
func (g *Graph) AddNode(c category.Category) {
	g.nodes[c] = struct{}{}
}

// AddEdge records refs on the from -> to edge. Both ends become nodes.
// Repeated references are stored once.
func (g *Graph) AddEdge(from, to category.Category, refs ...string) {
	g.AddNode(from)
	g.AddNode(to)
	targets := g.edges[from]
	if targets == nil {
		targets = make(map[category.Category]map[string]struct{})
		g.edges[from] = targets
	}
	set := targets[to]
	if set == nil {
		set = make(map[string]struct{})
		targets[to] = set
	}
	for _, r := range refs {
		set[r] = struct{}{}
	}
}

func (g *Graph) merge(other *Graph) {
	for c := range other.nodes {
		g.AddNode(c)
	}
	for from, targets := range other.edges {
		for to, set := range targets {
			g.AddEdge(from, to)
			dst := g.edges[from][to]
			for r := range set {
				dst[r] = struct{}{}
			}
		}
	}
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	c.merge(g)
	return c
}

// HasNode reports whether c was observed.
func (g *Graph) HasNode(c category.Category) bool {
	_, ok := g.nodes[c]
	return ok
}

// Categories returns the observed categories in layering order.
func (g *Graph) Categories() []category.Category {
	out := make([]category.Category, 0, len(g.nodes))
	for c := range g.nodes {
		out = append(out, c)
	}
	sortCategories(out)
	return out
}

// References returns the sorted reference set of the from -> to edge.
// It is nil when the edge does not exist.
func (g *Graph) References(from, to category.Category) []string {
	set, ok := g.edges[from][to]
	if !ok {
		return nil
	}
	return sortedSet(set)
}

// Edges returns every edge ordered by source then target layering rank.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, from := range g.Categories() {
		targets := g.edges[from]
		if len(targets) == 0 {
			continue
		}
		tos := make([]category.Category, 0, len(targets))
		for to := range targets {
			tos = append(tos, to)
		}
		sortCategories(tos)
		for _, to := range tos {
			out = append(out, Edge{From: from, To: to, References: sortedSet(targets[to])})
		}
	}
	return out
}

// Nested returns the graph as source -> target -> sorted references. Every
// observed category appears as a source key, possibly with no targets.
func (g *Graph) Nested() map[category.Category]map[category.Category][]string {
	out := make(map[category.Category]map[category.Category][]string, len(g.nodes))
	for c := range g.nodes {
		out[c] = make(map[category.Category][]string)
	}
	for from, targets := range g.edges {
		for to, set := range targets {
			out[from][to] = sortedSet(set)
		}
	}
	return out
}

// FromNested rebuilds a graph from the Nested form, e.g. a loaded report.
func FromNested(nested map[category.Category]map[category.Category][]string) *Graph {
	g := NewGraph()
	for from, targets := range nested {
		g.AddNode(from)
		for to, refs := range targets {
			g.AddEdge(from, to, refs...)
		}
	}
	return g
}

// Stats computes graph metrics.
func (g *Graph) Stats() GraphStats {
	s := GraphStats{
		TotalCategories: len(g.nodes),
		FanIn:           make(map[category.Category]int),
		FanOut:          make(map[category.Category]int),
	}

	for _, e := range g.Edges() {
		s.TotalEdges++
		s.TotalReferences += e.Weight()
		if e.IsSelf() {
			s.SelfEdges++
			continue
		}
		s.FanOut[e.From] += e.Weight()
		s.FanIn[e.To] += e.Weight()
	}

	// Walk in layering order so ties resolve to the lower layer.
	for _, c := range g.Categories() {
		if n := s.FanOut[c]; n > s.MaxFanOut {
			s.MaxFanOut = n
			s.HotspotCategory = c
		}
		if n := s.FanIn[c]; n > s.MaxFanIn {
			s.MaxFanIn = n
		}
	}

	s.ConnectedComponents = g.countComponents()
	s.CyclicDeps = g.Cycles()
	return s
}

// countComponents counts weakly connected components via union-find
func (g *Graph) countComponents() int {
	parent := make(map[category.Category]category.Category)
	var find func(category.Category) category.Category
	find = func(x category.Category) category.Category {
		if _, ok := parent[x]; !ok {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b category.Category) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for c := range g.nodes {
		find(c)
	}
	for from, targets := range g.edges {
		for to := range targets {
			union(from, to)
		}
	}

	roots := make(map[category.Category]bool)
	for c := range g.nodes {
		roots[find(c)] = true
	}
	return len(roots)
}

// Cycles finds dependency cycles between distinct categories using DFS.
// Self-edges are not reported. Output is deterministic.
func (g *Graph) Cycles() [][]category.Category {
	adj := make(map[category.Category][]category.Category)
	for _, e := range g.Edges() {
		if e.IsSelf() {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	var cycles [][]category.Category
	visited := make(map[category.Category]int) // 0=unvisited, 1=in-progress, 2=done
	path := make([]category.Category, 0)

	var dfs func(node category.Category)
	dfs = func(node category.Category) {
		if visited[node] == 2 {
			return
		}
		if visited[node] == 1 {
			cycle := make([]category.Category, 0)
			for i := len(path) - 1; i >= 0; i-- {
				cycle = append(cycle, path[i])
				if path[i] == node {
					break
				}
			}
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			cycles = append(cycles, cycle)
			return
		}
		visited[node] = 1
		path = append(path, node)
		for _, next := range adj[node] {
			dfs(next)
		}
		path = path[:len(path)-1]
		visited[node] = 2
	}

	for _, c := range g.Categories() {
		if visited[c] == 0 {
			dfs(c)
		}
	}
	return cycles
}

func sortCategories(cs []category.Category) {
	sort.Slice(cs, func(i, j int) bool {
		ri, rj := category.Rank(cs[i]), category.Rank(cs[j])
		if ri != rj {
			return ri < rj
		}
		return cs[i] < cs[j]
	})
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
