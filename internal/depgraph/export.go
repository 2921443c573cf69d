package depgraph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/layermap/internal/category"
)

// ExportDOT generates a Graphviz DOT representation of the graph.
// Edge labels carry the number of distinct references.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	for _, c := range g.Categories() {
		b.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\" shape=%s style=filled fillcolor=\"%s\"];\n",
			c, c, nodeShape(c), nodeColor(c)))
	}
	if len(g.nodes) > 0 {
		b.WriteString("\n")
	}

	for _, e := range g.Edges() {
		b.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [style=%s color=\"%s\" label=\"%d\"];\n",
			e.From, e.To, edgeStyle(e), edgeColor(e), e.Weight()))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid diagram of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	for _, c := range g.Categories() {
		b.WriteString(fmt.Sprintf("  %s%s\n", sanitizeMermaidID(string(c)), mermaidNodeShape(c)))
	}

	for _, e := range g.Edges() {
		b.WriteString(fmt.Sprintf("  %s %s|%d| %s\n",
			sanitizeMermaidID(string(e.From)), mermaidArrow(e), e.Weight(), sanitizeMermaidID(string(e.To))))
	}

	return b.String()
}

type jsonGraph struct {
	Categories []category.Category `json:"categories"`
	Edges      []Edge              `json:"edges"`
	Stats      GraphStats          `json:"stats"`
}

// ExportJSON serializes the graph, with its stats, to JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	edges := g.Edges()
	if edges == nil {
		edges = []Edge{}
	}
	return json.MarshalIndent(jsonGraph{
		Categories: g.Categories(),
		Edges:      edges,
		Stats:      g.Stats(),
	}, "", "  ")
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(g *Graph) string {
	s := g.Stats()
	var b strings.Builder
	b.WriteString("Dependency Graph Statistics\n")
	b.WriteString("==========================\n\n")
	b.WriteString(fmt.Sprintf("Categories:  %d\n", s.TotalCategories))
	b.WriteString(fmt.Sprintf("Edges:       %d total (%d self)\n", s.TotalEdges, s.SelfEdges))
	b.WriteString(fmt.Sprintf("References:  %d\n", s.TotalReferences))
	if s.HotspotCategory != "" {
		b.WriteString(fmt.Sprintf("Max Fan-Out: %d (%s)\n", s.MaxFanOut, s.HotspotCategory))
	} else {
		b.WriteString(fmt.Sprintf("Max Fan-Out: %d\n", s.MaxFanOut))
	}
	b.WriteString(fmt.Sprintf("Max Fan-In:  %d\n", s.MaxFanIn))
	b.WriteString(fmt.Sprintf("Components:  %d\n", s.ConnectedComponents))

	if len(s.CyclicDeps) > 0 {
		b.WriteString(fmt.Sprintf("\nCyclic Dependencies: %d\n", len(s.CyclicDeps)))
		for i, cycle := range s.CyclicDeps {
			names := make([]string, len(cycle))
			for j, c := range cycle {
				names[j] = string(c)
			}
			b.WriteString(fmt.Sprintf("  %d: %s\n", i+1, strings.Join(names, " -> ")))
		}
	}

	edges := g.Edges()
	if len(edges) > 0 {
		b.WriteString("\nCategory Dependencies:\n")
		for _, e := range edges {
			b.WriteString(fmt.Sprintf("  %s -> %s: %d references\n", e.From, e.To, e.Weight()))
		}
	}

	return b.String()
}

func sanitizeMermaidID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func nodeShape(c category.Category) string {
	switch c {
	case category.Types:
		return "box3d"
	case category.CoreInterfaces, category.CoreServices, category.Core:
		return "box"
	case category.CLI, category.MessagingInterface:
		return "diamond"
	default:
		return "ellipse"
	}
}

func nodeColor(c category.Category) string {
	switch c {
	case category.Types:
		return "#1f6feb"
	case category.CoreInterfaces, category.CoreServices, category.Core:
		return "#238636"
	case category.Analysis, category.Security, category.Observability:
		return "#8957e5"
	case category.MessagingInterface, category.CLI:
		return "#d29922"
	default:
		return "#30363d"
	}
}

func edgeStyle(e Edge) string {
	if e.IsSelf() {
		return "dashed"
	}
	if category.Rank(e.From) < category.Rank(e.To) {
		// Lower layer depending on a higher one.
		return "bold"
	}
	return "solid"
}

func edgeColor(e Edge) string {
	if e.IsSelf() {
		return "#8b949e"
	}
	if category.Rank(e.From) < category.Rank(e.To) {
		return "#f85149"
	}
	return "#3fb950"
}

func mermaidNodeShape(c category.Category) string {
	switch c {
	case category.Types:
		return fmt.Sprintf("[[\"%s\"]]", c)
	case category.CLI, category.MessagingInterface:
		return fmt.Sprintf("{\"%s\"}", c)
	default:
		return fmt.Sprintf("[\"%s\"]", c)
	}
}

func mermaidArrow(e Edge) string {
	if e.IsSelf() {
		return "-.->"
	}
	if category.Rank(e.From) < category.Rank(e.To) {
		return "==>"
	}
	return "-->"
}
