// Package migration turns a category dependency graph into an advisory
// migration order.
package migration

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
)

// Options controls which categories a plan covers.
type Options struct {
	// IncludeUnobserved adds every known category, even ones the scan never saw.
	IncludeUnobserved bool
}

// Step is one entry of a migration plan.
type Step struct {
	Position           int                 `json:"position"`
	Category           category.Category   `json:"category"`
	IncomingReferences int                 `json:"incoming_references"`
	Rank               int                 `json:"rank"`
	Sources            []category.Category `json:"sources,omitempty"`
	Justification      string              `json:"justification"`
}

// Plan is an ordered, advisory sequence of categories. It is a heuristic,
// not a topological sort: cycles are listed but never rejected.
type Plan struct {
	Steps  []Step                `json:"steps"`
	Cycles [][]category.Category `json:"cycles,omitempty"`
}

// IncomingEdgeCount returns the number of distinct references flowing into c
// from other categories. References from c to itself are ignored.
func IncomingEdgeCount(g *depgraph.Graph, c category.Category) int {
	count := 0
	for _, src := range g.Categories() {
		if src == c {
			continue
		}
		count += len(g.References(src, c))
	}
	return count
}

// TieBreakRank is the static layering priority used when incoming counts tie.
// Foundational categories rank lowest; entry points rank highest.
func TieBreakRank(c category.Category) int {
	return category.Rank(c)
}

// Build orders the categories of g ascending by incoming cross-category
// references, breaking ties by TieBreakRank.
func Build(g *depgraph.Graph, opts Options) *Plan {
	cats := g.Categories()
	if opts.IncludeUnobserved {
		for _, c := range category.All() {
			if !g.HasNode(c) {
				cats = append(cats, c)
			}
		}
	}

	counts := make(map[category.Category]int, len(cats))
	for _, c := range cats {
		counts[c] = IncomingEdgeCount(g, c)
	}

	sort.SliceStable(cats, func(i, j int) bool {
		ci, cj := counts[cats[i]], counts[cats[j]]
		if ci != cj {
			return ci < cj
		}
		ri, rj := TieBreakRank(cats[i]), TieBreakRank(cats[j])
		if ri != rj {
			return ri < rj
		}
		return cats[i] < cats[j]
	})

	p := &Plan{Steps: make([]Step, 0, len(cats)), Cycles: g.Cycles()}
	for i, c := range cats {
		step := Step{
			Position:           i + 1,
			Category:           c,
			IncomingReferences: counts[c],
			Rank:               TieBreakRank(c),
			Sources:            incomingSources(g, c),
		}
		step.Justification = justify(step, g.HasNode(c))
		p.Steps = append(p.Steps, step)
	}
	return p
}

// Order returns the planned categories in sequence.
func (p *Plan) Order() []category.Category {
	out := make([]category.Category, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Category
	}
	return out
}

// Format writes the numbered advisory order to w.
func (p *Plan) Format(w io.Writer) error {
	if len(p.Steps) == 0 {
		_, err := fmt.Fprintln(w, "(no categories observed)")
		return err
	}
	for _, s := range p.Steps {
		if _, err := fmt.Fprintf(w, "%d. %s (%s)\n", s.Position, s.Category, s.Justification); err != nil {
			return err
		}
	}
	if len(p.Cycles) > 0 {
		if _, err := fmt.Fprintf(w, "\nCycles (order above is advisory):\n"); err != nil {
			return err
		}
		for _, cycle := range p.Cycles {
			names := make([]string, 0, len(cycle)+1)
			for _, c := range cycle {
				names = append(names, string(c))
			}
			names = append(names, string(cycle[0]))
			if _, err := fmt.Fprintf(w, "  %s\n", strings.Join(names, " -> ")); err != nil {
				return err
			}
		}
	}
	return nil
}

func incomingSources(g *depgraph.Graph, c category.Category) []category.Category {
	var out []category.Category
	for _, src := range g.Categories() {
		if src != c && len(g.References(src, c)) > 0 {
			out = append(out, src)
		}
	}
	return out
}

func justify(s Step, observed bool) string {
	var b strings.Builder
	switch {
	case !observed:
		b.WriteString("not observed")
	case s.IncomingReferences == 0:
		b.WriteString("no incoming references")
	default:
		names := make([]string, len(s.Sources))
		for i, c := range s.Sources {
			names[i] = string(c)
		}
		noun := "references"
		if s.IncomingReferences == 1 {
			noun = "reference"
		}
		fmt.Fprintf(&b, "%d incoming %s from %s", s.IncomingReferences, noun, strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "; layer %d", s.Rank+1)
	return b.String()
}
