package migration

import (
	"bytes"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
)

func TestIncomingEdgeCount_ExcludesSelfEdges(t *testing.T) {
	g := depgraph.NewGraph()
	g.AddEdge(category.Security, category.Security, "crate::scan::a", "crate::scan::b")

	if n := IncomingEdgeCount(g, category.Security); n != 0 {
		t.Errorf("expected 0 incoming references for self-only category, got %d", n)
	}

	g.AddEdge(category.CLI, category.Security, "crate::scan::a")
	if n := IncomingEdgeCount(g, category.Security); n != 1 {
		t.Errorf("expected 1 incoming reference, got %d", n)
	}
}

func TestIncomingEdgeCount_SumsDistinctReferencesPerSource(t *testing.T) {
	g := depgraph.NewGraph()
	g.AddEdge(category.CLI, category.Types, "crate::domain::entities::A", "crate::domain::entities::B")
	g.AddEdge(category.MessagingInterface, category.Types, "crate::domain::entities::A")

	if n := IncomingEdgeCount(g, category.Types); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if n := IncomingEdgeCount(g, category.Analysis); n != 0 {
		t.Errorf("expected 0 for absent category, got %d", n)
	}
}

func TestTieBreakRank(t *testing.T) {
	order := []category.Category{
		category.Types,
		category.CoreInterfaces,
		category.CoreServices,
		category.Core,
		category.Analysis,
		category.Security,
		category.Observability,
		category.MessagingInterface,
		category.CLI,
		category.Other,
	}
	for i := 1; i < len(order); i++ {
		if TieBreakRank(order[i-1]) >= TieBreakRank(order[i]) {
			t.Errorf("expected %s to rank before %s", order[i-1], order[i])
		}
	}
}

func TestBuild_SortsByIncomingReferences(t *testing.T) {
	g := depgraph.NewGraph()
	g.AddEdge(category.CLI, category.Types, "crate::domain::entities::A", "crate::domain::entities::B")
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::server")
	g.AddEdge(category.MessagingInterface, category.Types, "crate::domain::entities::A")

	p := Build(g, Options{})
	want := []category.Category{category.CLI, category.MessagingInterface, category.Types}
	if got := p.Order(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}

	last := p.Steps[2]
	if last.Position != 3 {
		t.Errorf("expected position 3, got %d", last.Position)
	}
	if last.IncomingReferences != 3 {
		t.Errorf("expected 3 incoming references, got %d", last.IncomingReferences)
	}
	if !reflect.DeepEqual(last.Sources, []category.Category{category.MessagingInterface, category.CLI}) {
		t.Errorf("unexpected sources %v", last.Sources)
	}
	if last.Justification != "3 incoming references from messaging-interface, cli; layer 1" {
		t.Errorf("unexpected justification %q", last.Justification)
	}
}

func TestBuild_TieBreakByLayer(t *testing.T) {
	g := depgraph.NewGraph()
	for _, c := range []category.Category{category.Other, category.CLI, category.Core, category.Types} {
		g.AddNode(c)
	}

	want := []category.Category{category.Types, category.Core, category.CLI, category.Other}
	if got := Build(g, Options{}).Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBuild_ToleratesCycles(t *testing.T) {
	g := depgraph.NewGraph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::x")
	g.AddEdge(category.MessagingInterface, category.CLI, "crate::cli::y")

	p := Build(g, Options{})
	want := []category.Category{category.MessagingInterface, category.CLI}
	if got := p.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if len(p.Cycles) != 1 {
		t.Errorf("expected 1 reported cycle, got %d", len(p.Cycles))
	}
}

func TestBuild_IncludeUnobserved(t *testing.T) {
	p := Build(depgraph.NewGraph(), Options{IncludeUnobserved: true})
	if got := p.Order(); !reflect.DeepEqual(got, category.All()) {
		t.Errorf("expected full taxonomy in layer order, got %v", got)
	}
	if !strings.HasPrefix(p.Steps[0].Justification, "not observed") {
		t.Errorf("unexpected justification %q", p.Steps[0].Justification)
	}

	if n := len(Build(depgraph.NewGraph(), Options{}).Steps); n != 0 {
		t.Errorf("expected empty plan for empty graph, got %d steps", n)
	}
}

func TestBuild_DeterministicUnderShuffle(t *testing.T) {
	type file struct {
		source category.Category
		refs   []string
	}
	files := []file{
		{category.CLI, []string{"crate::mcp::server", "crate::domain::entities::Commit"}},
		{category.MessagingInterface, []string{"crate::cli::Args"}},
		{category.Core, []string{"crate::domain::entities::Commit", "crate::metrics::Gauge"}},
		{category.Security, []string{"crate::scan::rule"}},
		{category.Other, nil},
	}

	build := func(fs []file) []category.Category {
		a := depgraph.NewAggregator()
		for _, f := range fs {
			a.Add(f.source, f.refs)
		}
		return Build(a.Graph(), Options{}).Order()
	}

	want := build(files)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]file(nil), files...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := build(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("shuffle %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestPlan_Format(t *testing.T) {
	g := depgraph.NewGraph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::x")
	g.AddEdge(category.MessagingInterface, category.CLI, "crate::cli::y")
	g.AddNode(category.Types)

	var buf bytes.Buffer
	if err := Build(g, Options{}).Format(&buf); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"1. types (no incoming references; layer 1)",
		"2. messaging-interface (1 incoming reference from cli; layer 8)",
		"3. cli (1 incoming reference from messaging-interface; layer 9)",
		"messaging-interface -> cli -> messaging-interface",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	buf.Reset()
	if err := Build(depgraph.NewGraph(), Options{}).Format(&buf); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !strings.Contains(buf.String(), "no categories observed") {
		t.Errorf("unexpected empty output %q", buf.String())
	}
}
