package depgraph

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/efebarandurmaz/layermap/internal/category"
)

type testFile struct {
	source category.Category
	refs   []string
}

var sampleFiles = []testFile{
	{category.CLI, []string{"crate::mcp::server", "crate::mcp::server", "std::fmt"}},
	{category.CLI, []string{"crate::domain::entities::Commit", "crate::mcp::tools"}},
	{category.MessagingInterface, []string{"crate::cli::Args", "crate::domain::entities::Commit"}},
	{category.Security, []string{"crate::scan::rules", "crate::metrics::Counter"}},
	{category.Types, nil},
	{category.Other, []string{"serde::Serialize"}},
}

func aggregate(files []testFile) *Aggregator {
	a := NewAggregator()
	for _, f := range files {
		a.Add(f.source, f.refs)
	}
	return a
}

// Aggregator Tests

func TestAggregator_Empty(t *testing.T) {
	g := NewAggregator().Graph()
	if len(g.Categories()) != 0 {
		t.Errorf("expected 0 categories, got %d", len(g.Categories()))
	}
	if len(g.Edges()) != 0 {
		t.Errorf("expected 0 edges, got %d", len(g.Edges()))
	}
	if s := g.Stats(); s.ConnectedComponents != 0 {
		t.Errorf("expected 0 components, got %d", s.ConnectedComponents)
	}
}

func TestAggregator_AddSetSemantics(t *testing.T) {
	a := NewAggregator()
	kept, dropped := a.Add(category.CLI, []string{"crate::mcp::server", "crate::mcp::server", "std::fmt"})
	if kept != 2 {
		t.Errorf("expected 2 kept, got %d", kept)
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}

	g := a.Graph()
	refs := g.References(category.CLI, category.MessagingInterface)
	if !reflect.DeepEqual(refs, []string{"crate::mcp::server"}) {
		t.Errorf("expected single deduplicated reference, got %v", refs)
	}
	if a.Dropped() != 1 {
		t.Errorf("expected Dropped()=1, got %d", a.Dropped())
	}
}

func TestAggregator_SourceWithoutReferencesIsRecorded(t *testing.T) {
	a := NewAggregator()
	a.Add(category.Other, nil)
	a.Add(category.Core, []string{"std::io"})

	g := a.Graph()
	if !g.HasNode(category.Other) || !g.HasNode(category.Core) {
		t.Errorf("expected other and core nodes, got %v", g.Categories())
	}
	nested := g.Nested()
	if targets, ok := nested[category.Core]; !ok || len(targets) != 0 {
		t.Errorf("expected core with empty targets, got %v (present=%v)", targets, ok)
	}
}

func TestAggregator_SelfEdge(t *testing.T) {
	a := NewAggregator()
	a.Add(category.Security, []string{"crate::scan::run"})

	g := a.Graph()
	if refs := g.References(category.Security, category.Security); len(refs) != 1 {
		t.Fatalf("expected self-edge with 1 reference, got %v", refs)
	}
	s := g.Stats()
	if s.SelfEdges != 1 {
		t.Errorf("expected 1 self edge, got %d", s.SelfEdges)
	}
	if len(s.CyclicDeps) != 0 {
		t.Errorf("self edge must not be reported as a cycle, got %v", s.CyclicDeps)
	}
}

func TestAggregator_OrderIndependent(t *testing.T) {
	want := aggregate(sampleFiles).Graph()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]testFile(nil), sampleFiles...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := aggregate(shuffled).Graph()
		if !reflect.DeepEqual(got.Nested(), want.Nested()) {
			t.Fatalf("shuffle %d: graph differs\n got: %v\nwant: %v", i, got.Nested(), want.Nested())
		}
		if got.Fingerprint() != want.Fingerprint() {
			t.Fatalf("shuffle %d: fingerprint differs", i)
		}
	}
}

func TestAggregator_MergeMatchesSequential(t *testing.T) {
	sequential := aggregate(sampleFiles)

	merged := NewAggregator()
	for _, f := range sampleFiles {
		partial := NewAggregator()
		partial.Add(f.source, f.refs)
		merged.Merge(partial)
	}

	if !reflect.DeepEqual(merged.Graph().Nested(), sequential.Graph().Nested()) {
		t.Error("merged graph differs from sequential graph")
	}
	if merged.Dropped() != sequential.Dropped() {
		t.Errorf("expected dropped %d, got %d", sequential.Dropped(), merged.Dropped())
	}
}

func TestAggregator_MergeNilAndSelf(t *testing.T) {
	a := aggregate(sampleFiles)
	before := a.Graph().Fingerprint()
	a.Merge(nil)
	a.Merge(a)
	if a.Graph().Fingerprint() != before {
		t.Error("merging nil or self should not change the graph")
	}
}

func TestAggregator_ConcurrentAdd(t *testing.T) {
	a := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, f := range sampleFiles {
				a.Add(f.source, f.refs)
			}
		}()
	}
	wg.Wait()

	if a.Graph().Fingerprint() != aggregate(sampleFiles).Graph().Fingerprint() {
		t.Error("concurrent aggregation should equal sequential aggregation")
	}
}

func TestAggregator_GraphIsCopy(t *testing.T) {
	a := NewAggregator()
	a.Add(category.CLI, []string{"crate::mcp::server"})

	g := a.Graph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::other")
	g.AddNode(category.Analysis)

	fresh := a.Graph()
	if len(fresh.References(category.CLI, category.MessagingInterface)) != 1 {
		t.Error("mutating a returned graph leaked into the aggregator")
	}
	if fresh.HasNode(category.Analysis) {
		t.Error("node added to copy leaked into the aggregator")
	}
}

// Graph Tests

func TestFromNested_RoundTrip(t *testing.T) {
	g := aggregate(sampleFiles).Graph()
	rebuilt := FromNested(g.Nested())
	if rebuilt.Fingerprint() != g.Fingerprint() {
		t.Errorf("expected identical graph, got %v", rebuilt.Nested())
	}
	if !rebuilt.HasNode(category.Other) {
		t.Error("category without edges should survive the round trip")
	}
}

func TestGraph_CategoriesInLayerOrder(t *testing.T) {
	g := aggregate(sampleFiles).Graph()
	want := []category.Category{
		category.Types,
		category.Security,
		category.Observability,
		category.MessagingInterface,
		category.CLI,
		category.Other,
	}
	if got := g.Categories(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGraph_Cycles(t *testing.T) {
	g := NewGraph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::x")
	g.AddEdge(category.MessagingInterface, category.CLI, "crate::cli::y")
	g.AddEdge(category.CLI, category.Types, "crate::domain::entities::Z")

	cycles := g.Cycles()
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d: %v", len(cycles), cycles)
	}
	want := []category.Category{category.MessagingInterface, category.CLI}
	if !reflect.DeepEqual(cycles[0], want) {
		t.Errorf("expected cycle %v, got %v", want, cycles[0])
	}
}

func TestGraph_Stats(t *testing.T) {
	g := NewGraph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::a", "crate::mcp::b")
	g.AddEdge(category.CLI, category.Types, "crate::domain::entities::C")
	g.AddNode(category.Other)

	s := g.Stats()
	if s.TotalCategories != 4 {
		t.Errorf("expected 4 categories, got %d", s.TotalCategories)
	}
	if s.TotalEdges != 2 {
		t.Errorf("expected 2 edges, got %d", s.TotalEdges)
	}
	if s.TotalReferences != 3 {
		t.Errorf("expected 3 references, got %d", s.TotalReferences)
	}
	if s.MaxFanOut != 3 || s.HotspotCategory != category.CLI {
		t.Errorf("expected fan-out 3 at cli, got %d at %s", s.MaxFanOut, s.HotspotCategory)
	}
	if s.MaxFanIn != 2 {
		t.Errorf("expected max fan-in 2, got %d", s.MaxFanIn)
	}
	if s.ConnectedComponents != 2 {
		t.Errorf("expected 2 components, got %d", s.ConnectedComponents)
	}
}

func TestGraph_FingerprintChanges(t *testing.T) {
	g := NewGraph()
	g.AddEdge(category.CLI, category.Types, "crate::domain::entities::A")
	before := g.Fingerprint()
	if len(before) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(before))
	}

	g.AddEdge(category.CLI, category.Types, "crate::domain::entities::A")
	if g.Fingerprint() != before {
		t.Error("re-adding an existing reference should not change the fingerprint")
	}

	g.AddEdge(category.CLI, category.Types, "crate::domain::entities::B")
	if g.Fingerprint() == before {
		t.Error("adding a reference should change the fingerprint")
	}
}

// Export Tests

func TestExportDOT(t *testing.T) {
	g := NewGraph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::a", "crate::mcp::b")
	g.AddEdge(category.Security, category.Security, "crate::scan::x")

	dot := ExportDOT(g)
	if !strings.HasPrefix(dot, "digraph dependencies {") {
		t.Error("DOT output should start with digraph header")
	}
	if !strings.Contains(dot, `"cli" -> "messaging-interface"`) {
		t.Error("DOT output missing cli -> messaging-interface edge")
	}
	if !strings.Contains(dot, `label="2"`) {
		t.Error("DOT edge should be labelled with its reference count")
	}
	if !strings.Contains(dot, `"security" -> "security" [style=dashed`) {
		t.Error("self edge should be dashed")
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("DOT output should end with closing brace")
	}
}

func TestExportMermaid(t *testing.T) {
	g := NewGraph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::a")
	g.AddEdge(category.Types, category.CLI, "crate::cli::b")

	mermaid := ExportMermaid(g)
	if !strings.HasPrefix(mermaid, "graph LR\n") {
		t.Error("Mermaid output should start with graph LR")
	}
	if !strings.Contains(mermaid, `messaging_interface{"messaging-interface"}`) {
		t.Error("Mermaid node ID should be sanitized")
	}
	if !strings.Contains(mermaid, "cli -->|1| messaging_interface") {
		t.Error("Mermaid output missing downward edge")
	}
	if !strings.Contains(mermaid, "types ==>|1| cli") {
		t.Error("upward edge should use thick arrow")
	}
}

func TestExportJSON(t *testing.T) {
	g := aggregate(sampleFiles).Graph()

	data, err := ExportJSON(g)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var decoded struct {
		Categories []string `json:"categories"`
		Edges      []Edge   `json:"edges"`
		Stats      struct {
			TotalEdges int `json:"total_edges"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
	if len(decoded.Categories) != len(g.Categories()) {
		t.Errorf("expected %d categories, got %d", len(g.Categories()), len(decoded.Categories))
	}
	if len(decoded.Edges) != decoded.Stats.TotalEdges {
		t.Errorf("edge count %d disagrees with stats %d", len(decoded.Edges), decoded.Stats.TotalEdges)
	}

	empty, err := ExportJSON(NewGraph())
	if err != nil {
		t.Fatalf("ExportJSON on empty graph failed: %v", err)
	}
	if !strings.Contains(string(empty), `"edges": []`) {
		t.Errorf("empty graph should export an empty edge list, got %s", empty)
	}
}

func TestFormatStats(t *testing.T) {
	g := NewGraph()
	g.AddEdge(category.CLI, category.MessagingInterface, "crate::mcp::x")
	g.AddEdge(category.MessagingInterface, category.CLI, "crate::cli::y")

	out := FormatStats(g)
	for _, want := range []string{
		"Dependency Graph Statistics",
		"Categories:  2",
		"Cyclic Dependencies: 1",
		"messaging-interface -> cli",
		"cli -> messaging-interface: 1 references",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatStats output missing %q\n%s", want, out)
		}
	}
}
