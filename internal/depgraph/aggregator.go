package depgraph

import (
	"sync"

	"github.com/efebarandurmaz/layermap/internal/category"
)

// Aggregator accumulates per-file reference lists into a category graph.
// It owns its graph exclusively; all mutation goes through its mutex, so a
// parallel scan that merges per-file partials produces the same graph as a
// sequential one. Adding and merging are commutative and associative.
type Aggregator struct {
	mu      sync.Mutex
	graph   *Graph
	dropped int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{graph: NewGraph()}
}

// Add records the references found in one file of category source.
// References that no reference rule resolves are dropped and counted.
// The source category becomes a node even when refs is empty.
func (a *Aggregator) Add(source category.Category, refs []string) (kept, dropped int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.graph.AddNode(source)
	for _, ref := range refs {
		target, ok := category.Target(ref)
		if !ok {
			dropped++
			continue
		}
		a.graph.AddEdge(source, target, ref)
		kept++
	}
	a.dropped += dropped
	return kept, dropped
}

// Merge folds the state of other into a. other is left unchanged.
func (a *Aggregator) Merge(other *Aggregator) {
	if other == nil || other == a {
		return
	}
	// Snapshot first so two aggregators merging into each other cannot deadlock.
	other.mu.Lock()
	snapshot := other.graph.Clone()
	dropped := other.dropped
	other.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.graph.merge(snapshot)
	a.dropped += dropped
}

// Graph returns a deep copy of the accumulated graph.
func (a *Aggregator) Graph() *Graph {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph.Clone()
}

// Dropped returns how many references were discarded as unresolvable.
func (a *Aggregator) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}
