// Package graph persists category dependency graphs outside the JSON report.
package graph

import (
	"context"
	"errors"
	"sync"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
)

// ErrNotFound is returned when no graph is stored for a project.
var ErrNotFound = errors.New("graph not found")

// Repository provides graph storage for category dependency graphs.
type Repository interface {
	// StoreGraph replaces the stored graph of project with g.
	StoreGraph(ctx context.Context, project string, g *depgraph.Graph) error
	// LoadGraph retrieves the stored graph for a project.
	LoadGraph(ctx context.Context, project string) (*depgraph.Graph, error)
	// QueryDependents returns the categories that reference c, excluding c itself.
	QueryDependents(ctx context.Context, project string, c category.Category) ([]category.Category, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// MemoryRepository keeps graphs in process. It backs tests and runs without a
// configured database.
type MemoryRepository struct {
	mu     sync.RWMutex
	graphs map[string]*depgraph.Graph
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{graphs: make(map[string]*depgraph.Graph)}
}

func (r *MemoryRepository) StoreGraph(_ context.Context, project string, g *depgraph.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[project] = g.Clone()
	return nil
}

func (r *MemoryRepository) LoadGraph(_ context.Context, project string) (*depgraph.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[project]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (r *MemoryRepository) QueryDependents(ctx context.Context, project string, c category.Category) ([]category.Category, error) {
	g, err := r.LoadGraph(ctx, project)
	if err != nil {
		return nil, err
	}
	return Dependents(g, c), nil
}

func (r *MemoryRepository) Close(context.Context) error { return nil }

// Dependents lists, in layer order, the categories with at least one
// reference into c.
func Dependents(g *depgraph.Graph, c category.Category) []category.Category {
	var out []category.Category
	for _, src := range g.Categories() {
		if src != c && len(g.References(src, c)) > 0 {
			out = append(out, src)
		}
	}
	return out
}

var _ Repository = (*MemoryRepository)(nil)
