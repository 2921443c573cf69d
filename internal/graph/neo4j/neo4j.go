package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
	"github.com/efebarandurmaz/layermap/internal/graph"
)

// Neo4jRepository implements graph.Repository using Neo4j. Categories are
// stored as (:Category {project, name, rank}) nodes and every edge as a
// DEPENDS_ON relationship carrying its sorted reference list.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a Neo4j-backed repository and verifies connectivity.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

// Ping checks that the database is still reachable.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

// EnsureIndexes creates the lookup index used by every query.
func (r *Neo4jRepository) EnsureIndexes(ctx context.Context) error {
	_, err := neo4j.ExecuteQuery(ctx, r.driver,
		"CREATE INDEX layermap_category IF NOT EXISTS FOR (c:Category) ON (c.project, c.name)",
		nil, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// StoreGraph replaces the project's categories and edges in one transaction.
func (r *Neo4jRepository) StoreGraph(ctx context.Context, project string, g *depgraph.Graph) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	nodes := make([]map[string]any, 0)
	for _, c := range g.Categories() {
		nodes = append(nodes, map[string]any{"name": string(c), "rank": category.Rank(c)})
	}
	edges := make([]map[string]any, 0)
	for _, e := range g.Edges() {
		edges = append(edges, map[string]any{
			"from": string(e.From),
			"to":   string(e.To),
			"refs": e.References,
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MATCH (c:Category {project: $project}) DETACH DELETE c",
			map[string]any{"project": project}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			`UNWIND $batch AS row
			 MERGE (c:Category {project: $project, name: row.name})
			 SET c.rank = row.rank`,
			map[string]any{"project": project, "batch": nodes}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			`UNWIND $batch AS row
			 MATCH (a:Category {project: $project, name: row.from})
			 MATCH (b:Category {project: $project, name: row.to})
			 MERGE (a)-[d:DEPENDS_ON]->(b)
			 SET d.refs = row.refs, d.weight = size(row.refs)`,
			map[string]any{"project": project, "batch": edges}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store graph %s: %w", project, err)
	}
	return nil
}

// LoadGraph rebuilds the stored graph of a project.
func (r *Neo4jRepository) LoadGraph(ctx context.Context, project string) (*depgraph.Graph, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			`MATCH (a:Category {project: $project})
			 OPTIONAL MATCH (a)-[d:DEPENDS_ON]->(b:Category)
			 RETURN a.name AS from, b.name AS to, d.refs AS refs`,
			map[string]any{"project": project})
		if err != nil {
			return nil, err
		}

		g := depgraph.NewGraph()
		seen := false
		for records.Next(ctx) {
			seen = true
			rec := records.Record()
			from, _ := rec.Get("from")
			name, _ := from.(string)
			g.AddNode(category.Category(name))

			to, _ := rec.Get("to")
			target, ok := to.(string)
			if !ok {
				continue
			}
			refs, _ := rec.Get("refs")
			var list []string
			if items, ok := refs.([]any); ok {
				for _, item := range items {
					if s, ok := item.(string); ok {
						list = append(list, s)
					}
				}
			}
			g.AddEdge(category.Category(name), category.Category(target), list...)
		}
		if err := records.Err(); err != nil {
			return nil, err
		}
		if !seen {
			return nil, graph.ErrNotFound
		}
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", project, err)
	}
	return result.(*depgraph.Graph), nil
}

// QueryDependents returns the categories with a DEPENDS_ON edge into c.
func (r *Neo4jRepository) QueryDependents(ctx context.Context, project string, c category.Category) ([]category.Category, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			`MATCH (src:Category {project: $project})-[:DEPENDS_ON]->(:Category {project: $project, name: $name})
			 WHERE src.name <> $name
			 RETURN src.name AS name ORDER BY src.rank, src.name`,
			map[string]any{"project": project, "name": string(c)})
		if err != nil {
			return nil, err
		}
		var out []category.Category
		for records.Next(ctx) {
			n, _ := records.Record().Get("name")
			if s, ok := n.(string); ok {
				out = append(out, category.Category(s))
			}
		}
		return out, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]category.Category), nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Neo4jRepository)(nil)
