package depgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint is a content-addressable hash of the graph. Two graphs with the
// same categories, edges and reference sets share a fingerprint regardless
// of the order in which they were built.
func (g *Graph) Fingerprint() string {
	cats := g.Categories()
	parts := make([]string, 0, len(cats)+len(g.nodes))
	for _, c := range cats {
		parts = append(parts, "node:"+string(c))
	}
	for _, e := range g.Edges() {
		parts = append(parts, hashEdge(e))
	}
	return computeComposite(parts)
}

// hashEdge computes the SHA-256 of one edge and its reference set.
func hashEdge(e Edge) string {
	data := string(e.From) + "->" + string(e.To) + "\n" + strings.Join(e.References, "\n")
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// computeComposite creates a single hash from already ordered parts.
func computeComposite(parts []string) string {
	combined := strings.Join(parts, "|")
	h := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(h[:])
}
