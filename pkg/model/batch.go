package model

import (
	"sync"

	"github.com/Ramsey-B/fern/pkg/graph"
)

// Batch collects the merge requests produced while transforming one page of
// resources. It is append-only and safe for concurrent use, transforms for a
// page fan out across goroutines.
type Batch struct {
	mu    sync.Mutex
	nodes []graph.NodeMerge
	rels  []graph.RelationshipMerge
}

// NewBatch creates an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// AppendNodeMerge adds a node merge request.
func (b *Batch) AppendNodeMerge(labels []string, identifying, properties map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes = append(b.nodes, graph.NodeMerge{
		Labels:                labels,
		IdentifyingProperties: identifying,
		Properties:            properties,
	})
}

// AppendRelationshipMerge adds a relationship merge request.
func (b *Batch) AppendRelationshipMerge(m graph.RelationshipMerge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rels = append(b.rels, m)
}

// Drain returns the collected merges and resets the batch.
func (b *Batch) Drain() ([]graph.NodeMerge, []graph.RelationshipMerge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	nodes, rels := b.nodes, b.rels
	b.nodes, b.rels = nil, nil
	return nodes, rels
}

// Counts reports how many node and relationship merges are pending.
func (b *Batch) Counts() (nodes int, relationships int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes), len(b.rels)
}
