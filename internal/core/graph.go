package core

import "tracecore/pkg/domain"

// GenealogyGraph is a read-only adjacency view over batches and links. Edges
// are returned in deterministic order: ascending linked-batch id, then link id.
type GenealogyGraph struct {
	view domain.RuleView
}

// NewGenealogyGraph wraps a view in an adjacency abstraction.
func NewGenealogyGraph(view domain.RuleView) *GenealogyGraph {
	return &GenealogyGraph{view: view}
}

// Batch resolves a batch by id, failing with a not-found error for unknown ids.
func (g *GenealogyGraph) Batch(id string) (domain.Batch, error) {
	batch, ok := g.view.FindBatch(id)
	if !ok {
		return domain.Batch{}, domain.NotFoundError(id)
	}
	return batch, nil
}

// Parents returns the links where the batch is the consumer: the edges
// pointing at where its material came from.
func (g *GenealogyGraph) Parents(batchID string) ([]domain.TraceabilityLink, error) {
	if _, ok := g.view.FindBatch(batchID); !ok {
		return nil, domain.NotFoundError(batchID)
	}
	return g.view.LinksByConsumer(batchID), nil
}

// Children returns the links where the batch is the source: the edges pointing
// at where its material ended up.
func (g *GenealogyGraph) Children(batchID string) ([]domain.TraceabilityLink, error) {
	if _, ok := g.view.FindBatch(batchID); !ok {
		return nil, domain.NotFoundError(batchID)
	}
	return g.view.LinksBySource(batchID), nil
}
