package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. There are no delete operations:
// batches are append-only records and links are immutable.
type Transaction interface {
	Snapshot() TransactionView
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	// SetBatchStatus appends a status history event and updates the batch
	// status. The allowed-transition check runs at commit via the rules engine.
	SetBatchStatus(id string, status BatchStatus, note string) (Batch, error)
	CreateLink(TraceabilityLink) (TraceabilityLink, error)
	FindBatch(id string) (Batch, bool)
	FindLink(id string) (TraceabilityLink, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// traversal within a transaction.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBatch(id string) (Batch, bool)
	GetLink(id string) (TraceabilityLink, bool)
	ListBatches() []Batch
	ListLinks() []TraceabilityLink
	LinksByConsumer(batchID string) []TraceabilityLink
	LinksBySource(batchID string) []TraceabilityLink
	SearchBatches(criteria BatchSearch) []Batch
}
