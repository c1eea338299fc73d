package domain

import "context"

// RuleView provides read-only access to domain entities for rule evaluation
// and graph traversal.
type RuleView interface {
	ListBatches() []Batch
	ListLinks() []TraceabilityLink
	FindBatch(id string) (Batch, bool)
	FindLink(id string) (TraceabilityLink, bool)
	// LinksByConsumer returns links where the batch is the consumer,
	// ordered by ascending source batch id then link id.
	LinksByConsumer(batchID string) []TraceabilityLink
	// LinksBySource returns links where the batch is the source,
	// ordered by ascending consumer batch id then link id.
	LinksBySource(batchID string) []TraceabilityLink
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
