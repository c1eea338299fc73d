// Package core contains the genealogy graph, trace and recall engines, the
// write-time validation rules, and the service facade that ties them to a
// persistent store.
package core

import "tracecore/pkg/domain"

// Aliases re-export the domain types used throughout the core API so callers
// holding a Service do not need a second import for common values.
type (
	Batch            = domain.Batch
	TraceabilityLink = domain.TraceabilityLink
	BatchSearch      = domain.BatchSearch
	Change           = domain.Change
	Result           = domain.Result
	Rule             = domain.Rule
	RulesEngine      = domain.RulesEngine
	Transaction      = domain.Transaction
	TransactionView  = domain.TransactionView
	PersistentStore  = domain.PersistentStore
	TraceDirection   = domain.TraceDirection
	TraceReport      = domain.TraceReport
	TraceWarning     = domain.TraceWarning
	RecallPlan       = domain.RecallPlan
	RecallEntry      = domain.RecallEntry
	ActionThreshold  = domain.ActionThreshold
)

// NewRulesEngine returns an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
