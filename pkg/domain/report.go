package domain

import (
	"sort"
	"time"
)

// TraceDirection selects which consumption edges a traversal follows.
type TraceDirection string

// Trace directions.
const (
	// TraceBackward walks parent edges: where material came from.
	TraceBackward TraceDirection = "backward"
	// TraceForward walks child edges: where material ended up.
	TraceForward TraceDirection = "forward"
	// TraceFull is the union of both directions anchored at the start.
	TraceFull TraceDirection = "full"
)

// ValidTraceDirection reports whether d is a recognised direction.
func ValidTraceDirection(d TraceDirection) bool {
	switch d {
	case TraceBackward, TraceForward, TraceFull:
		return true
	}
	return false
}

// TraceEdge records one link actually walked during traversal, keyed under
// the batch it was walked from.
type TraceEdge struct {
	LinkID        string           `json:"link_id"`
	LinkedBatchID string           `json:"linked_batch_id"`
	Relationship  RelationshipType `json:"relationship_type"`
	QuantityUsed  float64          `json:"quantity_used"`
	Unit          string           `json:"unit,omitempty"`
	Direction     TraceDirection   `json:"direction"`
}

// TracedBatch is one visit-ordered entry of a trace report.
type TracedBatch struct {
	BatchID     string      `json:"batch_id"`
	BatchNumber string      `json:"batch_number"`
	Type        BatchType   `json:"batch_type"`
	Status      BatchStatus `json:"status"`
	Quantity    float64     `json:"quantity"`
	Unit        string      `json:"unit"`
	// Depth is the BFS level at which the batch was first reached;
	// 0 for the starting batch.
	Depth int `json:"depth"`
}

// TraceSummary aggregates counts over the traced set.
type TraceSummary struct {
	TotalBatches int                 `json:"total_batches"`
	ByType       map[BatchType]int   `json:"by_type"`
	ByStatus     map[BatchStatus]int `json:"by_status"`
}

// TraceWarning annotates a report with a non-fatal finding, such as a cycle
// noticed by the defensive traversal.
type TraceWarning struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	BatchIDs []string  `json:"batch_ids,omitempty"`
	LinkIDs  []string  `json:"link_ids,omitempty"`
}

// TraceReport is the immutable result of a genealogy traversal. Batches are
// listed in visit order: BFS level order with ties broken by ascending id.
type TraceReport struct {
	StartingBatch string                 `json:"starting_batch"`
	Direction     TraceDirection         `json:"direction"`
	MaxDepth      int                    `json:"max_depth"`
	TracedBatches []TracedBatch          `json:"traced_batches"`
	TracePath     map[string][]TraceEdge `json:"trace_path"`
	Summary       TraceSummary           `json:"summary"`
	Warnings      []TraceWarning         `json:"warnings,omitempty"`
	GeneratedAt   time.Time              `json:"generated_at"`
}

// BatchIDs returns the visited batch ids in visit order.
func (r TraceReport) BatchIDs() []string {
	out := make([]string, 0, len(r.TracedBatches))
	for _, tb := range r.TracedBatches {
		out = append(out, tb.BatchID)
	}
	return out
}

// Contains reports whether the batch id appears in the traced set.
func (r TraceReport) Contains(batchID string) bool {
	for _, tb := range r.TracedBatches {
		if tb.BatchID == batchID {
			return true
		}
	}
	return false
}

// RecallAction is the recommended handling for an affected batch.
type RecallAction string

// Recommended recall actions.
const (
	RecallActionMandatoryRetrieval RecallAction = "mandatory_retrieval"
	RecallActionNotifyAndMonitor   RecallAction = "notify_and_monitor"
)

// ActionThreshold maps a minimum tainted fraction to a recommended action.
type ActionThreshold struct {
	MinTaintedFraction float64      `json:"min_tainted_fraction"`
	Action             RecallAction `json:"action"`
}

// DefaultActionThresholds recommends mandatory retrieval at half taint and
// notification below.
var DefaultActionThresholds = []ActionThreshold{
	{MinTaintedFraction: 0.5, Action: RecallActionMandatoryRetrieval},
	{MinTaintedFraction: 0.0, Action: RecallActionNotifyAndMonitor},
}

// ActionFor selects the action of the highest threshold not exceeding the
// fraction. Thresholds need not be pre-sorted.
func ActionFor(thresholds []ActionThreshold, fraction float64) RecallAction {
	if len(thresholds) == 0 {
		thresholds = DefaultActionThresholds
	}
	sorted := append([]ActionThreshold(nil), thresholds...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinTaintedFraction > sorted[j].MinTaintedFraction
	})
	for _, t := range sorted {
		if fraction >= t.MinTaintedFraction {
			return t.Action
		}
	}
	return sorted[len(sorted)-1].Action
}

// RecallEntry describes the computed impact on one affected batch.
type RecallEntry struct {
	BatchID          string            `json:"batch_id"`
	BatchNumber      string            `json:"batch_number"`
	TaintedFraction  float64           `json:"tainted_fraction"`
	QuantityAffected float64           `json:"quantity_affected"`
	Unit             string            `json:"unit"`
	Action           RecallAction      `json:"action"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// RecallPlan is the computed affected-batch set for a recall simulation.
// It is a pure computation artifact; persisting it as a recall record with
// its own workflow state machine is the caller's responsibility.
type RecallPlan struct {
	TriggerBatchIDs   []string       `json:"trigger_batch_ids"`
	HazardDescription string         `json:"hazard_description"`
	SeverityHint      string         `json:"severity_hint,omitempty"`
	Entries           []RecallEntry  `json:"entries"`
	Warnings          []TraceWarning `json:"warnings,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// Entry returns the entry for a batch id, if present.
func (p RecallPlan) Entry(batchID string) (RecallEntry, bool) {
	for _, e := range p.Entries {
		if e.BatchID == batchID {
			return e, true
		}
	}
	return RecallEntry{}, false
}

// QuantityAffectedByUnit totals affected quantities grouped by unit.
func (p RecallPlan) QuantityAffectedByUnit() map[string]float64 {
	out := make(map[string]float64)
	for _, e := range p.Entries {
		out[e.Unit] += e.QuantityAffected
	}
	return out
}
