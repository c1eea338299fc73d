// Package domain defines the persistent entities, value types, error
// taxonomy, and rule evaluation primitives used by tracecore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityBatch identifies a produced or received batch record.
	EntityBatch EntityType = "batch"
	// EntityLink identifies a traceability link record.
	EntityLink EntityType = "traceability_link"
)

// BatchType classifies what a batch is within the production flow.
type BatchType string

// Canonical batch types. The set is closed; free-form classification lives in
// batch metadata instead.
const (
	BatchTypeRawMaterial  BatchType = "raw_material"
	BatchTypeAdditive     BatchType = "additive"
	BatchTypeCulture      BatchType = "culture"
	BatchTypePackaging    BatchType = "packaging"
	BatchTypeIntermediate BatchType = "intermediate"
	BatchTypeFinalProduct BatchType = "final_product"
)

// BatchStatus represents the canonical batch lifecycle states.
type BatchStatus string

// Canonical batch statuses. Transitions are monotonic per AllowedStatusTransitions;
// recalled and disposed are terminal.
const (
	BatchStatusInProduction BatchStatus = "in_production"
	BatchStatusCompleted    BatchStatus = "completed"
	BatchStatusQuarantined  BatchStatus = "quarantined"
	BatchStatusReleased     BatchStatus = "released"
	BatchStatusRecalled     BatchStatus = "recalled"
	BatchStatusDisposed     BatchStatus = "disposed"
)

// AllowedStatusTransitions enumerates the legal batch status edges. Absence of
// an entry means the source status is terminal.
var AllowedStatusTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusInProduction: {BatchStatusCompleted},
	BatchStatusCompleted:    {BatchStatusQuarantined, BatchStatusReleased},
	BatchStatusQuarantined:  {BatchStatusReleased, BatchStatusDisposed},
	BatchStatusReleased:     {BatchStatusRecalled},
}

// IsTerminalStatus reports whether no further transitions are allowed from s.
func IsTerminalStatus(s BatchStatus) bool {
	return len(AllowedStatusTransitions[s]) == 0
}

// ValidBatchStatus reports whether s is a member of the canonical status set.
func ValidBatchStatus(s BatchStatus) bool {
	switch s {
	case BatchStatusInProduction, BatchStatusCompleted, BatchStatusQuarantined,
		BatchStatusReleased, BatchStatusRecalled, BatchStatusDisposed:
		return true
	}
	return false
}

// RelationshipType classifies how a consumer batch used a source batch.
type RelationshipType string

// Canonical link relationship types.
const (
	RelationshipParent     RelationshipType = "parent"
	RelationshipIngredient RelationshipType = "ingredient"
	RelationshipPackaging  RelationshipType = "packaging"
)

// ValidRelationshipType reports whether r is a member of the canonical set.
func ValidRelationshipType(r RelationshipType) bool {
	switch r {
	case RelationshipParent, RelationshipIngredient, RelationshipPackaging:
		return true
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusEvent records one entry of a batch's append-only status history.
type StatusEvent struct {
	Status     BatchStatus `json:"status"`
	Note       string      `json:"note,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Batch represents a produced or received lot of material or product.
// Batches are never deleted; terminal states end their lifecycle instead.
type Batch struct {
	Base
	BatchNumber    string            `json:"batch_number"`
	ProductName    string            `json:"product_name"`
	Type           BatchType         `json:"batch_type"`
	Status         BatchStatus       `json:"status"`
	Quantity       float64           `json:"quantity"`
	Unit           string            `json:"unit"`
	ProductionDate time.Time         `json:"production_date"`
	ExpiryDate     *time.Time        `json:"expiry_date,omitempty"`
	LotNumber      string            `json:"lot_number"`
	QualityStatus  string            `json:"quality_status"`
	StatusHistory  []StatusEvent     `json:"status_history"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TraceabilityLink records that a consumer batch used a quantity of a source
// batch. Links are immutable once created; corrections are compensating
// links, never in-place edits.
type TraceabilityLink struct {
	Base
	ConsumerBatchID string           `json:"consumer_batch_id"`
	SourceBatchID   string           `json:"source_batch_id"`
	Relationship    RelationshipType `json:"relationship_type"`
	QuantityUsed    float64          `json:"quantity_used"`
	Unit            string           `json:"unit"`
	UsageDate       time.Time        `json:"usage_date"`
	ProcessStep     string           `json:"process_step"`
}

// BatchSearch filters batches for recall trigger resolution.
// Zero-valued fields are ignored.
type BatchSearch struct {
	ProductName  string     `json:"product_name,omitempty"`
	Type         *BatchType `json:"batch_type,omitempty"`
	ProducedFrom *time.Time `json:"produced_from,omitempty"`
	ProducedTo   *time.Time `json:"produced_to,omitempty"`
}

// Matches reports whether the batch satisfies every populated criterion.
func (s BatchSearch) Matches(b Batch) bool {
	if s.ProductName != "" && !strings.Contains(strings.ToLower(b.ProductName), strings.ToLower(s.ProductName)) {
		return false
	}
	if s.Type != nil && b.Type != *s.Type {
		return false
	}
	if s.ProducedFrom != nil && b.ProductionDate.Before(*s.ProducedFrom) {
		return false
	}
	if s.ProducedTo != nil && b.ProductionDate.After(*s.ProducedTo) {
		return false
	}
	return true
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured for rule evaluation.
// There is no delete action: batches are never deleted and links are
// immutable, so the audit trail only ever grows.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the subset of violations at warn severity.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
