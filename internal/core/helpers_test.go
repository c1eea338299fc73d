package core

import (
	"context"
	"testing"
	"time"

	"tracecore/internal/infra/persistence/memory"
	"tracecore/pkg/domain"
)

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return testTime })
}

func newTestService(t *testing.T, options ...ServiceOption) *Service {
	t.Helper()
	options = append([]ServiceOption{WithClock(fixedClock())}, options...)
	return NewInMemoryService(NewDefaultRulesEngine(), options...)
}

// newUncheckedService skips the write-time rules so tests can build graphs
// the rules would normally reject.
func newUncheckedService(t *testing.T, options ...ServiceOption) *Service {
	t.Helper()
	options = append([]ServiceOption{WithClock(fixedClock())}, options...)
	return NewService(memory.NewStore(domain.NewRulesEngine()), options...)
}

func mustBatch(t *testing.T, svc *Service, id, number, product string, btype domain.BatchType, qty float64, unit string) Batch {
	t.Helper()
	created, _, err := svc.CreateBatch(context.Background(), Batch{
		Base:           domain.Base{ID: id},
		BatchNumber:    number,
		ProductName:    product,
		Type:           btype,
		Quantity:       qty,
		Unit:           unit,
		ProductionDate: testTime,
	})
	if err != nil {
		t.Fatalf("create batch %s: %v", id, err)
	}
	return created
}

func mustLink(t *testing.T, svc *Service, id, consumer, source string, qty float64, unit string) TraceabilityLink {
	t.Helper()
	created, _, err := svc.CreateLink(context.Background(), TraceabilityLink{
		Base:            domain.Base{ID: id},
		ConsumerBatchID: consumer,
		SourceBatchID:   source,
		Relationship:    domain.RelationshipIngredient,
		QuantityUsed:    qty,
		Unit:            unit,
		UsageDate:       testTime,
		ProcessStep:     "blend",
	})
	if err != nil {
		t.Fatalf("create link %s: %v", id, err)
	}
	return created
}

// seedDairy builds the standard fixture: raw milk (1000 L) is pasteurized
// into batch-b (950 L), which feeds yogurt batch-c (500 units, 400 L used)
// and cheese batch-d (200 units, 550 L used).
func seedDairy(t *testing.T, svc *Service) {
	t.Helper()
	mustBatch(t, svc, "batch-a", "RM-001", "raw milk", domain.BatchTypeRawMaterial, 1000, "L")
	mustBatch(t, svc, "batch-b", "IM-001", "pasteurized milk", domain.BatchTypeIntermediate, 950, "L")
	mustBatch(t, svc, "batch-c", "FP-001", "yogurt", domain.BatchTypeFinalProduct, 500, "units")
	mustBatch(t, svc, "batch-d", "FP-002", "cheese", domain.BatchTypeFinalProduct, 200, "units")
	mustLink(t, svc, "link-ab", "batch-b", "batch-a", 1000, "L")
	mustLink(t, svc, "link-bc", "batch-c", "batch-b", 400, "L")
	mustLink(t, svc, "link-bd", "batch-d", "batch-b", 550, "L")
}

func intPtr(v int) *int { return &v }

func approx(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-3
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
