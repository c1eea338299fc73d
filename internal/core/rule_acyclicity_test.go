package core

import (
	"context"
	"testing"

	"tracecore/pkg/domain"
)

func TestCreateLinkRejectsSelfConsumption(t *testing.T) {
	svc := newTestService(t)
	mustBatch(t, svc, "b-x", "X-1", "dough", domain.BatchTypeIntermediate, 50, "kg")

	_, _, err := svc.CreateLink(context.Background(), TraceabilityLink{
		Base:            domain.Base{ID: "l-xx"},
		ConsumerBatchID: "b-x",
		SourceBatchID:   "b-x",
		Relationship:    domain.RelationshipIngredient,
		QuantityUsed:    1,
		Unit:            "kg",
		UsageDate:       testTime,
	})
	if domain.ErrKind(err) != domain.KindCycleDetected {
		t.Fatalf("expected cycle_detected, got %v", err)
	}
	if len(svc.ListLinks()) != 0 {
		t.Fatalf("rejected link must not persist")
	}
}

func TestCreateLinkRejectsCycle(t *testing.T) {
	svc := newTestService(t)
	mustBatch(t, svc, "b-a", "A-1", "flour", domain.BatchTypeRawMaterial, 100, "kg")
	mustBatch(t, svc, "b-b", "B-1", "dough", domain.BatchTypeIntermediate, 60, "kg")
	mustBatch(t, svc, "b-c", "C-1", "bread", domain.BatchTypeFinalProduct, 30, "kg")
	mustLink(t, svc, "l-ab", "b-b", "b-a", 50, "kg")
	mustLink(t, svc, "l-bc", "b-c", "b-b", 20, "kg")

	// b-a consuming b-c would close the loop a -> b -> c -> a.
	_, _, err := svc.CreateLink(context.Background(), TraceabilityLink{
		Base:            domain.Base{ID: "l-ca"},
		ConsumerBatchID: "b-a",
		SourceBatchID:   "b-c",
		Relationship:    domain.RelationshipIngredient,
		QuantityUsed:    10,
		Unit:            "kg",
		UsageDate:       testTime,
	})
	if domain.ErrKind(err) != domain.KindCycleDetected {
		t.Fatalf("expected cycle_detected, got %v", err)
	}
	if len(svc.ListLinks()) != 2 {
		t.Fatalf("rejected link must not persist")
	}
}

func TestCreateLinkAllowsReconvergingBranches(t *testing.T) {
	svc := newTestService(t)
	mustBatch(t, svc, "b-r", "R-1", "milk", domain.BatchTypeRawMaterial, 100, "L")
	mustBatch(t, svc, "b-x", "X-1", "cream", domain.BatchTypeIntermediate, 40, "L")
	mustBatch(t, svc, "b-y", "Y-1", "skim", domain.BatchTypeIntermediate, 60, "L")
	mustBatch(t, svc, "b-z", "Z-1", "recombined", domain.BatchTypeFinalProduct, 50, "L")
	mustLink(t, svc, "l-rx", "b-x", "b-r", 40, "L")
	mustLink(t, svc, "l-ry", "b-y", "b-r", 60, "L")
	mustLink(t, svc, "l-xz", "b-z", "b-x", 20, "L")

	// A diamond is not a cycle; the second converging edge must pass.
	mustLink(t, svc, "l-yz", "b-z", "b-y", 30, "L")
	if len(svc.ListLinks()) != 4 {
		t.Fatalf("diamond edge should have been accepted")
	}
}
