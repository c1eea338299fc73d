package core

import (
	"context"
	"testing"

	"tracecore/pkg/domain"
)

func TestSimulateRecallDairyScenario(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{
		TriggerBatchIDs:   []string{"batch-a"},
		HazardDescription: "listeria detected in raw milk silo",
		SeverityHint:      "high",
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !sameIDs(plan.TriggerBatchIDs, []string{"batch-a"}) {
		t.Fatalf("unexpected triggers: %v", plan.TriggerBatchIDs)
	}
	if len(plan.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %+v", plan.Entries)
	}

	check := func(id string, fraction, affected float64, action domain.RecallAction) {
		t.Helper()
		entry, ok := plan.Entry(id)
		if !ok {
			t.Fatalf("missing entry for %s", id)
		}
		if !approx(entry.TaintedFraction, fraction) {
			t.Fatalf("%s fraction: got %.4f want %.4f", id, entry.TaintedFraction, fraction)
		}
		if !approx(entry.QuantityAffected, affected) {
			t.Fatalf("%s quantity affected: got %.4f want %.4f", id, entry.QuantityAffected, affected)
		}
		if entry.Action != action {
			t.Fatalf("%s action: got %s want %s", id, entry.Action, action)
		}
	}
	check("batch-a", 1.0, 1000, domain.RecallActionMandatoryRetrieval)
	check("batch-b", 1.0, 950, domain.RecallActionMandatoryRetrieval)
	check("batch-c", 400.0/950.0, 500*400.0/950.0, domain.RecallActionNotifyAndMonitor)
	check("batch-d", 550.0/950.0, 200*550.0/950.0, domain.RecallActionMandatoryRetrieval)

	if len(plan.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", plan.Warnings)
	}
	totals := plan.QuantityAffectedByUnit()
	if !approx(totals["L"], 1950) {
		t.Fatalf("unexpected litre total: %+v", totals)
	}
}

func TestSimulateRecallEntryOrderMatchesVisitOrder(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"batch-a"}})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var ids []string
	for _, e := range plan.Entries {
		ids = append(ids, e.BatchID)
	}
	if !sameIDs(ids, []string{"batch-a", "batch-b", "batch-c", "batch-d"}) {
		t.Fatalf("unexpected entry order: %v", ids)
	}
}

func TestSimulateRecallTriggerBySearch(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	milk := domain.BatchTypeRawMaterial
	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{
		Search: &domain.BatchSearch{ProductName: "raw milk", Type: &milk},
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !sameIDs(plan.TriggerBatchIDs, []string{"batch-a"}) {
		t.Fatalf("unexpected triggers: %v", plan.TriggerBatchIDs)
	}
	if len(plan.Entries) != 4 {
		t.Fatalf("expected full downstream set, got %+v", plan.Entries)
	}
}

func TestSimulateRecallTriggerNotFound(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	if _, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"ghost"}}); !domain.IsNotFound(err) {
		t.Fatalf("expected not_found for unknown id, got %v", err)
	}
	if _, err := svc.SimulateRecall(context.Background(), RecallRequest{Search: &domain.BatchSearch{ProductName: "plutonium"}}); !domain.IsNotFound(err) {
		t.Fatalf("expected not_found for empty search, got %v", err)
	}
	if _, err := svc.SimulateRecall(context.Background(), RecallRequest{}); !domain.IsNotFound(err) {
		t.Fatalf("expected not_found for empty request, got %v", err)
	}
}

func TestSimulateRecallDeduplicatesTriggers(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{
		TriggerBatchIDs: []string{"batch-a", "batch-a"},
		Search:          &domain.BatchSearch{ProductName: "raw milk"},
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !sameIDs(plan.TriggerBatchIDs, []string{"batch-a"}) {
		t.Fatalf("expected deduplicated triggers, got %v", plan.TriggerBatchIDs)
	}
}

func TestSimulateRecallCustomThresholds(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{
		TriggerBatchIDs: []string{"batch-a"},
		Thresholds: []domain.ActionThreshold{
			{MinTaintedFraction: 0.9, Action: domain.RecallActionMandatoryRetrieval},
			{MinTaintedFraction: 0.0, Action: domain.RecallActionNotifyAndMonitor},
		},
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	entryB, _ := plan.Entry("batch-b")
	entryD, _ := plan.Entry("batch-d")
	if entryB.Action != domain.RecallActionMandatoryRetrieval {
		t.Fatalf("batch-b should stay mandatory: %+v", entryB)
	}
	if entryD.Action != domain.RecallActionNotifyAndMonitor {
		t.Fatalf("batch-d should drop to notify under 0.9 threshold: %+v", entryD)
	}
}

func TestSimulateRecallDepthValidation(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	if _, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"batch-a"}, MaxDepth: intPtr(11)}); domain.ErrKind(err) != domain.KindInvalidDepth {
		t.Fatalf("expected invalid_depth, got %v", err)
	}
	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"batch-a"}, MaxDepth: intPtr(0)})
	if err != nil {
		t.Fatalf("simulate depth 0: %v", err)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].BatchID != "batch-a" {
		t.Fatalf("depth 0 must cover only the trigger: %+v", plan.Entries)
	}
}

func TestSimulateRecallGraphTooLarge(t *testing.T) {
	svc := newTestService(t, WithTraceConfig(TraceConfig{MaxBatches: 2}))
	seedDairy(t, svc)

	_, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"batch-a"}})
	if domain.ErrKind(err) != domain.KindGraphTooLarge {
		t.Fatalf("expected graph_too_large, got %v", err)
	}
}

func TestSimulateRecallCycleFallsBackToRelaxation(t *testing.T) {
	svc := newUncheckedService(t)
	mustBatch(t, svc, "b-t1", "T-1", "starter", domain.BatchTypeRawMaterial, 1000, "L")
	mustBatch(t, svc, "b-m1", "M-1", "mix one", domain.BatchTypeIntermediate, 400, "L")
	mustBatch(t, svc, "b-m2", "M-2", "mix two", domain.BatchTypeIntermediate, 400, "L")
	mustLink(t, svc, "l-1", "b-m1", "b-t1", 500, "L")
	mustLink(t, svc, "l-2", "b-m2", "b-m1", 200, "L")
	mustLink(t, svc, "l-3", "b-m1", "b-m2", 100, "L")

	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"b-t1"}})
	if err != nil {
		t.Fatalf("simulate must tolerate cycles: %v", err)
	}
	var cycleWarning bool
	for _, w := range plan.Warnings {
		if w.Kind == domain.KindCycleDetected {
			cycleWarning = true
		}
	}
	if !cycleWarning {
		t.Fatalf("expected a cycle warning, got %+v", plan.Warnings)
	}
	m1, _ := plan.Entry("b-m1")
	m2, _ := plan.Entry("b-m2")
	if !approx(m1.TaintedFraction, 0.5) || !approx(m2.TaintedFraction, 0.25) {
		t.Fatalf("unexpected fractions after relaxation: m1=%.4f m2=%.4f", m1.TaintedFraction, m2.TaintedFraction)
	}
}

func TestSimulateRecallWarnsOnConservationBreach(t *testing.T) {
	svc := newUncheckedService(t)
	mustBatch(t, svc, "b-s", "S-1", "syrup", domain.BatchTypeRawMaterial, 100, "L")
	mustBatch(t, svc, "b-c", "C-1", "cordial", domain.BatchTypeFinalProduct, 150, "L")
	mustLink(t, svc, "l-sc", "b-c", "b-s", 150, "L")

	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"b-s"}})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	entry, _ := plan.Entry("b-c")
	if !approx(entry.TaintedFraction, 1.0) {
		t.Fatalf("overdrawn ratio must clamp to 1.0, got %.4f", entry.TaintedFraction)
	}
	var breach bool
	for _, w := range plan.Warnings {
		if w.Kind == domain.KindConservationViolation {
			breach = true
		}
	}
	if !breach {
		t.Fatalf("expected conservation warning, got %+v", plan.Warnings)
	}
}

func TestSimulateRecallLeavesStoreUntouched(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	if _, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"batch-a"}}); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	batch, err := svc.GetBatch("batch-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if batch.Status != domain.BatchStatusInProduction {
		t.Fatalf("simulation must not mutate status, got %s", batch.Status)
	}
	if len(svc.ListLinks()) != 3 {
		t.Fatalf("simulation must not add links")
	}
}
