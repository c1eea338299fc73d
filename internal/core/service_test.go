package core

import (
	"context"
	"errors"
	"testing"

	"tracecore/pkg/domain"
)

func TestServiceCreateBatchUsesInjectedClock(t *testing.T) {
	svc := newTestService(t)
	created := mustBatch(t, svc, "", "RM-001", "raw milk", domain.BatchTypeRawMaterial, 1000, "L")
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !created.CreatedAt.Equal(testTime) || !created.UpdatedAt.Equal(testTime) {
		t.Fatalf("timestamps must come from the clock: %+v", created.Base)
	}
	if created.Status != domain.BatchStatusInProduction {
		t.Fatalf("expected default status, got %s", created.Status)
	}
}

func TestServiceGettersReturnTypedNotFound(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetBatch("ghost"); !domain.IsNotFound(err) {
		t.Fatalf("expected not_found for batch, got %v", err)
	}
	_, err := svc.GetLink("ghost")
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not_found for link, got %v", err)
	}
	var domErr *domain.Error
	if !errors.As(err, &domErr) || len(domErr.LinkIDs) != 1 {
		t.Fatalf("link error should carry the link id: %v", err)
	}
}

func TestServiceUpdateAndSearch(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	updated, _, err := svc.UpdateBatch(context.Background(), "batch-c", func(b *Batch) error {
		b.QualityStatus = "passed"
		return nil
	})
	if err != nil || updated.QualityStatus != "passed" {
		t.Fatalf("update: %v %+v", err, updated)
	}

	final := domain.BatchTypeFinalProduct
	matches := svc.SearchBatches(BatchSearch{Type: &final})
	if len(matches) != 2 || matches[0].ID != "batch-c" || matches[1].ID != "batch-d" {
		t.Fatalf("unexpected search result: %+v", matches)
	}
	matches = svc.SearchBatches(BatchSearch{ProductName: "MILK"})
	if len(matches) != 2 {
		t.Fatalf("product search should be case-insensitive: %+v", matches)
	}
	if len(svc.ListBatches()) != 4 || len(svc.ListLinks()) != 3 {
		t.Fatalf("unexpected list sizes")
	}
	link, err := svc.GetLink("link-ab")
	if err != nil || link.SourceBatchID != "batch-a" {
		t.Fatalf("get link: %v %+v", err, link)
	}
}

func TestServiceReportsCarryClockTimestamp(t *testing.T) {
	svc := newTestService(t)
	seedDairy(t, svc)

	report, err := svc.Trace(context.Background(), TraceRequest{StartBatchID: "batch-a", Direction: domain.TraceForward})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if !report.GeneratedAt.Equal(testTime) {
		t.Fatalf("report timestamp must come from the clock: %v", report.GeneratedAt)
	}
	plan, err := svc.SimulateRecall(context.Background(), RecallRequest{TriggerBatchIDs: []string{"batch-a"}})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !plan.GeneratedAt.Equal(testTime) {
		t.Fatalf("plan timestamp must come from the clock: %v", plan.GeneratedAt)
	}
}

func TestNewInMemoryServiceDefaultsRules(t *testing.T) {
	svc := NewInMemoryService(nil)
	mustBatch(t, svc, "b-1", "B-1", "milk", domain.BatchTypeRawMaterial, 10, "L")

	_, _, err := svc.CreateLink(context.Background(), TraceabilityLink{
		ConsumerBatchID: "b-1",
		SourceBatchID:   "b-1",
		Relationship:    domain.RelationshipIngredient,
		QuantityUsed:    1,
	})
	if domain.ErrKind(err) != domain.KindCycleDetected {
		t.Fatalf("nil engine must fall back to default rules, got %v", err)
	}
}

func TestArchiveWithoutArchiverFails(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ArchiveTraceReport(context.Background(), TraceReport{}); !errors.Is(err, ErrNoArchiver) {
		t.Fatalf("expected ErrNoArchiver, got %v", err)
	}
	if _, err := svc.ArchiveRecallPlan(context.Background(), RecallPlan{}); !errors.Is(err, ErrNoArchiver) {
		t.Fatalf("expected ErrNoArchiver, got %v", err)
	}
}
