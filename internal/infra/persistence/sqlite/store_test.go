package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"tracecore/pkg/domain"
)

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateBatch(domain.Batch{
			Base:        domain.Base{ID: "b-milk"},
			BatchNumber: "RM-001",
			ProductName: "raw milk",
			Type:        domain.BatchTypeRawMaterial,
			Quantity:    1000,
			Unit:        "liters",
		}); err != nil {
			return err
		}
		if _, err := tx.CreateBatch(domain.Batch{
			Base:        domain.Base{ID: "b-cheese"},
			BatchNumber: "IM-001",
			ProductName: "cheese base",
			Type:        domain.BatchTypeIntermediate,
			Quantity:    950,
			Unit:        "liters",
		}); err != nil {
			return err
		}
		_, err := tx.CreateLink(domain.TraceabilityLink{
			Base:            domain.Base{ID: "l-1"},
			ConsumerBatchID: "b-cheese",
			SourceBatchID:   "b-milk",
			Relationship:    domain.RelationshipIngredient,
			QuantityUsed:    950,
			Unit:            "liters",
		})
		return err
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.DB().Close() }()

	if got := len(reopened.ListBatches()); got != 2 {
		t.Fatalf("expected 2 batches after reload, got %d", got)
	}
	link, ok := reopened.GetLink("l-1")
	if !ok {
		t.Fatalf("expected link to survive reload")
	}
	if link.SourceBatchID != "b-milk" || link.QuantityUsed != 950 {
		t.Fatalf("unexpected reloaded link: %+v", link)
	}
	if got := reopened.LinksByConsumer("b-cheese"); len(got) != 1 || got[0].ID != "l-1" {
		t.Fatalf("expected rebuilt adjacency index, got %+v", got)
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.DB().Close() }()

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBatch(domain.Batch{BatchNumber: "X", Quantity: -5})
		return err
	}); err == nil {
		t.Fatalf("expected failing transaction")
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count state rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no snapshot rows after failed transaction, got %d", count)
	}
}
