package archive

import (
	"context"
	"path/filepath"
	"testing"

	telerrors "github.com/sudoservertools/telemetry/internal/errors"
	"github.com/sudoservertools/telemetry/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func trade(entity, eventTime string, kind types.TradeKind, item string, qty, price int64) types.TradeRecord {
	return types.TradeRecord{
		EntityID:    entity,
		EventTime:   eventTime,
		Kind:        kind,
		TraderName:  "Dr. Ivan",
		ZoneName:    "Krasnostav",
		ItemClass:   item,
		ItemDisplay: item,
		Quantity:    qty,
		Price:       price,
		Currency:    "ruble",
		ArchiveDate: "2026-08-30",
	}
}

func TestStore_InsertTrades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.InsertTrades(ctx, []types.TradeRecord{
		trade("e1", "2026-08-29T10:00:00Z", types.TradePurchase, "AKM", 1, 5000),
		trade("e1", "2026-08-29T11:00:00Z", types.TradeSale, "Apple", 5, 50),
		trade("e2", "2026-08-29T12:00:00Z", types.TradePurchase, "AKM", 1, 5000),
	})
	if err != nil {
		t.Fatalf("failed to insert trades: %v", err)
	}
	if n != 3 {
		t.Errorf("got %d inserted, want 3", n)
	}

	var count int64
	if err := store.ReadDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_trades`).Scan(&count); err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("got %d rows, want 3", count)
	}
}

func TestStore_InsertTradesInvalidKindRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertTrades(ctx, []types.TradeRecord{
		trade("e1", "2026-08-29T10:00:00Z", types.TradePurchase, "AKM", 1, 5000),
		trade("e1", "2026-08-29T11:00:00Z", types.TradeKind("barter"), "Apple", 5, 50),
	})
	if err == nil {
		t.Fatal("expected error for invalid trade kind")
	}
	if telerrors.GetCategory(err) != telerrors.ErrCategoryArchive {
		t.Errorf("got category %q, want ARCHIVE", telerrors.GetCategory(err))
	}

	// The whole batch rolls back: no partial rows.
	var count int64
	if err := store.ReadDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_trades`).Scan(&count); err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d rows after failed batch, want 0", count)
	}
}

func TestStore_InsertLifeEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.InsertLifeEvents(ctx, []types.LifeEventRecord{
		{EntityID: "e1", EventTime: "2026-08-29T10:00:00Z", Kind: types.LifeDeath,
			Payload: `{"causeOfDeath":"zombie"}`, ArchiveDate: "2026-08-30"},
		{EntityID: "e1", EventTime: "2026-08-29T10:05:00Z", Kind: types.LifeRespawn, ArchiveDate: "2026-08-30"},
	})
	if err != nil {
		t.Fatalf("failed to insert life events: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d inserted, want 2", n)
	}

	var payload string
	err = store.ReadDB().QueryRowContext(ctx,
		`SELECT payload FROM archived_life_events WHERE event_kind = 'death'`).Scan(&payload)
	if err != nil {
		t.Fatalf("failed to read payload: %v", err)
	}
	if payload != `{"causeOfDeath":"zombie"}` {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestStore_InsertItemEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	x, y, z := 4500.5, 12.0, 10200.0
	n, err := store.InsertItemEvents(ctx, []types.ItemEventRecord{
		{EntityID: "e1", EventTime: "2026-08-29T10:00:00Z", Kind: types.ItemPickup,
			ItemClass: "AKM", ItemDisplay: "AKM", Quantity: 1,
			PosX: &x, PosY: &y, PosZ: &z, ArchiveDate: "2026-08-30"},
		{EntityID: "e1", EventTime: "2026-08-29T10:01:00Z", Kind: types.ItemConsume,
			ItemClass: "Apple", Quantity: 1, ArchiveDate: "2026-08-30"},
	})
	if err != nil {
		t.Fatalf("failed to insert item events: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d inserted, want 2", n)
	}

	// Position is nullable: the consume event stored NULLs.
	var nullPos int64
	err = store.ReadDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archived_item_events WHERE pos_x IS NULL`).Scan(&nullPos)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if nullPos != 1 {
		t.Errorf("got %d rows with null position, want 1", nullPos)
	}
}

func TestStore_EmptyBatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if n, err := store.InsertTrades(ctx, nil); err != nil || n != 0 {
		t.Errorf("empty trade batch: n=%d err=%v", n, err)
	}
	if n, err := store.InsertLifeEvents(ctx, nil); err != nil || n != 0 {
		t.Errorf("empty life event batch: n=%d err=%v", n, err)
	}
	if n, err := store.InsertItemEvents(ctx, nil); err != nil || n != 0 {
		t.Errorf("empty item event batch: n=%d err=%v", n, err)
	}
}

func TestStore_RecordRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &types.ArchiveRun{
		RunID:              "run-0001",
		RunDate:            "2026-08-30",
		TradesArchived:     9,
		LifeEventsArchived: 5,
		ItemEventsArchived: 0,
		FilesCleared:       3,
		DurationMS:         120,
		Status:             types.RunCompleted,
	}

	id, err := store.RecordRun(ctx, run)
	if err != nil {
		t.Fatalf("failed to record run: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero ledger row id")
	}
	if run.CreatedAt == 0 {
		t.Error("created_at should be assigned")
	}

	// Error runs are ledgered the same way.
	errRun := &types.ArchiveRun{
		RunID:   "run-0002",
		RunDate: "2026-08-30",
		Status:  types.RunError,
		Error:   "trade batch failed",
	}
	if _, err := store.RecordRun(ctx, errRun); err != nil {
		t.Fatalf("failed to record error run: %v", err)
	}

	var count int64
	if err := store.ReadDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_runs`).Scan(&count); err != nil {
		t.Fatalf("failed to count runs: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d ledger rows, want 2", count)
	}
}

func TestStore_RecordRunRejectsUnknownStatus(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RecordRun(context.Background(), &types.ArchiveRun{
		RunID:   "run-0003",
		RunDate: "2026-08-30",
		Status:  types.RunStatus("partial"),
	})
	if err == nil {
		t.Fatal("expected CHECK constraint failure for unknown status")
	}
}

func TestStore_DeleteFamilyOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertTrades(ctx, []types.TradeRecord{
		trade("e1", "2026-05-01T00:00:00Z", types.TradePurchase, "AKM", 1, 5000),
		trade("e1", "2026-08-29T00:00:00Z", types.TradeSale, "Apple", 5, 50),
	}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	deleted, err := store.DeleteFamilyOlderThan(ctx, FamilyTrades, "2026-08-01T00:00:00Z")
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("got %d deleted, want 1", deleted)
	}

	if _, err := store.DeleteFamilyOlderThan(ctx, Family("bogus"), "2026-08-01T00:00:00Z"); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestStore_Vacuum(t *testing.T) {
	store := newTestStore(t)
	if err := store.Vacuum(context.Background()); err != nil {
		t.Fatalf("vacuum failed: %v", err)
	}
}
