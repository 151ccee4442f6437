package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	telerrors "github.com/sudoservertools/telemetry/internal/errors"
	"github.com/sudoservertools/telemetry/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func record(entityID, name string, x float64) types.PositionRecord {
	return types.PositionRecord{
		EntityID:   entityID,
		Name:       name,
		PosX:       x,
		PosY:       12.5,
		PosZ:       3200,
		Health:     95,
		Blood:      5000,
		IsAlive:    true,
		ObservedAt: "2026-08-30T10:00:00Z",
	}
}

func TestStore_RecordBatchAndQueryByEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.RecordBatch(ctx, []types.PositionRecord{
		record("76561198000000001", "alice", 100),
		record("76561198000000002", "bob", 200),
		record("76561198000000001", "alice", 110),
	})
	if err != nil {
		t.Fatalf("failed to record batch: %v", err)
	}
	if n != 3 {
		t.Errorf("got %d records written, want 3", n)
	}

	records, err := store.QueryByEntity(ctx, "76561198000000001", 10)
	if err != nil {
		t.Fatalf("failed to query by entity: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Newest first: the later insert wins the tie on recorded_at.
	if records[0].PosX != 110 {
		t.Errorf("got pos_x %f first, want 110 (newest first)", records[0].PosX)
	}
	if records[0].RecordedAt == 0 {
		t.Error("recorded_at should be assigned by the store")
	}
}

func TestStore_RecordBatchEmptyEntityID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RecordBatch(context.Background(), []types.PositionRecord{
		{EntityID: "", Name: "ghost"},
	})
	if err == nil {
		t.Fatal("expected error for empty entity id")
	}
	if telerrors.GetCode(err) != telerrors.CodeEmptyEntityID {
		t.Errorf("got code %q, want EMPTY_ENTITY_ID", telerrors.GetCode(err))
	}
}

func TestStore_RecordBatchEmptySlice(t *testing.T) {
	store := newTestStore(t)

	n, err := store.RecordBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch should not error: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d, want 0", n)
	}
}

func TestStore_NoDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := record("76561198000000001", "alice", 100)
	if _, err := store.RecordBatch(ctx, []types.PositionRecord{r, r}); err != nil {
		t.Fatalf("failed to record batch: %v", err)
	}

	records, err := store.QueryByEntity(ctx, "76561198000000001", 10)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("identical records should both persist, got %d rows", len(records))
	}
}

func TestStore_QueryRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Unix()
	ts := base
	store.now = func() time.Time { return time.Unix(ts, 0) }

	for i := 0; i < 5; i++ {
		ts = base + int64(i*60)
		if _, err := store.RecordBatch(ctx, []types.PositionRecord{
			record("e1", "alice", float64(i)),
		}); err != nil {
			t.Fatalf("failed to record batch %d: %v", i, err)
		}
	}

	// Inclusive window covering batches 1..3.
	records, err := store.QueryRange(ctx, "e1", base+60, base+180)
	if err != nil {
		t.Fatalf("failed to query range: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	// Oldest first.
	if records[0].PosX != 1 || records[2].PosX != 3 {
		t.Errorf("range not oldest-first: first=%f last=%f", records[0].PosX, records[2].PosX)
	}
}

func TestStore_LatestPerEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Unix()
	ts := base
	store.now = func() time.Time { return time.Unix(ts, 0) }

	// Three entities, multiple records each, interleaved.
	for i := 0; i < 4; i++ {
		ts = base + int64(i*10)
		batch := []types.PositionRecord{
			record("e1", "alice", float64(i)),
			record("e2", "bob", float64(i*100)),
		}
		if i < 2 {
			batch = append(batch, record("e3", "carol", float64(i*1000)))
		}
		if _, err := store.RecordBatch(ctx, batch); err != nil {
			t.Fatalf("failed to record batch %d: %v", i, err)
		}
	}

	latest, err := store.LatestPerEntity(ctx)
	if err != nil {
		t.Fatalf("failed to query latest per entity: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("got %d rows, want exactly one per entity (3)", len(latest))
	}

	byEntity := make(map[string]types.PositionRecord)
	for _, r := range latest {
		if _, dup := byEntity[r.EntityID]; dup {
			t.Fatalf("entity %s appears twice", r.EntityID)
		}
		byEntity[r.EntityID] = r
	}

	if byEntity["e1"].PosX != 3 {
		t.Errorf("e1 latest pos_x = %f, want 3", byEntity["e1"].PosX)
	}
	if byEntity["e2"].PosX != 300 {
		t.Errorf("e2 latest pos_x = %f, want 300", byEntity["e2"].PosX)
	}
	if byEntity["e3"].PosX != 1000 {
		t.Errorf("e3 latest pos_x = %f, want 1000", byEntity["e3"].PosX)
	}

	// Each returned timestamp is the max recorded for that entity.
	for id, r := range byEntity {
		all, err := store.QueryByEntity(ctx, id, 100)
		if err != nil {
			t.Fatalf("failed to query %s: %v", id, err)
		}
		for _, other := range all {
			if other.RecordedAt > r.RecordedAt {
				t.Errorf("entity %s: latest %d is not the max timestamp %d", id, r.RecordedAt, other.RecordedAt)
			}
		}
	}

	// Newest overall first.
	for i := 1; i < len(latest); i++ {
		if latest[i].RecordedAt > latest[i-1].RecordedAt {
			t.Error("latest-per-entity not ordered newest first")
		}
	}
}

func TestStore_DistinctEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Unix()
	ts := base
	store.now = func() time.Time { return time.Unix(ts, 0) }

	for i := 0; i < 3; i++ {
		ts = base + int64(i*10)
		if _, err := store.RecordBatch(ctx, []types.PositionRecord{
			record("e1", "alice", 0),
		}); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}
	ts = base + 100
	if _, err := store.RecordBatch(ctx, []types.PositionRecord{record("e2", "bob", 0)}); err != nil {
		t.Fatalf("failed to record: %v", err)
	}

	entities, err := store.DistinctEntities(ctx)
	if err != nil {
		t.Fatalf("failed to query distinct entities: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(entities))
	}

	// Most recently seen first.
	if entities[0].EntityID != "e2" {
		t.Errorf("got %s first, want e2", entities[0].EntityID)
	}
	for _, e := range entities {
		if e.EntityID == "e1" {
			if e.RecordCount != 3 {
				t.Errorf("e1 record count = %d, want 3", e.RecordCount)
			}
			if e.FirstSeen != base || e.LastSeen != base+20 {
				t.Errorf("e1 seen range = [%d, %d], want [%d, %d]", e.FirstSeen, e.LastSeen, base, base+20)
			}
			if e.Name != "alice" {
				t.Errorf("e1 name = %q, want alice", e.Name)
			}
		}
	}
}

func TestStore_DeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Unix()
	ts := base
	store.now = func() time.Time { return time.Unix(ts, 0) }

	for i := 0; i < 5; i++ {
		ts = base + int64(i*60)
		if _, err := store.RecordBatch(ctx, []types.PositionRecord{
			record("e1", "alice", float64(i)),
		}); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}

	// Strictly-before semantics: the record at exactly base+120 survives.
	deleted, err := store.DeleteOlderThan(ctx, base+120)
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if deleted != 2 {
		t.Errorf("got %d deleted, want 2", deleted)
	}

	remaining, err := store.QueryByEntity(ctx, "e1", 100)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(remaining) != 3 {
		t.Errorf("got %d remaining, want 3", len(remaining))
	}
	for _, r := range remaining {
		if r.RecordedAt < base+120 {
			t.Errorf("record at %d should have been deleted", r.RecordedAt)
		}
	}
}

func TestStore_MonotonicRecordedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Simulate the wall clock stepping backwards between batches.
	base := time.Now().Unix()
	ts := base
	store.now = func() time.Time { return time.Unix(ts, 0) }

	if _, err := store.RecordBatch(ctx, []types.PositionRecord{record("e1", "a", 0)}); err != nil {
		t.Fatalf("failed to record: %v", err)
	}
	ts = base - 100
	if _, err := store.RecordBatch(ctx, []types.PositionRecord{record("e1", "a", 1)}); err != nil {
		t.Fatalf("failed to record: %v", err)
	}

	records, err := store.QueryRange(ctx, "e1", 0, base+1000)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].RecordedAt < records[0].RecordedAt {
		t.Errorf("ingestion timestamps went backwards: %d then %d", records[0].RecordedAt, records[1].RecordedAt)
	}
}

func TestStore_QueryLimitClamped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordBatch(ctx, []types.PositionRecord{record("e1", "a", 0)}); err != nil {
		t.Fatalf("failed to record: %v", err)
	}

	// A non-positive limit must not return an unbounded result set; it
	// falls back to the default rather than erroring.
	records, err := store.QueryByEntity(ctx, "e1", 0)
	if err != nil {
		t.Fatalf("failed to query with zero limit: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestStore_ConcurrentReadDuringWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordBatch(ctx, []types.PositionRecord{record("e1", "a", 0)}); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 20; i++ {
			if _, err := store.RecordBatch(ctx, []types.PositionRecord{record("e1", "a", float64(i))}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < 20; i++ {
		if _, err := store.QueryByEntity(ctx, "e1", 10); err != nil {
			t.Fatalf("read blocked or failed during writes: %v", err)
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("writer failed: %v", err)
	}
}

func TestStore_ContextCancellation(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.RecordBatch(ctx, []types.PositionRecord{record("e1", "a", 0)})
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
	if !errors.Is(err, context.Canceled) && telerrors.GetCode(err) != telerrors.CodeWriteFailed {
		t.Errorf("unexpected error: %v", err)
	}
}
