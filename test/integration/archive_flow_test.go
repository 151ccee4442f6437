// Package integration provides end-to-end tests over the assembled
// application: producer files in, archived rows and analytics out.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sudoservertools/telemetry/internal/app"
	"github.com/sudoservertools/telemetry/internal/config"
	"github.com/sudoservertools/telemetry/internal/query"
)

// newTestApp assembles the full application over a temp directory laid out
// like a real game server profile.
func newTestApp(t *testing.T) (*app.App, *config.Config) {
	t.Helper()

	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.ProfileDir = filepath.Join(base, "profile")
	cfg.ColdStorage.Enabled = true
	cfg.ColdStorage.Type = "local"
	cfg.ColdStorage.Path = filepath.Join(base, "cold")
	cfg.Resolve()

	for _, dir := range []string{
		cfg.Archive.TradesDir, cfg.Archive.LifeEventsDir, cfg.Archive.ItemEventsDir,
		filepath.Dir(cfg.Snapshot.SourceFile),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to assemble application: %v", err)
	}
	t.Cleanup(func() { application.Close(ctx) })

	return application, cfg
}

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// TestTradeArchiveScenario covers the canonical trade flow: three trade
// files, each with two purchases at 100 and one sale at 50, archived with
// file clearing.
func TestTradeArchiveScenario(t *testing.T) {
	application, cfg := newTestApp(t)
	ctx := context.Background()

	const tradeBody = `{
		"purchases": [
			{"timestamp": "2026-08-29T10:00:00Z", "traderName": "Dr. Ivan", "zoneName": "Krasnostav",
			 "itemClass": "AKM", "itemDisplay": "AKM", "quantity": 1, "price": 100, "currency": "ruble"},
			{"timestamp": "2026-08-29T10:05:00Z", "traderName": "Dr. Ivan", "zoneName": "Krasnostav",
			 "itemClass": "AKM", "itemDisplay": "AKM", "quantity": 1, "price": 100, "currency": "ruble"}
		],
		"sales": [
			{"timestamp": "2026-08-29T11:00:00Z", "traderName": "Grower", "zoneName": "Svetlojarsk",
			 "itemClass": "Apple", "itemDisplay": "Apple", "quantity": 1, "price": 50, "currency": "ruble"}
		]
	}`

	var paths []string
	for i := 1; i <= 3; i++ {
		paths = append(paths, writeSource(t, cfg.Archive.TradesDir,
			fmt.Sprintf("7656119800000000%d_trades.json", i), tradeBody))
	}

	result, err := application.Runner().RunArchive(ctx, true)
	if err != nil {
		t.Fatalf("archive run failed: %v", err)
	}
	if result.Trades.RecordsArchived != 9 {
		t.Errorf("got %d trades archived, want 9", result.Trades.RecordsArchived)
	}

	info, err := application.Queries().ArchiveInfo(ctx)
	if err != nil {
		t.Fatalf("archive info failed: %v", err)
	}
	if info.Trades.RecordCount != 9 {
		t.Errorf("archive reports %d trades, want 9", info.Trades.RecordCount)
	}
	if info.RunCount != 1 {
		t.Errorf("archive reports %d runs, want 1", info.RunCount)
	}

	// The AKM purchases are the highest-value group: 6 x 100 beats 3 x 50.
	top, err := application.Queries().TopItems(ctx, query.TopItemsOptions{Limit: 1})
	if err != nil {
		t.Fatalf("top items failed: %v", err)
	}
	if len(top) != 1 || top[0].ItemClass != "AKM" || top[0].TotalValue != 600 {
		t.Errorf("unexpected top item: %+v", top)
	}

	// All three source files are gone.
	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("source file %s should be deleted", path)
		}
	}
}

// TestMalformedLifeEventScenario covers parse-failure isolation: two good
// files with five events total plus one malformed file.
func TestMalformedLifeEventScenario(t *testing.T) {
	application, cfg := newTestApp(t)
	ctx := context.Background()

	writeSource(t, cfg.Archive.LifeEventsDir, "e1_life.json", `{
		"deaths": [{"timestamp": "2026-08-29T10:00:00Z", "causeOfDeath": "zombie"}],
		"connections": [{"timestamp": "2026-08-29T09:00:00Z"}],
		"spawns": [{"timestamp": "2026-08-29T09:01:00Z"}]
	}`)
	writeSource(t, cfg.Archive.LifeEventsDir, "e2_life.json", `{
		"deaths": [{"timestamp": "2026-08-29T12:00:00Z"}],
		"respawns": [{"timestamp": "2026-08-29T12:05:00Z"}]
	}`)
	malformed := writeSource(t, cfg.Archive.LifeEventsDir, "e3_life.json", `{{{not json`)

	result, err := application.Runner().RunArchive(ctx, true)
	if err != nil {
		t.Fatalf("archive run failed: %v", err)
	}

	if string(result.Status) != "completed" {
		t.Errorf("isolated parse failure must not fail the run: status=%s", result.Status)
	}
	if result.LifeEvents.RecordsArchived != 5 {
		t.Errorf("got %d life events archived, want 5", result.LifeEvents.RecordsArchived)
	}
	if _, err := os.Stat(malformed); err != nil {
		t.Errorf("malformed file must be untouched: %v", err)
	}

	// The archived deaths are queryable per entity.
	events, err := application.Queries().PlayerLifeEvents(ctx, "e1", query.LifeEventOptions{EventType: "death"})
	if err != nil {
		t.Fatalf("life event query failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d deaths for e1, want 1", len(events))
	}
}

// TestCollectArchivePruneFlow walks the full lifecycle: snapshot
// collection from the producer's export, archiving, and retention with
// cold-storage export.
func TestCollectArchivePruneFlow(t *testing.T) {
	application, cfg := newTestApp(t)
	ctx := context.Background()

	// Producer publishes the online-players export.
	writeSource(t, filepath.Dir(cfg.Snapshot.SourceFile), filepath.Base(cfg.Snapshot.SourceFile), `{
		"generatedAt": "2026-08-30T12:00:00Z",
		"onlineCount": 2,
		"players": [
			{"playerId": "e1", "playerName": "Alice", "posX": 4500.5, "posY": 12.0, "posZ": 10200.0,
			 "health": 95.5, "blood": 5000, "isAlive": true, "isOnline": true},
			{"playerId": "e2", "playerName": "Bob", "posX": 100.0, "posY": 5.0, "posZ": 200.0,
			 "health": 80.0, "blood": 4800, "isAlive": true, "isOnline": true}
		]
	}`)

	snapshots := application.Snapshots()
	n, err := application.Collector().CollectOnce(ctx)
	if err != nil {
		t.Fatalf("collection failed: %v", err)
	}
	if n != 2 {
		t.Errorf("collected %d positions, want 2", n)
	}

	latest, err := snapshots.LatestPerEntity(ctx)
	if err != nil {
		t.Fatalf("latest-per-entity failed: %v", err)
	}
	if len(latest) != 2 {
		t.Errorf("got %d latest positions, want 2", len(latest))
	}

	// Old trades flow through archive and then out to cold storage.
	writeSource(t, cfg.Archive.TradesDir, "e1_trades.json", `{
		"purchases": [{"timestamp": "2025-01-10T10:00:00Z", "itemClass": "AKM", "quantity": 1, "price": 5000}],
		"sales": []
	}`)
	if _, err := application.Runner().RunArchive(ctx, true); err != nil {
		t.Fatalf("archive run failed: %v", err)
	}

	deleted, err := application.Retention().PruneOldData(ctx, 90)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if deleted["trades"] != 1 {
		t.Errorf("got %d trades pruned, want 1", deleted["trades"])
	}

	// The pruned entity is findable in cold storage.
	matches, err := application.Retention().FindExports(ctx, "e1")
	if err != nil {
		t.Fatalf("find exports failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("got %d cold-storage matches, want 1: %v", len(matches), matches)
	}

	info, err := application.Queries().ArchiveInfo(ctx)
	if err != nil {
		t.Fatalf("archive info failed: %v", err)
	}
	if info.Trades.RecordCount != 0 {
		t.Errorf("pruned archive should hold 0 trades, got %d", info.Trades.RecordCount)
	}
	if info.RunCount != 1 {
		t.Errorf("pruning must not add ledger rows: got %d", info.RunCount)
	}
}

// TestConcurrentQueriesDuringArchive exercises WAL-mode isolation: the
// analytics pool answers while a run is inserting.
func TestConcurrentQueriesDuringArchive(t *testing.T) {
	application, cfg := newTestApp(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		writeSource(t, cfg.Archive.TradesDir, fmt.Sprintf("entity%02d_trades.json", i), `{
			"purchases": [{"timestamp": "2026-08-29T10:00:00Z", "itemClass": "AKM", "quantity": 1, "price": 100}],
			"sales": []
		}`)
	}

	done := make(chan error, 1)
	go func() {
		_, err := application.Runner().RunArchive(ctx, false)
		done <- err
	}()

	// Reads must not error while the writer works.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("archive run failed: %v", err)
			}
			info, err := application.Queries().ArchiveInfo(ctx)
			if err != nil {
				t.Fatalf("query after run failed: %v", err)
			}
			if info.Trades.RecordCount != 20 {
				t.Errorf("got %d trades, want 20", info.Trades.RecordCount)
			}
			return
		case <-deadline:
			t.Fatal("archive run did not finish")
		default:
			if _, err := application.Queries().ArchiveInfo(ctx); err != nil {
				t.Fatalf("concurrent query failed: %v", err)
			}
		}
	}
}
