// Package retention implements age-based pruning of both stores: deleting
// expired rows, reclaiming file space, and optionally exporting the rows to
// cold storage first.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sudoservertools/telemetry/internal/archive"
	telerrors "github.com/sudoservertools/telemetry/internal/errors"
	"github.com/sudoservertools/telemetry/internal/snapshot"
)

// Manager prunes expired data. The exporter is optional: when nil, rows
// are deleted without a cold-storage copy.
type Manager struct {
	archive   *archive.Store
	snapshots *snapshot.Store
	exporter  *Exporter

	now func() time.Time
}

// NewManager creates a retention manager over both stores. exporter may be
// nil to disable cold-storage exports.
func NewManager(archiveStore *archive.Store, snapshotStore *snapshot.Store, exporter *Exporter) *Manager {
	return &Manager{
		archive:   archiveStore,
		snapshots: snapshotStore,
		exporter:  exporter,
		now:       time.Now,
	}
}

// PruneOldData deletes archived rows whose event timestamp is older than
// daysToKeep days, then reclaims the freed space. When an exporter is
// configured, each family's expiring rows are uploaded to cold storage
// first, and an export failure aborts the prune before anything is deleted.
// Returns deleted counts per family.
func (m *Manager) PruneOldData(ctx context.Context, daysToKeep int) (map[string]int64, error) {
	if daysToKeep < 1 {
		return nil, telerrors.New(telerrors.ErrCategoryRetention, telerrors.CodePruneFailed,
			fmt.Sprintf("daysToKeep must be at least 1, got %d", daysToKeep))
	}

	now := m.now().UTC()
	cutoff := now.AddDate(0, 0, -daysToKeep).Format("2006-01-02T15:04:05Z")

	if m.exporter != nil {
		stamp := now.Format("20060102T150405Z")
		for _, family := range archive.Families {
			exported, err := m.exporter.ExportFamily(ctx, m.archive, family, cutoff, stamp)
			if err != nil {
				return nil, fmt.Errorf("retention: cold export failed, nothing pruned: %w", err)
			}
			if exported > 0 {
				log.Printf("retention: exported %d expiring %s rows to cold storage", exported, family)
			}
		}
	}

	deleted := make(map[string]int64, len(archive.Families))
	for _, family := range archive.Families {
		n, err := m.archive.DeleteFamilyOlderThan(ctx, family, cutoff)
		if err != nil {
			return nil, telerrors.NewRetentionError(telerrors.CodePruneFailed,
				fmt.Sprintf("failed to prune %s", family), err)
		}
		deleted[string(family)] = n
	}

	if err := m.archive.Vacuum(ctx); err != nil {
		return nil, err
	}

	log.Printf("retention: pruned archive older than %s: trades=%d life_events=%d item_events=%d",
		cutoff, deleted["trades"], deleted["life_events"], deleted["item_events"])
	return deleted, nil
}

// PruneSnapshots deletes position records recorded more than retentionDays
// days ago. Positions are high-frequency and short-lived, so this horizon
// is typically days where the archive's is months.
func (m *Manager) PruneSnapshots(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, telerrors.New(telerrors.ErrCategoryRetention, telerrors.CodePruneFailed,
			fmt.Sprintf("retentionDays must be at least 1, got %d", retentionDays))
	}

	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays).Unix()
	deleted, err := m.snapshots.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		log.Printf("retention: pruned %d position records older than %d days", deleted, retentionDays)
	}
	return deleted, nil
}

// FindExports returns cold-storage data objects that may contain records
// for the entity, per their bloom sidecars. Returns an empty list when no
// exporter is configured.
func (m *Manager) FindExports(ctx context.Context, entityID string) ([]string, error) {
	if m.exporter == nil {
		return nil, nil
	}
	return m.exporter.FindExports(ctx, entityID)
}
