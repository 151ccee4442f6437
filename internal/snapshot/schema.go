// Package snapshot provides the durable position-snapshot store
// (positions.db) and the collector that feeds it from the producer's
// online-players export.
package snapshot

// Schema contains the SQL schema definitions for the position store.

// CreatePositionsTableSQL creates the positions table. Rows are append-only:
// inserted by batch ingestion, deleted only by age-based pruning, never
// updated.
const CreatePositionsTableSQL = `
CREATE TABLE IF NOT EXISTS positions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    pos_x REAL NOT NULL DEFAULT 0,
    pos_y REAL NOT NULL DEFAULT 0,
    pos_z REAL NOT NULL DEFAULT 0,
    health REAL NOT NULL DEFAULT -1,
    blood REAL NOT NULL DEFAULT -1,
    is_alive INTEGER NOT NULL DEFAULT 1,
    is_unconscious INTEGER NOT NULL DEFAULT 0,
    observed_at TEXT NOT NULL DEFAULT '',
    recorded_at INTEGER NOT NULL
)`

// CreatePositionsIndexesSQL creates the indexes backing per-entity lookups,
// age-based pruning, and the latest-per-entity query.
var CreatePositionsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_positions_entity ON positions(entity_id)`,

	`CREATE INDEX IF NOT EXISTS idx_positions_recorded ON positions(recorded_at)`,

	// Composite index for per-entity time ordering (QueryByEntity,
	// QueryRange, LatestPerEntity).
	`CREATE INDEX IF NOT EXISTS idx_positions_entity_recorded ON positions(entity_id, recorded_at)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreatePositionsTableSQL}
	stmts = append(stmts, CreatePositionsIndexesSQL...)
	return stmts
}
