// Package archive provides the historical event store (archive.db): three
// archived-record families plus the append-only run ledger.
package archive

// Family names one of the three archived-record categories. Used as table
// selector and as map key in pruning results.
type Family string

const (
	FamilyTrades     Family = "trades"
	FamilyLifeEvents Family = "life_events"
	FamilyItemEvents Family = "item_events"
)

// tableName maps a family to its table.
func (f Family) tableName() string {
	switch f {
	case FamilyTrades:
		return "archived_trades"
	case FamilyLifeEvents:
		return "archived_life_events"
	case FamilyItemEvents:
		return "archived_item_events"
	}
	return ""
}

// Families lists all three record families in processing order.
var Families = []Family{FamilyTrades, FamilyLifeEvents, FamilyItemEvents}

// CreateTradesTableSQL creates the archived trade records table.
const CreateTradesTableSQL = `
CREATE TABLE IF NOT EXISTS archived_trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT NOT NULL,
    event_time TEXT NOT NULL,
    trade_kind TEXT NOT NULL CHECK (trade_kind IN ('purchase', 'sale')),
    trader_name TEXT NOT NULL DEFAULT '',
    zone_name TEXT NOT NULL DEFAULT '',
    item_class TEXT NOT NULL DEFAULT '',
    item_display TEXT NOT NULL DEFAULT '',
    quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    price INTEGER NOT NULL DEFAULT 0 CHECK (price >= 0),
    currency TEXT NOT NULL DEFAULT '',
    archive_date TEXT NOT NULL
)`

// CreateLifeEventsTableSQL creates the archived lifecycle events table.
const CreateLifeEventsTableSQL = `
CREATE TABLE IF NOT EXISTS archived_life_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT NOT NULL,
    event_time TEXT NOT NULL,
    event_kind TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '',
    archive_date TEXT NOT NULL
)`

// CreateItemEventsTableSQL creates the archived inventory events table.
const CreateItemEventsTableSQL = `
CREATE TABLE IF NOT EXISTS archived_item_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT NOT NULL,
    event_time TEXT NOT NULL,
    event_kind TEXT NOT NULL,
    item_class TEXT NOT NULL DEFAULT '',
    item_display TEXT NOT NULL DEFAULT '',
    quantity INTEGER NOT NULL DEFAULT 0,
    pos_x REAL,
    pos_y REAL,
    pos_z REAL,
    payload TEXT NOT NULL DEFAULT '',
    archive_date TEXT NOT NULL
)`

// CreateRunsTableSQL creates the archive run ledger. The ledger is
// append-only: exactly one row per pipeline invocation, never updated.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS archive_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    run_date TEXT NOT NULL,
    trades_archived INTEGER NOT NULL DEFAULT 0,
    life_events_archived INTEGER NOT NULL DEFAULT 0,
    item_events_archived INTEGER NOT NULL DEFAULT 0,
    files_cleared INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK (status IN ('completed', 'error')),
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
)`

// CreateIndexesSQL creates the secondary indexes. Every family is indexed
// on entity id and archive date; trades additionally on item class for the
// top-item ranking, and on event time for time-bucketed stats and pruning.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_trades_entity ON archived_trades(entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_archive_date ON archived_trades(archive_date)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_item ON archived_trades(item_class)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_event_time ON archived_trades(event_time)`,

	`CREATE INDEX IF NOT EXISTS idx_life_events_entity ON archived_life_events(entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_life_events_archive_date ON archived_life_events(archive_date)`,
	`CREATE INDEX IF NOT EXISTS idx_life_events_event_time ON archived_life_events(event_time)`,

	`CREATE INDEX IF NOT EXISTS idx_item_events_entity ON archived_item_events(entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_item_events_archive_date ON archived_item_events(archive_date)`,
	`CREATE INDEX IF NOT EXISTS idx_item_events_event_time ON archived_item_events(event_time)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created ON archive_runs(created_at)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateTradesTableSQL,
		CreateLifeEventsTableSQL,
		CreateItemEventsTableSQL,
		CreateRunsTableSQL,
	}
	stmts = append(stmts, CreateIndexesSQL...)
	return stmts
}
