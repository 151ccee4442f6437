package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	telerrors "github.com/sudoservertools/telemetry/internal/errors"
	"github.com/sudoservertools/telemetry/pkg/types"
)

// Store is the durable, queryable log of entity positions. It owns
// positions.db exclusively: one writer connection serialized by a mutex,
// plus a read-only pool so queries are never blocked by an in-progress
// batch insert (WAL journaling).
type Store struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	insertStmt *sql.Stmt

	// lastRecordedAt enforces the non-decreasing ingestion timestamp
	// invariant within this store instance.
	lastRecordedAt int64

	now func() time.Time
}

// NewStore opens (or creates) the position store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	store := &Store{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	// Initialize schema (uses write connection; also creates the file so
	// the read-only pool can open it)
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: failed to initialize schema: %w", err)
	}

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	store.readDB = readDB

	insertStmt, err := db.Prepare(`
		INSERT INTO positions (
			entity_id, name, pos_x, pos_y, pos_z,
			health, blood, is_alive, is_unconscious,
			observed_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("snapshot: failed to prepare insert statement: %w", err)
	}
	store.insertStmt = insertStmt

	return store, nil
}

// initSchema creates the positions table and indexes.
func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RecordBatch inserts all records in a single transaction and returns the
// count written. The store assigns each record's ingestion timestamp,
// non-decreasing across calls on this instance. No dedup is performed: two
// records for the same entity and instant both persist. Write failures
// propagate to the caller; retry policy belongs to the scheduler.
func (s *Store) RecordBatch(ctx context.Context, records []types.PositionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i := range records {
		if records[i].EntityID == "" {
			return 0, telerrors.New(telerrors.ErrCategorySnapshot, telerrors.CodeEmptyEntityID,
				fmt.Sprintf("record %d has empty entity id", i))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordedAt := s.now().Unix()
	if recordedAt < s.lastRecordedAt {
		recordedAt = s.lastRecordedAt
	}
	s.lastRecordedAt = recordedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, telerrors.NewSnapshotError(telerrors.CodeWriteFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.insertStmt)
	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.EntityID, r.Name, r.PosX, r.PosY, r.PosZ,
			r.Health, r.Blood, boolToInt(r.IsAlive), boolToInt(r.IsUnconscious),
			r.ObservedAt, recordedAt,
		)
		if err != nil {
			return 0, telerrors.NewSnapshotError(telerrors.CodeWriteFailed,
				fmt.Sprintf("failed to insert position for entity %s", r.EntityID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, telerrors.NewSnapshotError(telerrors.CodeWriteFailed, "failed to commit batch", err)
	}

	return len(records), nil
}

const selectColumns = `entity_id, name, pos_x, pos_y, pos_z,
	health, blood, is_alive, is_unconscious, observed_at, recorded_at`

// QueryByEntity returns the limit most recent records for an entity,
// newest first.
func (s *Store) QueryByEntity(ctx context.Context, entityID string, limit int) ([]types.PositionRecord, error) {
	limit = clampLimit(limit)

	query := `SELECT ` + selectColumns + `
		FROM positions
		WHERE entity_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`

	rows, err := s.readDB.QueryContext(ctx, query, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to query by entity: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// QueryRange returns records for an entity within an inclusive ingestion
// timestamp window, oldest first.
func (s *Store) QueryRange(ctx context.Context, entityID string, startTs, endTs int64) ([]types.PositionRecord, error) {
	query := `SELECT ` + selectColumns + `
		FROM positions
		WHERE entity_id = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at ASC, id ASC`

	rows, err := s.readDB.QueryContext(ctx, query, entityID, startTs, endTs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to query range: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// LatestPerEntity returns, for every distinct entity ever recorded, only
// its single most recent record, newest overall first. Ties on recorded_at
// resolve to the latest insert.
func (s *Store) LatestPerEntity(ctx context.Context) ([]types.PositionRecord, error) {
	query := `SELECT ` + selectColumns + `
		FROM positions p
		WHERE p.id = (
			SELECT q.id FROM positions q
			WHERE q.entity_id = p.entity_id
			ORDER BY q.recorded_at DESC, q.id DESC
			LIMIT 1
		)
		ORDER BY p.recorded_at DESC, p.id DESC`

	rows, err := s.readDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to query latest per entity: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// DistinctEntities returns every entity id observed, with first-seen and
// last-seen ingestion timestamps and total record count, most recently seen
// first.
func (s *Store) DistinctEntities(ctx context.Context) ([]types.EntitySummary, error) {
	query := `SELECT
			entity_id,
			(SELECT name FROM positions q
				WHERE q.entity_id = p.entity_id
				ORDER BY q.recorded_at DESC, q.id DESC LIMIT 1) AS name,
			MIN(recorded_at) AS first_seen,
			MAX(recorded_at) AS last_seen,
			COUNT(*) AS record_count
		FROM positions p
		GROUP BY entity_id
		ORDER BY last_seen DESC`

	rows, err := s.readDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to query distinct entities: %w", err)
	}
	defer rows.Close()

	var summaries []types.EntitySummary
	for rows.Next() {
		var e types.EntitySummary
		if err := rows.Scan(&e.EntityID, &e.Name, &e.FirstSeen, &e.LastSeen, &e.RecordCount); err != nil {
			return nil, fmt.Errorf("snapshot: failed to scan entity summary: %w", err)
		}
		summaries = append(summaries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: error iterating entities: %w", err)
	}

	return summaries, nil
}

// DeleteOlderThan removes all records with ingestion timestamp strictly
// before cutoffTs and returns the count removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoffTs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE recorded_at < ?`, cutoffTs)
	if err != nil {
		return 0, telerrors.NewSnapshotError(telerrors.CodeWriteFailed, "failed to delete old positions", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("snapshot: failed to count deleted rows: %w", err)
	}
	return deleted, nil
}

// Close closes both database connections.
func (s *Store) Close() error {
	if s.insertStmt != nil {
		s.insertStmt.Close()
	}
	if s.readDB != nil {
		s.readDB.Close()
	}
	return s.db.Close()
}

func scanPositions(rows *sql.Rows) ([]types.PositionRecord, error) {
	var records []types.PositionRecord
	for rows.Next() {
		var r types.PositionRecord
		var alive, unconscious int
		err := rows.Scan(
			&r.EntityID, &r.Name, &r.PosX, &r.PosY, &r.PosZ,
			&r.Health, &r.Blood, &alive, &unconscious,
			&r.ObservedAt, &r.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("snapshot: failed to scan position: %w", err)
		}
		r.IsAlive = alive != 0
		r.IsUnconscious = unconscious != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: error iterating positions: %w", err)
	}
	return records, nil
}

// clampLimit applies the defensive limit policy: callers cannot request
// unbounded result sets.
func clampLimit(limit int) int {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
