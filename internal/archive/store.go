package archive

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

// Store owns archive.db: the three archived-record families and the run
// ledger. One write connection serialized by a mutex plus a read-only pool;
// WAL journaling keeps analytics reads unblocked during a batch insert.
type Store struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	now func() time.Time
}

// NewStore opens (or creates) the archive store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("archive: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	store := &Store{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	store.readDB = readDB

	return store, nil
}

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

// ReadDB exposes the read-only connection pool for the query layer.
// Callers must not issue writes through it (the pool is opened mode=ro, so
// SQLite enforces this).
func (s *Store) ReadDB() *sql.DB {
	return s.readDB
}

// DBPath returns the path of the underlying database file.
func (s *Store) DBPath() string {
	return s.dbPath
}

// InsertTrades inserts a batch of trade records inside one transaction.
// A failure rolls back the entire batch: the family is either fully
// committed or untouched.
func (s *Store) InsertTrades(ctx context.Context, records []types.TradeRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i, r := range records {
		if !r.Kind.Valid() {
			return 0, telerrors.New(telerrors.ErrCategoryArchive, telerrors.CodeInsertFailed,
				fmt.Sprintf("trade record %d has invalid kind %q", i, r.Kind))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to begin trade transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archived_trades (
			entity_id, event_time, trade_kind, trader_name, zone_name,
			item_class, item_display, quantity, price, currency, archive_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to prepare trade insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.EntityID, r.EventTime, string(r.Kind), r.TraderName, r.ZoneName,
			r.ItemClass, r.ItemDisplay, r.Quantity, r.Price, r.Currency, r.ArchiveDate,
		)
		if err != nil {
			return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed,
				fmt.Sprintf("failed to insert trade for entity %s", r.EntityID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to commit trade batch", err)
	}

	return int64(len(records)), nil
}

// InsertLifeEvents inserts a batch of lifecycle event records inside one
// transaction.
func (s *Store) InsertLifeEvents(ctx context.Context, records []types.LifeEventRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i, r := range records {
		if !r.Kind.Valid() {
			return 0, telerrors.New(telerrors.ErrCategoryArchive, telerrors.CodeInsertFailed,
				fmt.Sprintf("life event record %d has invalid kind %q", i, r.Kind))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to begin life event transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archived_life_events (
			entity_id, event_time, event_kind, payload, archive_date
		) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to prepare life event insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.EntityID, r.EventTime, string(r.Kind), r.Payload, r.ArchiveDate,
		)
		if err != nil {
			return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed,
				fmt.Sprintf("failed to insert life event for entity %s", r.EntityID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to commit life event batch", err)
	}

	return int64(len(records)), nil
}

// InsertItemEvents inserts a batch of inventory event records inside one
// transaction.
func (s *Store) InsertItemEvents(ctx context.Context, records []types.ItemEventRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i, r := range records {
		if !r.Kind.Valid() {
			return 0, telerrors.New(telerrors.ErrCategoryArchive, telerrors.CodeInsertFailed,
				fmt.Sprintf("item event record %d has invalid kind %q", i, r.Kind))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to begin item event transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archived_item_events (
			entity_id, event_time, event_kind, item_class, item_display,
			quantity, pos_x, pos_y, pos_z, payload, archive_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to prepare item event insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.EntityID, r.EventTime, string(r.Kind), r.ItemClass, r.ItemDisplay,
			r.Quantity, r.PosX, r.PosY, r.PosZ, r.Payload, r.ArchiveDate,
		)
		if err != nil {
			return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed,
				fmt.Sprintf("failed to insert item event for entity %s", r.EntityID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed, "failed to commit item event batch", err)
	}

	return int64(len(records)), nil
}

// RecordRun appends one row to the run ledger and returns its id. Ledger
// rows are immutable once written; there is no corresponding update or
// delete operation.
func (s *Store) RecordRun(ctx context.Context, run *types.ArchiveRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt == 0 {
		run.CreatedAt = s.now().Unix()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO archive_runs (
			run_id, run_date, trades_archived, life_events_archived,
			item_events_archived, files_cleared, duration_ms, status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.RunDate, run.TradesArchived, run.LifeEventsArchived,
		run.ItemEventsArchived, run.FilesCleared, run.DurationMS,
		string(run.Status), run.Error, run.CreatedAt,
	)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeLedgerFailed, "failed to append run ledger row", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("archive: failed to read ledger row id: %w", err)
	}
	run.ID = id
	return id, nil
}

// DeleteFamilyOlderThan removes a family's rows whose event timestamp is
// strictly before cutoff (ISO-8601; lexicographic comparison matches
// chronological order for the producer's fixed-width format). Returns the
// count removed.
func (s *Store) DeleteFamilyOlderThan(ctx context.Context, family Family, cutoff string) (int64, error) {
	table := family.tableName()
	if table == "" {
		return 0, fmt.Errorf("archive: unknown family %q", family)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE event_time < ?`, table), cutoff)
	if err != nil {
		return 0, telerrors.NewArchiveError(telerrors.CodeInsertFailed,
			fmt.Sprintf("failed to delete old %s rows", family), err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive: failed to count deleted rows: %w", err)
	}
	return deleted, nil
}

// Vacuum reclaims free space after deletions. Must run outside any
// transaction; the write lock keeps it from racing an insert.
func (s *Store) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return telerrors.NewRetentionError(telerrors.CodeVacuumFailed, "vacuum failed", err)
	}
	return nil
}

// Close closes both database connections.
func (s *Store) Close() error {
	if s.readDB != nil {
		s.readDB.Close()
	}
	return s.db.Close()
}
