// Package query is the read-only analytics layer over the archive store.
// Every operation runs against the read-only connection pool; nothing here
// mutates state.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/sudoservertools/telemetry/internal/archive"
	telerrors "github.com/sudoservertools/telemetry/internal/errors"
	"github.com/sudoservertools/telemetry/pkg/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Layer answers aggregate and lookup questions about archived data.
type Layer struct {
	db     *sql.DB
	dbPath string
}

// NewLayer creates a query layer over the archive store's read pool.
func NewLayer(store *archive.Store) *Layer {
	return &Layer{
		db:     store.ReadDB(),
		dbPath: store.DBPath(),
	}
}

// FamilyInfo summarizes one archived-record family.
type FamilyInfo struct {
	RecordCount     int64  `json:"recordCount"`
	OldestEventTime string `json:"oldestEventTime"`
	NewestEventTime string `json:"newestEventTime"`
	// DataBytes is the summed length of the family's stored text columns:
	// an approximation of the family's share of the database, independent
	// of page-level accounting.
	DataBytes int64 `json:"dataBytes"`
}

// ArchiveInfo is the full-store summary.
type ArchiveInfo struct {
	Trades            FamilyInfo `json:"trades"`
	LifeEvents        FamilyInfo `json:"lifeEvents"`
	ItemEvents        FamilyInfo `json:"itemEvents"`
	RunCount          int64      `json:"runCount"`
	DatabaseSizeBytes int64      `json:"databaseSizeBytes"`
}

// familyInfoSQL holds the per-family summary query; the size expression
// differs per table so each family carries its own statement.
var familyInfoSQL = map[archive.Family]string{
	archive.FamilyTrades: `
		SELECT COUNT(*), COALESCE(MIN(event_time), ''), COALESCE(MAX(event_time), ''),
		       COALESCE(SUM(LENGTH(entity_id) + LENGTH(event_time) + LENGTH(trade_kind) +
		           LENGTH(trader_name) + LENGTH(zone_name) + LENGTH(item_class) +
		           LENGTH(item_display) + LENGTH(currency) + LENGTH(archive_date)), 0)
		FROM archived_trades`,
	archive.FamilyLifeEvents: `
		SELECT COUNT(*), COALESCE(MIN(event_time), ''), COALESCE(MAX(event_time), ''),
		       COALESCE(SUM(LENGTH(entity_id) + LENGTH(event_time) + LENGTH(event_kind) +
		           LENGTH(payload) + LENGTH(archive_date)), 0)
		FROM archived_life_events`,
	archive.FamilyItemEvents: `
		SELECT COUNT(*), COALESCE(MIN(event_time), ''), COALESCE(MAX(event_time), ''),
		       COALESCE(SUM(LENGTH(entity_id) + LENGTH(event_time) + LENGTH(event_kind) +
		           LENGTH(item_class) + LENGTH(item_display) + LENGTH(payload) +
		           LENGTH(archive_date)), 0)
		FROM archived_item_events`,
}

// ArchiveInfo returns per-family counts, time bounds, and sizes, plus the
// total run count and the database file size.
func (l *Layer) ArchiveInfo(ctx context.Context) (*ArchiveInfo, error) {
	info := &ArchiveInfo{}

	targets := map[archive.Family]*FamilyInfo{
		archive.FamilyTrades:     &info.Trades,
		archive.FamilyLifeEvents: &info.LifeEvents,
		archive.FamilyItemEvents: &info.ItemEvents,
	}
	for _, family := range archive.Families {
		target := targets[family]
		err := l.db.QueryRowContext(ctx, familyInfoSQL[family]).Scan(
			&target.RecordCount, &target.OldestEventTime,
			&target.NewestEventTime, &target.DataBytes,
		)
		if err != nil {
			return nil, telerrors.NewQueryError(telerrors.CodeScanFailed,
				fmt.Sprintf("failed to summarize %s", family), err)
		}
	}

	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_runs`).Scan(&info.RunCount)
	if err != nil {
		return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to count runs", err)
	}

	if stat, err := os.Stat(l.dbPath); err == nil {
		info.DatabaseSizeBytes = stat.Size()
	}

	return info, nil
}

// ArchiveRuns returns the most recent run-ledger rows, newest first.
func (l *Layer) ArchiveRuns(ctx context.Context, limit int) ([]types.ArchiveRun, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, run_date, trades_archived, life_events_archived,
		       item_events_archived, files_cleared, duration_ms, status, error, created_at
		FROM archive_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to query runs", err)
	}
	defer rows.Close()

	var runs []types.ArchiveRun
	for rows.Next() {
		var r types.ArchiveRun
		var status string
		err := rows.Scan(&r.ID, &r.RunID, &r.RunDate, &r.TradesArchived,
			&r.LifeEventsArchived, &r.ItemEventsArchived, &r.FilesCleared,
			&r.DurationMS, &status, &r.Error, &r.CreatedAt)
		if err != nil {
			return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to scan run row", err)
		}
		r.Status = types.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PageOptions controls pagination and time filtering for history reads.
// StartDate and EndDate are "YYYY-MM-DD", both inclusive; empty means
// unbounded on that side.
type PageOptions struct {
	Limit     int
	Offset    int
	StartDate string
	EndDate   string
}

// PlayerTrades returns one entity's archived trades, newest first.
func (l *Layer) PlayerTrades(ctx context.Context, entityID string, opts PageOptions) ([]types.TradeRecord, error) {
	clause, args, err := timeFilter(opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT entity_id, event_time, trade_kind, trader_name, zone_name,
		       item_class, item_display, quantity, price, currency, archive_date
		FROM archived_trades
		WHERE entity_id = ?` + clause + `
		ORDER BY event_time DESC, id DESC
		LIMIT ? OFFSET ?`
	queryArgs := append([]interface{}{entityID}, args...)
	queryArgs = append(queryArgs, clampLimit(opts.Limit), clampOffset(opts.Offset))

	rows, err := l.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var records []types.TradeRecord
	for rows.Next() {
		var r types.TradeRecord
		var kind string
		err := rows.Scan(&r.EntityID, &r.EventTime, &kind, &r.TraderName, &r.ZoneName,
			&r.ItemClass, &r.ItemDisplay, &r.Quantity, &r.Price, &r.Currency, &r.ArchiveDate)
		if err != nil {
			return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to scan trade row", err)
		}
		r.Kind = types.TradeKind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// StatOptions controls time-bucketed aggregations.
type StatOptions struct {
	StartDate string
	EndDate   string
	GroupBy   string // day, week, or month; day when empty
}

// TradeStatRow is one (bucket, kind) aggregate.
type TradeStatRow struct {
	Bucket        string          `json:"bucket"`
	Kind          types.TradeKind `json:"kind"`
	TradeCount    int64           `json:"tradeCount"`
	TotalQuantity int64           `json:"totalQuantity"`
	TotalValue    int64           `json:"totalValue"`
}

// TradeStats aggregates trades per time bucket and trade kind: trade count,
// summed quantity, and summed value.
func (l *Layer) TradeStats(ctx context.Context, opts StatOptions) ([]TradeStatRow, error) {
	bucket, err := bucketExpr(opts.GroupBy)
	if err != nil {
		return nil, err
	}
	clause, args, err := timeFilter(opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket, trade_kind,
		       COUNT(*), SUM(quantity), SUM(quantity * price)
		FROM archived_trades
		WHERE 1 = 1%s
		GROUP BY bucket, trade_kind
		ORDER BY bucket, trade_kind`, bucket, clause)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to query trade stats", err)
	}
	defer rows.Close()

	var stats []TradeStatRow
	for rows.Next() {
		var row TradeStatRow
		var kind string
		if err := rows.Scan(&row.Bucket, &kind, &row.TradeCount, &row.TotalQuantity, &row.TotalValue); err != nil {
			return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to scan trade stat row", err)
		}
		row.Kind = types.TradeKind(kind)
		stats = append(stats, row)
	}
	return stats, rows.Err()
}

// TopItemsOptions controls the top-item ranking.
type TopItemsOptions struct {
	Limit     int
	TradeType string // purchase or sale; both when empty
	StartDate string
	EndDate   string
}

// TopItemRow is one (item, kind) aggregate, ranked by total value.
type TopItemRow struct {
	ItemClass     string          `json:"itemClass"`
	ItemDisplay   string          `json:"itemDisplay"`
	Kind          types.TradeKind `json:"kind"`
	TradeCount    int64           `json:"tradeCount"`
	TotalQuantity int64           `json:"totalQuantity"`
	TotalValue    int64           `json:"totalValue"`
	AvgPrice      float64         `json:"avgPrice"`
}

// TopItems ranks traded items by summed value (quantity x price), grouped
// by item and trade kind.
func (l *Layer) TopItems(ctx context.Context, opts TopItemsOptions) ([]TopItemRow, error) {
	clause, args, err := timeFilter(opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, err
	}
	if opts.TradeType != "" {
		if !types.TradeKind(opts.TradeType).Valid() {
			return nil, telerrors.New(telerrors.ErrCategoryQuery, telerrors.CodeInvalidRange,
				fmt.Sprintf("unknown trade type %q", opts.TradeType))
		}
		clause += ` AND trade_kind = ?`
		args = append(args, opts.TradeType)
	}

	query := `
		SELECT item_class, item_display, trade_kind,
		       COUNT(*), SUM(quantity), SUM(quantity * price), AVG(price)
		FROM archived_trades
		WHERE 1 = 1` + clause + `
		GROUP BY item_class, trade_kind
		ORDER BY SUM(quantity * price) DESC
		LIMIT ?`
	args = append(args, clampLimit(opts.Limit))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to query top items", err)
	}
	defer rows.Close()

	var items []TopItemRow
	for rows.Next() {
		var row TopItemRow
		var kind string
		err := rows.Scan(&row.ItemClass, &row.ItemDisplay, &kind,
			&row.TradeCount, &row.TotalQuantity, &row.TotalValue, &row.AvgPrice)
		if err != nil {
			return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to scan top item row", err)
		}
		row.Kind = types.TradeKind(kind)
		items = append(items, row)
	}
	return items, rows.Err()
}

// LifeEventOptions controls the per-entity lifecycle history read.
type LifeEventOptions struct {
	Limit     int
	Offset    int
	EventType string // filter by kind; all kinds when empty
}

// PlayerLifeEvents returns one entity's archived lifecycle events, newest
// first, optionally filtered by kind.
func (l *Layer) PlayerLifeEvents(ctx context.Context, entityID string, opts LifeEventOptions) ([]types.LifeEventRecord, error) {
	clause := ""
	args := []interface{}{entityID}
	if opts.EventType != "" {
		if !types.LifeEventKind(opts.EventType).Valid() {
			return nil, telerrors.New(telerrors.ErrCategoryQuery, telerrors.CodeInvalidRange,
				fmt.Sprintf("unknown life event type %q", opts.EventType))
		}
		clause = ` AND event_kind = ?`
		args = append(args, opts.EventType)
	}
	args = append(args, clampLimit(opts.Limit), clampOffset(opts.Offset))

	rows, err := l.db.QueryContext(ctx, `
		SELECT entity_id, event_time, event_kind, payload, archive_date
		FROM archived_life_events
		WHERE entity_id = ?`+clause+`
		ORDER BY event_time DESC, id DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to query life events", err)
	}
	defer rows.Close()

	var records []types.LifeEventRecord
	for rows.Next() {
		var r types.LifeEventRecord
		var kind string
		if err := rows.Scan(&r.EntityID, &r.EventTime, &kind, &r.Payload, &r.ArchiveDate); err != nil {
			return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to scan life event row", err)
		}
		r.Kind = types.LifeEventKind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeathStatRow is one time bucket's death count.
type DeathStatRow struct {
	Bucket string `json:"bucket"`
	Deaths int64  `json:"deaths"`
}

// DeathStats counts archived deaths per time bucket.
func (l *Layer) DeathStats(ctx context.Context, opts StatOptions) ([]DeathStatRow, error) {
	bucket, err := bucketExpr(opts.GroupBy)
	if err != nil {
		return nil, err
	}
	clause, args, err := timeFilter(opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket, COUNT(*)
		FROM archived_life_events
		WHERE event_kind = 'death'%s
		GROUP BY bucket
		ORDER BY bucket`, bucket, clause)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to query death stats", err)
	}
	defer rows.Close()

	var stats []DeathStatRow
	for rows.Next() {
		var row DeathStatRow
		if err := rows.Scan(&row.Bucket, &row.Deaths); err != nil {
			return nil, telerrors.NewQueryError(telerrors.CodeScanFailed, "failed to scan death stat row", err)
		}
		stats = append(stats, row)
	}
	return stats, rows.Err()
}

// bucketExpr maps a groupBy keyword to the SQLite bucket expression over
// event_time. Unknown keywords are rejected rather than defaulted so a
// caller's typo surfaces instead of silently grouping by day.
func bucketExpr(groupBy string) (string, error) {
	switch groupBy {
	case "", "day":
		return `strftime('%Y-%m-%d', event_time)`, nil
	case "week":
		return `strftime('%Y-W%W', event_time)`, nil
	case "month":
		return `strftime('%Y-%m', event_time)`, nil
	}
	return "", telerrors.New(telerrors.ErrCategoryQuery, telerrors.CodeInvalidRange,
		fmt.Sprintf("unknown groupBy %q (want day, week, or month)", groupBy))
}

// timeFilter builds the event_time range clause for inclusive YYYY-MM-DD
// bounds. Event times are fixed-width ISO-8601 text, so lexicographic
// comparison matches chronological order; the end bound becomes a strict
// comparison against the following day.
func timeFilter(startDate, endDate string) (string, []interface{}, error) {
	clause := ""
	var args []interface{}

	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			return "", nil, telerrors.New(telerrors.ErrCategoryQuery, telerrors.CodeInvalidRange,
				fmt.Sprintf("invalid startDate %q", startDate))
		}
		clause += ` AND event_time >= ?`
		args = append(args, startDate)
	}
	if endDate != "" {
		end, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return "", nil, telerrors.New(telerrors.ErrCategoryQuery, telerrors.CodeInvalidRange,
				fmt.Sprintf("invalid endDate %q", endDate))
		}
		clause += ` AND event_time < ?`
		args = append(args, end.AddDate(0, 0, 1).Format("2006-01-02"))
	}
	return clause, args, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
