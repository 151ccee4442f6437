package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	telerrors "github.com/sudoservertools/telemetry/internal/errors"
	"github.com/sudoservertools/telemetry/pkg/types"
)

// ArchiveWriter is the slice of the archive store the pipeline writes
// through: one transactional batch insert per family plus the run ledger.
type ArchiveWriter interface {
	InsertTrades(ctx context.Context, records []types.TradeRecord) (int64, error)
	InsertLifeEvents(ctx context.Context, records []types.LifeEventRecord) (int64, error)
	InsertItemEvents(ctx context.Context, records []types.ItemEventRecord) (int64, error)
	RecordRun(ctx context.Context, run *types.ArchiveRun) (int64, error)
}

// ErrRunInProgress is returned by RunArchive when another run holds the
// lease. No work is started and no ledger row is written for the rejected
// invocation.
var ErrRunInProgress = telerrors.New(telerrors.ErrCategoryPipeline,
	telerrors.CodeRunInProgress, "archive run already in progress")

// SourceDirs names the per-family source directories the producer writes
// its JSON logs to.
type SourceDirs struct {
	Trades     string
	LifeEvents string
	ItemEvents string
}

// Runner executes archive runs against the archive store. A run migrates
// every parseable per-entity JSON log into the store, one transaction per
// family, and appends exactly one ledger row.
//
// Runs are serialized by an in-process lease: the scheduler and a manual
// trigger can race, but only one run proceeds (single-process deployment,
// so an in-memory lease suffices).
type Runner struct {
	store ArchiveWriter
	dirs  SourceDirs

	lease sync.Mutex

	now func() time.Time
}

// NewRunner creates a Runner reading from dirs and writing to store.
func NewRunner(store ArchiveWriter, dirs SourceDirs) *Runner {
	return &Runner{
		store: store,
		dirs:  dirs,
		now:   time.Now,
	}
}

// familyOutcome is the working state for one family within a run.
type familyOutcome struct {
	result types.FamilyResult

	// clearable holds the source paths eligible for deletion: listed,
	// parsed, and covered by the family's committed transaction.
	clearable []string

	err error
}

// RunArchive performs one archive run. It never returns an error for
// per-file or per-family failures: those are isolated, logged, and folded
// into the result, whose Status distinguishes completed from error. The
// only error returns are lease rejection (ErrRunInProgress) and a ledger
// write failure.
func (r *Runner) RunArchive(ctx context.Context, clearFiles bool) (*types.RunResult, error) {
	if !r.lease.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.lease.Unlock()

	start := r.now()
	result := &types.RunResult{
		RunID:   uuid.New().String(),
		RunDate: start.UTC().Format("2006-01-02"),
		Status:  types.RunCompleted,
	}

	log.Printf("pipeline: starting archive run %s (date=%s, clearFiles=%v)",
		result.RunID, result.RunDate, clearFiles)

	// Each family is listed, parsed, and committed independently. A
	// failed family never blocks the others.
	trades := r.processTrades(ctx, result.RunDate)
	lifeEvents := r.processLifeEvents(ctx, result.RunDate)
	itemEvents := r.processItemEvents(ctx, result.RunDate)

	// Source files become deletable only after every family has had its
	// chance to commit, and only those covered by a committed transaction.
	if clearFiles {
		for _, outcome := range []*familyOutcome{trades, lifeEvents, itemEvents} {
			outcome.result.FilesCleared = clearSourceFiles(outcome.clearable)
		}
	}

	result.Trades = trades.result
	result.LifeEvents = lifeEvents.result
	result.ItemEvents = itemEvents.result
	result.FilesCleared = int64(trades.result.FilesCleared +
		lifeEvents.result.FilesCleared + itemEvents.result.FilesCleared)
	result.DurationMS = time.Since(start).Milliseconds()

	for _, outcome := range []*familyOutcome{trades, lifeEvents, itemEvents} {
		if outcome.err != nil {
			result.Status = types.RunError
			result.Error = outcome.err.Error()
		}
	}

	run := &types.ArchiveRun{
		RunID:              result.RunID,
		RunDate:            result.RunDate,
		TradesArchived:     result.Trades.RecordsArchived,
		LifeEventsArchived: result.LifeEvents.RecordsArchived,
		ItemEventsArchived: result.ItemEvents.RecordsArchived,
		FilesCleared:       result.FilesCleared,
		DurationMS:         result.DurationMS,
		Status:             result.Status,
		Error:              result.Error,
	}
	if _, err := r.store.RecordRun(ctx, run); err != nil {
		return result, fmt.Errorf("pipeline: run finished but ledger write failed: %w", err)
	}

	log.Printf("pipeline: archive run %s finished: status=%s trades=%d life=%d items=%d cleared=%d (%dms)",
		result.RunID, result.Status, run.TradesArchived, run.LifeEventsArchived,
		run.ItemEventsArchived, run.FilesCleared, run.DurationMS)

	return result, nil
}

func (r *Runner) processTrades(ctx context.Context, archiveDate string) *familyOutcome {
	outcome := &familyOutcome{}

	files := listSourceFiles(r.dirs.Trades, TradeFileSuffix)
	outcome.result.FilesListed = len(files)

	var records []types.TradeRecord
	var parsed []string
	for _, path := range files {
		fileRecords, err := readAndParse(path, TradeFileSuffix, archiveDate, ParseTradeFile)
		if err != nil {
			log.Printf("pipeline: skipping trade file %s: %v", path, err)
			continue
		}
		records = append(records, fileRecords...)
		parsed = append(parsed, path)
	}
	outcome.result.FilesParsed = len(parsed)

	n, err := r.store.InsertTrades(ctx, records)
	if err != nil {
		log.Printf("pipeline: trade batch failed, source files kept: %v", err)
		outcome.err = telerrors.NewPipelineError(telerrors.CodeFamilyFailed, "trade family failed", err)
		return outcome
	}

	outcome.result.RecordsArchived = n
	outcome.clearable = parsed
	return outcome
}

func (r *Runner) processLifeEvents(ctx context.Context, archiveDate string) *familyOutcome {
	outcome := &familyOutcome{}

	files := listSourceFiles(r.dirs.LifeEvents, LifeEventFileSuffix)
	outcome.result.FilesListed = len(files)

	var records []types.LifeEventRecord
	var parsed []string
	for _, path := range files {
		fileRecords, err := readAndParse(path, LifeEventFileSuffix, archiveDate, ParseLifeEventFile)
		if err != nil {
			log.Printf("pipeline: skipping life event file %s: %v", path, err)
			continue
		}
		records = append(records, fileRecords...)
		parsed = append(parsed, path)
	}
	outcome.result.FilesParsed = len(parsed)

	n, err := r.store.InsertLifeEvents(ctx, records)
	if err != nil {
		log.Printf("pipeline: life event batch failed, source files kept: %v", err)
		outcome.err = telerrors.NewPipelineError(telerrors.CodeFamilyFailed, "life event family failed", err)
		return outcome
	}

	outcome.result.RecordsArchived = n
	outcome.clearable = parsed
	return outcome
}

func (r *Runner) processItemEvents(ctx context.Context, archiveDate string) *familyOutcome {
	outcome := &familyOutcome{}

	files := listSourceFiles(r.dirs.ItemEvents, ItemEventFileSuffix)
	outcome.result.FilesListed = len(files)

	var records []types.ItemEventRecord
	var parsed []string
	for _, path := range files {
		fileRecords, err := readAndParse(path, ItemEventFileSuffix, archiveDate, ParseItemEventFile)
		if err != nil {
			log.Printf("pipeline: skipping item event file %s: %v", path, err)
			continue
		}
		records = append(records, fileRecords...)
		parsed = append(parsed, path)
	}
	outcome.result.FilesParsed = len(parsed)

	n, err := r.store.InsertItemEvents(ctx, records)
	if err != nil {
		log.Printf("pipeline: item event batch failed, source files kept: %v", err)
		outcome.err = telerrors.NewPipelineError(telerrors.CodeFamilyFailed, "item event family failed", err)
		return outcome
	}

	outcome.result.RecordsArchived = n
	outcome.clearable = parsed
	return outcome
}

// listSourceFiles returns the family's source files sorted by name. A
// missing directory means the producer has nothing to archive yet; that is
// zero files, not an error.
func listSourceFiles(dir, suffix string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("pipeline: failed to list %s: %v", dir, err)
		}
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files
}

// readAndParse reads one source file and hands it to the family's parser.
// The entity id is the filename with the family suffix stripped.
func readAndParse[T any](path, suffix, archiveDate string, parse func([]byte, string, string) ([]T, error)) ([]T, error) {
	entityID := strings.TrimSuffix(filepath.Base(path), suffix)
	if entityID == "" {
		return nil, fmt.Errorf("no entity id in filename")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	return parse(data, entityID, archiveDate)
}

// clearSourceFiles deletes the given source files and returns how many were
// actually removed. Deletion failures are logged and skipped: the file will
// be re-archived by the next run, which is safe but duplicates rows, so the
// operator should investigate.
func clearSourceFiles(paths []string) int {
	cleared := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			log.Printf("pipeline: failed to clear source file %s: %v", path, err)
			continue
		}
		cleared++
	}
	return cleared
}
