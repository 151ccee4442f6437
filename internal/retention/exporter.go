package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"

	"github.com/sudoservertools/telemetry/internal/archive"
	"github.com/sudoservertools/telemetry/internal/bloom"
	telerrors "github.com/sudoservertools/telemetry/internal/errors"
	"github.com/sudoservertools/telemetry/internal/storage"
	"github.com/sudoservertools/telemetry/pkg/types"
)

const exportPrefix = "exports"

// Exporter writes rows that are about to be pruned into the object store:
// one snappy-compressed JSONL object per family and batch, plus a bloom
// sidecar of the batch's entity ids so lookups can skip batches without
// downloading them.
type Exporter struct {
	objects storage.ObjectStorage
}

// NewExporter creates an Exporter writing to the given object store.
func NewExporter(objects storage.ObjectStorage) *Exporter {
	return &Exporter{objects: objects}
}

// ExportFamily exports one family's rows with event_time strictly before
// cutoff, keyed under the batch stamp. Returns the number of rows exported;
// zero rows means nothing is uploaded.
func (e *Exporter) ExportFamily(ctx context.Context, store *archive.Store, family archive.Family, cutoff, stamp string) (int64, error) {
	workDir, err := os.MkdirTemp("", "telemetry-export-")
	if err != nil {
		return 0, telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	dataPath := filepath.Join(workDir, string(family)+".jsonl.sz")
	count, filter, err := e.writeFamilyFile(ctx, store, family, cutoff, dataPath)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	sidecarPath := filepath.Join(workDir, string(family)+".bloom")
	if err := os.WriteFile(sidecarPath, filter.Serialize(), 0644); err != nil {
		return 0, telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to write bloom sidecar", err)
	}

	dataObject := path.Join(exportPrefix, stamp, string(family)+".jsonl.sz")
	if err := e.objects.Upload(ctx, dataPath, dataObject); err != nil {
		return 0, telerrors.NewRetentionError(telerrors.CodeUploadFailed,
			fmt.Sprintf("failed to upload %s export", family), err)
	}
	sidecarObject := path.Join(exportPrefix, stamp, string(family)+".bloom")
	if err := e.objects.Upload(ctx, sidecarPath, sidecarObject); err != nil {
		return 0, telerrors.NewRetentionError(telerrors.CodeUploadFailed,
			fmt.Sprintf("failed to upload %s bloom sidecar", family), err)
	}

	return count, nil
}

// writeFamilyFile streams the family's expiring rows into a snappy-framed
// JSONL file and builds the entity-id bloom filter alongside.
func (e *Exporter) writeFamilyFile(ctx context.Context, store *archive.Store, family archive.Family, cutoff, dataPath string) (int64, *bloom.Filter, error) {
	file, err := os.Create(dataPath)
	if err != nil {
		return 0, nil, telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to create export file", err)
	}
	defer file.Close()

	writer := snappy.NewBufferedWriter(file)
	encoder := json.NewEncoder(writer)
	filter := bloom.NewWithEstimates(10000, 0.01)

	var count int64
	emit := func(entityID string, record interface{}) error {
		if err := encoder.Encode(record); err != nil {
			return telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to encode export row", err)
		}
		filter.Add(entityID)
		count++
		return nil
	}

	switch family {
	case archive.FamilyTrades:
		err = e.scanTrades(ctx, store, cutoff, emit)
	case archive.FamilyLifeEvents:
		err = e.scanLifeEvents(ctx, store, cutoff, emit)
	case archive.FamilyItemEvents:
		err = e.scanItemEvents(ctx, store, cutoff, emit)
	default:
		err = fmt.Errorf("retention: unknown family %q", family)
	}
	if err != nil {
		return 0, nil, err
	}

	if err := writer.Close(); err != nil {
		return 0, nil, telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to flush export file", err)
	}
	if err := file.Close(); err != nil {
		return 0, nil, telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to close export file", err)
	}
	return count, filter, nil
}

func (e *Exporter) scanTrades(ctx context.Context, store *archive.Store, cutoff string, emit func(string, interface{}) error) error {
	rows, err := store.ReadDB().QueryContext(ctx, `
		SELECT entity_id, event_time, trade_kind, trader_name, zone_name,
		       item_class, item_display, quantity, price, currency, archive_date
		FROM archived_trades WHERE event_time < ?
		ORDER BY event_time, id`, cutoff)
	if err != nil {
		return telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to read expiring trades", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r types.TradeRecord
		var kind string
		err := rows.Scan(&r.EntityID, &r.EventTime, &kind, &r.TraderName, &r.ZoneName,
			&r.ItemClass, &r.ItemDisplay, &r.Quantity, &r.Price, &r.Currency, &r.ArchiveDate)
		if err != nil {
			return telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to scan trade row", err)
		}
		r.Kind = types.TradeKind(kind)
		if err := emit(r.EntityID, r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (e *Exporter) scanLifeEvents(ctx context.Context, store *archive.Store, cutoff string, emit func(string, interface{}) error) error {
	rows, err := store.ReadDB().QueryContext(ctx, `
		SELECT entity_id, event_time, event_kind, payload, archive_date
		FROM archived_life_events WHERE event_time < ?
		ORDER BY event_time, id`, cutoff)
	if err != nil {
		return telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to read expiring life events", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r types.LifeEventRecord
		var kind string
		if err := rows.Scan(&r.EntityID, &r.EventTime, &kind, &r.Payload, &r.ArchiveDate); err != nil {
			return telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to scan life event row", err)
		}
		r.Kind = types.LifeEventKind(kind)
		if err := emit(r.EntityID, r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (e *Exporter) scanItemEvents(ctx context.Context, store *archive.Store, cutoff string, emit func(string, interface{}) error) error {
	rows, err := store.ReadDB().QueryContext(ctx, `
		SELECT entity_id, event_time, event_kind, item_class, item_display,
		       quantity, pos_x, pos_y, pos_z, payload, archive_date
		FROM archived_item_events WHERE event_time < ?
		ORDER BY event_time, id`, cutoff)
	if err != nil {
		return telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to read expiring item events", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r types.ItemEventRecord
		var kind string
		err := rows.Scan(&r.EntityID, &r.EventTime, &kind, &r.ItemClass, &r.ItemDisplay,
			&r.Quantity, &r.PosX, &r.PosY, &r.PosZ, &r.Payload, &r.ArchiveDate)
		if err != nil {
			return telerrors.NewRetentionError(telerrors.CodeExportFailed, "failed to scan item event row", err)
		}
		r.Kind = types.ItemEventKind(kind)
		if err := emit(r.EntityID, r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// FindExports returns the data objects whose bloom sidecar reports the
// entity id as possibly present. A returned object may still be a false
// positive; the caller confirms by reading it.
func (e *Exporter) FindExports(ctx context.Context, entityID string) ([]string, error) {
	objects, err := e.objects.ListObjects(ctx, exportPrefix)
	if err != nil {
		return nil, telerrors.NewRetentionError(telerrors.CodeDownloadFailed, "failed to list exports", err)
	}

	workDir, err := os.MkdirTemp("", "telemetry-find-")
	if err != nil {
		return nil, telerrors.NewRetentionError(telerrors.CodeDownloadFailed, "failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	var matches []string
	for i, object := range objects {
		if !strings.HasSuffix(object, ".bloom") {
			continue
		}

		localPath := filepath.Join(workDir, fmt.Sprintf("sidecar-%d.bloom", i))
		if err := e.objects.Download(ctx, object, localPath); err != nil {
			return nil, telerrors.NewRetentionError(telerrors.CodeDownloadFailed,
				fmt.Sprintf("failed to download sidecar %s", object), err)
		}
		data, err := os.ReadFile(localPath)
		if err != nil {
			return nil, telerrors.NewRetentionError(telerrors.CodeDownloadFailed, "failed to read sidecar", err)
		}
		filter, err := bloom.Deserialize(data)
		if err != nil {
			return nil, telerrors.NewRetentionError(telerrors.CodeDownloadFailed,
				fmt.Sprintf("corrupt sidecar %s", object), err)
		}

		if filter.Contains(entityID) {
			matches = append(matches, strings.TrimSuffix(object, ".bloom")+".jsonl.sz")
		}
	}
	return matches, nil
}
