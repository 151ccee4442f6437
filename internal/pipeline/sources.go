// Package pipeline implements the archival ETL: listing the producer's
// per-entity JSON logs, normalizing them into archive records, and running
// the transactional migration into the archive store.
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/sudoservertools/telemetry/pkg/types"
)

// Source filename suffixes, fixed by the producer: the part before the
// suffix is the entity id.
const (
	TradeFileSuffix     = "_trades.json"
	LifeEventFileSuffix = "_life.json"
	ItemEventFileSuffix = "_events.json"
)

// tradeEntry is one purchase or sale as written by the producer.
type tradeEntry struct {
	Timestamp   string `json:"timestamp"`
	TraderName  string `json:"traderName"`
	ZoneName    string `json:"zoneName"`
	ItemClass   string `json:"itemClass"`
	ItemDisplay string `json:"itemDisplay"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
}

// tradeFile is the per-entity trade log: typed arrays per trade side.
type tradeFile struct {
	Purchases []tradeEntry `json:"purchases"`
	Sales     []tradeEntry `json:"sales"`
}

// lifeEventFile is the per-entity lifecycle log: one loosely-typed array
// per event kind. Entries carry at least a timestamp; everything else is
// kind-specific and preserved as opaque payload.
type lifeEventFile struct {
	Deaths         []json.RawMessage `json:"deaths"`
	Connections    []json.RawMessage `json:"connections"`
	Disconnections []json.RawMessage `json:"disconnections"`
	Spawns         []json.RawMessage `json:"spawns"`
	Respawns       []json.RawMessage `json:"respawns"`
}

// itemEventFile is the per-entity inventory log: one loosely-typed array
// per event kind.
type itemEventFile struct {
	Pickups   []json.RawMessage `json:"pickups"`
	Drops     []json.RawMessage `json:"drops"`
	Crafted   []json.RawMessage `json:"crafted"`
	Consumed  []json.RawMessage `json:"consumed"`
	Destroyed []json.RawMessage `json:"destroyed"`
}

// ParseTradeFile parses one trade log body and flattens it into normalized
// trade records tagged with the entity id and the run's archive date.
func ParseTradeFile(data []byte, entityID, archiveDate string) ([]types.TradeRecord, error) {
	var file tradeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid trade file: %w", err)
	}

	records := make([]types.TradeRecord, 0, len(file.Purchases)+len(file.Sales))
	for _, e := range file.Purchases {
		records = append(records, normalizeTrade(e, types.TradePurchase, entityID, archiveDate))
	}
	for _, e := range file.Sales {
		records = append(records, normalizeTrade(e, types.TradeSale, entityID, archiveDate))
	}
	return records, nil
}

func normalizeTrade(e tradeEntry, kind types.TradeKind, entityID, archiveDate string) types.TradeRecord {
	// Quantity and price are non-negative by contract; producers have been
	// seen emitting junk after a crash, so clamp rather than reject.
	if e.Quantity < 0 {
		e.Quantity = 0
	}
	if e.Price < 0 {
		e.Price = 0
	}
	return types.TradeRecord{
		EntityID:    entityID,
		EventTime:   e.Timestamp,
		Kind:        kind,
		TraderName:  e.TraderName,
		ZoneName:    e.ZoneName,
		ItemClass:   e.ItemClass,
		ItemDisplay: e.ItemDisplay,
		Quantity:    e.Quantity,
		Price:       e.Price,
		Currency:    e.Currency,
		ArchiveDate: archiveDate,
	}
}

// ParseLifeEventFile parses one lifecycle log body and flattens its typed
// arrays into normalized records. Kind-specific fields beyond the timestamp
// are preserved as a serialized opaque payload.
func ParseLifeEventFile(data []byte, entityID, archiveDate string) ([]types.LifeEventRecord, error) {
	var file lifeEventFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid life event file: %w", err)
	}

	var records []types.LifeEventRecord
	appendKind := func(entries []json.RawMessage, kind types.LifeEventKind) {
		for _, raw := range entries {
			timestamp, payload := splitEntry(raw)
			records = append(records, types.LifeEventRecord{
				EntityID:    entityID,
				EventTime:   timestamp,
				Kind:        kind,
				Payload:     payload,
				ArchiveDate: archiveDate,
			})
		}
	}

	appendKind(file.Deaths, types.LifeDeath)
	appendKind(file.Connections, types.LifeConnect)
	appendKind(file.Disconnections, types.LifeDisconnect)
	appendKind(file.Spawns, types.LifeSpawn)
	appendKind(file.Respawns, types.LifeRespawn)
	return records, nil
}

// ParseItemEventFile parses one inventory log body and flattens its typed
// arrays into normalized records. Item identity, quantity, and position are
// lifted into columns; the remainder becomes opaque payload.
func ParseItemEventFile(data []byte, entityID, archiveDate string) ([]types.ItemEventRecord, error) {
	var file itemEventFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid item event file: %w", err)
	}

	var records []types.ItemEventRecord
	appendKind := func(entries []json.RawMessage, kind types.ItemEventKind) {
		for _, raw := range entries {
			records = append(records, normalizeItemEvent(raw, kind, entityID, archiveDate))
		}
	}

	appendKind(file.Pickups, types.ItemPickup)
	appendKind(file.Drops, types.ItemDrop)
	appendKind(file.Crafted, types.ItemCraft)
	appendKind(file.Consumed, types.ItemConsume)
	appendKind(file.Destroyed, types.ItemDestroy)
	return records, nil
}

func normalizeItemEvent(raw json.RawMessage, kind types.ItemEventKind, entityID, archiveDate string) types.ItemEventRecord {
	record := types.ItemEventRecord{
		EntityID:    entityID,
		Kind:        kind,
		ArchiveDate: archiveDate,
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		// A non-object array element still counts as one event of the
		// kind; it just carries no detail.
		return record
	}

	record.EventTime = takeString(fields, "timestamp")
	record.ItemClass = takeString(fields, "itemClass")
	record.ItemDisplay = takeString(fields, "itemDisplay")

	if qty, ok := fields["quantity"].(float64); ok {
		delete(fields, "quantity")
		if qty > 0 {
			record.Quantity = int64(qty)
		}
	}

	if pos, ok := fields["position"].([]interface{}); ok && len(pos) == 3 {
		x, okX := pos[0].(float64)
		y, okY := pos[1].(float64)
		z, okZ := pos[2].(float64)
		if okX && okY && okZ {
			delete(fields, "position")
			record.PosX, record.PosY, record.PosZ = &x, &y, &z
		}
	}

	record.Payload = marshalPayload(fields)
	return record
}

// splitEntry extracts the timestamp from a loosely-typed entry and
// serializes the remaining fields as the opaque payload.
func splitEntry(raw json.RawMessage) (timestamp, payload string) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", ""
	}

	timestamp = takeString(fields, "timestamp")
	return timestamp, marshalPayload(fields)
}

func takeString(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		delete(fields, key)
		return v
	}
	return ""
}

func marshalPayload(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(data)
}
