package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sudoservertools/telemetry/pkg/types"
)

func TestParseTradeFile(t *testing.T) {
	body := []byte(`{
		"purchases": [
			{"timestamp": "2026-08-29T10:00:00Z", "traderName": "Dr. Ivan", "zoneName": "Krasnostav",
			 "itemClass": "AKM", "itemDisplay": "AKM", "quantity": 1, "price": 5000, "currency": "ruble"},
			{"timestamp": "2026-08-29T10:05:00Z", "traderName": "Dr. Ivan", "zoneName": "Krasnostav",
			 "itemClass": "Mag_AKM_30Rnd", "itemDisplay": "30rd AKM Mag", "quantity": 2, "price": 800, "currency": "ruble"}
		],
		"sales": [
			{"timestamp": "2026-08-29T11:00:00Z", "traderName": "Grower", "zoneName": "Svetlojarsk",
			 "itemClass": "Apple", "itemDisplay": "Apple", "quantity": 10, "price": 50, "currency": "ruble"}
		]
	}`)

	records, err := ParseTradeFile(body, "76561198000000001", "2026-08-30")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	purchases, sales := 0, 0
	for _, r := range records {
		if r.EntityID != "76561198000000001" {
			t.Errorf("entity id not tagged: %q", r.EntityID)
		}
		if r.ArchiveDate != "2026-08-30" {
			t.Errorf("archive date not tagged: %q", r.ArchiveDate)
		}
		switch r.Kind {
		case types.TradePurchase:
			purchases++
		case types.TradeSale:
			sales++
		}
	}
	if purchases != 2 || sales != 1 {
		t.Errorf("got %d purchases and %d sales, want 2 and 1", purchases, sales)
	}

	if records[2].ItemClass != "Apple" || records[2].Price != 50 {
		t.Errorf("unexpected sale record: %+v", records[2])
	}
}

func TestParseTradeFileClampsNegatives(t *testing.T) {
	body := []byte(`{"purchases": [{"timestamp": "t", "quantity": -5, "price": -100}]}`)

	records, err := ParseTradeFile(body, "e1", "2026-08-30")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if records[0].Quantity != 0 || records[0].Price != 0 {
		t.Errorf("negative values should clamp to zero: %+v", records[0])
	}
}

func TestParseTradeFileMalformed(t *testing.T) {
	if _, err := ParseTradeFile([]byte(`{truncated`), "e1", "2026-08-30"); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := ParseTradeFile([]byte(`[1,2,3]`), "e1", "2026-08-30"); err == nil {
		t.Error("expected error for wrong top-level shape")
	}
}

func TestParseLifeEventFile(t *testing.T) {
	body := []byte(`{
		"deaths": [
			{"timestamp": "2026-08-29T10:00:00Z", "causeOfDeath": "zombie", "healthAtDeath": 0}
		],
		"connections": [{"timestamp": "2026-08-29T09:00:00Z"}],
		"disconnections": [{"timestamp": "2026-08-29T12:00:00Z"}],
		"spawns": [{"timestamp": "2026-08-29T09:01:00Z", "position": [100, 5, 200]}],
		"respawns": [{"timestamp": "2026-08-29T10:02:00Z"}]
	}`)

	records, err := ParseLifeEventFile(body, "e1", "2026-08-30")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}

	kinds := make(map[types.LifeEventKind]int)
	for _, r := range records {
		if !r.Kind.Valid() {
			t.Errorf("invalid kind %q", r.Kind)
		}
		kinds[r.Kind]++
	}
	for _, k := range []types.LifeEventKind{types.LifeDeath, types.LifeConnect,
		types.LifeDisconnect, types.LifeSpawn, types.LifeRespawn} {
		if kinds[k] != 1 {
			t.Errorf("kind %s count = %d, want 1", k, kinds[k])
		}
	}

	// Kind-specific detail survives in the payload; the timestamp does not.
	for _, r := range records {
		if r.Kind != types.LifeDeath {
			continue
		}
		if r.EventTime != "2026-08-29T10:00:00Z" {
			t.Errorf("death timestamp = %q", r.EventTime)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
			t.Fatalf("payload is not valid JSON: %v", err)
		}
		if payload["causeOfDeath"] != "zombie" {
			t.Errorf("cause of death lost: %v", payload)
		}
		if _, has := payload["timestamp"]; has {
			t.Error("timestamp should be lifted out of the payload")
		}
	}
}

func TestParseLifeEventFileEmptyArrays(t *testing.T) {
	records, err := ParseLifeEventFile([]byte(`{}`), "e1", "2026-08-30")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestParseItemEventFile(t *testing.T) {
	body := []byte(`{
		"pickups": [
			{"timestamp": "2026-08-29T10:00:00Z", "itemClass": "AKM", "itemDisplay": "AKM",
			 "quantity": 1, "position": [4500.5, 12.0, 10200.0], "itemHealth": 87.5}
		],
		"drops": [],
		"consumed": [
			{"timestamp": "2026-08-29T10:01:00Z", "itemClass": "Apple", "quantity": 1}
		]
	}`)

	records, err := ParseItemEventFile(body, "e1", "2026-08-30")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	pickup := records[0]
	if pickup.Kind != types.ItemPickup || pickup.ItemClass != "AKM" || pickup.Quantity != 1 {
		t.Errorf("unexpected pickup: %+v", pickup)
	}
	if pickup.PosX == nil || *pickup.PosX != 4500.5 {
		t.Error("position not lifted into columns")
	}
	if !strings.Contains(pickup.Payload, "itemHealth") {
		t.Errorf("extra fields should survive in the payload: %q", pickup.Payload)
	}

	consume := records[1]
	if consume.Kind != types.ItemConsume {
		t.Errorf("unexpected kind: %s", consume.Kind)
	}
	if consume.PosX != nil {
		t.Error("missing position should stay NULL")
	}
}

// TestProperty_FlattenConservation validates that flattening a source file
// produces exactly one record per entry: nothing is dropped, nothing is
// invented, regardless of the array sizes.
func TestProperty_FlattenConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("trade records == purchases + sales", prop.ForAll(
		func(purchases, sales int) bool {
			body := buildTradeBody(purchases, sales)
			records, err := ParseTradeFile(body, "e1", "2026-08-30")
			if err != nil {
				return false
			}
			return len(records) == purchases+sales
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
	))

	properties.Property("life event records == sum of kind arrays", prop.ForAll(
		func(deaths, connections, spawns int) bool {
			body := fmt.Sprintf(`{"deaths": %s, "connections": %s, "spawns": %s}`,
				buildEntryArray(deaths), buildEntryArray(connections), buildEntryArray(spawns))
			records, err := ParseLifeEventFile([]byte(body), "e1", "2026-08-30")
			if err != nil {
				return false
			}
			return len(records) == deaths+connections+spawns
		},
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}

func buildTradeBody(purchases, sales int) []byte {
	return []byte(fmt.Sprintf(`{"purchases": %s, "sales": %s}`,
		buildEntryArray(purchases), buildEntryArray(sales)))
}

func buildEntryArray(n int) string {
	entries := make([]string, n)
	for i := range entries {
		entries[i] = fmt.Sprintf(`{"timestamp": "2026-08-29T10:%02d:00Z"}`, i%60)
	}
	return "[" + strings.Join(entries, ",") + "]"
}
