// Package types provides the core record types for the SST telemetry store.
// These types are the public surface consumed by the outer administrative
// layer; the storage packages under internal/ accept and return them.
package types

// PositionRecord is one observation of one entity at one instant.
// Records are append-only: they are written once by batch ingestion and
// removed only by age-based pruning.
type PositionRecord struct {
	// EntityID identifies the observed entity (Steam64 id for players).
	// Never empty.
	EntityID string `json:"entityId"`

	// Name is the entity's display name at observation time.
	Name string `json:"name"`

	// World position.
	PosX float64 `json:"posX"`
	PosY float64 `json:"posY"`
	PosZ float64 `json:"posZ"`

	// Health and blood gauges as reported by the producer (0-100 scale).
	// Negative values mean "not reported".
	Health float64 `json:"health"`
	Blood  float64 `json:"blood"`

	IsAlive       bool `json:"isAlive"`
	IsUnconscious bool `json:"isUnconscious"`

	// ObservedAt is the producer's ISO-8601 timestamp for the observation.
	ObservedAt string `json:"observedAt"`

	// RecordedAt is the ingestion timestamp in Unix seconds, assigned by
	// SnapshotStore. Non-decreasing across inserts from one store instance;
	// used for ordering and pruning.
	RecordedAt int64 `json:"recordedAt"`
}

// EntitySummary describes one distinct entity observed by the snapshot store.
type EntitySummary struct {
	EntityID    string `json:"entityId"`
	Name        string `json:"name"`
	FirstSeen   int64  `json:"firstSeen"`
	LastSeen    int64  `json:"lastSeen"`
	RecordCount int64  `json:"recordCount"`
}
