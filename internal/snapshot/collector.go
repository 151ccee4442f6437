package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/sudoservertools/telemetry/pkg/types"
)

// onlinePlayersFile mirrors the producer's online-players export format.
type onlinePlayersFile struct {
	GeneratedAt string             `json:"generatedAt"`
	OnlineCount int                `json:"onlineCount"`
	Players     []onlinePlayerData `json:"players"`
}

type onlinePlayerData struct {
	PlayerID      string  `json:"playerId"`
	PlayerName    string  `json:"playerName"`
	BiID          string  `json:"biId"`
	IsOnline      bool    `json:"isOnline"`
	ConnectedAt   string  `json:"connectedAt"`
	LastUpdate    string  `json:"lastUpdate"`
	PosX          float64 `json:"posX"`
	PosY          float64 `json:"posY"`
	PosZ          float64 `json:"posZ"`
	Health        float64 `json:"health"`
	Blood         float64 `json:"blood"`
	IsAlive       bool    `json:"isAlive"`
	IsUnconscious bool    `json:"isUnconscious"`
	Water         float64 `json:"water"`
	Energy        float64 `json:"energy"`
}

// Collector polls the producer's online-players export file and records one
// position per online player into the store. The producer rewrites the file
// in place on its own cadence; a snapshot is only recorded when the file's
// generatedAt stamp advances, so the same export is never submitted twice.
type Collector struct {
	store      *Store
	sourceFile string

	lastGeneratedAt string
}

// NewCollector creates a collector reading from sourceFile.
func NewCollector(store *Store, sourceFile string) *Collector {
	return &Collector{
		store:      store,
		sourceFile: sourceFile,
	}
}

// CollectOnce reads the source file and records a batch for all currently
// online players. A missing source file is not an error: the producer may
// not have started yet. Returns the number of records written.
func (c *Collector) CollectOnce(ctx context.Context) (int, error) {
	data, err := os.ReadFile(c.sourceFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("collector: failed to read %s: %w", c.sourceFile, err)
	}

	var export onlinePlayersFile
	if err := json.Unmarshal(data, &export); err != nil {
		// The producer may be mid-write; skip this cycle and pick the
		// file up on the next poll.
		log.Printf("collector: skipping unparseable snapshot file %s: %v", c.sourceFile, err)
		return 0, nil
	}

	if export.GeneratedAt != "" && export.GeneratedAt == c.lastGeneratedAt {
		return 0, nil
	}

	var records []types.PositionRecord
	for _, p := range export.Players {
		if !p.IsOnline || p.PlayerID == "" {
			continue
		}
		records = append(records, types.PositionRecord{
			EntityID:      p.PlayerID,
			Name:          p.PlayerName,
			PosX:          p.PosX,
			PosY:          p.PosY,
			PosZ:          p.PosZ,
			Health:        p.Health,
			Blood:         p.Blood,
			IsAlive:       p.IsAlive,
			IsUnconscious: p.IsUnconscious,
			ObservedAt:    p.LastUpdate,
		})
	}

	if len(records) == 0 {
		c.lastGeneratedAt = export.GeneratedAt
		return 0, nil
	}

	n, err := c.store.RecordBatch(ctx, records)
	if err != nil {
		return 0, err
	}
	c.lastGeneratedAt = export.GeneratedAt

	return n, nil
}
