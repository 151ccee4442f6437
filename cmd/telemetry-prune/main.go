// Package main implements the one-shot retention trigger: it prunes both
// stores with the configured (or overridden) horizons and prints the
// deleted counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/sudoservertools/telemetry/internal/app"
	"github.com/sudoservertools/telemetry/internal/config"
)

func main() {
	var (
		configFile    string
		dataDir       string
		daysToKeep    int
		snapshotDays  int
		skipSnapshots bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for database files")
	flag.IntVar(&daysToKeep, "days", 0, "Archive retention horizon in days (overrides config)")
	flag.IntVar(&snapshotDays, "snapshot-days", 0, "Position snapshot horizon in days (overrides config)")
	flag.BoolVar(&skipSnapshots, "skip-snapshots", false, "Prune only the archive, not position snapshots")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "telemetry-prune - prune expired records and reclaim space\n\n")
		fmt.Fprintf(os.Stderr, "Usage: telemetry-prune [options]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if daysToKeep > 0 {
		cfg.Retention.DaysToKeep = daysToKeep
	}
	if snapshotDays > 0 {
		cfg.Snapshot.RetentionDays = snapshotDays
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close(ctx)

	deleted, err := application.Retention().PruneOldData(ctx, cfg.Retention.DaysToKeep)
	if err != nil {
		log.Fatalf("Archive pruning failed: %v", err)
	}
	fmt.Printf("Pruned archive records older than %d days:\n", cfg.Retention.DaysToKeep)
	for _, family := range []string{"trades", "life_events", "item_events"} {
		fmt.Printf("  %-12s %d\n", family, deleted[family])
	}

	if !skipSnapshots {
		n, err := application.Retention().PruneSnapshots(ctx, cfg.Snapshot.RetentionDays)
		if err != nil {
			log.Fatalf("Snapshot pruning failed: %v", err)
		}
		fmt.Printf("Pruned %d position records older than %d days\n", n, cfg.Snapshot.RetentionDays)
	}
}
