// Package main implements the one-shot archive trigger: it runs a single
// archive pass against the configured source directories and prints the
// run result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/sudoservertools/telemetry/internal/app"
	"github.com/sudoservertools/telemetry/internal/config"
	"github.com/sudoservertools/telemetry/internal/pipeline"
)

func main() {
	var (
		configFile string
		dataDir    string
		profileDir string
		keepFiles  bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for database files")
	flag.StringVar(&profileDir, "profile-dir", "", "Game server profile directory (the SST/ folder)")
	flag.BoolVar(&keepFiles, "keep-files", false, "Keep source files after archiving them")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "telemetry-archive - run one archive pass and exit\n\n")
		fmt.Fprintf(os.Stderr, "Usage: telemetry-archive [options]\n\n")
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
	if profileDir != "" {
		cfg.ProfileDir = profileDir
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close(ctx)

	clearFiles := cfg.Archive.ClearFiles && !keepFiles
	result, err := application.Runner().RunArchive(ctx, clearFiles)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			log.Fatal("An archive run is already in progress")
		}
		log.Fatalf("Archive run failed: %v", err)
	}

	fmt.Printf("Run %s (%s): %s\n", result.RunID, result.RunDate, result.Status)
	fmt.Printf("  trades:      %d records from %d/%d files\n",
		result.Trades.RecordsArchived, result.Trades.FilesParsed, result.Trades.FilesListed)
	fmt.Printf("  life events: %d records from %d/%d files\n",
		result.LifeEvents.RecordsArchived, result.LifeEvents.FilesParsed, result.LifeEvents.FilesListed)
	fmt.Printf("  item events: %d records from %d/%d files\n",
		result.ItemEvents.RecordsArchived, result.ItemEvents.FilesParsed, result.ItemEvents.FilesListed)
	fmt.Printf("  files cleared: %d, duration: %dms\n", result.FilesCleared, result.DurationMS)
	if result.Error != "" {
		fmt.Printf("  error: %s\n", result.Error)
		os.Exit(1)
	}
}
