// Package main implements the telemetry daemon: it collects position
// snapshots, runs the daily archive pipeline, and prunes both stores on
// schedule until stopped.
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

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		profileDir  string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for database files")
	flag.StringVar(&profileDir, "profile-dir", "", "Game server profile directory (the SST/ folder)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "telemetryd - SudoServerTools telemetry storage daemon\n\n")
		fmt.Fprintf(os.Stderr, "Usage: telemetryd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  telemetryd --profile-dir /srv/dayz/profile/SST\n")
		fmt.Fprintf(os.Stderr, "  telemetryd --config /etc/telemetry/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment variables use the SSTTEL_ prefix, e.g. SSTTEL_DATA_DIR.\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("telemetryd version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, profileDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	log.Printf("telemetryd %s started", version)
	log.Printf("  data dir:    %s", cfg.DataDir)
	log.Printf("  profile dir: %s", cfg.ProfileDir)
	log.Printf("  poll every %s, archive every %s, prune every %s",
		cfg.Snapshot.PollInterval, cfg.Archive.Interval, cfg.Retention.Interval)

	if err := application.Wait(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig merges config file, environment, and flags, in ascending
// priority.
func loadConfig(configFile, dataDir, profileDir string) (*config.Config, error) {
	// A .env beside the binary provides credentials in dev setups.
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if profileDir != "" {
		cfg.ProfileDir = profileDir
	}

	return cfg, nil
}
