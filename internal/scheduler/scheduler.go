// Package scheduler drives the periodic jobs: the snapshot collector on a
// short poll interval, the archive pipeline on its daily interval, and
// retention pruning on its own interval. Scheduling policy lives here;
// the jobs themselves are plain run-once calls that tests invoke directly.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sudoservertools/telemetry/internal/config"
	"github.com/sudoservertools/telemetry/internal/pipeline"
	"github.com/sudoservertools/telemetry/internal/retention"
	"github.com/sudoservertools/telemetry/internal/snapshot"
)

// Scheduler owns the background job loops.
type Scheduler struct {
	cfg       *config.Config
	collector *snapshot.Collector
	runner    *pipeline.Runner
	retention *retention.Manager

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler over the three jobs.
func New(cfg *config.Config, collector *snapshot.Collector, runner *pipeline.Runner, manager *retention.Manager) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		collector: collector,
		runner:    runner,
		retention: manager,
	}
}

// Start launches the job loops. It runs until the context is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop gracefully stops the scheduler and waits for the loops to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	<-s.done
	s.running = false
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	collectTicker := time.NewTicker(s.cfg.Snapshot.PollInterval)
	defer collectTicker.Stop()
	archiveTicker := time.NewTicker(s.cfg.Archive.Interval)
	defer archiveTicker.Stop()
	pruneTicker := time.NewTicker(s.cfg.Retention.Interval)
	defer pruneTicker.Stop()

	// Collect immediately on start so a fresh daemon has data before the
	// first tick; archiving and pruning wait for their intervals.
	s.CollectOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-collectTicker.C:
			s.CollectOnce(ctx)
		case <-archiveTicker.C:
			s.ArchiveOnce(ctx)
		case <-pruneTicker.C:
			s.PruneOnce(ctx)
		}
	}
}

// CollectOnce runs one snapshot collection pass.
func (s *Scheduler) CollectOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.collector.CollectOnce(ctx); err != nil {
		log.Printf("scheduler: snapshot collection failed: %v", err)
	}
}

// ArchiveOnce runs one archive pass. Overlap with a manual trigger is
// resolved by the pipeline's lease; losing that race is not an error worth
// logging loudly.
func (s *Scheduler) ArchiveOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunArchive(ctx, s.cfg.Archive.ClearFiles); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			log.Printf("scheduler: skipping archive tick, a run is already in progress")
			return
		}
		log.Printf("scheduler: archive run failed: %v", err)
	}
}

// PruneOnce runs one retention pass over both stores.
func (s *Scheduler) PruneOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.retention.PruneOldData(ctx, s.cfg.Retention.DaysToKeep); err != nil {
		log.Printf("scheduler: archive pruning failed: %v", err)
	}
	if _, err := s.retention.PruneSnapshots(ctx, s.cfg.Snapshot.RetentionDays); err != nil {
		log.Printf("scheduler: snapshot pruning failed: %v", err)
	}
}
