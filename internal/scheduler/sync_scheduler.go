// Package scheduler runs the library sync on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okayu/mangasync/internal/settingsstore"
	"github.com/okayu/mangasync/internal/syncer"
)

// SyncScheduler manages periodic library synchronization
type SyncScheduler struct {
	settingsStore *settingsstore.SettingsStore
	service       *syncer.Service

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewSyncScheduler creates a new scheduler instance
func NewSyncScheduler(settingsStore *settingsstore.SettingsStore, service *syncer.Service) *SyncScheduler {
	return &SyncScheduler{
		settingsStore: settingsStore,
		service:       service,
		cron:          cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if sync is enabled
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	config := s.settingsStore.GetSyncConfig()

	if !config.Enabled {
		log.Printf("sync scheduler: disabled")
		return nil
	}

	if config.Backend == "" {
		log.Printf("sync scheduler: backend not configured, skipping")
		return nil
	}

	// Validate schedule
	if err := settingsstore.ValidateCronSchedule(config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", config.Schedule, err)
	}

	// Add the sync job
	entryID, err := s.cron.AddFunc(config.Schedule, func() {
		s.runSync()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	// Create cancellable context
	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	// Start cron scheduler
	s.cron.Start()
	s.isRunning = true

	// Calculate next run
	nextRun, _ := settingsstore.GetNextRunTime(config.Schedule)
	log.Printf("sync scheduler: started with schedule '%s' (%s). Next run: %v",
		config.Schedule,
		settingsstore.GetCronDescription(config.Schedule),
		nextRun)

	// Monitor for context cancellation
	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	// Stop accepting new jobs and wait for running jobs to complete
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("sync scheduler: stopped")
}

// Reschedule updates the schedule (call after settings change)
func (s *SyncScheduler) Reschedule() error {
	s.mu.Lock()
	wasRunning := s.isRunning
	s.mu.Unlock()

	if wasRunning {
		s.Stop()
	}

	// Restart with new settings
	return s.Start(context.Background())
}

// RunNow triggers an immediate sync
func (s *SyncScheduler) RunNow() error {
	go s.runSync()
	return nil
}

// IsRunning returns whether the scheduler is active
func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsSyncing returns whether a sync is currently in progress
func (s *SyncScheduler) IsSyncing() bool {
	return s.service.State() != syncer.StateIdle
}

// GetNextRunTime returns when the next sync will occur
func (s *SyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	entries := s.cron.Entries()
	for _, entry := range entries {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runSync performs the actual sync cycle. Overlap protection lives in
// the service itself, so a tick that fires mid-cycle is just skipped.
func (s *SyncScheduler) runSync() {
	log.Printf("sync scheduler: starting library sync")
	startTime := time.Now()

	err := s.service.Sync(context.Background())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			log.Printf("sync scheduler: skipped (already syncing)")
			return
		}
		log.Printf("sync scheduler: sync failed: %v", err)
		return
	}

	log.Printf("sync scheduler: completed in %v", time.Since(startTime).Round(time.Millisecond))
}
