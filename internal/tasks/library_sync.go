package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/okayu/mangasync/internal/syncer"
)

// LibrarySyncTask runs one full library sync cycle in the background.
// The sync service already refuses overlapping cycles, so the queue only
// ever needs a single attempt.
type LibrarySyncTask struct {
	// Reason records what triggered the sync, for the task log.
	Reason string `json:"reason,omitempty"`
}

// Config returns the queue configuration for library sync tasks.
func (t LibrarySyncTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "library_sync",
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// LibrarySyncProcessor creates a processor function for LibrarySyncTask.
func LibrarySyncProcessor(service *syncer.Service) backlite.QueueProcessor[LibrarySyncTask] {
	return func(ctx context.Context, task LibrarySyncTask) error {
		if service == nil {
			return fmt.Errorf("sync service not configured")
		}

		start := time.Now()
		if err := service.Sync(ctx); err != nil {
			return fmt.Errorf("library sync: %w", err)
		}

		log.Printf("[TASK] Library sync complete in %v (reason: %s)",
			time.Since(start).Round(time.Millisecond), task.Reason)
		return nil
	}
}

// NewLibrarySyncQueue creates a backlite queue for library sync tasks.
func NewLibrarySyncQueue(service *syncer.Service) backlite.Queue {
	return backlite.NewQueue(LibrarySyncProcessor(service))
}
