package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/okayu/mangasync/internal/snapshot"
	"github.com/okayu/mangasync/internal/storage"
)

// State is the position of the sync service in one cycle.
type State int32

const (
	StateIdle State = iota
	StateBuildingSnapshot
	StateMerging
	StateUploading
	StateApplying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuildingSnapshot:
		return "building_snapshot"
	case StateMerging:
		return "merging"
	case StateUploading:
		return "uploading"
	case StateApplying:
		return "applying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Settings is the slice of the settings store the service needs.
type Settings interface {
	Device() snapshot.Device
	SyncFavoritesOnly() bool
	GetSyncLastAt() *time.Time
	RecordSyncResult(status, message string, at time.Time) error
}

// Service drives one sync cycle: build a local snapshot, reconcile it
// with the remote copy, upload the result and apply it locally. At most
// one cycle runs at a time; a second caller gets ErrSyncInProgress.
type Service struct {
	builder  *snapshot.Builder
	applier  *Applier
	backend  storage.Backend
	settings Settings

	// networkTimeout bounds the download/upload/exchange phases only.
	// It must never cover the apply transaction.
	networkTimeout time.Duration

	running sync.Mutex

	stateMu sync.RWMutex
	state   State
}

// NewService wires a sync service. backend may additionally implement
// storage.Exchanger, in which case the server performs the merge.
func NewService(builder *snapshot.Builder, applier *Applier, backend storage.Backend, settings Settings, networkTimeout time.Duration) *Service {
	return &Service{
		builder:        builder,
		applier:        applier,
		backend:        backend,
		settings:       settings,
		networkTimeout: networkTimeout,
		state:          StateIdle,
	}
}

// State reports the current cycle state.
func (s *Service) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Service) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// Sync runs one full cycle. Any failure leaves local storage exactly as
// it was: network phases run before the apply transaction, and the
// apply transaction rolls back as a whole.
func (s *Service) Sync(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrSyncInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	err := s.run(ctx)
	if err != nil {
		s.setState(StateFailed)
		if rerr := s.settings.RecordSyncResult("failed", err.Error(), start); rerr != nil {
			log.Printf("sync: failed to record sync status: %v", rerr)
		}
		s.setState(StateIdle)
		return err
	}

	if rerr := s.settings.RecordSyncResult("success", "", start); rerr != nil {
		log.Printf("sync: failed to record sync status: %v", rerr)
	}
	s.setState(StateIdle)
	log.Printf("sync: completed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *Service) run(ctx context.Context) error {
	s.setState(StateBuildingSnapshot)
	local, err := s.builder.Build(s.settings.Device(), s.settings.SyncFavoritesOnly())
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	if exchanger, ok := s.backend.(storage.Exchanger); ok {
		return s.runExchange(ctx, exchanger, local)
	}
	return s.runBlob(ctx, local)
}

// runBlob is the download-merge-reupload cycle against a blob backend.
func (s *Service) runBlob(ctx context.Context, local *snapshot.Snapshot) error {
	remote, err := s.withNetworkTimeout(ctx, func(netCtx context.Context) (*snapshot.Snapshot, error) {
		return s.backend.Download(netCtx)
	})
	if err != nil {
		return fmt.Errorf("%w: download: %w", ErrNetwork, err)
	}

	merged := local
	if remote != nil {
		s.setState(StateMerging)
		merged = Merge(local, remote)
	}

	s.setState(StateUploading)
	_, err = s.withNetworkTimeout(ctx, func(netCtx context.Context) (*snapshot.Snapshot, error) {
		return nil, s.backend.Upload(netCtx, merged)
	})
	if err != nil {
		return fmt.Errorf("%w: upload: %w", ErrNetwork, err)
	}

	s.setState(StateApplying)
	return s.applier.Apply(ctx, merged)
}

// runExchange hands the local snapshot to a server-mediated backend and
// applies the merged result only when the server says it is needed.
func (s *Service) runExchange(ctx context.Context, exchanger storage.Exchanger, local *snapshot.Snapshot) error {
	// The server decides update_required by comparing its stored epoch
	// against the last sync this device completed. Sending the build
	// timestamp instead would always look current and suppress every
	// apply, so the exchange snapshot carries the recorded sync time,
	// or a zero epoch when this device has never synced.
	if at := s.settings.GetSyncLastAt(); at != nil {
		local.Sync = snapshot.NewStatus("completed", *at)
	} else {
		local.Sync = snapshot.Status{Message: "pending"}
	}

	s.setState(StateUploading)
	var updateRequired bool
	merged, err := s.withNetworkTimeout(ctx, func(netCtx context.Context) (*snapshot.Snapshot, error) {
		snap, required, err := exchanger.Exchange(netCtx, local)
		updateRequired = required
		return snap, err
	})
	if err != nil {
		return fmt.Errorf("%w: exchange: %w", ErrNetwork, err)
	}

	if !updateRequired {
		return nil
	}

	s.setState(StateApplying)
	return s.applier.Apply(ctx, merged)
}

// withNetworkTimeout scopes the configured timeout to a single network
// call so it cannot fire during the apply transaction.
func (s *Service) withNetworkTimeout(ctx context.Context, fn func(context.Context) (*snapshot.Snapshot, error)) (*snapshot.Snapshot, error) {
	if s.networkTimeout <= 0 {
		return fn(ctx)
	}
	netCtx, cancel := context.WithTimeout(ctx, s.networkTimeout)
	defer cancel()
	return fn(netCtx)
}
