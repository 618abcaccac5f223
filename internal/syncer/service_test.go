package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/database/categories"
	"github.com/okayu/mangasync/internal/database/library"
	"github.com/okayu/mangasync/internal/entities"
	"github.com/okayu/mangasync/internal/snapshot"
	"github.com/okayu/mangasync/internal/storage"
)

// fakeBackend is an in-memory blob backend with error injection.
type fakeBackend struct {
	stored      *snapshot.Snapshot
	downloadErr error
	uploadErr   error
	blockUntil  chan struct{}

	downloads int
	uploads   int
}

func (b *fakeBackend) Download(ctx context.Context) (*snapshot.Snapshot, error) {
	if b.blockUntil != nil {
		<-b.blockUntil
	}
	b.downloads++
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}
	return b.stored, nil
}

func (b *fakeBackend) Upload(ctx context.Context, snap *snapshot.Snapshot) error {
	b.uploads++
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.stored = snap
	return nil
}

// fakeExchanger is a server-mediated backend over fakeBackend.
type fakeExchanger struct {
	fakeBackend
	merged         *snapshot.Snapshot
	updateRequired bool

	received *snapshot.Snapshot
}

func (e *fakeExchanger) Exchange(ctx context.Context, local *snapshot.Snapshot) (*snapshot.Snapshot, bool, error) {
	e.received = local
	return e.merged, e.updateRequired, nil
}

// fakeSettings records sync outcomes in memory.
type fakeSettings struct {
	lastStatus  string
	lastMessage string
	lastSyncAt  *time.Time
}

func (s *fakeSettings) Device() snapshot.Device    { return snapshot.Device{ID: 1, Name: "test"} }
func (s *fakeSettings) SyncFavoritesOnly() bool    { return true }
func (s *fakeSettings) GetSyncLastAt() *time.Time  { return s.lastSyncAt }
func (s *fakeSettings) RecordSyncResult(status, message string, at time.Time) error {
	s.lastStatus = status
	s.lastMessage = message
	return nil
}

func newTestService(t *testing.T, db *database.Database, backend storage.Backend, settings *fakeSettings) *Service {
	t.Helper()
	builder := snapshot.NewBuilder(library.NewRepository(db.DB), categories.NewRepository(db.DB))
	return NewService(builder, NewApplier(db), backend, settings, time.Second)
}

func TestSyncBlobCycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.DB.Create(&entities.Manga{
		Source: 1, URL: "/local", Title: "Local", Favorite: true,
	}).Error)

	backend := &fakeBackend{
		stored: &snapshot.Snapshot{
			Sync:   snapshot.NewStatus("completed", time.Now().Add(-time.Hour)),
			Device: snapshot.Device{ID: 2, Name: "other"},
			Backup: &snapshot.Library{Manga: []snapshot.Manga{
				{Source: 1, URL: "/remote", Title: "Remote", Favorite: true},
			}},
		},
	}
	settings := &fakeSettings{}

	service := newTestService(t, db, backend, settings)
	require.NoError(t, service.Sync(context.Background()))

	assert.Equal(t, 1, backend.downloads)
	assert.Equal(t, 1, backend.uploads)
	assert.Equal(t, "success", settings.lastStatus)
	assert.Equal(t, StateIdle, service.State())

	// The uploaded snapshot carries both items.
	require.NotNil(t, backend.stored)
	assert.Len(t, backend.stored.Backup.Manga, 2)

	// The remote item was applied locally.
	var count int64
	db.DB.Model(&entities.Manga{}).Where("url = ?", "/remote").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSyncFirstEverUploadsLocal(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.DB.Create(&entities.Manga{
		Source: 1, URL: "/local", Title: "Local", Favorite: true,
	}).Error)

	backend := &fakeBackend{}
	service := newTestService(t, db, backend, &fakeSettings{})
	require.NoError(t, service.Sync(context.Background()))

	require.NotNil(t, backend.stored, "no remote copy means the local snapshot seeds it")
	assert.Len(t, backend.stored.Backup.Manga, 1)
}

func TestSyncDownloadFailureLeavesLocalUntouched(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.DB.Create(&entities.Manga{
		Source: 1, URL: "/local", Title: "Local", Favorite: true,
	}).Error)

	backend := &fakeBackend{downloadErr: errors.New("connection refused")}
	settings := &fakeSettings{}
	service := newTestService(t, db, backend, settings)

	err := service.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "failed", settings.lastStatus)
	assert.Equal(t, 0, backend.uploads)
	assert.Equal(t, StateIdle, service.State())

	var count int64
	db.DB.Model(&entities.Manga{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSyncRefusesOverlap(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	release := make(chan struct{})
	backend := &fakeBackend{blockUntil: release}
	service := newTestService(t, db, backend, &fakeSettings{})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- service.Sync(context.Background())
	}()

	// Wait for the first cycle to hold the lock inside Download.
	require.Eventually(t, func() bool {
		return service.State() != StateIdle
	}, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, service.Sync(context.Background()), ErrSyncInProgress)

	close(release)
	require.NoError(t, <-firstDone)

	// The lock is free again afterwards.
	backend.blockUntil = nil
	assert.NoError(t, service.Sync(context.Background()))
}

func TestSyncExchangeSkipsApplyWhenNotRequired(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	backend := &fakeExchanger{
		merged: &snapshot.Snapshot{Backup: &snapshot.Library{Manga: []snapshot.Manga{
			{Source: 1, URL: "/merged", Title: "Merged", Favorite: true},
		}}},
		updateRequired: false,
	}
	service := newTestService(t, db, backend, &fakeSettings{})
	require.NoError(t, service.Sync(context.Background()))

	var count int64
	db.DB.Model(&entities.Manga{}).Count(&count)
	assert.Equal(t, int64(0), count, "nothing applied when the server says local is current")
}

func TestSyncExchangeAppliesWhenRequired(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	backend := &fakeExchanger{
		merged: &snapshot.Snapshot{Backup: &snapshot.Library{Manga: []snapshot.Manga{
			{Source: 1, URL: "/merged", Title: "Merged", Favorite: true},
		}}},
		updateRequired: true,
	}
	service := newTestService(t, db, backend, &fakeSettings{})
	require.NoError(t, service.Sync(context.Background()))

	var count int64
	db.DB.Model(&entities.Manga{}).Where("url = ?", "/merged").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSyncExchangeCarriesLastSyncedEpoch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	backend := &fakeExchanger{merged: &snapshot.Snapshot{}}
	settings := &fakeSettings{}
	service := newTestService(t, db, backend, settings)

	t.Run("never synced sends a zero epoch", func(t *testing.T) {
		require.NoError(t, service.Sync(context.Background()))
		require.NotNil(t, backend.received)
		assert.Zero(t, backend.received.Sync.LastSyncedEpoch,
			"a fresh device must look behind any stored snapshot")
	})

	t.Run("epoch tracks the last successful sync", func(t *testing.T) {
		at := time.Now().Add(-time.Hour)
		settings.lastSyncAt = &at

		require.NoError(t, service.Sync(context.Background()))
		require.NotNil(t, backend.received)
		assert.Equal(t, at.UnixMilli(), backend.received.Sync.LastSyncedEpoch,
			"the build time must not overwrite the sync epoch")
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "building_snapshot", StateBuildingSnapshot.String())
	assert.Equal(t, "merging", StateMerging.String())
	assert.Equal(t, "uploading", StateUploading.String())
	assert.Equal(t, "applying", StateApplying.String())
	assert.Equal(t, "failed", StateFailed.String())
}
