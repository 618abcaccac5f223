package snapshot

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/database/categories"
	"github.com/okayu/mangasync/internal/database/library"
	"github.com/okayu/mangasync/internal/entities"
)

// setupTestDB creates a fresh test database
func setupTestDB(t *testing.T) (*database.Database, func()) {
	t.Helper()
	dbPath := "./test_" + t.Name() + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return db, cleanup
}

func newBuilder(db *database.Database) *Builder {
	return NewBuilder(library.NewRepository(db.DB), categories.NewRepository(db.DB))
}

func TestBuildEmptyLibrary(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	snap, err := newBuilder(db).Build(Device{ID: 7, Name: "tablet"}, true)
	require.NoError(t, err)

	assert.Equal(t, "completed", snap.Sync.Message)
	assert.NotZero(t, snap.Sync.LastSyncedEpoch)
	assert.Equal(t, Device{ID: 7, Name: "tablet"}, snap.Device)
	require.NotNil(t, snap.Backup)
	assert.Empty(t, snap.Backup.Manga)
}

func TestBuildCarriesFullItem(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	item := entities.Manga{
		Source: 3, URL: "/manga/x", Title: "X",
		Genre: "Action, Drama", Favorite: true,
	}
	require.NoError(t, db.DB.Create(&item).Error)

	chapter := entities.Chapter{MangaID: item.ID, URL: "/c/1", Name: "One", SourceOrder: 0}
	require.NoError(t, db.DB.Create(&chapter).Error)
	require.NoError(t, db.DB.Create(&entities.Track{
		MangaID: item.ID, SyncID: 1, RemoteID: 11, LastChapterRead: 4,
	}).Error)
	require.NoError(t, db.DB.Create(&entities.History{
		ChapterID: chapter.ID, LastRead: 1000, ReadDuration: 60,
	}).Error)

	cat := entities.Category{Name: "Reading", SortOrder: 1}
	require.NoError(t, db.DB.Create(&cat).Error)
	require.NoError(t, db.DB.Create(&entities.MangaCategory{
		MangaID: item.ID, CategoryID: cat.ID,
	}).Error)

	snap, err := newBuilder(db).Build(Device{ID: 1}, true)
	require.NoError(t, err)
	require.Len(t, snap.Backup.Manga, 1)

	m := snap.Backup.Manga[0]
	assert.Equal(t, []string{"Action", "Drama"}, m.Genre)
	assert.NotNil(t, m.LastModifiedAt, "insert trigger stamps the row")
	require.Len(t, m.Chapters, 1)
	assert.Equal(t, "/c/1", m.Chapters[0].URL)
	assert.Equal(t, []int64{1}, m.Categories, "membership travels as sort orders")
	require.Len(t, m.Tracking, 1)
	assert.Equal(t, float64(4), m.Tracking[0].LastChapterRead)
	require.Len(t, m.History, 1)
	assert.Equal(t, "/c/1", m.History[0].URL)

	require.Len(t, snap.Backup.Categories, 1)
	assert.Equal(t, Category{Name: "Reading", Order: 1}, snap.Backup.Categories[0])
}

func TestBuildFavoritesOnly(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.DB.Create(&entities.Manga{Source: 1, URL: "/fav", Favorite: true}).Error)
	require.NoError(t, db.DB.Create(&entities.Manga{Source: 1, URL: "/other", Favorite: false}).Error)

	snap, err := newBuilder(db).Build(Device{}, true)
	require.NoError(t, err)
	require.Len(t, snap.Backup.Manga, 1)
	assert.Equal(t, "/fav", snap.Backup.Manga[0].URL)

	full, err := newBuilder(db).Build(Device{}, false)
	require.NoError(t, err)
	assert.Len(t, full.Backup.Manga, 2)
}

func TestSnapshotEncodeDecodeRoundTrip(t *testing.T) {
	snap := &Snapshot{
		Sync:   Status{Message: "completed", LastSynced: "2026-01-02T03:04:05Z", LastSyncedEpoch: 1767323045000},
		Device: Device{ID: 3, Name: "phone"},
		Backup: &Library{
			Manga: []Manga{{Source: 1, URL: "/a", Title: "A", Favorite: true}},
		},
	}

	data, err := snap.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	decoded, err := Decode([]byte(`{"sync":{"status":"completed"},"device":{"id":1},"future_field":true}`))
	require.NoError(t, err)
	assert.Equal(t, "completed", decoded.Sync.Message)
}

func TestGenreRoundTrip(t *testing.T) {
	assert.Nil(t, SplitGenre(""))
	assert.Equal(t, []string{"Action", "Drama"}, SplitGenre("Action, Drama"))
	assert.Equal(t, "Action, Drama", JoinGenre([]string{"Action", "Drama"}))
	assert.Equal(t, []string{"Action"}, SplitGenre("Action, "), "empty segments are dropped")
}
