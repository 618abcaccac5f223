package syncserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/database/categories"
	"github.com/okayu/mangasync/internal/database/library"
	"github.com/okayu/mangasync/internal/entities"
	"github.com/okayu/mangasync/internal/snapshot"
	"github.com/okayu/mangasync/internal/storage/providers/selfhosted"
	"github.com/okayu/mangasync/internal/syncer"
)

func setupServer(t *testing.T) (*Server, *gin.Engine, string, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, cleanup := setupTestDB(t)
	server := NewServer(db)
	plaintext, _, err := server.Tokens().Create("test-device")
	require.NoError(t, err)

	return server, server.NewRouter(), plaintext, cleanup
}

func postSnapshot(t *testing.T, router *gin.Engine, token string, snap *snapshot.Snapshot) *httptest.ResponseRecorder {
	t.Helper()
	data, err := snap.Encode()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader(data))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func deviceSnapshot(at time.Time, manga ...snapshot.Manga) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Sync:   snapshot.NewStatus("completed", at),
		Device: snapshot.Device{ID: 1, Name: "phone"},
		Backup: &snapshot.Library{Manga: manga},
	}
}

func TestServerHealth(t *testing.T) {
	_, router, _, cleanup := setupServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestServerRejectsBadAuth(t *testing.T) {
	_, router, _, cleanup := setupServer(t)
	defer cleanup()

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
		req.Header.Set("Authorization", "Bearer 1.wrong")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestServerRejectsMalformedSnapshot(t *testing.T) {
	_, router, token, cleanup := setupServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerFirstExchangeStoresIncoming(t *testing.T) {
	_, router, token, cleanup := setupServer(t)
	defer cleanup()

	snap := deviceSnapshot(time.Now(), snapshot.Manga{Source: 1, URL: "/a", Title: "A", Favorite: true})
	w := postSnapshot(t, router, token, snap)
	require.Equal(t, http.StatusOK, w.Code)

	merged, err := snapshot.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.False(t, merged.UpdateRequired, "first sync has nothing to pull")
	require.NotNil(t, merged.Backup)
	require.Len(t, merged.Backup.Manga, 1)
	assert.Equal(t, "A", merged.Backup.Manga[0].Title)
}

func TestServerMergesWithStoredSnapshot(t *testing.T) {
	_, router, token, cleanup := setupServer(t)
	defer cleanup()

	// Device one seeds the server.
	first := deviceSnapshot(time.Now().Add(-time.Hour),
		snapshot.Manga{Source: 1, URL: "/a", Title: "A", Favorite: true})
	require.Equal(t, http.StatusOK, postSnapshot(t, router, token, first).Code)

	// A second exchange carries a different item and an older
	// last-synced epoch, so the server flags that an apply is needed.
	second := deviceSnapshot(time.Now().Add(-2*time.Hour),
		snapshot.Manga{Source: 1, URL: "/b", Title: "B", Favorite: true})
	w := postSnapshot(t, router, token, second)
	require.Equal(t, http.StatusOK, w.Code)

	merged, err := snapshot.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, merged.UpdateRequired, "stored snapshot advanced past the client")
	require.NotNil(t, merged.Backup)
	assert.Len(t, merged.Backup.Manga, 2, "items from both devices survive the merge")
}

// deviceSettings is a minimal syncer.Settings for end-to-end tests. It
// remembers when the device last synced successfully, like the real
// settings store does.
type deviceSettings struct {
	id     int
	name   string
	lastAt *time.Time
}

func (d *deviceSettings) Device() snapshot.Device   { return snapshot.Device{ID: d.id, Name: d.name} }
func (d *deviceSettings) SyncFavoritesOnly() bool   { return true }
func (d *deviceSettings) GetSyncLastAt() *time.Time { return d.lastAt }
func (d *deviceSettings) RecordSyncResult(status, message string, at time.Time) error {
	if status == "success" {
		d.lastAt = &at
	}
	return nil
}

// TestServerPropagatesBetweenDevices drives two full clients, builder
// included, against the real exchange endpoint. A second device that has
// never synced must come away with the first device's library.
func TestServerPropagatesBetweenDevices(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serverDB, cleanup := setupTestDB(t)
	defer cleanup()
	server := NewServer(serverDB)
	token, _, err := server.Tokens().Create("shared")
	require.NoError(t, err)

	ts := httptest.NewServer(server.NewRouter())
	defer ts.Close()

	newDevice := func(name string, id int) (*database.Database, *syncer.Service, *deviceSettings) {
		path := "./test_" + t.Name() + "_" + name + ".db"
		db, err := database.NewDatabase(path)
		require.NoError(t, err)
		t.Cleanup(func() {
			db.Close()
			os.Remove(path)
		})

		settings := &deviceSettings{id: id, name: name}
		builder := snapshot.NewBuilder(library.NewRepository(db.DB), categories.NewRepository(db.DB))
		backend := selfhosted.NewClient(ts.URL, token)
		return db, syncer.NewService(builder, syncer.NewApplier(db), backend, settings, time.Second), settings
	}

	phoneDB, phone, _ := newDevice("phone", 1)
	require.NoError(t, phoneDB.DB.Create(&entities.Manga{
		Source: 7, URL: "/x", Title: "X", Favorite: true,
	}).Error)
	require.NoError(t, phone.Sync(context.Background()))

	tabletDB, tablet, _ := newDevice("tablet", 2)
	require.NoError(t, tablet.Sync(context.Background()))

	var count int64
	tabletDB.DB.Model(&entities.Manga{}).Where("source = ? AND url = ?", 7, "/x").Count(&count)
	assert.Equal(t, int64(1), count, "the second device adopts the first device's item")
}

func TestServerRawDownloadAndUpload(t *testing.T) {
	_, router, token, cleanup := setupServer(t)
	defer cleanup()

	t.Run("download before any sync is empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("upload then download round-trips", func(t *testing.T) {
		snap := deviceSnapshot(time.Now(), snapshot.Manga{Source: 1, URL: "/a", Title: "A"})
		data, err := snap.Encode()
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/sync", bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNoContent, w.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		stored, err := snapshot.Decode(w.Body.Bytes())
		require.NoError(t, err)
		require.Len(t, stored.Backup.Manga, 1)
		assert.Equal(t, "A", stored.Backup.Manga[0].Title)
	})

	t.Run("upload rejects malformed payloads", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sync", bytes.NewReader([]byte("nope")))
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
