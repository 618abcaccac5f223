package selfhosted

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okayu/mangasync/internal/snapshot"
)

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Sync:   snapshot.NewStatus("completed", time.Unix(1700000000, 0)),
		Device: snapshot.Device{ID: 1, Name: "phone"},
		Backup: &snapshot.Library{
			Manga: []snapshot.Manga{{Source: 1, URL: "/a", Title: "A", Favorite: true}},
		},
	}
}

func TestExchange(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/sync", r.URL.Path)

		resp := testSnapshot()
		resp.UpdateRequired = true
		data, err := resp.Encode()
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "1.secret")
	merged, updateRequired, err := client.Exchange(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "Bearer 1.secret", gotAuth)
	assert.True(t, updateRequired)
	require.NotNil(t, merged.Backup)
	assert.Len(t, merged.Backup.Manga, 1)
}

func TestExchangeInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad")
	_, _, err := client.Exchange(context.Background(), testSnapshot())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExchangeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "1.secret")
	_, _, err := client.Exchange(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestDownload(t *testing.T) {
	t.Run("absent snapshot returns nil nil", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "1.secret")
		snap, err := client.Download(context.Background())
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("stored snapshot decodes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := testSnapshot().Encode()
			require.NoError(t, err)
			w.Write(data)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "1.secret")
		snap, err := client.Download(context.Background())
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, "A", snap.Backup.Manga[0].Title)
	})
}

func TestUpload(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "1.secret")
	require.NoError(t, client.Upload(context.Background(), testSnapshot()))
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestBaseURLTrimming(t *testing.T) {
	client := NewClient("https://sync.example.com/", "1.secret")
	assert.Equal(t, "https://sync.example.com", client.baseURL)
}
