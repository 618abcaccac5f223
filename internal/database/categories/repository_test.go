package categories

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okayu/mangasync/internal/database"
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

func TestCategoryRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewRepository(db.DB)

	t.Run("create and list ordered", func(t *testing.T) {
		require.NoError(t, repo.Create(&entities.Category{Name: "Later", SortOrder: 2}))
		require.NoError(t, repo.Create(&entities.Category{Name: "Reading", SortOrder: 1}))

		cats, err := repo.List()
		require.NoError(t, err)
		require.Len(t, cats, 2)
		assert.Equal(t, "Reading", cats[0].Name)
		assert.Equal(t, "Later", cats[1].Name)
	})

	t.Run("get by name", func(t *testing.T) {
		cat, err := repo.GetByName("Reading")
		require.NoError(t, err)
		require.NotNil(t, cat)
		assert.Equal(t, int64(1), cat.SortOrder)
	})

	t.Run("get missing name returns nil nil", func(t *testing.T) {
		cat, err := repo.GetByName("Nope")
		require.NoError(t, err)
		assert.Nil(t, cat)
	})

	t.Run("save updates in place", func(t *testing.T) {
		cat, err := repo.GetByName("Later")
		require.NoError(t, err)
		cat.SortOrder = 9
		require.NoError(t, repo.Save(cat))

		again, err := repo.GetByName("Later")
		require.NoError(t, err)
		assert.Equal(t, int64(9), again.SortOrder)
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		err := repo.Create(&entities.Category{Name: "Reading", SortOrder: 5})
		assert.Error(t, err)
	})
}
