package syncserver

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/okayu/mangasync/internal/database"
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

func TestTokenCreateAndVerify(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenStore(db.DB)
	plaintext, token, err := store.Create("tablet")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "tablet", token.Label)
	assert.True(t, strings.Contains(plaintext, "."), "token format is <id>.<secret>")
	assert.NotContains(t, token.TokenHash, strings.SplitN(plaintext, ".", 2)[1],
		"the secret is never stored in the clear")

	verified, err := store.Verify(plaintext)
	require.NoError(t, err)
	assert.Equal(t, token.ID, verified.ID)
	assert.NotNil(t, verified.LastUsedAt, "verification stamps last use")
}

func TestTokenVerifyRejections(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenStore(db.DB)
	plaintext, token, err := store.Create("tablet")
	require.NoError(t, err)

	t.Run("malformed token", func(t *testing.T) {
		_, err := store.Verify("no-separator")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Verify("9999.deadbeef")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		idPart, _, _ := strings.Cut(plaintext, ".")
		_, err := store.Verify(idPart + ".deadbeef")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("revoked token", func(t *testing.T) {
		require.NoError(t, store.Revoke(token.ID))
		_, err := store.Verify(plaintext)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("revoking twice fails", func(t *testing.T) {
		assert.ErrorIs(t, store.Revoke(token.ID), gorm.ErrRecordNotFound)
	})
}
