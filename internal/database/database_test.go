package database

import (
	"testing"

	"portfolio-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_Migrates(t *testing.T) {
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)

	for _, model := range []any{&models.User{}, &models.Portfolio{}, &models.Position{}, &models.Watchlist{}, &models.WatchlistItem{}, &models.Setting{}} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestSeedAdmin(t *testing.T) {
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)

	changed, err := SeedAdmin(db, "admin", "")
	require.NoError(t, err)
	assert.False(t, changed, "empty token skips seeding")

	changed, err = SeedAdmin(db, "admin", "secret")
	require.NoError(t, err)
	assert.True(t, changed)

	var admin models.User
	require.NoError(t, db.Where("username = ?", "admin").First(&admin).Error)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, "secret", admin.APIToken)
	assert.NotEmpty(t, admin.ID)

	changed, err = SeedAdmin(db, "admin", "secret")
	require.NoError(t, err)
	assert.False(t, changed, "seeding is idempotent")

	changed, err = SeedAdmin(db, "admin", "rotated")
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, db.First(&admin, "id = ?", admin.ID).Error)
	assert.Equal(t, "rotated", admin.APIToken)
}
