package seed

import (
	"context"
	"testing"

	"proconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.ConnectionEdge{}, &models.Message{}))
	return db
}

func TestSeedNetwork(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewSeeder(db)

	opts := DefaultOptions()
	opts.NumUsers = 6
	opts.ConnectRatio = 1
	opts.RandSeed = 42

	res, err := s.SeedNetwork(ctx, opts)
	require.NoError(t, err)
	require.Len(t, res.Users, 6)
	assert.Equal(t, 15, res.Connections+res.Pending, "every pair gets exactly one edge")

	var alice models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&alice).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(alice.PasswordHash), []byte(DefaultPassword)))

	var edges, msgs int64
	require.NoError(t, db.Model(&models.ConnectionEdge{}).Count(&edges).Error)
	require.NoError(t, db.Model(&models.Message{}).Count(&msgs).Error)
	assert.EqualValues(t, 15, edges)
	assert.EqualValues(t, res.Messages, msgs)

	// Messages only flow between accepted pairs.
	var stray int64
	require.NoError(t, db.Model(&models.Message{}).
		Where("NOT EXISTS (SELECT 1 FROM connections c WHERE c.status = ? AND c.pair_low = MIN(messages.sender_id, messages.receiver_id) AND c.pair_high = MAX(messages.sender_id, messages.receiver_id))", models.ConnectionStatusAccepted).
		Count(&stray).Error)
	assert.Zero(t, stray)

	require.NoError(t, s.ClearAll(ctx))
	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)
}

func TestSeedNetworkAlwaysCreatesBaseUsers(t *testing.T) {
	db := newTestDB(t)

	res, err := NewSeeder(db).SeedNetwork(context.Background(), Options{NumUsers: 1, RandSeed: 7})
	require.NoError(t, err)
	require.Len(t, res.Users, len(BaseUsernames))
	assert.Zero(t, res.Connections+res.Pending)
	for i, name := range BaseUsernames {
		assert.Equal(t, name, res.Users[i].Username)
	}
}
