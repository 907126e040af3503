package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentforge/conductor/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

type ledgerRow struct {
	ID     uint `gorm:"primaryKey"`
	Amount int
}

func TestNewPoolManager(t *testing.T) {
	pm, err := database.NewPoolManager(openTestDB(t), database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, pm)
	defer pm.Close()
}

func TestNewPoolManager_NilDB(t *testing.T) {
	pm, err := database.NewPoolManager(nil, database.DefaultPoolConfig(), zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, pm)
}

func TestPoolManager_DB(t *testing.T) {
	db := openTestDB(t)
	pm, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Same(t, db, pm.DB())
}

func TestPoolManager_Ping(t *testing.T) {
	pm, err := database.NewPoolManager(openTestDB(t), database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.NoError(t, pm.Ping(context.Background()))
}

func TestPoolManager_PingAfterClose(t *testing.T) {
	pm, err := database.NewPoolManager(openTestDB(t), database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, pm.Close())

	assert.Error(t, pm.Ping(context.Background()))
}

func TestPoolManager_GetStats(t *testing.T) {
	pm, err := database.NewPoolManager(openTestDB(t), database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Ping(context.Background()))
	stats := pm.GetStats()
	assert.GreaterOrEqual(t, stats.OpenConnections, 1)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	pm, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Amount: 42}).Error
	})
	require.NoError(t, err)

	var rows []ledgerRow
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 42, rows[0].Amount)
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	pm, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	boom := assert.AnError
	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if createErr := tx.Create(&ledgerRow{Amount: 99}).Error; createErr != nil {
			return createErr
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var rows []ledgerRow
	require.NoError(t, db.Find(&rows).Error)
	assert.Empty(t, rows, "failed transaction must not leave a committed row")
}

func TestPoolManager_WithTransactionRetry_GivesUpOnNonRetryableError(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	pm, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	attempts := 0
	err = pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return assert.AnError
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "a non-retryable error must not be retried")
}

func TestPoolManager_Close(t *testing.T) {
	pm, err := database.NewPoolManager(openTestDB(t), database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, pm.Close())
	assert.NoError(t, pm.Close(), "closing twice must be a no-op")
}

func TestPoolManager_HealthCheckLoopStopsAfterClose(t *testing.T) {
	cfg := database.DefaultPoolConfig()
	cfg.HealthCheckInterval = 5 * time.Millisecond
	pm, err := database.NewPoolManager(openTestDB(t), cfg, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pm.Close())
	// the loop's next tick must observe pm.closed and return without panicking;
	// sleeping past another tick interval is enough to surface a panic if not.
	time.Sleep(20 * time.Millisecond)
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  database.PoolConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  database.PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5},
			wantErr: false,
		},
		{
			name:    "invalid max open conns",
			config:  database.PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5},
			wantErr: true,
		},
		{
			name:    "invalid max idle conns",
			config:  database.PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0},
			wantErr: true,
		},
		{
			name:    "idle exceeds open",
			config:  database.PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
