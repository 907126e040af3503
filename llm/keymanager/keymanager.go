// Package keymanager implements the Key Manager (C3): per-provider API key
// rotation and quarantine. Keys are persisted via gorm.io/gorm on the
// *gorm.DB the caller opens (cmd/conductor uses gorm.io/driver/sqlite) so
// quarantine state survives a restart within the same database file; an
// in-memory sqlite DSN is used in tests. Adapted from the teacher's
// llm/apikey_pool.go: round-robin selection over healthy keys, and async, panic-recovering DB writes so a
// quarantine update never blocks the calling cycle.
package keymanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoActiveKey is returned when a provider has no usable key.
var ErrNoActiveKey = errors.New("keymanager: no active key for provider")

// KeyRecord is the persisted row for one (provider, key) pair.
type KeyRecord struct {
	ID               uint      `gorm:"primaryKey"`
	ProviderBase     string    `gorm:"size:100;not null;index"`
	APIKey           string    `gorm:"size:500;not null"`
	Referer          string    `gorm:"size:200"`
	TotalRequests    int64     `gorm:"default:0"`
	FailedRequests   int64     `gorm:"default:0"`
	QuarantinedUntil time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (KeyRecord) TableName() string { return "conductor_keys" }

// Active reports whether the key is currently out of quarantine.
func (k KeyRecord) Active(now time.Time) bool {
	return k.QuarantinedUntil.IsZero() || now.After(k.QuarantinedUntil)
}

// KeyConfig is what a Provider Adapter needs for one call.
type KeyConfig struct {
	KeyID   uint
	APIKey  string
	Referer string
}

// Manager implements C3's contract. Local providers (registered via
// MarkLocal) are never depleted and GetActiveKeyConfig always succeeds with
// an empty KeyConfig for them, since local endpoints perform no
// authentication.
type Manager struct {
	mu         sync.Mutex
	db         *gorm.DB
	logger     *zap.Logger
	localProvs map[string]bool
	roundRobin map[string]int
}

// New opens/migrates the key table on db and returns a Manager.
func New(db *gorm.DB, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&KeyRecord{}); err != nil {
		return nil, fmt.Errorf("keymanager: migrate: %w", err)
	}
	return &Manager{
		db:         db,
		logger:     logger,
		localProvs: make(map[string]bool),
		roundRobin: make(map[string]int),
	}, nil
}

// MarkLocal registers providerBase as a local (never-depleted, no-auth)
// provider.
func (m *Manager) MarkLocal(providerBase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localProvs[providerBase] = true
}

// LoadKey inserts or updates a configured key for providerBase.
func (m *Manager) LoadKey(ctx context.Context, providerBase, apiKey, referer string) error {
	rec := KeyRecord{ProviderBase: providerBase, APIKey: apiKey, Referer: referer}
	return m.db.WithContext(ctx).
		Where(KeyRecord{ProviderBase: providerBase, APIKey: apiKey}).
		FirstOrCreate(&rec).Error
}

// GetActiveKeyConfig returns the next healthy key for providerBase, rotating
// round-robin across keys that are not currently quarantined.
func (m *Manager) GetActiveKeyConfig(ctx context.Context, providerBase string) (KeyConfig, bool) {
	m.mu.Lock()
	if m.localProvs[providerBase] {
		m.mu.Unlock()
		return KeyConfig{}, true
	}
	m.mu.Unlock()

	var keys []KeyRecord
	if err := m.db.WithContext(ctx).Where("provider_base = ?", providerBase).Order("id ASC").Find(&keys).Error; err != nil {
		m.logger.Error("keymanager: load keys failed", zap.Error(err))
		return KeyConfig{}, false
	}

	now := time.Now()
	healthy := make([]KeyRecord, 0, len(keys))
	for _, k := range keys {
		if k.Active(now) {
			healthy = append(healthy, k)
		}
	}
	if len(healthy) == 0 {
		return KeyConfig{}, false
	}

	m.mu.Lock()
	idx := m.roundRobin[providerBase] % len(healthy)
	m.roundRobin[providerBase]++
	m.mu.Unlock()

	chosen := healthy[idx]
	return KeyConfig{KeyID: chosen.ID, APIKey: chosen.APIKey, Referer: chosen.Referer}, true
}

// IsProviderDepleted reports whether every key for providerBase is
// quarantined. Local providers are never depleted.
func (m *Manager) IsProviderDepleted(ctx context.Context, providerBase string) bool {
	m.mu.Lock()
	if m.localProvs[providerBase] {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	var keys []KeyRecord
	if err := m.db.WithContext(ctx).Where("provider_base = ?", providerBase).Find(&keys).Error; err != nil {
		m.logger.Error("keymanager: load keys failed", zap.Error(err))
		return true
	}
	if len(keys) == 0 {
		return true
	}
	now := time.Now()
	for _, k := range keys {
		if k.Active(now) {
			return false
		}
	}
	return true
}

// QuarantineKey quarantines keyID for duration. The DB write is async and
// panic-recovering, per the teacher's apikey_pool.go update idiom, so a
// quarantine decision never blocks the Failover Handler; GetActiveKeyConfig
// and IsProviderDepleted skip the key only once that write has landed, so a
// call made right after QuarantineKey may still see it as active.
func (m *Manager) QuarantineKey(keyID uint, duration time.Duration) {
	until := time.Now().Add(duration)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("keymanager: panic in async quarantine update", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := m.db.WithContext(ctx).Model(&KeyRecord{}).Where("id = ?", keyID).
			Update("quarantined_until", until).Error
		if err != nil {
			m.logger.Error("keymanager: quarantine update failed", zap.Uint("key_id", keyID), zap.Error(err))
		}
	}()
}

// RecordOutcome updates usage counters for a key asynchronously.
func (m *Manager) RecordOutcome(keyID uint, success bool) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("keymanager: panic in async outcome update", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		updates := map[string]any{"total_requests": gorm.Expr("total_requests + 1")}
		if !success {
			updates["failed_requests"] = gorm.Expr("failed_requests + 1")
		}
		if err := m.db.WithContext(ctx).Model(&KeyRecord{}).Where("id = ?", keyID).Updates(updates).Error; err != nil {
			m.logger.Error("keymanager: outcome update failed", zap.Uint("key_id", keyID), zap.Error(err))
		}
	}()
}
