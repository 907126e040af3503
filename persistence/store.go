// Package persistence models the opaque logging/config-query boundary
// spec.md §6 leaves external: an interaction log and a per-agent config
// lookup, with no committed SQL schema (persistence is explicitly out of
// scope per spec.md §1). Store is grounded on internal/database/pool.go's
// shape — a mutex-guarded handle with an explicit Close — generalized away
// from that package's gorm/sql.DB specifics since no concrete schema is
// being specified here.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/conductor/types"
)

// InteractionRecord is one logged exchange, written once per cycle via
// log_interaction.
type InteractionRecord struct {
	AgentID   string
	CycleID   string
	Role      types.Role
	Content   string
	CreatedAt time.Time
}

// AgentConfigRecord is the durable (provider, model, tier) triple a
// supervising process can look up for an agent across restarts, independent
// of the in-memory types.Agent the Lifecycle Manager holds.
type AgentConfigRecord struct {
	AgentID  string
	Provider string
	Model    string
	Tier     types.Tier
}

// Store is the opaque log/query boundary. Implementations decide their own
// backing (in-memory, SQL, object storage); this package commits to no
// wire format or schema.
type Store interface {
	LogInteraction(ctx context.Context, rec InteractionRecord) error
	AgentConfig(ctx context.Context, agentID string) (AgentConfigRecord, bool, error)
	SetAgentConfig(ctx context.Context, rec AgentConfigRecord) error
	Close() error
}

// InMemoryStore is a Store backed by plain maps, suitable for tests and for
// a single-process deployment that accepts losing its log on restart (spec's
// "no durable cross-restart resumption" non-goal already excludes relying on
// this for recovery).
type InMemoryStore struct {
	mu      sync.RWMutex
	closed  bool
	log     []InteractionRecord
	configs map[string]AgentConfigRecord
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{configs: make(map[string]AgentConfigRecord)}
}

func (s *InMemoryStore) LogInteraction(ctx context.Context, rec InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("persistence: store is closed")
	}
	s.log = append(s.log, rec)
	return nil
}

func (s *InMemoryStore) AgentConfig(ctx context.Context, agentID string) (AgentConfigRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return AgentConfigRecord{}, false, fmt.Errorf("persistence: store is closed")
	}
	rec, ok := s.configs[agentID]
	return rec, ok, nil
}

func (s *InMemoryStore) SetAgentConfig(ctx context.Context, rec AgentConfigRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("persistence: store is closed")
	}
	s.configs[rec.AgentID] = rec
	return nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// InteractionLog returns a copy of everything logged so far, for tests that
// need to assert on log_interaction calls.
func (s *InMemoryStore) InteractionLog() []InteractionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InteractionRecord, len(s.log))
	copy(out, s.log)
	return out
}
