// Package lifecycle implements the Lifecycle Manager (C9): agent creation,
// destruction, and the (provider, model) selection/validation pass that
// runs on every creation path. Grounded on original_source/agent_lifecycle.py
// (id assignment, model validation rule set, tier-based auto-selection) and
// the teacher's llm/registry, llm/performance, llm/keymanager packages
// (C2–C4) that selection reuses rather than reimplements.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/llm/keymanager"
	"github.com/agentforge/conductor/llm/performance"
	"github.com/agentforge/conductor/llm/providers/ollamalocal"
	"github.com/agentforge/conductor/llm/providers/openaicompat"
	"github.com/agentforge/conductor/llm/registry"
	"github.com/agentforge/conductor/types"
	"github.com/agentforge/conductor/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InstanceConfig describes one configured provider instance the Lifecycle
// Manager may attach an agent to. It mirrors registry.Config plus the bits
// a Provider Adapter needs to be instantiated (credentials are pulled from
// the Key Manager separately, never stored here).
type InstanceConfig struct {
	Name    string
	BaseURL string
	IsLocal bool
}

// Manager implements C9 against the concrete C1–C4 collaborators. It
// satisfies both types.AgentFactory (consumed by the Workflow Manager) and
// cycle.ProviderResolver (consumed by the Cycle Handler's LLM Caller),
// without importing either package, mirroring the teacher's preference for
// narrow consumer-defined interfaces over a shared "lifecycle" contract
// package.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]InstanceConfig
	providers map[string]llm.Provider // keyed by agent id

	registry *registry.Registry
	perf     *performance.Tracker
	keys     *keymanager.Manager
	tier     types.Tier

	sandboxRoot string
	agents      map[string]*types.Agent
	logger      *zap.Logger
}

// New constructs a Manager. sandboxRoot is the parent directory under which
// each agent gets its own subdirectory, named after the agent id.
func New(instances []InstanceConfig, reg *registry.Registry, perf *performance.Tracker, keys *keymanager.Manager, tier types.Tier, sandboxRoot string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]InstanceConfig, len(instances))
	for _, inst := range instances {
		byName[inst.Name] = inst
		if inst.IsLocal {
			keys.MarkLocal(inst.Name)
		}
	}
	return &Manager{
		instances:   byName,
		providers:   make(map[string]llm.Provider),
		registry:    reg,
		perf:        perf,
		keys:        keys,
		tier:        tier,
		sandboxRoot: sandboxRoot,
		agents:      make(map[string]*types.Agent),
		logger:      logger,
	}
}

// errNoCandidate is returned when auto-selection finds no reachable,
// tier-eligible, undepleted model.
var errNoCandidate = fmt.Errorf("lifecycle: no candidate provider/model available")

// CreateAgent implements types.AgentFactory. It assigns an id, validates or
// auto-selects the (provider, model) pair, instantiates a Provider Adapter,
// creates the sandbox directory, and registers the agent.
func (m *Manager) CreateAgent(ctx context.Context, req types.CreateAgentRequest) (*types.Agent, error) {
	id := req.RequestedID
	if id == "" {
		id = generateID(req.AgentType)
	}

	provider, model, err := m.resolveModel(ctx, req)
	if err != nil {
		return nil, err
	}

	start := workflow.GraphFor(req.AgentType).Start()
	agent := types.NewAgent(id, req.AgentType, start)
	agent.ProjectID = req.ProjectID
	agent.ParentID = req.ParentID
	agent.Provider = provider
	agent.Model = model
	agent.SystemPrompt = req.Persona

	if err := m.attachProvider(ctx, agent); err != nil {
		return nil, err
	}
	if err := m.createSandbox(agent); err != nil {
		m.closeProvider(agent.ID)
		return nil, err
	}

	m.mu.Lock()
	m.agents[agent.ID] = agent
	m.mu.Unlock()

	m.logger.Info("lifecycle: agent created",
		zap.String("agent_id", agent.ID), zap.String("type", string(agent.Type)),
		zap.String("provider", provider), zap.String("model", model))
	return agent, nil
}

// DeleteAgent implements C9's delete_agent. It refuses to delete the
// bootstrap Admin agent, otherwise closing the provider and forgetting the
// agent; team-membership removal is the Agent Manager's responsibility
// since this package has no concept of a team roster.
func (m *Manager) DeleteAgent(agentID string) error {
	if agentID == types.BootstrapAgentID {
		return fmt.Errorf("lifecycle: cannot delete the bootstrap agent")
	}
	m.closeProvider(agentID)
	m.mu.Lock()
	delete(m.agents, agentID)
	m.mu.Unlock()
	m.logger.Info("lifecycle: agent deleted", zap.String("agent_id", agentID))
	return nil
}

// Provider implements cycle.ProviderResolver: returns the Provider Adapter
// attached to agent at creation time, or reattaches one if the agent's
// (provider, model) has since changed (e.g. by the Failover Handler), since
// a Provider Adapter is bound to a provider instance, not to a model.
func (m *Manager) Provider(ctx context.Context, agent *types.Agent) (llm.Provider, error) {
	m.mu.RLock()
	p, ok := m.providers[agent.ID]
	m.mu.RUnlock()
	if ok && p.Name() == agent.Provider {
		return p, nil
	}
	if err := m.attachProvider(ctx, agent); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[agent.ID], nil
}

// attachProvider instantiates a Provider Adapter for agent.Provider and
// stores it keyed by agent id, closing any previous instance first.
func (m *Manager) attachProvider(ctx context.Context, agent *types.Agent) error {
	m.mu.RLock()
	inst, ok := m.instances[agent.Provider]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("lifecycle: unknown provider instance %q", agent.Provider)
	}

	m.closeProvider(agent.ID)

	var p llm.Provider
	if inst.IsLocal {
		p = ollamalocal.New(ollamalocal.Config{InstanceName: inst.Name, BaseURL: inst.BaseURL}, m.logger)
	} else {
		cfg, ok := m.keys.GetActiveKeyConfig(ctx, inst.Name)
		if !ok {
			return fmt.Errorf("lifecycle: no active key for provider %q", inst.Name)
		}
		p = openaicompat.New(openaicompat.Config{
			InstanceName: inst.Name,
			APIKey:       cfg.APIKey,
			BaseURL:      inst.BaseURL,
			IsLocal:      false,
		}, m.logger)
	}

	m.mu.Lock()
	m.providers[agent.ID] = p
	m.mu.Unlock()
	return nil
}

func (m *Manager) closeProvider(agentID string) {
	m.mu.Lock()
	p, ok := m.providers[agentID]
	delete(m.providers, agentID)
	m.mu.Unlock()
	if ok {
		p.Close()
	}
}

// createSandbox creates the per-agent sandbox directory consumed by
// tools/builtin.RegisterFileSystem's SandboxPath convention.
func (m *Manager) createSandbox(agent *types.Agent) error {
	if m.sandboxRoot == "" {
		return nil
	}
	dir := filepath.Join(m.sandboxRoot, agent.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("lifecycle: create sandbox: %w", err)
	}
	agent.SandboxPath = dir
	return nil
}

func generateID(t types.AgentType) string {
	return fmt.Sprintf("%s-%d-%s", t, time.Now().UnixNano(), uuid.NewString()[:8])
}
