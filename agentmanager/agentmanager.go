// Package agentmanager implements the Agent Manager (C10): the live
// registry of agents, cycle scheduling with the per-agent busy guard,
// inter-agent message routing, and the external UI broadcast sink.
// Grounded on the teacher's goroutine-per-task dispatch idiom and
// original_source/agent_orchestrator.py's schedule_cycle/send_message pair.
package agentmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentforge/conductor/cycle"
	"github.com/agentforge/conductor/internal/metrics"
	"github.com/agentforge/conductor/types"
	"go.uber.org/zap"
)

// EventKind identifies one kind of observable agent event broadcast to the
// UI sink.
type EventKind string

const (
	EventStatusChanged EventKind = "status_changed"
	EventToolResult    EventKind = "tool_result"
	EventError         EventKind = "error"
)

// Event is one observable change broadcast to the UI sink, per spec.md
// §4.10's "broadcasts observable events" contract.
type Event struct {
	Kind     EventKind
	Snapshot types.Snapshot
	Detail   string
}

// Sink receives broadcast Events. The default (nil) sink drops events
// silently; a real UI layer implements this over a websocket or SSE feed.
type Sink interface {
	Publish(Event)
}

// Manager owns the agent map and implements both cycle.Rescheduler (for the
// Next-Step Scheduler) and tools/builtin.MessageRouter (for the
// send_message tool), without importing either the workflow or tools
// package, mirroring the narrow-consumer-interface pattern used throughout
// this codebase.
type Manager struct {
	mu      sync.RWMutex
	agents  map[string]*types.Agent
	lastErr map[string]*types.Error

	handler *cycle.Handler
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New constructs a Manager. handler may be nil at construction time and set
// later via SetHandler: the Cycle Handler's Scheduler is itself constructed
// with this Manager as its Rescheduler, so the two are wired in two steps —
// build the Manager, build the Scheduler/Handler around it, then call
// SetHandler — to break the otherwise-circular dependency. sink may be nil.
func New(handler *cycle.Handler, sink Sink, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		agents:  make(map[string]*types.Agent),
		lastErr: make(map[string]*types.Error),
		handler: handler,
		sink:    sink,
		logger:  logger,
	}
}

// SetHandler attaches the Cycle Handler once it has been constructed with
// this Manager as its Rescheduler.
func (m *Manager) SetHandler(handler *cycle.Handler) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// SetMetrics attaches a metrics.Collector. A nil collector (the default)
// disables recording, matching Sink's nil-drops-silently convention.
func (m *Manager) SetMetrics(c *metrics.Collector) {
	m.mu.Lock()
	m.metrics = c
	m.mu.Unlock()
}

// Register adds agent to the managed set, normally called right after
// lifecycle.Manager.CreateAgent returns it.
func (m *Manager) Register(agent *types.Agent) {
	m.mu.Lock()
	m.agents[agent.ID] = agent
	m.mu.Unlock()
}

// Forget removes agent from the managed set, normally called alongside
// lifecycle.Manager.DeleteAgent.
func (m *Manager) Forget(agentID string) {
	m.mu.Lock()
	delete(m.agents, agentID)
	delete(m.lastErr, agentID)
	m.mu.Unlock()
}

// Get returns the agent registered under id, if any.
func (m *Manager) Get(agentID string) (*types.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agentID]
	return a, ok
}

// ScheduleCycle implements cycle.Rescheduler: spawns one goroutine running
// a single Cycle Handler pass for agent, after claiming its per-agent busy
// guard. An agent that is already mid-cycle is dropped with a warning, per
// spec.md §5's "attempts to schedule while busy are dropped" rule.
func (m *Manager) ScheduleCycle(agent *types.Agent, retryCount int) {
	if !agent.TryLockExec() {
		m.logger.Warn("agent busy, dropping schedule request", zap.String("agent_id", agent.ID))
		return
	}
	go func() {
		defer agent.UnlockExec()
		m.runCycle(agent, retryCount)
	}()
}

func (m *Manager) runCycle(agent *types.Agent, retryCount int) {
	agent.SetStatus(types.StatusProcessing)
	m.broadcast(agent, EventStatusChanged, "")

	m.mu.RLock()
	lastErr := m.lastErr[agent.ID]
	handler := m.handler
	collector := m.metrics
	m.mu.RUnlock()

	startState := agent.GetState()
	cc := handler.Run(context.Background(), agent, retryCount, lastErr)

	m.mu.Lock()
	m.lastErr[agent.ID] = cc.Err
	m.mu.Unlock()

	if collector != nil {
		outcome := "success"
		if cc.Err != nil {
			outcome = "error"
		}
		collector.RecordCycle(string(agent.Type), string(startState), outcome, cc.EndedAt.Sub(cc.StartedAt))
		collector.RecordAgentExecution(agent.ID, string(agent.Type), outcome, cc.EndedAt.Sub(cc.StartedAt))
		if cc.StateChangeRequested && agent.GetState() != startState {
			collector.RecordAgentStateTransition(agent.ID, string(startState), string(agent.GetState()))
		}
	}

	if cc.Err != nil {
		m.broadcast(agent, EventError, cc.Err.Message)
	}
	m.broadcast(agent, EventStatusChanged, "")
}

// RouteMessage implements tools/builtin.MessageRouter: appends a user-role
// message to the recipient's history, and schedules it if idle. A message
// to an unknown recipient is an error, matching send_message's validation
// contract.
func (m *Manager) RouteMessage(ctx context.Context, fromAgentID, toAgentID, content string) error {
	recipient, ok := m.Get(toAgentID)
	if !ok {
		return unknownRecipientError(toAgentID)
	}
	recipient.AppendHistory(types.NewUserMessage(content))
	m.broadcast(recipient, EventToolResult, "message received from "+fromAgentID)

	if recipient.GetStatus() == types.StatusIdle {
		m.ScheduleCycle(recipient, 0)
	}
	return nil
}

func unknownRecipientError(agentID string) error {
	return fmt.Errorf("agentmanager: unknown recipient %q", agentID)
}

func (m *Manager) broadcast(agent *types.Agent, kind EventKind, detail string) {
	if m.sink == nil {
		return
	}
	m.sink.Publish(Event{Kind: kind, Snapshot: agent.ToSnapshot(), Detail: detail})
}
