package workflow

import (
	"context"
	"fmt"

	"github.com/agentforge/conductor/internal/xmlscan"
	"github.com/agentforge/conductor/types"
	"go.uber.org/zap"
)

// Result is what a workflow returns, per spec.md §4.6: applied by the
// Cycle Handler after tool execution for the same cycle.
type Result struct {
	Success         bool
	Message         string
	NextState       types.State  // empty means "no change"
	NextStatus      types.Status // zero value means "no change"
	UIMessage       string
	TasksToSchedule []types.Task
	// FrameworkNotification, when non-empty, is appended to the agent's
	// real history as a RoleSystemFrameworkNotification message by the
	// Cycle Handler once the workflow's NextState/NextStatus have been
	// applied. Unlike UIMessage (a side channel for an external UI that
	// this module doesn't carry), this is the message the agent itself
	// will see on its next cycle.
	FrameworkNotification string
}

// Workflow is one trigger-tag-keyed workflow, per spec.md §4.6.
type Workflow interface {
	Name() string
	TriggerTag() string
	AllowedType() types.AgentType
	AllowedState() types.State
	// Execute runs the workflow against the raw XML fragment matched for
	// TriggerTag() in the agent's latest response.
	Execute(ctx context.Context, agent *types.Agent, fragment string) (Result, error)
}

// Manager owns the three state graphs and the registered workflows, and
// dispatches both <request_state> transitions and trigger-tag workflows
// found in an assistant's raw response.
type Manager struct {
	graphs    map[types.AgentType]*Graph
	workflows []Workflow
	logger    *zap.Logger
}

// NewManager constructs a Manager with the three fixed state graphs and no
// workflows registered yet.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		graphs: map[types.AgentType]*Graph{
			types.AgentTypeAdmin:  AdminGraph(),
			types.AgentTypePM:     PMGraph(),
			types.AgentTypeWorker: WorkerGraph(),
		},
		logger: logger,
	}
}

// Register adds a workflow to the dispatch table.
func (m *Manager) Register(w Workflow) {
	m.workflows = append(m.workflows, w)
}

// GraphFor returns the state graph for an agent type.
func (m *Manager) GraphFor(t types.AgentType) *Graph {
	return m.graphs[t]
}

// ApplyTokenBudgets overrides each named state's MaxTokens across all three
// graphs, leaving states absent from budgets untouched. Called once at
// startup with the configured per-state token budgets (spec §6).
func (m *Manager) ApplyTokenBudgets(budgets map[types.State]int) {
	for _, g := range m.graphs {
		for state, n := range budgets {
			if spec, ok := g.states[state]; ok {
				spec.MaxTokens = n
				g.states[state] = spec
			}
		}
	}
}

// PromptFor returns the system prompt and token budget for an agent's
// current state.
func (m *Manager) PromptFor(agent *types.Agent) (prompt string, maxTokens int, ok bool) {
	graph := m.graphs[agent.Type]
	if graph == nil {
		return "", 0, false
	}
	spec, ok := graph.Spec(agent.GetState())
	if !ok {
		return "", 0, false
	}
	return spec.PromptTemplate, spec.MaxTokens, true
}

// RequestStateChange applies a <request_state> tag found in rawResponse, if
// present and legal from the agent's current state. Illegal transitions are
// logged and reported via applied=false, leaving the state unchanged, per spec.md §4.6
// ("silently ignored... but logged; agent receives a framework message").
func (m *Manager) RequestStateChange(agent *types.Agent, rawResponse string) (requested types.State, applied bool) {
	name, found := xmlscan.ExtractRequestState(rawResponse)
	if !found {
		return "", false
	}
	requested = types.State(name)
	graph := m.graphs[agent.Type]
	if graph == nil {
		return requested, false
	}
	current := agent.GetState()
	if !graph.CanTransition(current, requested) {
		m.logger.Warn("illegal state transition requested",
			zap.String("agent_id", agent.ID), zap.String("from", string(current)), zap.String("to", string(requested)))
		return requested, false
	}
	agent.SetState(requested)
	return requested, true
}

// Dispatch scans rawResponse for every registered workflow's trigger tag
// and runs the first one whose type/state preconditions the agent
// satisfies. Only one workflow fires per cycle, matching spec.md §4.6's
// "a workflow is identified by trigger_tag_name... if a match is found".
func (m *Manager) Dispatch(ctx context.Context, agent *types.Agent, rawResponse string) (Result, bool, error) {
	for _, w := range m.workflows {
		fragment, found, err := xmlscan.FindFirst(rawResponse, w.TriggerTag())
		if err != nil {
			return Result{}, false, fmt.Errorf("workflow %s: %w", w.Name(), err)
		}
		if !found {
			continue
		}
		if agent.Type != w.AllowedType() || agent.GetState() != w.AllowedState() {
			m.logger.Debug("workflow trigger matched but preconditions failed",
				zap.String("workflow", w.Name()), zap.String("agent_id", agent.ID),
				zap.String("agent_type", string(agent.Type)), zap.String("agent_state", string(agent.GetState())))
			continue
		}
		result, err := w.Execute(ctx, agent, fragment)
		if err != nil {
			return Result{}, true, fmt.Errorf("workflow %s: %w", w.Name(), err)
		}
		return result, true, nil
	}
	return Result{}, false, nil
}
