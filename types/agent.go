package types

import (
	"sync"
	"time"
)

// AgentType identifies which of the three role graphs an agent runs.
type AgentType string

const (
	AgentTypeAdmin  AgentType = "admin"
	AgentTypePM     AgentType = "pm"
	AgentTypeWorker AgentType = "worker"
)

// State is a workflow-state name scoped to one AgentType. States are not
// interchangeable across agent types; the Workflow Manager is the only
// place that knows which states are legal for which type.
type State string

const (
	StateDefault State = "default"

	AdminStateStartup       State = "startup"
	AdminStateConversation  State = "admin_conversation"
	AdminStatePlanning      State = "planning"
	AdminStateWorkDelegated State = "work_delegated"
	AdminStateWork          State = "work"
	AdminStateStandby       State = "admin_standby"

	PMStateStartup           State = "pm_startup"
	PMStatePlanDecomposition State = "pm_plan_decomposition"
	PMStateBuildTeamTasks    State = "pm_build_team_tasks"
	PMStateActivateWorkers   State = "pm_activate_workers"
	PMStateManage            State = "pm_manage"
	PMStateStandby           State = "pm_standby"
	PMStateWork              State = "pm_work"

	WorkerStateStartup State = "worker_startup"
	WorkerStateWork    State = "worker_work"
	WorkerStateWait    State = "worker_wait"
)

// Status is the operational status of an agent, distinct from its State:
// State says which workflow phase the agent is in, Status says what it is
// doing right now within that phase.
type Status string

const (
	StatusIdle                 Status = "idle"
	StatusProcessing           Status = "processing"
	StatusAwaitingToolResult   Status = "awaiting_tool_result"
	StatusExecutingTool        Status = "executing_tool"
	StatusAwaitingCGReview     Status = "awaiting_cg_review"
	StatusAwaitingUserReviewCG Status = "awaiting_user_review_cg"
	StatusError                Status = "error"
)

// BootstrapAgentID is the well-known id of the single Admin agent created at
// startup.
const BootstrapAgentID = "admin_ai"

// Agent is the live, mutex-guarded state of one orchestrated agent. Exactly
// one cycle may be in flight for a given Agent at a time; callers must use
// TryLockExec / UnlockExec around a cycle rather than manipulating the
// embedded fields directly.
type Agent struct {
	mu sync.RWMutex

	ID          string
	Type        AgentType
	State       State
	Status      Status
	Provider    string
	Model       string
	Temperature float64
	// ProviderOptions is passed through to the Provider Adapter unchanged
	// (e.g. top_p, stop sequences); opaque to everything except the adapter.
	ProviderOptions map[string]any

	SystemPrompt string
	History      []Message

	// ProjectID ties a PM or Worker back to the project that spawned it.
	// Empty for the Admin agent.
	ProjectID string
	// ParentID is the agent that created this one via the Lifecycle
	// Manager (empty for the bootstrap Admin).
	ParentID string
	// SandboxPath roots this agent's file_system tool calls; empty means no
	// filesystem access has been granted.
	SandboxPath string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Loop-detection counters, owned exclusively by the Next-Step
	// Scheduler. See cycle.Scheduler.
	ConsecutiveEmptyWorkCycles int
	WorkCycleCount             int

	// FailedModelsThisCycle accumulates canonical model ids the Failover
	// Handler has already tried and rejected within the current cycle's
	// retry sequence; cleared at the start of the next cycle.
	FailedModelsThisCycle []string
	// LastUsedAPIKeyID is the key manager's id for the key used on the most
	// recent provider call, so RecordOutcome/QuarantineKey can target it.
	LastUsedAPIKeyID uint

	// execMu guards "at most one cycle in flight" independently of mu,
	// which guards field reads/writes. A cycle holds execMu for its
	// whole lifetime but only takes mu for brief field access.
	execMu sync.Mutex
}

// NewAgent constructs an Agent in its type's startup state.
func NewAgent(id string, agentType AgentType, startState State) *Agent {
	now := time.Now()
	return &Agent{
		ID:        id,
		Type:      agentType,
		State:     startState,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TryLockExec attempts to claim the agent for a single cycle. It returns
// false immediately if a cycle is already in flight (the caller should
// treat this as "agent busy", per C10's invariant).
func (a *Agent) TryLockExec() bool {
	return a.execMu.TryLock()
}

// UnlockExec releases the execution claim taken by TryLockExec.
func (a *Agent) UnlockExec() {
	a.execMu.Unlock()
}

// SetState transitions the agent to a new state and bumps UpdatedAt. It does
// not validate the transition; that is the Workflow Manager's job via
// workflow.Graph.CanTransition.
func (a *Agent) SetState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.State = s
	a.UpdatedAt = time.Now()
}

// GetState returns the agent's current state under the read lock.
func (a *Agent) GetState() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.State
}

// GetStatus returns the agent's current status under the read lock.
func (a *Agent) GetStatus() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Status
}

// SetStatus updates the operational status.
func (a *Agent) SetStatus(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Status = s
	a.UpdatedAt = time.Now()
}

// AppendHistory appends a message to the agent's conversation log.
func (a *Agent) AppendHistory(msg Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History = append(a.History, msg)
	a.UpdatedAt = time.Now()
}

// HistorySnapshot returns a copy of the agent's history, safe to range over
// without holding the agent's lock.
func (a *Agent) HistorySnapshot() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Message, len(a.History))
	copy(out, a.History)
	return out
}

// Snapshot is a read-only projection of Agent safe to hand to a UI broadcast
// sink: it copies out of the mutex-guarded struct instead of exposing it.
type Snapshot struct {
	ID        string    `json:"id"`
	Type      AgentType `json:"type"`
	State     State     `json:"state"`
	Status    Status    `json:"status"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	ProjectID string    `json:"project_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToSnapshot copies the agent's externally-visible fields under the read
// lock.
func (a *Agent) ToSnapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		ID:        a.ID,
		Type:      a.Type,
		State:     a.State,
		Status:    a.Status,
		Provider:  a.Provider,
		Model:     a.Model,
		ProjectID: a.ProjectID,
		ParentID:  a.ParentID,
		UpdatedAt: a.UpdatedAt,
	}
}
