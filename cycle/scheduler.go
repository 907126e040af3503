package cycle

import (
	"context"
	"time"

	"github.com/agentforge/conductor/llm/retry"
	"github.com/agentforge/conductor/types"
	"go.uber.org/zap"
)

// FailoverHandler is the Failover Handler (C8) contract the scheduler calls
// on trigger_failover or retry exhaustion. Kept as an interface so the
// cycle package does not import the failover package (which itself depends
// on the registry/keymanager/performance packages cycle also uses).
type FailoverHandler interface {
	HandleFailure(ctx context.Context, agent *types.Agent, cause *types.Error) bool
}

// Rescheduler is the Agent Manager's (C10) schedule_cycle contract.
type Rescheduler interface {
	ScheduleCycle(agent *types.Agent, retryCount int)
}

const (
	// DefaultMaxRetries is spec.md §6's "max retries" default.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is spec.md §6's "retry delay" default.
	DefaultRetryDelay = 5 * time.Second
	// toolRepetitionWindow is how many recent assistant messages the loop
	// detector scans for a repeated tool-call signature.
	toolRepetitionWindow = 8
)

const (
	firstInterventionMsg = "You have completed several cycles without taking any action, producing a thought, or calling a tool. Please either act on the current task or request a state change."

	secondInterventionMsg = "This is a repeated reminder: no action has been taken in several consecutive cycles. If you are blocked, explain why using a tool call; otherwise take concrete action now. Example: <request_state state='admin_standby'/>"

	forcedConversationMsg = "No progress has been made after multiple cycles. Returning to admin_conversation for clarification with the user."

	completionNudgeMsg = "You have been in this state for 12 cycles. Summarize what has been completed so far."

	toolRepetitionMsg = "The same tool call has been repeated several times in a row. Consider whether this is making progress, or whether a different approach is needed."

	emergencyOverrideMsg = "Repeated tool_information/list_tools calls after a prior intervention indicate a stuck loop. Forcing a return to admin_conversation."
)

// Scheduler is sub-step F, the Next-Step Scheduler: the decision tree that
// runs after outcome determination, plus the Admin-in-work loop detection
// described in spec.md §4.7.
type Scheduler struct {
	failover   FailoverHandler
	reschedule Rescheduler
	maxRetries int
	backoff    *retry.RetryPolicy
	logger     *zap.Logger
}

// NewScheduler constructs a Scheduler. maxRetries/retryDelay of zero fall
// back to the configured defaults. retryDelay seeds an exponential-backoff
// policy (llm/retry) rather than a flat sleep: the first retry waits
// retryDelay, each subsequent one doubles, capped at 10x retryDelay, with
// +/-25% jitter so concurrently-failing agents don't all wake in lockstep.
func NewScheduler(failover FailoverHandler, reschedule Rescheduler, maxRetries int, retryDelay time.Duration, logger *zap.Logger) *Scheduler {
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryDelay == 0 {
		retryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		failover:   failover,
		reschedule: reschedule,
		maxRetries: maxRetries,
		backoff: &retry.RetryPolicy{
			InitialDelay: retryDelay,
			MaxDelay:     retryDelay * 10,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

// Next runs the decision tree against a completed Context.
func (s *Scheduler) Next(ctx context.Context, c *Context) {
	agent := c.Agent

	switch {
	case c.TriggerFailover:
		s.escalateToFailover(ctx, agent, c.Err)
		return

	case c.NeedsReactivation:
		if agent.Type == types.AgentTypeAdmin && awaitingUserApproval(agent) {
			agent.SetStatus(types.StatusIdle)
			return
		}
		s.reschedule.ScheduleCycle(agent, 0)
		return

	case c.Err != nil && types.IsRetryableKind(c.Err.Kind) && c.RetryCount < s.maxRetries:
		time.Sleep(s.backoff.Delay(c.RetryCount + 1))
		s.reschedule.ScheduleCycle(agent, c.RetryCount+1)
		return

	case c.Err != nil && types.IsRetryableKind(c.Err.Kind):
		s.escalateToFailover(ctx, agent, c.Err)
		return

	case c.CycleCompletedSuccessfully:
		s.handleSuccess(agent, c)
		return
	}
}

func (s *Scheduler) escalateToFailover(ctx context.Context, agent *types.Agent, cause *types.Error) {
	if s.failover != nil && s.failover.HandleFailure(ctx, agent, cause) {
		s.logger.Info("failover succeeded, rescheduling", zap.String("agent_id", agent.ID))
		s.reschedule.ScheduleCycle(agent, 0)
		return
	}
	s.logger.Warn("failover exhausted, marking agent error", zap.String("agent_id", agent.ID))
	agent.SetStatus(types.StatusError)
}

func awaitingUserApproval(agent *types.Agent) bool {
	history := agent.HistorySnapshot()
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	return last.Role == types.RoleSystemFrameworkNotification &&
		containsAll(last.Content, "project", "awaiting user approval")
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func (s *Scheduler) handleSuccess(agent *types.Agent, c *Context) {
	state := agent.GetState()

	if agent.Type == types.AgentTypeAdmin && state == types.AdminStateWork {
		s.applyLoopDetection(agent, c)
		if c.SuppressReactivation {
			agent.SetStatus(types.StatusIdle)
			return
		}
	}

	if isPersistentState(agent.Type, state) {
		if c.StateChangeRequested {
			agent.SetStatus(types.StatusIdle)
			return
		}
		s.reschedule.ScheduleCycle(agent, 0)
		return
	}

	if agent.Type == types.AgentTypePM {
		switch state {
		case types.PMStateStartup:
			if !c.ActionTaken && !c.ThoughtProduced {
				agent.AppendHistory(types.Message{Role: types.RoleSystemFrameworkNotification, Content: "Decompose the plan into a <task_list> before proceeding."})
				s.reschedule.ScheduleCycle(agent, 0)
				return
			}
		case types.PMStatePlanDecomposition, types.PMStateBuildTeamTasks, types.PMStateActivateWorkers:
			if !c.ActionTaken && !c.ExecutedToolSuccessfully {
				agent.AppendHistory(types.Message{Role: types.RoleSystemFrameworkNotification, Content: "No action taken this cycle. Continue the task decomposition workflow."})
				s.reschedule.ScheduleCycle(agent, 0)
				return
			}
		}
	}

	agent.SetStatus(types.StatusIdle)
}

func isPersistentState(t types.AgentType, s types.State) bool {
	switch {
	case t == types.AgentTypeAdmin && s == types.AdminStateWork:
		return true
	case t == types.AgentTypePM && s == types.PMStateManage:
		return true
	case t == types.AgentTypeWorker && s == types.WorkerStateWork:
		return true
	default:
		return false
	}
}

// applyLoopDetection implements spec.md §4.7's Admin-in-work counters,
// consolidated per Design Note (b) into the two Agent-owned counters plus
// a single windowed tool-repetition scan.
func (s *Scheduler) applyLoopDetection(agent *types.Agent, c *Context) {
	agent.WorkCycleCount++
	if c.ActionTaken || c.ThoughtProduced {
		agent.ConsecutiveEmptyWorkCycles = 0
	} else {
		agent.ConsecutiveEmptyWorkCycles++
	}

	switch {
	case agent.ConsecutiveEmptyWorkCycles == 2:
		agent.AppendHistory(types.NewMessage(types.RoleSystemIntervention, firstInterventionMsg))
	case agent.ConsecutiveEmptyWorkCycles >= 3 && agent.ConsecutiveEmptyWorkCycles <= 4:
		agent.AppendHistory(types.NewMessage(types.RoleSystemIntervention, secondInterventionMsg))
	case agent.ConsecutiveEmptyWorkCycles >= 5:
		agent.AppendHistory(types.NewMessage(types.RoleSystemIntervention, forcedConversationMsg))
		agent.SetState(types.AdminStateConversation)
		agent.ConsecutiveEmptyWorkCycles = 0
		c.StateChangeRequested = true
	}

	if agent.WorkCycleCount == 12 {
		agent.AppendHistory(types.NewMessage(types.RoleSystemIntervention, completionNudgeMsg))
		c.SuppressReactivation = true
	}

	if sig, count := mostRepeatedToolSignature(agent.HistorySnapshot(), toolRepetitionWindow); count >= 3 {
		agent.AppendHistory(types.NewMessage(types.RoleSystemIntervention, toolRepetitionMsg))
		if sig == "tool_information:list_tools" && count >= 2 && hasPriorIntervention(agent) {
			agent.AppendHistory(types.NewMessage(types.RoleSystemIntervention, emergencyOverrideMsg))
			agent.SetState(types.AdminStateConversation)
			c.StateChangeRequested = true
		}
	}
}

// mostRepeatedToolSignature scans the last window assistant messages for
// the most frequently repeated tool-call name, returning it and its count.
func mostRepeatedToolSignature(history []types.Message, window int) (string, int) {
	counts := make(map[string]int)
	seen := 0
	for i := len(history) - 1; i >= 0 && seen < window; i-- {
		msg := history[i]
		if msg.Role != types.RoleAssistant {
			continue
		}
		seen++
		for _, call := range msg.ToolCalls {
			counts[call.Name]++
		}
	}
	var best string
	var bestCount int
	for name, n := range counts {
		if n > bestCount {
			best, bestCount = name, n
		}
	}
	return best, bestCount
}

func hasPriorIntervention(agent *types.Agent) bool {
	for _, msg := range agent.HistorySnapshot() {
		if msg.Role == types.RoleSystemIntervention {
			return true
		}
	}
	return false
}
