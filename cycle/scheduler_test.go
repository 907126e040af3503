package cycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentforge/conductor/cycle"
	"github.com/agentforge/conductor/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFailover struct {
	succeed bool
	calls   int
}

func (f *fakeFailover) HandleFailure(ctx context.Context, agent *types.Agent, cause *types.Error) bool {
	f.calls++
	return f.succeed
}

type fakeRescheduler struct {
	scheduled []int
}

func (f *fakeRescheduler) ScheduleCycle(agent *types.Agent, retryCount int) {
	f.scheduled = append(f.scheduled, retryCount)
}

func TestScheduler_TriggerFailover_SuccessReschedulesFreshRetry(t *testing.T) {
	fo := &fakeFailover{succeed: true}
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(fo, rs, 3, time.Millisecond, nil)

	agent := types.NewAgent("a1", types.AgentTypeWorker, types.WorkerStateWork)
	c := cycle.NewContext(agent, 2)
	c.TriggerFailover = true
	c.Err = types.NewError(types.ExceptionAuth, "bad key")

	s.Next(context.Background(), c)
	assert.Equal(t, 1, fo.calls)
	require.Len(t, rs.scheduled, 1)
	assert.Equal(t, 0, rs.scheduled[0])
}

func TestScheduler_TriggerFailover_FailureMarksAgentError(t *testing.T) {
	fo := &fakeFailover{succeed: false}
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(fo, rs, 3, time.Millisecond, nil)

	agent := types.NewAgent("a1", types.AgentTypeWorker, types.WorkerStateWork)
	c := cycle.NewContext(agent, 0)
	c.TriggerFailover = true

	s.Next(context.Background(), c)
	assert.Empty(t, rs.scheduled)
	assert.Equal(t, types.StatusError, agent.Status)
}

func TestScheduler_RetryableError_RetriesUnderMax(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	agent := types.NewAgent("a1", types.AgentTypeWorker, types.WorkerStateWork)
	c := cycle.NewContext(agent, 1)
	c.Err = types.NewError(types.ExceptionTimeout, "timed out")

	s.Next(context.Background(), c)
	require.Len(t, rs.scheduled, 1)
	assert.Equal(t, 2, rs.scheduled[0])
}

func TestScheduler_RetryableError_BackoffGrowsWithRetryCount(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 5, 10*time.Millisecond, nil)

	agent := types.NewAgent("a1", types.AgentTypeWorker, types.WorkerStateWork)

	first := cycle.NewContext(agent, 0)
	first.Err = types.NewError(types.ExceptionTimeout, "timed out")
	start := time.Now()
	s.Next(context.Background(), first)
	firstDelay := time.Since(start)

	second := cycle.NewContext(agent, 1)
	second.Err = types.NewError(types.ExceptionTimeout, "timed out")
	start = time.Now()
	s.Next(context.Background(), second)
	secondDelay := time.Since(start)

	assert.Greater(t, secondDelay, firstDelay, "the second retry should wait longer than the first")
}

func TestScheduler_RetryableError_ExhaustedEscalatesToFailover(t *testing.T) {
	fo := &fakeFailover{succeed: true}
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(fo, rs, 2, time.Millisecond, nil)

	agent := types.NewAgent("a1", types.AgentTypeWorker, types.WorkerStateWork)
	c := cycle.NewContext(agent, 2)
	c.Err = types.NewError(types.ExceptionTimeout, "timed out")

	s.Next(context.Background(), c)
	assert.Equal(t, 1, fo.calls)
}

func TestScheduler_NeedsReactivation_SuppressedForAdminAwaitingApproval(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	agent := types.NewAgent("admin_ai", types.AgentTypeAdmin, types.AdminStateWorkDelegated)
	agent.AppendHistory(types.Message{Role: types.RoleSystemFrameworkNotification, Content: "project \"Launch\" awaiting user approval"})
	c := cycle.NewContext(agent, 0)
	c.NeedsReactivation = true
	c.CycleCompletedSuccessfully = true

	s.Next(context.Background(), c)
	assert.Empty(t, rs.scheduled)
	assert.Equal(t, types.StatusIdle, agent.Status)
}

func TestScheduler_NeedsReactivation_ReschedulesOtherwise(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	agent := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateWork)
	c := cycle.NewContext(agent, 0)
	c.NeedsReactivation = true

	s.Next(context.Background(), c)
	require.Len(t, rs.scheduled, 1)
}

func TestScheduler_PersistentState_ReactivatesUnlessStateChangeRequested(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	agent := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateWork)
	c := cycle.NewContext(agent, 0)
	c.CycleCompletedSuccessfully = true

	s.Next(context.Background(), c)
	require.Len(t, rs.scheduled, 1, "persistent state reactivates by default")
}

func TestScheduler_PersistentState_IdlesWhenStateChangeRequested(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	agent := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateWork)
	c := cycle.NewContext(agent, 0)
	c.CycleCompletedSuccessfully = true
	c.StateChangeRequested = true

	s.Next(context.Background(), c)
	assert.Empty(t, rs.scheduled)
	assert.Equal(t, types.StatusIdle, agent.Status)
}

func TestScheduler_PMStartup_NudgesWhenNoActionOrThought(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	pm := types.NewAgent("pm1", types.AgentTypePM, types.PMStateStartup)
	c := cycle.NewContext(pm, 0)
	c.CycleCompletedSuccessfully = true

	s.Next(context.Background(), c)
	require.Len(t, rs.scheduled, 1)
	history := pm.HistorySnapshot()
	require.Len(t, history, 1)
	assert.Equal(t, types.RoleSystemFrameworkNotification, history[0].Role)
}

func TestScheduler_PMStartup_IdlesWhenActionTaken(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	pm := types.NewAgent("pm1", types.AgentTypePM, types.PMStateStartup)
	c := cycle.NewContext(pm, 0)
	c.CycleCompletedSuccessfully = true
	c.ActionTaken = true

	s.Next(context.Background(), c)
	assert.Empty(t, rs.scheduled)
	assert.Equal(t, types.StatusIdle, pm.Status)
}

func TestScheduler_AdminWork_LoopDetection_FirstIntervention(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	admin := types.NewAgent("admin_ai", types.AgentTypeAdmin, types.AdminStateWork)
	admin.ConsecutiveEmptyWorkCycles = 1
	c := cycle.NewContext(admin, 0)
	c.CycleCompletedSuccessfully = true

	s.Next(context.Background(), c)
	assert.Equal(t, 2, admin.ConsecutiveEmptyWorkCycles)
	history := admin.HistorySnapshot()
	require.Len(t, history, 1)
	assert.Equal(t, types.RoleSystemIntervention, history[0].Role)
}

func TestScheduler_AdminWork_LoopDetection_ForcedTransitionAtFive(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	admin := types.NewAgent("admin_ai", types.AgentTypeAdmin, types.AdminStateWork)
	admin.ConsecutiveEmptyWorkCycles = 4
	c := cycle.NewContext(admin, 0)
	c.CycleCompletedSuccessfully = true

	s.Next(context.Background(), c)
	assert.Equal(t, types.AdminStateConversation, admin.GetState())
	assert.Equal(t, 0, admin.ConsecutiveEmptyWorkCycles)
}

func TestScheduler_AdminWork_ResetsCounterOnAction(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	admin := types.NewAgent("admin_ai", types.AgentTypeAdmin, types.AdminStateWork)
	admin.ConsecutiveEmptyWorkCycles = 3
	c := cycle.NewContext(admin, 0)
	c.CycleCompletedSuccessfully = true
	c.ActionTaken = true

	s.Next(context.Background(), c)
	assert.Equal(t, 0, admin.ConsecutiveEmptyWorkCycles)
}

func TestScheduler_AdminWork_CompletionNudgeAtTwelveCycles(t *testing.T) {
	rs := &fakeRescheduler{}
	s := cycle.NewScheduler(nil, rs, 3, time.Millisecond, nil)

	admin := types.NewAgent("admin_ai", types.AgentTypeAdmin, types.AdminStateWork)
	admin.WorkCycleCount = 11
	c := cycle.NewContext(admin, 0)
	c.CycleCompletedSuccessfully = true
	c.ActionTaken = true

	s.Next(context.Background(), c)
	assert.Equal(t, 12, admin.WorkCycleCount)
	assert.Equal(t, types.StatusIdle, admin.Status, "reactivation suppressed for the nudge step")
}
