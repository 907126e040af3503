package types_test

import (
	"sync"
	"testing"

	"github.com/agentforge/conductor/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgent_TryLockExec_SingleInFlight(t *testing.T) {
	a := types.NewAgent("admin_ai", types.AgentTypeAdmin, types.AdminStateStartup)

	require.True(t, a.TryLockExec())
	assert.False(t, a.TryLockExec(), "a second concurrent cycle must observe the agent as busy")
	a.UnlockExec()
	assert.True(t, a.TryLockExec())
	a.UnlockExec()
}

func TestAgent_TryLockExec_ConcurrentCallersAtMostOneWins(t *testing.T) {
	a := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateStartup)
	const n = 50
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- a.TryLockExec()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

func TestAgent_HistorySnapshotIsACopy(t *testing.T) {
	a := types.NewAgent("pm1", types.AgentTypePM, types.PMStateStartup)
	a.AppendHistory(types.NewSystemMessage("state prompt"))

	snap := a.HistorySnapshot()
	snap[0].Content = "mutated"

	assert.Equal(t, "state prompt", a.HistorySnapshot()[0].Content)
}

func TestAgent_ToSnapshotCopiesFields(t *testing.T) {
	a := types.NewAgent("admin_ai", types.AgentTypeAdmin, types.AdminStateStartup)
	a.Provider = "openaicompat"
	a.Model = "gpt-4o-mini"
	a.SetState(types.AdminStateConversation)

	snap := a.ToSnapshot()
	assert.Equal(t, "admin_ai", snap.ID)
	assert.Equal(t, types.AdminStateConversation, snap.State)
	assert.Equal(t, "openaicompat", snap.Provider)
}
