package workflow_test

import (
	"context"
	"testing"

	"github.com/agentforge/conductor/types"
	"github.com/agentforge/conductor/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPMKickoff_CreatesOneWorkerPerTask(t *testing.T) {
	store := workflow.NewProjectStore()
	require.NoError(t, store.CreateProject(context.Background(), types.Project{ID: "p1", Title: "Launch"}))
	factory := &fakeAgentFactory{}
	w := workflow.NewPMKickoff(store, factory)

	pm := types.NewAgent("pm1", types.AgentTypePM, types.PMStateStartup)
	pm.ProjectID = "p1"

	fragment := `<task_list><task>write docs</task><task>ship release</task></task_list>`
	result, err := w.Execute(context.Background(), pm, fragment)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.PMStateBuildTeamTasks, result.NextState)
	assert.Len(t, factory.created, 2)
	assert.Len(t, result.TasksToSchedule, 2)

	tasks, err := store.ListTasks(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "write docs", tasks[0].Title)
	assert.NotEmpty(t, tasks[0].AssigneeID)
	assert.Equal(t, types.TaskStatusPending, tasks[0].Status)
}

func TestPMKickoff_EmptyTaskListFails(t *testing.T) {
	store := workflow.NewProjectStore()
	require.NoError(t, store.CreateProject(context.Background(), types.Project{ID: "p1"}))
	factory := &fakeAgentFactory{}
	w := workflow.NewPMKickoff(store, factory)

	pm := types.NewAgent("pm1", types.AgentTypePM, types.PMStateStartup)
	pm.ProjectID = "p1"

	result, err := w.Execute(context.Background(), pm, `<task_list></task_list>`)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, factory.created)
}
