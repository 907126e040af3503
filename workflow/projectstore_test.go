package workflow_test

import (
	"context"
	"testing"

	"github.com/agentforge/conductor/types"
	"github.com/agentforge/conductor/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectStore_CreateAndGet(t *testing.T) {
	s := workflow.NewProjectStore()
	ctx := context.Background()

	err := s.CreateProject(ctx, types.Project{ID: "p1", Title: "Launch"})
	require.NoError(t, err)

	p, ok := s.GetProject(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, "Launch", p.Title)
}

func TestProjectStore_CreateProject_IdempotentOnDuplicateID(t *testing.T) {
	s := workflow.NewProjectStore()
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, types.Project{ID: "p1", Title: "Launch"}))
	require.NoError(t, s.CreateProject(ctx, types.Project{ID: "p1", Title: "Overwritten"}))

	p, _ := s.GetProject(ctx, "p1")
	assert.Equal(t, "Launch", p.Title, "second create with the same id must be a no-op")
}

func TestProjectStore_AddTaskAndListTasks(t *testing.T) {
	s := workflow.NewProjectStore()
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, types.Project{ID: "p1", Title: "Launch"}))

	require.NoError(t, s.AddTask(ctx, "p1", types.Task{ID: "t1", Title: "write docs", Status: types.TaskStatusPending}))

	tasks, err := s.ListTasks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "write docs", tasks[0].Title)
	assert.Equal(t, "p1", tasks[0].ProjectID)
}

func TestProjectStore_AddTask_UnknownProjectErrors(t *testing.T) {
	s := workflow.NewProjectStore()
	err := s.AddTask(context.Background(), "nope", types.Task{ID: "t1"})
	assert.Error(t, err)
}

func TestProjectStore_UpdateTaskStatus(t *testing.T) {
	s := workflow.NewProjectStore()
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, types.Project{ID: "p1"}))
	require.NoError(t, s.AddTask(ctx, "p1", types.Task{ID: "t1", Status: types.TaskStatusPending}))

	require.NoError(t, s.UpdateTaskStatus(ctx, "p1", "t1", types.TaskStatusDone))

	tasks, err := s.ListTasks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.TaskStatusDone, tasks[0].Status)
}

func TestProjectStore_UpdateTaskStatus_UnknownTaskErrors(t *testing.T) {
	s := workflow.NewProjectStore()
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, types.Project{ID: "p1"}))

	err := s.UpdateTaskStatus(ctx, "p1", "missing", types.TaskStatusDone)
	assert.Error(t, err)
}
