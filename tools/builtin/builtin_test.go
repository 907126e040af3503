package builtin_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentforge/conductor/tools"
	"github.com/agentforge/conductor/tools/builtin"
	"github.com/agentforge/conductor/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolInformation_ListToolsFiltersByAuthLevel(t *testing.T) {
	reg := tools.NewRegistry(nil)
	builtin.RegisterToolInformation(reg)
	reg.Register(tools.Spec{Name: "admin_only", AuthLevel: types.AuthLevelAdmin, Summary: "admin stuff"}, nil)

	exec := tools.NewExecutor(reg, nil)
	worker := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateStartup)

	result := exec.ExecuteOne(context.Background(), worker, types.ToolCall{ID: "c1", Name: "tool_information", Arguments: json.RawMessage(`{"action":"list_tools"}`)})
	require.False(t, result.IsError())

	raw, err := json.Marshal(result.Content)
	require.NoError(t, err)
	var listed []map[string]string
	require.NoError(t, json.Unmarshal(raw, &listed))
	for _, e := range listed {
		assert.NotEqual(t, "admin_only", e["name"], "worker should not see admin-only tools")
	}
}

func TestFileSystem_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	reg := tools.NewRegistry(nil)
	builtin.RegisterFileSystem(reg)
	exec := tools.NewExecutor(reg, nil)

	agent := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateStartup)
	agent.SandboxPath = dir

	writeArgs, _ := json.Marshal(map[string]string{"action": "write", "path": "notes.txt", "content": "hello"})
	result := exec.ExecuteOne(context.Background(), agent, types.ToolCall{ID: "c1", Name: "file_system", Arguments: writeArgs})
	require.False(t, result.IsError())

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	readArgs, _ := json.Marshal(map[string]string{"action": "read", "path": "notes.txt"})
	result = exec.ExecuteOne(context.Background(), agent, types.ToolCall{ID: "c2", Name: "file_system", Arguments: readArgs})
	require.False(t, result.IsError())
	assert.Equal(t, "hello", result.Content)
}

func TestFileSystem_RejectsEscapingSandbox(t *testing.T) {
	dir := t.TempDir()
	reg := tools.NewRegistry(nil)
	builtin.RegisterFileSystem(reg)
	exec := tools.NewExecutor(reg, nil)

	agent := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateStartup)
	agent.SandboxPath = dir

	args, _ := json.Marshal(map[string]string{"action": "read", "path": "../../etc/passwd"})
	result := exec.ExecuteOne(context.Background(), agent, types.ToolCall{ID: "c1", Name: "file_system", Arguments: args})
	require.True(t, result.IsError())
	te := result.Content.(types.ToolError)
	assert.Equal(t, types.ToolErrorInvalidParameter, te.ErrorType)
	assert.Contains(t, te.Message, "../../etc/passwd")
}

func TestFileSystem_TypoedActionSuggestsClosestMatch(t *testing.T) {
	dir := t.TempDir()
	reg := tools.NewRegistry(nil)
	builtin.RegisterFileSystem(reg)
	exec := tools.NewExecutor(reg, nil)

	agent := types.NewAgent("w1", types.AgentTypeWorker, types.WorkerStateStartup)
	agent.SandboxPath = dir

	args, _ := json.Marshal(map[string]string{"action": "reed", "path": "notes.txt"})
	result := exec.ExecuteOne(context.Background(), agent, types.ToolCall{ID: "c1", Name: "file_system", Arguments: args})
	require.True(t, result.IsError())
	te := result.Content.(types.ToolError)
	assert.Equal(t, types.ToolErrorInvalidAction, te.ErrorType)
	assert.Contains(t, te.Message, `unknown action "reed"`)
	assert.Contains(t, te.Suggestions, "read")
	assert.Equal(t, "<file_system><action>read</action></file_system>", te.CorrectedExample)
}

type fakeRouter struct {
	delivered []string
}

func (f *fakeRouter) RouteMessage(ctx context.Context, from, to, content string) error {
	f.delivered = append(f.delivered, from+"->"+to+":"+content)
	return nil
}

func TestSendMessage_RoutesToAgentManager(t *testing.T) {
	reg := tools.NewRegistry(nil)
	router := &fakeRouter{}
	builtin.RegisterSendMessage(reg, router)
	exec := tools.NewExecutor(reg, nil)

	agent := types.NewAgent("pm1", types.AgentTypePM, types.PMStateManage)
	args, _ := json.Marshal(map[string]string{"to_agent_id": "worker1", "content": "start task"})
	result := exec.ExecuteOne(context.Background(), agent, types.ToolCall{ID: "c1", Name: "send_message", Arguments: args})
	require.False(t, result.IsError())
	require.Len(t, router.delivered, 1)
	assert.Equal(t, "pm1->worker1:start task", router.delivered[0])
}

type fakeProjectStore struct {
	tasks map[string][]types.Task
}

func (f *fakeProjectStore) CreateProject(ctx context.Context, p types.Project) error { return nil }
func (f *fakeProjectStore) GetProject(ctx context.Context, id string) (types.Project, bool) {
	return types.Project{}, false
}
func (f *fakeProjectStore) ListProjects(ctx context.Context) []types.Project { return nil }
func (f *fakeProjectStore) AddTask(ctx context.Context, projectID string, t types.Task) error {
	f.tasks[projectID] = append(f.tasks[projectID], t)
	return nil
}
func (f *fakeProjectStore) ListTasks(ctx context.Context, projectID string) ([]types.Task, error) {
	return f.tasks[projectID], nil
}
func (f *fakeProjectStore) UpdateTaskStatus(ctx context.Context, projectID, taskID string, status types.TaskStatus) error {
	for i, t := range f.tasks[projectID] {
		if t.ID == taskID {
			f.tasks[projectID][i].Status = status
			return nil
		}
	}
	return nil
}

func TestProjectManagement_ListAndUpdateTasks(t *testing.T) {
	store := &fakeProjectStore{tasks: map[string][]types.Task{
		"proj1": {{ID: "t1", Title: "write docs", Status: types.TaskStatusPending}},
	}}
	reg := tools.NewRegistry(nil)
	builtin.RegisterProjectManagement(reg, store)
	exec := tools.NewExecutor(reg, nil)

	pm := types.NewAgent("pm1", types.AgentTypePM, types.PMStateManage)
	pm.ProjectID = "proj1"

	listArgs, _ := json.Marshal(map[string]string{"action": "list_tasks"})
	result := exec.ExecuteOne(context.Background(), pm, types.ToolCall{ID: "c1", Name: "project_management", Arguments: listArgs})
	require.False(t, result.IsError())

	updateArgs, _ := json.Marshal(map[string]string{"action": "update_task_status", "task_id": "t1", "status": "done"})
	result = exec.ExecuteOne(context.Background(), pm, types.ToolCall{ID: "c2", Name: "project_management", Arguments: updateArgs})
	require.False(t, result.IsError())
	assert.Equal(t, types.TaskStatusDone, store.tasks["proj1"][0].Status)
}
