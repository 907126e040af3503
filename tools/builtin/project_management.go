package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentforge/conductor/tools"
	"github.com/agentforge/conductor/types"
)

// RegisterProjectManagement registers the project_management tool: mid-cycle
// task querying and status updates for the project a PM or Admin owns. The
// project-creation and PM-kickoff workflows (C6) create projects/tasks
// directly against the same store; this tool is for inspection and status
// transitions once they exist.
func RegisterProjectManagement(reg *tools.Registry, store types.ProjectStore) {
	reg.Register(tools.Spec{
		Name:         "project_management",
		AuthLevel:    types.AuthLevelPM,
		Summary:      "Inspect and update tasks for the calling agent's project.",
		Description:  "actions: list_tasks, update_task_status(task_id, status)",
		ValidActions: []string{"list_tasks", "update_task_status"},
	}, func(ctx context.Context, agent *types.Agent, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Action string `json:"action"`
			TaskID string `json:"task_id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if agent.ProjectID == "" {
			return nil, fmt.Errorf("agent has no associated project")
		}

		switch req.Action {
		case "list_tasks":
			tasks, err := store.ListTasks(ctx, agent.ProjectID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(tasks)

		case "update_task_status":
			if req.TaskID == "" {
				return nil, tools.MissingParameterError{Parameter: "task_id"}
			}
			status := types.TaskStatus(req.Status)
			switch status {
			case types.TaskStatusPending, types.TaskStatusInProgress, types.TaskStatusDone, types.TaskStatusFailed:
			default:
				return nil, tools.InvalidParameterError{Parameter: "status", Value: req.Status}
			}
			if err := store.UpdateTaskStatus(ctx, agent.ProjectID, req.TaskID, status); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"task_id": req.TaskID, "status": status})

		default:
			return nil, tools.InvalidActionError{Action: req.Action}
		}
	})
}
