package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/conductor/internal/xmlscan"
	"github.com/agentforge/conductor/types"
	"github.com/google/uuid"
)

// PMKickoff is the PM-side workflow triggered by a <task_list> tag while
// the PM is in the pm_startup state (spec.md §4.6's supplement): it parses
// the repeated <task> children, creates one Worker agent per task, and
// advances the PM to pm_build_team_tasks.
type PMKickoff struct {
	store  types.ProjectStore
	agents types.AgentFactory
}

// NewPMKickoff constructs the PM-kickoff workflow.
func NewPMKickoff(store types.ProjectStore, agents types.AgentFactory) *PMKickoff {
	return &PMKickoff{store: store, agents: agents}
}

func (w *PMKickoff) Name() string                { return "pm_kickoff" }
func (w *PMKickoff) TriggerTag() string           { return "task_list" }
func (w *PMKickoff) AllowedType() types.AgentType { return types.AgentTypePM }
func (w *PMKickoff) AllowedState() types.State    { return types.PMStateStartup }

func (w *PMKickoff) Execute(ctx context.Context, agent *types.Agent, fragment string) (Result, error) {
	taskTitles, err := xmlscan.ChildrenText(fragment, "task")
	if err != nil {
		return Result{}, fmt.Errorf("pm_kickoff: parse <task_list>: %w", err)
	}
	taskTitles = nonEmpty(taskTitles)
	if len(taskTitles) == 0 {
		return Result{Success: false, Message: "task_list contained no <task> entries"}, nil
	}

	scheduled := make([]types.Task, 0, len(taskTitles))
	for _, title := range taskTitles {
		taskID := uuid.NewString()

		worker, err := w.agents.CreateAgent(ctx, types.CreateAgentRequest{
			AgentType: types.AgentTypeWorker,
			ParentID:  agent.ID,
			ProjectID: agent.ProjectID,
			Persona:   fmt.Sprintf("You are a Worker assigned the task: %s", title),
		})
		if err != nil {
			return Result{}, fmt.Errorf("pm_kickoff: create worker for task %q: %w", title, err)
		}

		task := types.Task{
			ID:         taskID,
			ProjectID:  agent.ProjectID,
			Title:      title,
			AssigneeID: worker.ID,
			Status:     types.TaskStatusPending,
		}
		if err := w.store.AddTask(ctx, agent.ProjectID, task); err != nil {
			return Result{}, fmt.Errorf("pm_kickoff: persist task %q: %w", title, err)
		}
		scheduled = append(scheduled, task)
	}

	return Result{
		Success:         true,
		Message:         fmt.Sprintf("created %d worker(s) for project %s", len(scheduled), agent.ProjectID),
		NextState:       types.PMStateBuildTeamTasks,
		NextStatus:      types.StatusIdle,
		TasksToSchedule: scheduled,
	}, nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
