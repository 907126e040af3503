package types

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle status of one decomposed unit of work.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is one unit of work a PM hands to a Worker, created by the PM
// kickoff workflow from a <task_list> element.
type Task struct {
	ID         string
	ProjectID  string
	Title      string
	AssigneeID string // Worker agent id, empty until assigned
	Status     TaskStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Project is created by the project-creation workflow from an Admin's
// <plan>. Its ID is derived deterministically (uuid.NewSHA1 over title +
// admin id) so a spurious re-dispatch of the same plan does not create a
// second project.
type Project struct {
	ID          string
	Title       string
	Description string
	AdminID     string
	PMAgentID   string
	Tasks       []Task
	CreatedAt   time.Time
}

// ProjectStore is the shared persistence/lookup contract for projects and
// tasks, implemented by the workflow package and consumed by the
// project_management tool and the project-creation/PM-kickoff workflows.
type ProjectStore interface {
	CreateProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id string) (Project, bool)
	ListProjects(ctx context.Context) []Project
	AddTask(ctx context.Context, projectID string, t Task) error
	ListTasks(ctx context.Context, projectID string) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, projectID, taskID string, status TaskStatus) error
}
