package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/conductor/types"
)

// ProjectStore is an in-memory types.ProjectStore, sufficient for the
// project-creation/PM-kickoff workflows and the project_management tool.
// Persisting projects durably is out of scope (spec.md §1: "SQL
// persistence" is an external collaborator); a real deployment can swap
// this for a persistence.Store-backed implementation without changing
// either workflow.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string]types.Project
}

// NewProjectStore constructs an empty ProjectStore.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{projects: make(map[string]types.Project)}
}

var _ types.ProjectStore = (*ProjectStore)(nil)

func (s *ProjectStore) CreateProject(ctx context.Context, p types.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return nil // idempotent: spec §8 requires re-dispatch to be a no-op
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.projects[p.ID] = p
	return nil
}

func (s *ProjectStore) GetProject(ctx context.Context, id string) (types.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

func (s *ProjectStore) ListProjects(ctx context.Context) []types.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out
}

func (s *ProjectStore) AddTask(ctx context.Context, projectID string, t types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("workflow: project %q not found", projectID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = t.CreatedAt
	t.ProjectID = projectID
	p.Tasks = append(p.Tasks, t)
	s.projects[projectID] = p
	return nil
}

func (s *ProjectStore) ListTasks(ctx context.Context, projectID string) ([]types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("workflow: project %q not found", projectID)
	}
	out := make([]types.Task, len(p.Tasks))
	copy(out, p.Tasks)
	return out, nil
}

func (s *ProjectStore) UpdateTaskStatus(ctx context.Context, projectID, taskID string, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("workflow: project %q not found", projectID)
	}
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			p.Tasks[i].Status = status
			p.Tasks[i].UpdatedAt = time.Now()
			s.projects[projectID] = p
			return nil
		}
	}
	return fmt.Errorf("workflow: task %q not found in project %q", taskID, projectID)
}
