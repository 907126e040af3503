package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/conductor/internal/xmlscan"
	"github.com/agentforge/conductor/types"
	"github.com/google/uuid"
)

// projectNamespace is a fixed namespace UUID used to derive deterministic
// project ids (uuid.NewSHA1 over title+admin id), so a spurious re-dispatch
// of the same <plan> never creates a second project.
var projectNamespace = uuid.MustParse("6f7b1b8a-6e79-4e1e-8c5c-6b6d3b6a6b3a")

// ProjectCreation is the Admin-side workflow triggered by a <plan> tag
// while the Admin is in the planning state (spec.md §4.6's supplement).
// The incoming fragment is expected to carry a <title> and, per design
// note (c), a <_raw_plan_body_> child that the Workflow Manager itself
// injects before dispatch (see InjectRawPlanBody) rather than one the LLM
// produces directly.
type ProjectCreation struct {
	store    types.ProjectStore
	agents   types.AgentFactory
	personaP string // persona string handed to the spawned PM
}

// NewProjectCreation constructs the project-creation workflow.
func NewProjectCreation(store types.ProjectStore, agents types.AgentFactory) *ProjectCreation {
	return &ProjectCreation{store: store, agents: agents, personaP: "You are a Project Manager responsible for decomposing and tracking one project."}
}

func (w *ProjectCreation) Name() string                 { return "project_creation" }
func (w *ProjectCreation) TriggerTag() string           { return "plan" }
func (w *ProjectCreation) AllowedType() types.AgentType { return types.AgentTypeAdmin }
func (w *ProjectCreation) AllowedState() types.State    { return types.AdminStatePlanning }

// InjectRawPlanBody is a preprocessing step the Cycle Handler runs on an
// Admin's raw response before handing it to Manager.Dispatch, synthesizing
// the <_raw_plan_body_> child inside the first <plan> block from the whole
// plan fragment. The source model never emits this tag itself; the
// framework derives it so the workflow has the full plan text available
// even when <title> is the only structured child the LLM reliably
// produces.
func InjectRawPlanBody(rawResponse string) string {
	fragment, found, err := xmlscan.FindFirst(rawResponse, "plan")
	if err != nil || !found {
		return rawResponse
	}
	if strings.Contains(fragment, "<_raw_plan_body_>") {
		return rawResponse
	}
	injected := strings.Replace(fragment, "</plan>",
		"<_raw_plan_body_>"+fragment+"</_raw_plan_body_></plan>", 1)
	return strings.Replace(rawResponse, fragment, injected, 1)
}

func (w *ProjectCreation) Execute(ctx context.Context, agent *types.Agent, fragment string) (Result, error) {
	children, err := xmlscan.FlattenChildren(fragment)
	if err != nil {
		return Result{}, fmt.Errorf("project_creation: parse <plan>: %w", err)
	}
	title := strings.TrimSpace(children["title"])
	if title == "" {
		return Result{Success: false, Message: "plan missing <title>"}, nil
	}
	body := children["_raw_plan_body_"]
	if body == "" {
		body = fragment
	}

	projectID := uuid.NewSHA1(projectNamespace, []byte(title+"|"+agent.ID)).String()

	if existing, ok := w.store.GetProject(ctx, projectID); ok {
		return Result{
			Success:               true,
			Message:               fmt.Sprintf("project %q already exists, PM %s", existing.Title, existing.PMAgentID),
			NextState:             types.AdminStateWorkDelegated,
			NextStatus:            types.StatusIdle,
			FrameworkNotification: awaitingApprovalNotification(existing.Title),
		}, nil
	}

	pm, err := w.agents.CreateAgent(ctx, types.CreateAgentRequest{
		AgentType: types.AgentTypePM,
		ParentID:  agent.ID,
		ProjectID: projectID,
		Persona:   w.personaP,
	})
	if err != nil {
		return Result{}, fmt.Errorf("project_creation: create PM agent: %w", err)
	}

	project := types.Project{
		ID:          projectID,
		Title:       title,
		Description: body,
		AdminID:     agent.ID,
		PMAgentID:   pm.ID,
	}
	if err := w.store.CreateProject(ctx, project); err != nil {
		return Result{}, fmt.Errorf("project_creation: persist project: %w", err)
	}

	return Result{
		Success:               true,
		Message:               fmt.Sprintf("created project %q, PM agent %s", title, pm.ID),
		NextState:             types.AdminStateWorkDelegated,
		NextStatus:            types.StatusIdle,
		UIMessage:             fmt.Sprintf("Project %q created; awaiting PM task breakdown.", title),
		FrameworkNotification: awaitingApprovalNotification(title),
	}, nil
}

// awaitingApprovalNotification is the message appended to the Admin's real
// history once a project has been created and handed off to its PM,
// matched by cycle.Scheduler's loop-detection check to idle the Admin
// instead of rescheduling it straight back into work (spec.md §4.7 sub-step
// F).
func awaitingApprovalNotification(title string) string {
	return fmt.Sprintf("%q has been handed off to its PM; this project is now awaiting user approval before further delegation.", title)
}
