package types

import "context"

// CreateAgentRequest is the Lifecycle Manager's create_agent contract
// (spec.md §4.9), trimmed to the fields a Workflow Manager workflow needs
// to spawn a PM or Worker. RequestedID is empty to let the Lifecycle
// Manager assign one.
type CreateAgentRequest struct {
	RequestedID string
	AgentType   AgentType
	ParentID    string
	ProjectID   string
	Persona     string

	// Provider and Model pin the agent to a specific (provider_instance,
	// model_suffix) pair; leaving either empty triggers auto-selection
	// (spec.md §4.9).
	Provider string
	Model    string
}

// AgentFactory is implemented by the Lifecycle Manager (C9) and consumed by
// the Workflow Manager's project-creation and PM-kickoff workflows, kept as
// an interface in the dependency-free types package so neither side needs
// to import the other's concrete package.
type AgentFactory interface {
	CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error)
}
