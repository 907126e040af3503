package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentforge/conductor/tools"
	"github.com/agentforge/conductor/types"
)

// MessageRouter delivers one agent's message into another agent's history,
// implemented by the Agent Manager (C10).
type MessageRouter interface {
	RouteMessage(ctx context.Context, fromAgentID, toAgentID, content string) error
}

// RegisterSendMessage registers the send_message tool, used by a PM to
// direct a Worker or by a Worker to report back to its PM.
func RegisterSendMessage(reg *tools.Registry, router MessageRouter) {
	reg.Register(tools.Spec{
		Name:        "send_message",
		AuthLevel:   types.AuthLevelWorker,
		Summary:     "Send a message to another agent.",
		Description: "args: to_agent_id, content",
	}, func(ctx context.Context, agent *types.Agent, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			ToAgentID string `json:"to_agent_id"`
			Content   string `json:"content"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if req.ToAgentID == "" {
			return nil, tools.MissingParameterError{Parameter: "to_agent_id"}
		}
		if req.Content == "" {
			return nil, tools.MissingParameterError{Parameter: "content"}
		}
		if err := router.RouteMessage(ctx, agent.ID, req.ToAgentID, req.Content); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"delivered_to": req.ToAgentID})
	})
}
