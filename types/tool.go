package types

import (
	"encoding/json"
	"time"
)

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Version     string          `json:"version,omitempty"`
}

// ToolResult is one tool call's outcome, per spec.md §3: a call id, the
// tool name, content (a plain string or a structured value such as a
// ToolError), and a status.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Content  any            `json:"content"`
	Status   ToolCallStatus `json:"status"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// ToMessage converts ToolResult to the tool-role Message appended to an
// agent's history.
func (tr ToolResult) ToMessage() Message {
	var content string
	switch c := tr.Content.(type) {
	case string:
		content = c
	case nil:
		content = ""
	default:
		raw, err := json.Marshal(c)
		if err != nil {
			content = tr.Status.String()
		} else {
			content = string(raw)
		}
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       tr.Name,
		ToolCallID: tr.CallID,
	}
}

// IsError returns true if the tool execution failed.
func (tr ToolResult) IsError() bool {
	return tr.Status == ToolCallError
}

// String renders a ToolCallStatus for display/fallback encoding.
func (s ToolCallStatus) String() string { return string(s) }

// AuthLevel is the minimum agent type required to invoke a tool.
type AuthLevel string

const (
	AuthLevelWorker AuthLevel = "worker" // any agent type may call it
	AuthLevelPM     AuthLevel = "pm"     // PM and Admin only
	AuthLevelAdmin  AuthLevel = "admin"  // Admin only
)

// Allows reports whether an agent of the given type may invoke a tool
// declaring this AuthLevel.
func (a AuthLevel) Allows(agentType AgentType) bool {
	switch a {
	case AuthLevelAdmin:
		return agentType == AgentTypeAdmin
	case AuthLevelPM:
		return agentType == AgentTypeAdmin || agentType == AgentTypePM
	default:
		return true
	}
}

// ToolErrorType categorizes a ToolError the way the calling LLM can branch
// on programmatically instead of pattern-matching Message, grounded on
// original_source's ErrorType enum (src/tools/error_handler.py).
type ToolErrorType string

const (
	ToolErrorInvalidAction    ToolErrorType = "invalid_action"
	ToolErrorMissingParameter ToolErrorType = "missing_parameter"
	ToolErrorInvalidParameter ToolErrorType = "invalid_parameter"
	ToolErrorAuthorization    ToolErrorType = "authorization_error"
	ToolErrorExecution        ToolErrorType = "execution_error"
	ToolErrorFormat           ToolErrorType = "format_error"
	ToolErrorToolNotFound     ToolErrorType = "tool_not_found"
)

// ToolError is the structured payload the Tool Executor embeds as tool
// result content (never a Go error) when a call cannot be fulfilled: unknown
// tool name, permission denied, or argument validation failure. Its fields
// are designed to be directly actionable by the calling LLM on its next
// cycle rather than just a human-readable message.
type ToolError struct {
	ErrorType        ToolErrorType `json:"error_type"`
	Message          string        `json:"message"`
	Suggestions      []string      `json:"suggestions,omitempty"`
	CorrectedExample string        `json:"corrected_example,omitempty"`
	AlternativeTools []string      `json:"alternative_tools,omitempty"`
}
