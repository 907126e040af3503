// Package builtin implements the four built-in tools required by spec.md
// §4.5: tool_information, file_system, send_message, and
// project_management. Grounded on original_source/src/tools/ for the
// action surfaces and the teacher's llm/tools package for the registration
// idiom.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agentforge/conductor/tools"
	"github.com/agentforge/conductor/types"
)

const infoOutputCap = 8000

// RegisterToolInformation registers the tool_information meta-tool, which
// lists or describes the tools visible to the calling agent.
func RegisterToolInformation(reg *tools.Registry) {
	reg.Register(tools.Spec{
		Name:         "tool_information",
		AuthLevel:    types.AuthLevelWorker,
		Summary:      "List available tools or get detailed usage for one.",
		Description:  "actions: list_tools (name + summary for every authorized tool), get_info (full usage for one tool, or all if tool_name is omitted)",
		ValidActions: []string{"list_tools", "get_info"},
	}, func(ctx context.Context, agent *types.Agent, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Action   string `json:"action"`
			ToolName string `json:"tool_name"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}

		visible := reg.VisibleTo(agent.Type)
		sort.Slice(visible, func(i, j int) bool { return visible[i].Name < visible[j].Name })

		switch req.Action {
		case "list_tools", "":
			type entry struct {
				Name    string `json:"name"`
				Summary string `json:"summary"`
			}
			out := make([]entry, 0, len(visible))
			for _, spec := range visible {
				out = append(out, entry{Name: spec.Name, Summary: spec.Summary})
			}
			return json.Marshal(out)

		case "get_info":
			var b strings.Builder
			wrote := 0
			for _, spec := range visible {
				if req.ToolName != "" && spec.Name != req.ToolName {
					continue
				}
				section := fmt.Sprintf("## %s (auth: %s)\n%s\n\n", spec.Name, spec.AuthLevel, spec.Description)
				if b.Len()+len(section) > infoOutputCap {
					b.WriteString("...[truncated]")
					break
				}
				b.WriteString(section)
				wrote++
			}
			if wrote == 0 && req.ToolName != "" {
				return nil, fmt.Errorf("tool %q not found or not authorized", req.ToolName)
			}
			return json.Marshal(b.String())

		default:
			return nil, tools.InvalidActionError{Action: req.Action}
		}
	})
}
