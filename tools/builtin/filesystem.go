package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentforge/conductor/tools"
	"github.com/agentforge/conductor/types"
)

// RegisterFileSystem registers the file_system tool: sandbox-scoped
// read/write/list, confined to the calling agent's SandboxPath.
func RegisterFileSystem(reg *tools.Registry) {
	reg.Register(tools.Spec{
		Name:         "file_system",
		AuthLevel:    types.AuthLevelWorker,
		Summary:      "Read, write, or list files within this agent's sandbox.",
		Description:  "actions: read(path), write(path, content), mkdir(path), list(path)",
		ValidActions: []string{"read", "write", "mkdir", "list"},
	}, func(ctx context.Context, agent *types.Agent, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Action  string `json:"action"`
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if agent.SandboxPath == "" {
			return nil, fmt.Errorf("agent has no sandbox path assigned")
		}
		resolved, err := sandboxResolve(agent.SandboxPath, req.Path)
		if err != nil {
			return nil, err
		}

		switch req.Action {
		case "read":
			data, err := os.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", req.Path, err)
			}
			return json.Marshal(string(data))

		case "write":
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return nil, fmt.Errorf("write %s: %w", req.Path, err)
			}
			if err := os.WriteFile(resolved, []byte(req.Content), 0o644); err != nil {
				return nil, fmt.Errorf("write %s: %w", req.Path, err)
			}
			return json.Marshal(map[string]any{"bytes_written": len(req.Content)})

		case "mkdir":
			if err := os.MkdirAll(resolved, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", req.Path, err)
			}
			return json.Marshal(map[string]any{"created": req.Path})

		case "list":
			entries, err := os.ReadDir(resolved)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", req.Path, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			return json.Marshal(names)

		default:
			return nil, tools.InvalidActionError{Action: req.Action}
		}
	})
}

// sandboxResolve joins rel onto sandboxRoot and rejects any path that
// escapes the sandbox via "..".
func sandboxResolve(sandboxRoot, rel string) (string, error) {
	cleanRoot, err := filepath.Abs(sandboxRoot)
	if err != nil {
		return "", fmt.Errorf("invalid sandbox root: %w", err)
	}
	joined := filepath.Join(cleanRoot, rel)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(os.PathSeparator)) {
		return "", tools.InvalidParameterError{Parameter: "path", Value: rel}
	}
	return joined, nil
}
