package cycle

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/agentforge/conductor/internal/xmlscan"
	"github.com/agentforge/conductor/types"
	"github.com/google/uuid"
)

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ExtractThought pulls the first <think>...</think> block out of raw,
// returning its trimmed content and the text with that block removed.
// Per spec.md §4.7, at most one is expected per response.
func ExtractThought(raw string) (thought string, remaining string, found bool) {
	t, ok := xmlscan.ExtractThink(raw)
	if !ok {
		return "", raw, false
	}
	return t, thinkBlockRe.ReplaceAllString(raw, ""), true
}

// ExtractToolCalls scans remaining for a top-level element matching each
// name in toolNames, in order of first appearance in the text (not grouped
// by tool), and returns one types.ToolCall per match with a synthetic call
// id, plus the text with every matched fragment removed.
func ExtractToolCalls(remaining string, toolNames []string) ([]types.ToolCall, string, error) {
	type found struct {
		index int
		call  types.ToolCall
	}
	var hits []found
	text := remaining

	for _, name := range toolNames {
		fragments, err := xmlscan.FindAll(remaining, name)
		if err != nil {
			continue // not a valid tag name, never matches
		}
		for _, frag := range fragments {
			idx := strings.Index(remaining, frag)
			children, _ := xmlscan.FlattenChildren(frag)
			args, _ := json.Marshal(children)
			hits = append(hits, found{
				index: idx,
				call:  types.ToolCall{ID: uuid.NewString(), Name: name, Arguments: args},
			})
			text = strings.Replace(text, frag, "", 1)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].index < hits[j].index })
	calls := make([]types.ToolCall, len(hits))
	for i, h := range hits {
		calls[i] = h.call
	}
	return calls, strings.TrimSpace(text), nil
}
