package cycle

import (
	"fmt"

	"github.com/agentforge/conductor/types"
	"github.com/agentforge/conductor/workflow"
)

// DefaultPromptTokenBudget bounds the assembled prompt (system message plus
// history) independently of a state's completion max_tokens, which governs
// only the LLM's response length. A fixed floor rather than a per-model
// context window: the assembler runs before a model is chosen for this
// call, so it cannot yet know the real ceiling.
const DefaultPromptTokenBudget = 8000

// PromptAssembler is sub-step A: builds the message history handed to the
// LLM Caller without mutating the agent's real history.
type PromptAssembler struct {
	workflows   *workflow.Manager
	tokenizer   types.Tokenizer
	tokenBudget int
}

// NewPromptAssembler constructs a PromptAssembler backed by the Workflow
// Manager's state-to-prompt mapping, enforcing DefaultPromptTokenBudget via
// a real tiktoken-backed token count (types.TiktokenCounter).
func NewPromptAssembler(workflows *workflow.Manager) *PromptAssembler {
	return &PromptAssembler{
		workflows:   workflows,
		tokenizer:   types.NewTiktokenCounter(),
		tokenBudget: DefaultPromptTokenBudget,
	}
}

// Assemble returns the history to send to the LLM Caller (the state prompt
// at index 0, optionally a framework status message for Admin agents, then
// the agent's real history) and the token budget configured for the
// current state. lastCycleErr is non-nil when the previous cycle for this
// agent ended in a failover, and is summarized into the Admin status
// message; nil otherwise ("last turn OK").
func (p *PromptAssembler) Assemble(agent *types.Agent, lastCycleErr *types.Error) ([]types.Message, int, error) {
	prompt, maxTokens, ok := p.workflows.PromptFor(agent)
	if !ok {
		return nil, 0, fmt.Errorf("cycle: no prompt defined for %s state %q", agent.Type, agent.GetState())
	}

	history := agent.HistorySnapshot()
	assembled := make([]types.Message, 0, len(history)+2)
	assembled = append(assembled, types.NewSystemMessage(prompt))

	if agent.Type == types.AgentTypeAdmin {
		status := "last turn OK"
		if lastCycleErr != nil {
			status = fmt.Sprintf("last turn ended in failover: %s", lastCycleErr.Kind)
		}
		assembled = append(assembled, types.Message{
			Role:    types.RoleSystemFrameworkNotification,
			Content: status,
		})
	}

	assembled = append(assembled, history...)
	assembled = p.truncateToBudget(assembled)
	return assembled, maxTokens, nil
}

// truncateToBudget drops the oldest history entries (the messages following
// the system prompt and, for Admin agents, the framework status line) until
// the assembled prompt fits p.tokenBudget. The system prompt and status line
// are never dropped: without them the agent loses its instructions or the
// Admin loses its failover context entirely, which is worse than a
// truncated history. The most recent message is also always kept, even if
// it alone exceeds the budget, since a cycle needs at least the latest turn
// to make progress.
func (p *PromptAssembler) truncateToBudget(assembled []types.Message) []types.Message {
	if p.tokenizer.CountMessagesTokens(assembled) <= p.tokenBudget {
		return assembled
	}

	head := 1
	if len(assembled) > 1 && assembled[1].Role == types.RoleSystemFrameworkNotification {
		head = 2
	}
	if len(assembled) <= head+1 {
		return assembled
	}

	pinned := make([]types.Message, head)
	copy(pinned, assembled[:head])
	history := assembled[head:]

	candidate := func(h []types.Message) []types.Message {
		out := make([]types.Message, 0, len(pinned)+len(h))
		out = append(out, pinned...)
		return append(out, h...)
	}

	for len(history) > 1 && p.tokenizer.CountMessagesTokens(candidate(history)) > p.tokenBudget {
		history = history[1:]
	}

	return candidate(history)
}
