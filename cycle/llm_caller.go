package cycle

import (
	"context"
	"strings"

	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/llm/keymanager"
	"github.com/agentforge/conductor/tracing"
	"github.com/agentforge/conductor/types"
)

// ProviderResolver returns the Provider Adapter instance attached to an
// agent. Implemented by the Lifecycle/Agent Manager, which owns the
// provider-instance pool; kept as an interface here so the cycle package
// never imports either.
type ProviderResolver interface {
	Provider(ctx context.Context, agent *types.Agent) (llm.Provider, error)
}

// KeyManager is the subset of the Key Manager (C3) the LLM Caller needs to
// attach credentials to a remote provider call.
type KeyManager interface {
	GetActiveKeyConfig(ctx context.Context, providerBase string) (keymanager.KeyConfig, bool)
}

// LLMCaller is sub-step B: streams one completion call and accumulates the
// event stream into a single response, per spec.md's "yields events
// unchanged" contract simplified to an accumulate-then-return shape since
// this module owns no UI streaming sink.
type LLMCaller struct {
	providers ProviderResolver
	keys      KeyManager
}

// NewLLMCaller constructs an LLMCaller.
func NewLLMCaller(providers ProviderResolver, keys KeyManager) *LLMCaller {
	return &LLMCaller{providers: providers, keys: keys}
}

// Call resolves the agent's provider, attaches a key (for non-local
// providers), streams the completion, and returns the accumulated text.
// A non-nil callErr means the stream ended in an error event; text carries
// whatever partial content was accumulated before that point.
func (c *LLMCaller) Call(ctx context.Context, agent *types.Agent, history []types.Message, maxTokens int) (text string, statuses []string, callErr *types.Error) {
	provider, err := c.providers.Provider(ctx, agent)
	if err != nil {
		return "", nil, types.NewError(types.ExceptionUnknown, "resolve provider").WithCause(err).WithProvider(agent.Provider)
	}

	opts := agent.ProviderOptions
	if c.keys != nil && !provider.IsLocal() {
		if kc, ok := c.keys.GetActiveKeyConfig(ctx, agent.Provider); ok {
			if opts == nil {
				opts = make(map[string]any, len(agent.ProviderOptions)+2)
				for k, v := range agent.ProviderOptions {
					opts[k] = v
				}
			}
			opts["api_key"] = kc.APIKey
			if kc.Referer != "" {
				opts["referer"] = kc.Referer
			}
			agent.LastUsedAPIKeyID = kc.KeyID
		}
	}

	req := llm.ChatRequest{
		Messages:    history,
		Model:       agent.Model,
		Temperature: agent.Temperature,
		MaxTokens:   maxTokens,
		Options:     opts,
	}

	ctx, endSpan := tracing.StartLLMSpan(ctx, agent.Provider, agent.Model)
	defer func() {
		if callErr != nil {
			endSpan(callErr)
		} else {
			endSpan(nil)
		}
	}()

	var sb strings.Builder
	for ev := range provider.Stream(ctx, req) {
		switch ev.Kind {
		case llm.EventChunk:
			sb.WriteString(ev.Text)
		case llm.EventStatus:
			statuses = append(statuses, ev.Text)
		case llm.EventError:
			text, callErr = sb.String(), ev.Err
			return text, statuses, callErr
		}
	}
	text = sb.String()
	return text, statuses, nil
}
