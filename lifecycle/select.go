package lifecycle

import (
	"context"
	"fmt"

	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/types"
)

// resolveModel implements spec.md §4.9's create_agent validation/selection
// pass: a caller-supplied (provider, model) is validated against the model
// id rule set and is_model_available on every path, including this
// "use configured value as-is" path — Design Note (a)'s indentation bug is
// not reproduced. A missing provider or model triggers auto-selection.
func (m *Manager) resolveModel(ctx context.Context, req types.CreateAgentRequest) (provider, model string, err error) {
	if req.Provider == "" || req.Model == "" {
		return m.autoSelect(ctx)
	}
	provider, requested := req.Provider, req.Model

	inst, ok := m.instances[provider]
	if !ok {
		return "", "", fmt.Errorf("lifecycle: unknown provider instance %q", provider)
	}
	if !llm.ValidateModelID(requested, inst.IsLocal) {
		return "", "", fmt.Errorf("lifecycle: model id %q invalid for %s provider %q", requested, localityWord(inst.IsLocal), provider)
	}
	model = stripLocalPrefix(requested)
	if !m.registry.IsModelAvailable(provider, model) {
		return "", "", fmt.Errorf("lifecycle: model %q not available on provider %q", model, provider)
	}
	return provider, model, nil
}

// stripLocalPrefix removes a leading "ollama/"/"litellm/" tag from a
// caller-supplied local model id, yielding the bare suffix the registry and
// the Provider Adapter both key on. Remote model ids never carry the
// prefix, so they pass through unchanged.
func stripLocalPrefix(modelID string) string {
	for _, p := range llm.LocalProviderPrefixes {
		if len(modelID) > len(p) && modelID[:len(p)] == p {
			return modelID[len(p):]
		}
	}
	return modelID
}

// autoSelect implements the tier-based ranking pass: TierLocal favors local
// instances outright, TierFree filters to ":free"-suffixed or local models,
// otherwise the Performance Tracker's full ranking (success ratio, inverse
// latency, size tie-break) picks the best reachable candidate. Grounded on
// original_source/agent_lifecycle.py's LOCAL/FREE/any auto-selection pass,
// the same policy failover.Handler.passesTier reapplies at failure time.
func (m *Manager) autoSelect(ctx context.Context) (provider, model string, err error) {
	ranked := m.perf.GetRankedModels(ctx, 0)
	for _, r := range ranked {
		instanceName, isLocal, ok := m.resolveInstance(r)
		if !ok {
			continue
		}
		if !m.passesTier(isLocal, r.ModelSuffix) {
			continue
		}
		if !isLocal && m.keys.IsProviderDepleted(ctx, instanceName) {
			continue
		}
		return instanceName, r.ModelSuffix, nil
	}

	// No performance history yet (e.g. first boot): fall back to the first
	// reachable instance that satisfies the tier policy.
	for _, inst := range m.registry.Instances() {
		if !m.passesTier(inst.IsLocal, "") {
			continue
		}
		if len(inst.Models) == 0 {
			continue
		}
		if !inst.IsLocal && m.keys.IsProviderDepleted(ctx, inst.Name) {
			continue
		}
		return inst.Name, inst.Models[0].Suffix, nil
	}
	return "", "", errNoCandidate
}

// resolveInstance mirrors failover.Handler.resolveInstance: a local
// candidate's ProviderBase already names its instance, a remote candidate
// carries no instance name (the Performance Tracker stores bare suffixes
// for remote models) so every reachable remote instance is scanned.
func (m *Manager) resolveInstance(r types.RankedModel) (instanceName string, isLocal bool, found bool) {
	if r.ProviderBase != "" {
		if m.registry.IsModelAvailable(r.ProviderBase, r.ModelSuffix) {
			return r.ProviderBase, true, true
		}
		return "", false, false
	}
	for _, inst := range m.registry.Instances() {
		if inst.IsLocal {
			continue
		}
		for _, mi := range inst.Models {
			if mi.Suffix == r.ModelSuffix {
				return inst.Name, false, true
			}
		}
	}
	return "", false, false
}

func (m *Manager) passesTier(isLocal bool, modelSuffix string) bool {
	switch m.tier {
	case types.TierLocal:
		return isLocal
	case types.TierFree:
		return isLocal || hasFreeSuffix(modelSuffix)
	default:
		return true
	}
}

func hasFreeSuffix(modelSuffix string) bool {
	const suffix = ":free"
	return len(modelSuffix) >= len(suffix) && modelSuffix[len(modelSuffix)-len(suffix):] == suffix
}

func localityWord(isLocal bool) string {
	if isLocal {
		return "local"
	}
	return "remote"
}
