// Package failover implements the Failover Handler (C8): choosing the next
// (provider, model, key) for an agent after a cycle failure, grounded on
// the teacher's llm/performance, llm/registry, and llm/keymanager packages
// (C2–C4) that this package composes rather than reimplements. The control
// flow follows original_source's agent_lifecycle.py auto-selection pass
// (reachability check, then key-depletion check, then tier-filtered
// ranking) applied at failure time instead of creation time.
package failover

import (
	"context"
	"time"

	"github.com/agentforge/conductor/internal/metrics"
	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/llm/keymanager"
	"github.com/agentforge/conductor/llm/performance"
	"github.com/agentforge/conductor/llm/registry"
	"github.com/agentforge/conductor/types"
	"go.uber.org/zap"
)

// DefaultQuarantineDuration is how long a key-related failure quarantines
// the offending key, matching original_source's apikey_pool cooldown
// convention (a handful of minutes, not hours).
const DefaultQuarantineDuration = 5 * time.Minute

// DefaultMinCalls is the Performance Tracker minimum-call threshold applied
// when ranking failover candidates, low enough that a freshly-deployed
// model is still eligible rather than stuck at Score() == 0 forever.
const DefaultMinCalls = 0

// Handler implements C8 against the concrete C2/C3/C4 collaborators. It is
// constructed with a fixed Tier policy because the tier is a deployment-wide
// configuration knob (spec.md §6), not a per-failure decision.
type Handler struct {
	registry   *registry.Registry
	perf       *performance.Tracker
	keys       *keymanager.Manager
	tier       types.Tier
	minCalls   int64
	quarantine time.Duration
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// New constructs a Handler.
func New(reg *registry.Registry, perf *performance.Tracker, keys *keymanager.Manager, tier types.Tier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:   reg,
		perf:       perf,
		keys:       keys,
		tier:       tier,
		minCalls:   DefaultMinCalls,
		quarantine: DefaultQuarantineDuration,
		logger:     logger,
	}
}

// SetMetrics attaches a metrics.Collector. A nil collector (the default)
// disables recording.
func (h *Handler) SetMetrics(c *metrics.Collector) {
	h.metrics = c
}

// HandleFailure implements cycle.FailoverHandler. It records the agent's
// current model as failed for this escalation chain, tries a same-model key
// rotation for key-related errors, and otherwise selects the next candidate
// model from the Performance Tracker's ranking. It returns false only when
// no candidate survives every filter, at which point the caller marks the
// agent as errored.
func (h *Handler) HandleFailure(ctx context.Context, agent *types.Agent, cause *types.Error) bool {
	isLocal := h.isLocalInstance(agent.Provider)
	failedModel := llm.CanonicalModelID(agent.Provider, agent.Model, isLocal)
	agent.FailedModelsThisCycle = appendUnique(agent.FailedModelsThisCycle, failedModel)

	if cause != nil && types.IsKeyRelatedKind(cause.Kind) && !isLocal {
		if h.rotateKey(ctx, agent) {
			h.logger.Info("failover: rotated key, reusing model",
				zap.String("agent_id", agent.ID), zap.String("model", failedModel))
			return true
		}
		h.logger.Warn("failover: provider depleted after key rotation attempt",
			zap.String("agent_id", agent.ID), zap.String("provider", agent.Provider))
	}

	candidate, instanceName, ok := h.selectCandidate(ctx, agent)
	if !ok {
		h.logger.Error("failover: no candidate model available", zap.String("agent_id", agent.ID))
		if h.metrics != nil {
			h.metrics.RecordFailover(agent.Provider, "", failureReason(cause))
		}
		return false
	}

	fromProvider := agent.Provider
	agent.Provider = instanceName
	agent.Model = candidate.ModelSuffix
	agent.ProviderOptions = nil
	if h.metrics != nil {
		h.metrics.RecordFailover(fromProvider, instanceName, failureReason(cause))
	}
	h.logger.Info("failover: switched model",
		zap.String("agent_id", agent.ID),
		zap.String("provider", instanceName),
		zap.String("model", candidate.ModelSuffix))
	return true
}

// failureReason maps a cycle failure's error kind to a short metrics label.
func failureReason(cause *types.Error) string {
	if cause == nil {
		return "unknown"
	}
	if types.IsKeyRelatedKind(cause.Kind) {
		return "key_exhausted"
	}
	return string(cause.Kind)
}

// rotateKey quarantines the key most recently used by agent (if any) and
// reports whether a fresh key is still available for its provider.
func (h *Handler) rotateKey(ctx context.Context, agent *types.Agent) bool {
	if agent.LastUsedAPIKeyID != 0 {
		h.keys.QuarantineKey(agent.LastUsedAPIKeyID, h.quarantine)
		if h.metrics != nil {
			h.metrics.RecordKeyQuarantine(agent.Provider)
		}
	}
	cfg, ok := h.keys.GetActiveKeyConfig(ctx, agent.Provider)
	if ok && agent.LastUsedAPIKeyID != 0 && cfg.KeyID == agent.LastUsedAPIKeyID {
		// The quarantine write is asynchronous and may not have landed yet;
		// round-robin hands out a different key on the next call if one exists.
		cfg, ok = h.keys.GetActiveKeyConfig(ctx, agent.Provider)
		ok = ok && cfg.KeyID != agent.LastUsedAPIKeyID
	}
	return ok
}

// selectCandidate consults the Performance Tracker's ranking and returns
// the first entry that is reachable (C2), within tier policy, not already
// failed this escalation chain, and not key-depleted (C3).
func (h *Handler) selectCandidate(ctx context.Context, agent *types.Agent) (types.RankedModel, string, bool) {
	ranked := h.perf.GetRankedModels(ctx, h.minCalls)
	for _, r := range ranked {
		instanceName, isLocal, found := h.resolveInstance(r)
		if !found {
			continue
		}
		if !h.passesTier(r, isLocal) {
			continue
		}
		canonical := llm.CanonicalModelID(instanceName, r.ModelSuffix, isLocal)
		if contains(agent.FailedModelsThisCycle, canonical) {
			continue
		}
		if !isLocal && h.keys.IsProviderDepleted(ctx, instanceName) {
			continue
		}
		return r, instanceName, true
	}
	return types.RankedModel{}, "", false
}

// resolveInstance maps a ranked model back to a currently-reachable
// provider instance. A local candidate's ProviderBase already names its
// discovered instance directly; a remote candidate carries no instance
// name (the Performance Tracker only stores bare model suffixes for
// remote providers), so every reachable remote instance is scanned for a
// matching model.
func (h *Handler) resolveInstance(r types.RankedModel) (instanceName string, isLocal bool, found bool) {
	if r.ProviderBase != "" {
		if h.registry.IsModelAvailable(r.ProviderBase, r.ModelSuffix) {
			return r.ProviderBase, true, true
		}
		return "", false, false
	}
	for _, inst := range h.registry.Instances() {
		if inst.IsLocal {
			continue
		}
		for _, m := range inst.Models {
			if m.Suffix == r.ModelSuffix {
				return inst.Name, false, true
			}
		}
	}
	return "", false, false
}

func (h *Handler) isLocalInstance(instanceName string) bool {
	for _, inst := range h.registry.Instances() {
		if inst.Name == instanceName {
			return inst.IsLocal
		}
	}
	return false
}

// passesTier applies spec.md §4.9/§6's tier policy (LOCAL favors local
// instances, FREE filters to ":free"-suffixed or local models, any applies
// no filter) to a failover candidate.
func (h *Handler) passesTier(r types.RankedModel, isLocal bool) bool {
	switch h.tier {
	case types.TierLocal:
		return isLocal
	case types.TierFree:
		return isLocal || hasFreeSuffix(r.ModelSuffix)
	default:
		return true
	}
}

func hasFreeSuffix(modelSuffix string) bool {
	const suffix = ":free"
	return len(modelSuffix) >= len(suffix) && modelSuffix[len(modelSuffix)-len(suffix):] == suffix
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
