// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector records the orchestration core's own operational metrics: cycle
// outcomes, per-model LLM latency and token/cost accounting, failover
// events, and agent state transitions. It has no knowledge of HTTP or
// storage layers; those are the operator's deployment surface, not this
// module's (spec §1's "external collaborators" boundary).
type Collector struct {
	cycleTotal          *prometheus.CounterVec
	cycleDuration       *prometheus.HistogramVec
	agentExecutionsTotal *prometheus.CounterVec
	agentStateTransitions *prometheus.CounterVec

	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	failoverTotal      *prometheus.CounterVec
	keyQuarantineTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector constructs a Collector with every series registered under
// namespace via promauto's default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.cycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_total",
			Help:      "Total number of agent cycles, by agent type, state, and outcome",
		},
		[]string{"agent_type", "state", "outcome"}, // outcome: success, error, timeout
	)

	c.cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Agent cycle duration in seconds, from prompt assembly to state application",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent_type", "state"},
	)

	c.agentExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Total number of agent executions",
		},
		[]string{"agent_id", "agent_type", "status"},
	)

	c.agentStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_transitions_total",
			Help:      "Total number of agent state transitions",
		},
		[]string{"agent_id", "from_state", "to_state"},
	)

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests, by provider, model, and status",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds, by provider and model",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Total estimated LLM cost in USD",
		},
		[]string{"provider", "model"},
	)

	c.failoverTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failover_total",
			Help:      "Total number of provider/key failovers, by reason",
		},
		[]string{"from_provider", "to_provider", "reason"}, // reason: key_exhausted (auth/rate_limit), another ExceptionKind such as timeout, or unknown
	)

	c.keyQuarantineTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_quarantine_total",
			Help:      "Total number of API keys placed into quarantine, by provider",
		},
		[]string{"provider"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔁 Cycle 指标记录
// =============================================================================

// RecordCycle records one completed agent cycle.
func (c *Collector) RecordCycle(agentType, state, outcome string, duration time.Duration) {
	c.cycleTotal.WithLabelValues(agentType, state, outcome).Inc()
	c.cycleDuration.WithLabelValues(agentType, state).Observe(duration.Seconds())
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

// RecordAgentExecution records one agent execution, success or failure.
func (c *Collector) RecordAgentExecution(agentID, agentType, status string, duration time.Duration) {
	c.agentExecutionsTotal.WithLabelValues(agentID, agentType, status).Inc()
}

// RecordAgentStateTransition records one legal state transition.
func (c *Collector) RecordAgentStateTransition(agentID, fromState, toState string) {
	c.agentStateTransitions.WithLabelValues(agentID, fromState, toState).Inc()
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest records one completed LLM call.
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(provider, model).Add(cost)
}

// =============================================================================
// 🔀 Failover 指标记录
// =============================================================================

// RecordFailover records one provider/key failover.
func (c *Collector) RecordFailover(fromProvider, toProvider, reason string) {
	c.failoverTotal.WithLabelValues(fromProvider, toProvider, reason).Inc()
}

// RecordKeyQuarantine records one key being placed into quarantine.
func (c *Collector) RecordKeyQuarantine(provider string) {
	c.keyQuarantineTotal.WithLabelValues(provider).Inc()
}
