package config

import (
	"testing"
	"time"

	"github.com/agentforge/conductor/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, AgentsConfig{}, cfg.Agents)
	assert.NotEmpty(t, cfg.Providers)
	assert.NotEqual(t, CycleConfig{}, cfg.Cycle)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultAgentsConfig(t *testing.T) {
	cfg := DefaultAgentsConfig()
	assert.InDelta(t, 0.7, cfg.DefaultTemperature, 0.001)
	assert.Equal(t, "any", cfg.Tier)
	assert.NotEmpty(t, cfg.SandboxRoot)
	assert.Equal(t, "ollama", cfg.Bootstrap.Provider)
	assert.Equal(t, "ollama/llama3", cfg.Bootstrap.Model)
	assert.NotEmpty(t, cfg.Bootstrap.Persona)
}

func TestDefaultAgentsConfig_ParseTierDefaultsToAny(t *testing.T) {
	cfg := DefaultAgentsConfig()
	assert.Equal(t, types.TierAny, cfg.ParseTier())
}

func TestDefaultProviders_SingleLocalInstance(t *testing.T) {
	providers := DefaultProviders()
	require.Len(t, providers, 1)
	assert.Equal(t, "ollama", providers[0].Name)
	assert.True(t, providers[0].IsLocal)
	assert.Empty(t, providers[0].APIKey)
}

func TestDefaultCycleConfig(t *testing.T) {
	cfg := DefaultCycleConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "conductor.db", cfg.Path)
	assert.Equal(t, 1, cfg.MaxOpenConns)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "conductor", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}

func TestTokenBudgetsConfig_ToStateMapOmitsZeroEntries(t *testing.T) {
	budgets := TokenBudgetsConfig{AdminWork: 2048, WorkerWork: 1024}
	m := budgets.ToStateMap()

	assert.Equal(t, 2048, m[types.AdminStateWork])
	assert.Equal(t, 1024, m[types.WorkerStateWork])
	assert.NotContains(t, m, types.AdminStateConversation)
	assert.NotContains(t, m, types.PMStateManage)
}
