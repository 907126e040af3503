package lifecycle_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentforge/conductor/lifecycle"
	"github.com/agentforge/conductor/llm/keymanager"
	"github.com/agentforge/conductor/llm/performance"
	"github.com/agentforge/conductor/llm/registry"
	"github.com/agentforge/conductor/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

type fakeProber struct {
	models map[string][]registry.ModelInfo
}

func (f *fakeProber) Probe(_ context.Context, instanceName, _ string) ([]registry.ModelInfo, error) {
	return f.models[instanceName], nil
}

func newManager(t *testing.T, tier types.Tier, instances []lifecycle.InstanceConfig, regConfigs []registry.Config, models map[string][]registry.ModelInfo) *lifecycle.Manager {
	t.Helper()
	reg := registry.New(regConfigs, &fakeProber{models: models}, nil)
	require.NoError(t, reg.Refresh(context.Background()))
	perf := performance.New(nil, nil)
	km, err := keymanager.New(openTestDB(t), nil)
	require.NoError(t, err)
	sandbox := t.TempDir()
	return lifecycle.New(instances, reg, perf, km, tier, sandbox, nil)
}

func TestCreateAgent_ExplicitValidModelSucceeds(t *testing.T) {
	mgr := newManager(t, types.TierAny,
		[]lifecycle.InstanceConfig{{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true}},
		[]registry.Config{{Name: "ollama-1", IsLocal: true}},
		map[string][]registry.ModelInfo{"ollama-1": {{Suffix: "llama3"}}})

	agent, err := mgr.CreateAgent(context.Background(), types.CreateAgentRequest{
		AgentType: types.AgentTypeWorker,
		Provider:  "ollama-1",
		Model:     "ollama/llama3",
	})
	require.NoError(t, err)
	assert.Equal(t, types.WorkerStateStartup, agent.GetState())
	assert.Equal(t, "ollama-1", agent.Provider)
	assert.Equal(t, "llama3", agent.Model, "the local prefix tag is stripped, leaving the bare suffix the provider call uses")
	assert.NotEmpty(t, agent.SandboxPath)

	info, err := os.Stat(agent.SandboxPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Base(agent.SandboxPath), agent.ID)
}

func TestCreateAgent_RejectsLocalModelWithoutLocalPrefix(t *testing.T) {
	mgr := newManager(t, types.TierAny,
		[]lifecycle.InstanceConfig{{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true}},
		[]registry.Config{{Name: "ollama-1", IsLocal: true}},
		map[string][]registry.ModelInfo{"ollama-1": {{Suffix: "llama3"}}})

	_, err := mgr.CreateAgent(context.Background(), types.CreateAgentRequest{
		AgentType: types.AgentTypeWorker,
		Provider:  "ollama-1",
		Model:     "llama3",
	})
	assert.Error(t, err, "a local instance requires a model id carrying the local prefix")
}

func TestCreateAgent_RejectsUnavailableModel(t *testing.T) {
	mgr := newManager(t, types.TierAny,
		[]lifecycle.InstanceConfig{{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true}},
		[]registry.Config{{Name: "ollama-1", IsLocal: true}},
		map[string][]registry.ModelInfo{"ollama-1": {{Suffix: "llama3"}}})

	_, err := mgr.CreateAgent(context.Background(), types.CreateAgentRequest{
		AgentType: types.AgentTypeWorker,
		Provider:  "ollama-1",
		Model:     "ollama/mistral",
	})
	assert.Error(t, err)
}

func TestCreateAgent_AutoSelectsHighestRankedReachableModel(t *testing.T) {
	reg := registry.New([]registry.Config{{Name: "ollama-1", IsLocal: true}},
		&fakeProber{models: map[string][]registry.ModelInfo{"ollama-1": {{Suffix: "llama3"}, {Suffix: "mistral"}}}}, nil)
	require.NoError(t, reg.Refresh(context.Background()))
	perf := performance.New(nil, nil)
	perf.RecordSuccess("ollama-1/mistral", time.Millisecond)
	km, err := keymanager.New(openTestDB(t), nil)
	require.NoError(t, err)
	mgr := lifecycle.New([]lifecycle.InstanceConfig{{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true}},
		reg, perf, km, types.TierAny, t.TempDir(), nil)

	agent, err := mgr.CreateAgent(context.Background(), types.CreateAgentRequest{AgentType: types.AgentTypeWorker})
	require.NoError(t, err)
	assert.Equal(t, "ollama-1", agent.Provider)
	assert.Equal(t, "mistral", agent.Model)
}

func TestCreateAgent_TierLocalExcludesRemoteCandidates(t *testing.T) {
	reg := registry.New([]registry.Config{
		{Name: "ollama-1", IsLocal: true},
		{Name: "openaicompat", IsLocal: false},
	}, &fakeProber{models: map[string][]registry.ModelInfo{
		"ollama-1":     {{Suffix: "llama3"}},
		"openaicompat": {{Suffix: "gpt-4o-mini"}},
	}}, nil)
	require.NoError(t, reg.Refresh(context.Background()))
	perf := performance.New(nil, nil)
	perf.RecordSuccess("gpt-4o-mini", time.Millisecond)
	perf.RecordSuccess("ollama-1/llama3", 2*time.Millisecond)
	km, err := keymanager.New(openTestDB(t), nil)
	require.NoError(t, err)
	require.NoError(t, km.LoadKey(context.Background(), "openaicompat", "key-a", ""))
	mgr := lifecycle.New([]lifecycle.InstanceConfig{
		{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true},
		{Name: "openaicompat", BaseURL: "https://api.example.com", IsLocal: false},
	}, reg, perf, km, types.TierLocal, t.TempDir(), nil)

	agent, err := mgr.CreateAgent(context.Background(), types.CreateAgentRequest{AgentType: types.AgentTypeWorker})
	require.NoError(t, err)
	assert.Equal(t, "ollama-1", agent.Provider)
	assert.Equal(t, "llama3", agent.Model)
}

func TestDeleteAgent_RefusesBootstrapAgent(t *testing.T) {
	mgr := newManager(t, types.TierAny,
		[]lifecycle.InstanceConfig{{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true}},
		[]registry.Config{{Name: "ollama-1", IsLocal: true}},
		map[string][]registry.ModelInfo{"ollama-1": {{Suffix: "llama3"}}})

	err := mgr.DeleteAgent(types.BootstrapAgentID)
	assert.Error(t, err)
}

func TestDeleteAgent_RemovesCreatedAgent(t *testing.T) {
	mgr := newManager(t, types.TierAny,
		[]lifecycle.InstanceConfig{{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true}},
		[]registry.Config{{Name: "ollama-1", IsLocal: true}},
		map[string][]registry.ModelInfo{"ollama-1": {{Suffix: "llama3"}}})

	agent, err := mgr.CreateAgent(context.Background(), types.CreateAgentRequest{
		AgentType: types.AgentTypeWorker, Provider: "ollama-1", Model: "ollama/llama3",
	})
	require.NoError(t, err)
	assert.NoError(t, mgr.DeleteAgent(agent.ID))
}

func TestProvider_ReattachesAfterFailoverChangesProviderField(t *testing.T) {
	reg := registry.New([]registry.Config{
		{Name: "ollama-1", IsLocal: true},
		{Name: "ollama-2", IsLocal: true},
	}, &fakeProber{models: map[string][]registry.ModelInfo{
		"ollama-1": {{Suffix: "llama3"}},
		"ollama-2": {{Suffix: "llama3"}},
	}}, nil)
	require.NoError(t, reg.Refresh(context.Background()))
	perf := performance.New(nil, nil)
	km, err := keymanager.New(openTestDB(t), nil)
	require.NoError(t, err)
	mgr := lifecycle.New([]lifecycle.InstanceConfig{
		{Name: "ollama-1", BaseURL: "http://localhost:11434", IsLocal: true},
		{Name: "ollama-2", BaseURL: "http://localhost:11435", IsLocal: true},
	}, reg, perf, km, types.TierAny, t.TempDir(), nil)

	agent, err := mgr.CreateAgent(context.Background(), types.CreateAgentRequest{
		AgentType: types.AgentTypeWorker, Provider: "ollama-1", Model: "ollama/llama3",
	})
	require.NoError(t, err)

	p1, err := mgr.Provider(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, "ollama-1", p1.Name())

	agent.Provider = "ollama-2"
	p2, err := mgr.Provider(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, "ollama-2", p2.Name())
}
