package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentforge/conductor/llm/registry"
)

// Prober implements registry.Prober, filling the gap left by the Provider
// Adapters: openaicompat.Provider.HealthCheck and ollamalocal.Probe only
// check reachability, they never parse a model list. This type does the
// actual listing call, using a different endpoint shape per locality —
// grounded on original_source/api_clients/openai_client.go's
// `client.models.list()` call for remote instances and
// original_source/api_clients/ollama_client.go's native `/api/tags` call
// for local Ollama instances, which is a different endpoint from the
// OpenAI-compatible chat endpoint ollamalocal wraps.
type Prober struct {
	client  *http.Client
	apiKeys func(instanceName string) string
}

// NewProber constructs a Prober. apiKeys looks up the bearer token to send
// for a remote instance; it may return "" for local instances, which send
// no Authorization header.
func NewProber(apiKeys func(instanceName string) string) *Prober {
	return &Prober{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKeys: apiKeys,
	}
}

var _ registry.Prober = (*Prober)(nil)

// Probe lists models for one instance, dispatching on whether baseURL looks
// like a local Ollama endpoint (the registry always calls Probe with the
// configured locality already known by the caller via instanceName's
// associated Config.IsLocal, but Probe's signature only carries the URL, so
// this package is told apart by convention: local instances pass their
// native API base, e.g. "http://localhost:11434").
func (p *Prober) Probe(ctx context.Context, instanceName, baseURL string) ([]registry.ModelInfo, error) {
	if isOllamaHost(baseURL) {
		return p.probeOllama(ctx, baseURL)
	}
	return p.probeOpenAI(ctx, instanceName, baseURL)
}

func isOllamaHost(baseURL string) bool {
	return strings.Contains(baseURL, "11434")
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// probeOllama hits Ollama's native /api/tags, distinct from the
// OpenAI-compatible chat endpoint used for actual generation.
func (p *Prober) probeOllama(ctx context.Context, baseURL string) ([]registry.ModelInfo, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama model list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama model list: status %d", resp.StatusCode)
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama model list: decode: %w", err)
	}
	models := make([]registry.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, registry.ModelInfo{Suffix: m.Name})
	}
	return models, nil
}

type openaiModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// probeOpenAI hits the standard OpenAI-compatible /v1/models endpoint,
// which real OpenAI, OpenRouter, and LiteLLM proxy instances all implement.
func (p *Prober) probeOpenAI(ctx context.Context, instanceName, baseURL string) ([]registry.ModelInfo, error) {
	url := strings.TrimRight(baseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if key := p.apiKeys(instanceName); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai model list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai model list: status %d", resp.StatusCode)
	}
	var models openaiModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("openai model list: decode: %w", err)
	}
	out := make([]registry.ModelInfo, 0, len(models.Data))
	for _, m := range models.Data {
		out = append(out, registry.ModelInfo{Suffix: m.ID})
	}
	return out, nil
}
