// Package ollamalocal implements the Provider Adapter contract (C1) for a
// local Ollama instance. Ollama exposes an OpenAI-compatible chat endpoint,
// so this is a thin configuration profile over openaicompat.Provider rather
// than a second HTTP/SSE implementation — grounded on
// original_source/src/llm_providers/ollama_provider.go, which itself drives
// Ollama through the openai client library against a local base URL.
package ollamalocal

import (
	"context"

	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// DefaultBaseURL is used when no explicit endpoint is configured.
const DefaultBaseURL = "http://localhost:11434"

// Config configures one local Ollama instance.
type Config struct {
	// InstanceName identifies this reachable local endpoint, e.g.
	// "ollama-local-1". Combined with the model suffix this forms the
	// canonical model id "InstanceName/model_suffix".
	InstanceName string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
}

// New constructs a Provider wrapping openaicompat against a local Ollama
// endpoint. IsLocal is always true; Ollama's OpenAI-compatible endpoint
// performs no real authentication, so the API key is a placeholder.
func New(cfg Config, logger *zap.Logger) llm.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return openaicompat.New(openaicompat.Config{
		InstanceName: cfg.InstanceName,
		APIKey:       "ollama",
		BaseURL:      baseURL,
		IsLocal:      true,
		EndpointPath: "/v1/chat/completions",
	}, logger)
}

// Probe is a cheap reachability check used by the Model Registry at
// refresh time, before a Provider is constructed for an instance.
func Probe(ctx context.Context, baseURL string) error {
	p := openaicompat.New(openaicompat.Config{InstanceName: "probe", BaseURL: baseURL, APIKey: "ollama", IsLocal: true}, nil)
	defer p.Close()
	return p.HealthCheck(ctx)
}
