package llm_test

import (
	"testing"

	"github.com/agentforge/conductor/llm"
	"github.com/stretchr/testify/assert"
)

func TestValidateModelID(t *testing.T) {
	assert.True(t, llm.ValidateModelID("ollama/llama3:70b", true))
	assert.False(t, llm.ValidateModelID("llama3:70b", true), "local model id must carry the local prefix")
	assert.True(t, llm.ValidateModelID("gpt-4o-mini", false))
	assert.False(t, llm.ValidateModelID("ollama/llama3", false), "remote model id must not carry a local prefix")
}

func TestExtractParamSizeB(t *testing.T) {
	assert.Equal(t, 70.0, llm.ExtractParamSizeB("llama3-70b-instruct"))
	assert.Equal(t, 8.3, llm.ExtractParamSizeB("mixtral:8.3b"))
	assert.Equal(t, 0.0, llm.ExtractParamSizeB("gpt-4o-mini"))
}

func TestCanonicalModelID(t *testing.T) {
	assert.Equal(t, "ollama-1/llama3", llm.CanonicalModelID("ollama-1", "llama3", true))
	assert.Equal(t, "gpt-4o-mini", llm.CanonicalModelID("openai", "gpt-4o-mini", false))
}
