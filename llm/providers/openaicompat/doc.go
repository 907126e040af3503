// Package openaicompat implements the Provider Adapter contract (C1) for any
// remote, OpenAI-compatible chat/completions endpoint. It is the single
// concrete implementation shared by every remote provider instance in a
// Config; instances differ only in BaseURL, APIKey, and whether IsLocal is
// set (Ollama's OpenAI-compatible endpoint is configured this way rather
// than through a second HTTP implementation — see ollamalocal).
package openaicompat
