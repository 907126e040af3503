// Package llm defines the Provider Adapter contract (C1): a uniform
// streaming interface over one LLM backend that classifies every failure
// into the fixed types.ExceptionKind taxonomy.
package llm

import (
	"context"

	"github.com/agentforge/conductor/types"
)

// NProviderRetries is the number of internal retries a Provider Adapter
// performs for the fixed transport-error class (connection reset, timeout,
// generic 5xx, 429 with server-provided backoff) before giving up and
// emitting an error event. All other errors are emitted immediately.
const NProviderRetries = 2

// ChatRequest is the input to Stream. Messages is never mutated by an
// adapter.
type ChatRequest struct {
	Messages    []types.Message
	Model       string
	Temperature float64
	MaxTokens   int
	Options     map[string]any
}

// EventKind tags a StreamEvent as one of the three variants the Provider
// Adapter contract allows.
type EventKind string

const (
	EventChunk  EventKind = "chunk"
	EventStatus EventKind = "status"
	EventError  EventKind = "error"
)

// StreamEvent is one element of the event stream stream_completion yields.
// Exactly one of Text (for chunk/status) or Err (for error) is meaningful,
// selected by Kind.
type StreamEvent struct {
	Kind EventKind
	Text string      // chunk: incremental assistant text; status: informational text
	Err  *types.Error // error: terminal for the stream
}

// Provider is the uniform interface every concrete LLM backend adapter
// implements. A Provider instance is owned by exactly one Agent and is
// closed when the agent is destroyed or its provider is swapped by
// failover.
type Provider interface {
	// Name returns the provider instance name (the ModelKey.ProviderInstance
	// this adapter was constructed for).
	Name() string
	// IsLocal reports whether this provider instance is a local endpoint
	// (no authentication, never depleted) per the Key Manager's policy.
	IsLocal() bool
	// Stream performs one streaming completion call, sending StreamEvent
	// values on the returned channel until the stream ends (success) or an
	// EventError event is sent (failure). The channel is always closed by
	// Stream's goroutine before it returns control; callers should range
	// over it rather than polling.
	Stream(ctx context.Context, req ChatRequest) <-chan StreamEvent
	// HealthCheck probes reachability for the Model Registry's refresh.
	HealthCheck(ctx context.Context) error
	// Close releases any resources (idle connections) held by the adapter.
	Close() error
}

// KeyConfig is what the Key Manager hands a Provider for a single call.
type KeyConfig struct {
	APIKey  string
	Referer string
}
