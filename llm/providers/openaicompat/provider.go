package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/types"
	"go.uber.org/zap"
)

// Config holds the configuration for one provider instance.
type Config struct {
	// InstanceName is the ModelKey.ProviderInstance this adapter serves.
	InstanceName string

	// APIKey authenticates requests. Local providers (IsLocal) may leave
	// this as a placeholder string ("ollama") since the endpoint performs
	// no authentication.
	APIKey string

	// BaseURL is the API base, e.g. "https://api.openai.com" or
	// "http://localhost:11434" for a local Ollama OpenAI-compatible
	// endpoint.
	BaseURL string

	// IsLocal marks this instance as a local, never-depleted provider per
	// the Key Manager's policy and the canonical-model-id rule.
	IsLocal bool

	// Timeout is the HTTP client timeout. Defaults to 120s (streaming
	// calls can run long).
	Timeout time.Duration

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string
}

// Provider implements llm.Provider against an OpenAI-compatible chat
// completions endpoint, streaming via SSE.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a Provider for one instance.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string  { return p.cfg.InstanceName }
func (p *Provider) IsLocal() bool { return p.cfg.IsLocal }
func (p *Provider) Close() error  { p.client.CloseIdleConnections(); return nil }

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

// HealthCheck performs a lightweight GET against the models endpoint,
// grounding the Model Registry's reachability probe.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s health check: status %d", p.cfg.InstanceName, resp.StatusCode)
	}
	return nil
}

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []wireMessage   `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatCompletionChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content, Name: m.Name})
	}
	return out
}

// Stream implements llm.Provider.Stream. It retries internally, up to
// llm.NProviderRetries times, only for the fixed transport-error class;
// all other failures are emitted as a single terminal EventError.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		p.streamWithRetry(ctx, req, ch)
	}()
	return ch
}

func (p *Provider) streamWithRetry(ctx context.Context, req llm.ChatRequest, ch chan<- llm.StreamEvent) {
	var lastErr *types.Error
	for attempt := 0; attempt <= llm.NProviderRetries; attempt++ {
		if attempt > 0 {
			p.logger.Debug("provider retrying after transport error",
				zap.String("provider", p.cfg.InstanceName), zap.Int("attempt", attempt))
		}
		_, err := p.doRequest(ctx, req, ch)
		if err == nil {
			return // doRequest drained the stream to completion (or ctx cancellation)
		}
		lastErr = err
		if !isTransportClass(err) || attempt == llm.NProviderRetries {
			break
		}
	}
	select {
	case <-ctx.Done():
	case ch <- llm.StreamEvent{Kind: llm.EventError, Err: lastErr}:
	}
}

// isTransportClass reports whether err belongs to the fixed class the
// adapter retries internally: connection reset, timeout, generic 5xx, or
// 429.
func isTransportClass(err *types.Error) bool {
	switch err.Kind {
	case types.ExceptionTransport, types.ExceptionTimeout, types.ExceptionServerError, types.ExceptionRateLimit:
		return true
	default:
		return false
	}
}

// doRequest issues one HTTP request and streams its SSE body onto ch. It
// returns nil once the stream completed and an event was delivered for
// every chunk (success path, caller does not retry); it returns the
// classified *types.Error without sending anything on ch when the caller
// should decide whether to retry.
func (p *Provider) doRequest(ctx context.Context, req llm.ChatRequest, ch chan<- llm.StreamEvent) (bool, *types.Error) {
	payload, _ := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return false, types.NewError(types.ExceptionInvalidRequest, err.Error()).WithProvider(p.cfg.InstanceName)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false, classifyTransportErr(err, p.cfg.InstanceName)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		kind := types.ClassifyHTTPStatus(resp.StatusCode)
		return false, types.NewError(kind, msg).WithHTTPStatus(resp.StatusCode).WithProvider(p.cfg.InstanceName)
	}

	return p.drainSSE(ctx, resp.Body, ch), nil
}

// drainSSE reads the SSE body to completion, sending one EventChunk per
// delta and a final EventStatus on a finish_reason. It reports true if the
// caller should treat this as a fully-handled (non-retryable) outcome.
func (p *Provider) drainSSE(ctx context.Context, body io.ReadCloser, ch chan<- llm.StreamEvent) bool {
	defer body.Close()
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return true // EOF or read error: treat the stream as ended
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return true
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content != "" {
				select {
				case <-ctx.Done():
					return true
				case ch <- llm.StreamEvent{Kind: llm.EventChunk, Text: c.Delta.Content}:
				}
			}
			if c.FinishReason != nil {
				select {
				case <-ctx.Done():
					return true
				case ch <- llm.StreamEvent{Kind: llm.EventStatus, Text: *c.FinishReason}:
				}
			}
		}
	}
}

func readErrorMessage(body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(b)
}

// classifyTransportErr separates a dead instance (DNS failure, connection
// refused, failed dial) from a mid-stream hiccup (connection reset, EOF)
// worth a same-instance retry. http.Client.Do wraps the underlying network
// error in a *url.Error, so errors.As/errors.Is unwrap through that to
// reach the *net.OpError/*net.DNSError/syscall.Errno underneath.
func classifyTransportErr(err error, provider string) *types.Error {
	msg := err.Error()

	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.As(err, &dnsErr):
		return types.NewError(types.ExceptionProviderUnreachable, msg).WithProvider(provider)
	case errors.Is(err, syscall.ECONNREFUSED):
		return types.NewError(types.ExceptionProviderUnreachable, msg).WithProvider(provider)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return types.NewError(types.ExceptionProviderUnreachable, msg).WithProvider(provider)
	}

	kind := types.ExceptionTransport
	if strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout") {
		kind = types.ExceptionTimeout
	}
	return types.NewError(kind, msg).WithProvider(provider)
}
