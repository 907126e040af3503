package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentforge/conductor/llm"
	"github.com/agentforge/conductor/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, lines []string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status >= 400 {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"boom"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func chunkLine(content, finish string) string {
	payload := map[string]any{
		"model": "m1",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": content}},
		},
	}
	if finish != "" {
		payload["choices"].([]map[string]any)[0]["finish_reason"] = finish
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestProvider_Stream_EmitsChunksThenDone(t *testing.T) {
	srv := sseServer(t, []string{chunkLine("hello ", ""), chunkLine("world", "stop"), "[DONE]"}, 200)
	defer srv.Close()

	p := New(Config{InstanceName: "test", BaseURL: srv.URL, APIKey: "k"}, nil)
	ch := p.Stream(context.Background(), llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
		Model:    "m1",
	})

	var text string
	var sawStatus bool
	for ev := range ch {
		require.NotEqual(t, llm.EventError, ev.Kind, "unexpected error event")
		if ev.Kind == llm.EventChunk {
			text += ev.Text
		}
		if ev.Kind == llm.EventStatus {
			sawStatus = true
			assert.Equal(t, "stop", ev.Text)
		}
	}
	assert.Equal(t, "hello world", text)
	assert.True(t, sawStatus)
}

func TestProvider_Stream_ClassifiesAuthError(t *testing.T) {
	srv := sseServer(t, nil, 401)
	defer srv.Close()

	p := New(Config{InstanceName: "test", BaseURL: srv.URL, APIKey: "bad"}, nil)
	ch := p.Stream(context.Background(), llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
		Model:    "m1",
	})

	var gotErr *types.Error
	for ev := range ch {
		if ev.Kind == llm.EventError {
			gotErr = ev.Err
		}
	}
	require.NotNil(t, gotErr)
	assert.Equal(t, types.ExceptionAuth, gotErr.Kind)
	assert.True(t, gotErr.KeyRelated)
}

func TestClassifyTransportErr_ConnectionRefusedIsProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close() // nothing is listening on deadURL anymore

	p := New(Config{InstanceName: "dead-instance", BaseURL: deadURL, APIKey: "k"}, nil)
	ch := p.Stream(context.Background(), llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
		Model:    "m1",
	})

	var gotErr *types.Error
	var events int
	for ev := range ch {
		events++
		if ev.Kind == llm.EventError {
			gotErr = ev.Err
		}
	}
	require.NotNil(t, gotErr)
	assert.Equal(t, types.ExceptionProviderUnreachable, gotErr.Kind)
	assert.False(t, gotErr.Retryable, "a dead instance must not be retried internally")
	assert.Equal(t, 1, events, "a dead instance fails on the first attempt, burning no internal retries")
}

func TestProvider_Name_IsLocal(t *testing.T) {
	p := New(Config{InstanceName: "ollama-1", IsLocal: true}, nil)
	assert.Equal(t, "ollama-1", p.Name())
	assert.True(t, p.IsLocal())
}
