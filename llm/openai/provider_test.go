package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/stretchr/testify/require"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func TestGenerate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(completion("Hello there"))
	}))
	defer server.Close()

	p := New(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "default-model"}, nil)
	reply, err := p.Generate(context.Background(), llm.AgentConfig{SystemPrompt: "You are helpful."}, llm.Request{
		Messages:      []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Variables:     map[string]any{"name": "Ann", "age": 40},
		Deterministic: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Hello there", reply)

	require.Equal(t, "default-model", got.Model)
	require.NotNil(t, got.Temperature)
	require.Equal(t, 0.0, *got.Temperature)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "You are helpful.\n\nKnown variables:\nage: 40\nname: Ann", got.Messages[0].Content)
	require.Equal(t, "user", got.Messages[1].Role)
}

func TestGenerateRetriesUnavailable(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL, MaxRetries: 3, RetryBaseWait: time.Millisecond}, nil)
	reply, err := p.Generate(context.Background(), llm.AgentConfig{}, llm.Request{})
	require.NoError(t, err)
	require.Equal(t, "ok", reply)
	require.Equal(t, int32(3), attempts.Load())
}

func TestGenerateDoesNotRetryUnauthorized(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL, MaxRetries: 3, RetryBaseWait: time.Millisecond}, nil)
	_, err := p.Generate(context.Background(), llm.AgentConfig{}, llm.Request{})
	require.Error(t, err)

	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	require.Equal(t, llm.ErrUnauthorized, llmErr.Code)
	require.Equal(t, "invalid api key", llmErr.Message)
	require.Equal(t, int32(1), attempts.Load())
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL}, nil)
	_, err := p.Generate(context.Background(), llm.AgentConfig{Model: "m"}, llm.Request{})
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	require.Equal(t, llm.ErrEmptyResponse, llmErr.Code)
}
