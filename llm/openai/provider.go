// Package openai implements llm.Provider against an OpenAI-compatible chat
// completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/retry"
	"github.com/deepnoodle-ai/callflow/script"
	"golang.org/x/time/rate"
)

const providerName = "openai"

// Config holds the configuration for the provider.
type Config struct {
	// APIKey is sent as a bearer token.
	APIKey string

	// BaseURL defaults to https://api.openai.com.
	BaseURL string

	// Model is used when the agent does not name one.
	Model string

	// Timeout is the HTTP client timeout. Defaults to 30s.
	Timeout time.Duration

	// RequestsPerSecond limits outbound requests. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// MaxRetries is the number of retries of recoverable failures.
	MaxRetries    int
	RetryBaseWait time.Duration
}

// Provider generates replies with the chat completions API.
type Provider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New returns a provider for the given config.
func New(cfg Config, logger *slog.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBaseWait == 0 {
		cfg.RetryBaseWait = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger.With("provider", providerName),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, agent llm.AgentConfig, req llm.Request) (string, error) {
	model := agent.Model
	if model == "" {
		model = p.cfg.Model
	}
	body := chatRequest{
		Model:       model,
		Messages:    buildMessages(agent, req),
		Temperature: req.Temperature(agent),
		MaxTokens:   agent.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var reply string
	err = retry.Do(ctx, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		reply, err = p.complete(ctx, payload)
		if err != nil {
			p.logger.Warn("chat completion failed", "model", model, "error", err)
		}
		return err
	}, retry.WithMaxRetries(p.cfg.MaxRetries), retry.WithBaseWait(p.cfg.RetryBaseWait))
	return reply, err
}

func (p *Provider) complete(ctx context.Context, payload []byte) (string, error) {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", &llm.Error{
			Code: llm.ErrUpstreamError, Message: "request failed", Cause: err,
			HTTPStatus: http.StatusBadGateway, Retryable: ctx.Err() == nil, Provider: providerName,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", llm.MapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), providerName)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &llm.Error{
			Code: llm.ErrUpstreamError, Message: "invalid response body", Cause: err,
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: providerName,
		}
	}
	if len(out.Choices) == 0 {
		return "", &llm.Error{Code: llm.ErrEmptyResponse, Message: "no choices returned", Provider: providerName}
	}
	return out.Choices[0].Message.Content, nil
}

// buildMessages prefixes the conversation with the agent's system prompt.
// Variables are rendered into the system prompt as key: value lines.
func buildMessages(agent llm.AgentConfig, req llm.Request) []chatMessage {
	system := agent.SystemPrompt
	if len(req.Variables) > 0 {
		keys := make([]string, 0, len(req.Variables))
		for key := range req.Variables {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteString(system)
		if system != "" {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Known variables:")
		for _, key := range keys {
			fmt.Fprintf(&sb, "\n%s: %s", key, script.Stringify(req.Variables[key]))
		}
		system = sb.String()
	}

	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if system != "" {
		messages = append(messages, chatMessage{Role: string(llm.RoleSystem), Content: system})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name})
	}
	return messages
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return err.Error()
	}
	var errResp errorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}
