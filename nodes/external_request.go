package nodes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/script"
	"github.com/tidwall/gjson"
)

// DefaultDegradedMessage is spoken when an ignored external request fails.
const DefaultDegradedMessage = "I'm having trouble retrieving that information right now, but let's continue."

const maxResponseBytes = 10 << 20

// ExternalRequest performs an outbound HTTP call and maps fields of the JSON
// response into variables.
type ExternalRequest struct {
	client  *http.Client
	timeout time.Duration
}

func (r *ExternalRequest) Execute(ctx context.Context, node *callflow.Node, exec *callflow.ExecutionContext) *callflow.NodeResult {
	cfg := node.ExternalRequest
	if cfg == nil {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "external request node requires an external_request block"))
	}
	if cfg.URL == "" {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "external request url is empty"))
	}
	logger := callflow.LoggerFromContext(ctx)

	statusCode, variables, err := r.do(ctx, cfg, exec.Variables())
	if err != nil {
		if cfg.ErrorHandling == callflow.RequestErrorIgnore {
			logger.Warn("external request failed, continuing", "url", cfg.URL, "error", err)
			message := cfg.DegradedMessage
			if message == "" {
				message = DefaultDegradedMessage
			}
			result := callflow.Continue(message, nil)
			result.Metadata = map[string]any{"degraded": true, "error": err.Error()}
			return result
		}
		wErr := callflow.WrapError(callflow.ErrorTypeExternalRequestFailed, err)
		wErr.NodeID = node.ID
		return callflow.Failure(wErr)
	}
	result := callflow.Continue("", variables)
	result.Metadata = map[string]any{"status_code": statusCode}
	return result
}

func (r *ExternalRequest) do(ctx context.Context, cfg *callflow.ExternalRequestConfig, vars map[string]any) (int, map[string]any, error) {
	timeout := r.timeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(script.Render(cfg.Body, vars))
	}
	req, err := http.NewRequestWithContext(ctx, method, script.Render(cfg.URL, vars), body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, script.Render(value, vars))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	variables := map[string]any{}
	if len(cfg.ResponseMapping) > 0 && !gjson.ValidBytes(data) {
		return resp.StatusCode, nil, fmt.Errorf("response is not valid JSON")
	}
	for name, path := range cfg.ResponseMapping {
		if value := gjson.GetBytes(data, path); value.Exists() {
			variables[name] = value.Value()
		}
	}
	return resp.StatusCode, variables, nil
}
