package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/types"
)

// caller performs the actual model invocation; BaseClient supplies the
// prompting and response handling around it.
type caller interface {
	callLLM(ctx context.Context, prompt string) (string, error)
}

// BaseClient provides the provider-independent half of a Client.
type BaseClient struct {
	config *Config
	logger *logger.Logger
	impl   caller
}

// NewBaseClient creates a new base LLM client
func NewBaseClient(config *Config, logger *logger.Logger) *BaseClient {
	return &BaseClient{
		config: config,
		logger: logger,
	}
}

// callLLM is overridden by provider implementations.
func (c *BaseClient) callLLM(ctx context.Context, prompt string) (string, error) {
	if c.impl != nil {
		return c.impl.callLLM(ctx, prompt)
	}
	return "", fmt.Errorf("callLLM not implemented")
}

// GeneratePayload asks the model for a JSON body matching the endpoint's
// apparent resource shape.
func (c *BaseClient) GeneratePayload(ctx context.Context, endpoint types.Endpoint) (map[string]interface{}, error) {
	prompt := fmt.Sprintf(`Generate a realistic JSON request body for this REST API operation:
Method: %s
Path: %s
Summary: %s

Rules:
1. Respond with a single JSON object and nothing else
2. Use plausible field names derived from the path's resource name
3. Do not include id or timestamp fields
4. Keep it under 10 fields`,
		endpoint.Method, endpoint.Path, endpoint.Summary)

	response, err := c.callLLM(ctx, prompt)
	if err != nil {
		c.logger.LogLLMInteraction("GeneratePayload", endpoint, nil, err)
		return nil, fmt.Errorf("failed to generate payload: %w", err)
	}

	payload, err := parsePayload(response)
	if err != nil {
		c.logger.LogLLMInteraction("GeneratePayload", endpoint, response, err)
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	c.logger.LogLLMInteraction("GeneratePayload", endpoint, payload, nil)
	return payload, nil
}

// parsePayload tolerates code fences and leading prose around the JSON
// object models tend to emit.
func parsePayload(response string) (map[string]interface{}, error) {
	text := strings.TrimSpace(response)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
