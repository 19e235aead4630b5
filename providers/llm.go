package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// LLMClient talks to any OpenAI-compatible chat-completions endpoint.
type LLMClient struct {
	*BaseClient
	apiKey  string
	baseURL string
	model   string

	telemetry core.Telemetry
}

// NewLLMClient creates an LLM client. baseURL defaults to the OpenAI API;
// model defaults to gpt-4o-mini.
func NewLLMClient(apiKey, baseURL, model string, logger core.Logger) *LLMClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LLMClient{
		BaseClient: NewBaseClient(core.LLMCallTimeout, logger),
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		telemetry:  &core.NoOpTelemetry{},
	}
}

// SetTelemetry sets the telemetry provider.
func (c *LLMClient) SetTelemetry(telemetry core.Telemetry) {
	if telemetry != nil {
		c.telemetry = telemetry
	}
}

// Name identifies the provider for the run fingerprint.
func (c *LLMClient) Name() string { return "llm" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate performs one chat completion and returns the assistant text.
func (c *LLMClient) Generate(ctx context.Context, prompt string, options *GenerateOptions) (string, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "llm.generate")
	defer span.End()
	span.SetAttribute("llm.prompt_length", len(prompt))

	if c.apiKey == "" {
		err := &core.PlanError{
			Op:      "llm.generate",
			Code:    core.CodeProviderUnavailable,
			Message: "LLM API key not configured",
			Err:     core.ErrProviderUnavailable,
		}
		span.RecordError(err)
		return "", err
	}

	if options == nil {
		options = &GenerateOptions{}
	}
	model := options.Model
	if model == "" {
		model = c.model
	}
	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}
	span.SetAttribute("llm.model", model)

	messages := []chatMessage{}
	if options.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: options.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.Logger.Info("LLM request initiated", map[string]interface{}{
		"operation":     "llm_request",
		"model":         model,
		"prompt_length": len(prompt),
	})
	start := time.Now()

	resp, err := c.ExecuteWithRetry(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := c.HandleError(resp.StatusCode, respBody, "llm")
		span.RecordError(apiErr)
		span.SetAttribute("http.status_code", resp.StatusCode)
		return "", apiErr
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		span.RecordError(err)
		return "", &core.PlanError{
			Op:      "llm.generate",
			Code:    core.CodeProviderUnavailable,
			Message: "failed to parse completion response",
			Err:     core.ErrProviderResponse,
		}
	}
	if parsed.Error != nil {
		err := &core.PlanError{
			Op:      "llm.generate",
			Code:    core.CodeProviderUnavailable,
			Message: parsed.Error.Message,
			Err:     core.ErrProviderResponse,
		}
		span.RecordError(err)
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", &core.PlanError{
			Op:      "llm.generate",
			Code:    core.CodeProviderUnavailable,
			Message: "completion returned no choices",
			Err:     core.ErrProviderResponse,
		}
	}

	c.Logger.Info("LLM response received", map[string]interface{}{
		"operation":    "llm_response",
		"model":        model,
		"total_tokens": parsed.Usage.TotalTokens,
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	span.SetAttribute("llm.total_tokens", parsed.Usage.TotalTokens)

	return parsed.Choices[0].Message.Content, nil
}
