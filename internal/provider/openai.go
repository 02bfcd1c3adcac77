package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"RelayChat/internal/session"
)

// openAIRequest is the request body for OpenAI-compatible chat APIs.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIResponse is the response from OpenAI-compatible chat APIs.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}

// openAIStreamChunk is one SSE event of a streamed completion.
type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// openAIModelList is the response from GET /models.
type openAIModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// OpenAICompatibleConfig parameterizes one OpenAI-wire-format backend.
type OpenAICompatibleConfig struct {
	Name           string
	BaseURL        string
	APIKey         string
	APIKeyEnv      string // consulted when APIKey is empty
	DefaultModel   string
	FallbackModels map[string]string
}

// OpenAICompatible talks to any backend speaking the OpenAI chat-completions
// wire format. The openai, grok and silicon registrations are all instances
// of this client with different endpoints and credentials.
type OpenAICompatible struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	fallback     map[string]string
	httpClient   *http.Client
	logger       *slog.Logger
	tracer       trace.Tracer
	meter        metric.Meter
}

// NewOpenAICompatible validates the configuration and returns a ready client.
func NewOpenAICompatible(cfg OpenAICompatibleConfig, logger *slog.Logger) (*OpenAICompatible, error) {
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	if apiKey == "" {
		return nil, &ConstructionError{Provider: cfg.Name, Err: fmt.Errorf("%s not set", cfg.APIKeyEnv)}
	}
	if cfg.BaseURL == "" {
		return nil, &ConstructionError{Provider: cfg.Name, Err: fmt.Errorf("base URL not configured")}
	}
	if len(cfg.FallbackModels) == 0 {
		return nil, &ConstructionError{Provider: cfg.Name, Err: fmt.Errorf("fallback model list is empty")}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAICompatible{
		name:         cfg.Name,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       apiKey,
		defaultModel: cfg.DefaultModel,
		fallback:     cfg.FallbackModels,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
		tracer:       otel.Tracer("relaychat/provider"),
		meter:        otel.Meter("relaychat/provider"),
	}, nil
}

func (c *OpenAICompatible) Name() string         { return c.name }
func (c *OpenAICompatible) DefaultModel() string { return c.defaultModel }

// ListModels queries GET /models and falls back to the static map when the
// upstream listing fails or comes back empty.
func (c *OpenAICompatible) ListModels(ctx context.Context) map[string]string {
	body, err := doWithRetry(ctx, c.httpClient, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return req, nil
	})
	if err != nil {
		c.logger.Warn("model listing failed, using fallback", "provider", c.name, "error", err)
		return c.fallbackModels()
	}

	var list openAIModelList
	if err := json.Unmarshal(body, &list); err != nil || len(list.Data) == 0 {
		c.logger.Warn("model listing unparseable, using fallback", "provider", c.name, "error", err)
		return c.fallbackModels()
	}

	models := make(map[string]string, len(list.Data))
	for _, m := range list.Data {
		models[m.ID] = m.ID
	}
	return models
}

func (c *OpenAICompatible) fallbackModels() map[string]string {
	out := make(map[string]string, len(c.fallback))
	for k, v := range c.fallback {
		out[k] = v
	}
	return out
}

// Chat sends a synchronous completion request.
func (c *OpenAICompatible) Chat(ctx context.Context, messages []session.Message, model string, temperature float64) (string, error) {
	ctx, span := c.tracer.Start(ctx, c.name+"_api_call")
	defer span.End()

	start := time.Now()

	if len(messages) == 0 {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("empty message list")}
	}
	if model == "" {
		model = c.defaultModel
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	reqBody := openAIRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	body, err := doWithRetry(ctx, c.httpClient, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("content-type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: err}
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	c.recordCallMetrics(ctx, time.Since(start), apiResp.Usage)

	if len(apiResp.Choices) == 0 {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("empty response")}
	}
	return apiResp.Choices[0].Message.Content, nil
}

// ChatStream requests a streamed completion, forwarding each content delta to
// onChunk and returning the accumulated full text.
func (c *OpenAICompatible) ChatStream(ctx context.Context, messages []session.Message, model string, temperature float64, onChunk func(string)) (string, error) {
	ctx, span := c.tracer.Start(ctx, c.name+"_api_stream")
	defer span.End()

	if len(messages) == 0 {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("empty message list")}
	}
	if model == "" {
		model = c.defaultModel
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	reqBody := openAIRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
		Stream:      true,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("API error: %s", resp.Status)}
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("failed to parse stream chunk: %w", err)}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &ProviderError{Provider: c.name, Op: "chat", Err: fmt.Errorf("stream read failed: %w", err)}
	}

	return full.String(), nil
}

// recordCallMetrics records request duration and usage counters.
func (c *OpenAICompatible) recordCallMetrics(ctx context.Context, duration time.Duration, usage map[string]interface{}) {
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	for key, value := range usage {
		intVal, ok := value.(float64)
		if !ok {
			continue
		}
		counter, err := c.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			c.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, int64(intVal))
	}
}

func toOpenAIMessages(messages []session.Message) []openAIMessage {
	out := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		out[i] = openAIMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return out
}
