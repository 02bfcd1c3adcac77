package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"RelayChat/internal/session"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	anthropicKeyEnv  = "ANTHROPIC_API_KEY"
)

// anthropicRequest is the request body for the Anthropic messages API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// anthropicResponse is the response from the Anthropic messages API.
type anthropicResponse struct {
	ID         string                 `json:"id"`
	Role       string                 `json:"role"`
	Content    []anthropicContent     `json:"content"`
	Model      string                 `json:"model"`
	StopReason string                 `json:"stop_reason"`
	Usage      map[string]interface{} `json:"usage"`
}

type anthropicModelList struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// Anthropic calls the Anthropic messages API. System messages are lifted out
// of the message list into the request's system field, which is where that
// API wants them.
type Anthropic struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

var anthropicFallbackModels = map[string]string{
	"Claude Sonnet 4":  "claude-sonnet-4-20250514",
	"Claude 3.5 Haiku": "claude-3-5-haiku-20241022",
	"Claude 3 Opus":    "claude-3-opus-20240229",
}

// NewAnthropic validates credentials and returns a ready client. baseURL and
// model are optional overrides.
func NewAnthropic(apiKey, baseURL, model string, logger *slog.Logger) (*Anthropic, error) {
	if apiKey == "" {
		apiKey = os.Getenv(anthropicKeyEnv)
	}
	if apiKey == "" {
		return nil, &ConstructionError{Provider: "anthropic", Err: fmt.Errorf("%s not set", anthropicKeyEnv)}
	}
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Anthropic{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		tracer:     otel.Tracer("relaychat/provider"),
		meter:      otel.Meter("relaychat/provider"),
	}, nil
}

func (c *Anthropic) Name() string         { return "anthropic" }
func (c *Anthropic) DefaultModel() string { return c.model }

// ListModels queries the models endpoint, falling back to the static
// catalogue on any failure.
func (c *Anthropic) ListModels(ctx context.Context) map[string]string {
	body, err := doWithRetry(ctx, c.httpClient, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		return req, nil
	})
	if err == nil {
		var list anthropicModelList
		if jsonErr := json.Unmarshal(body, &list); jsonErr == nil && len(list.Data) > 0 {
			models := make(map[string]string, len(list.Data))
			for _, m := range list.Data {
				display := m.DisplayName
				if display == "" {
					display = m.ID
				}
				models[display] = m.ID
			}
			return models
		}
	} else {
		c.logger.Warn("model listing failed, using fallback", "provider", "anthropic", "error", err)
	}

	models := make(map[string]string, len(anthropicFallbackModels))
	for k, v := range anthropicFallbackModels {
		models[k] = v
	}
	return models
}

// Chat sends a synchronous completion request.
func (c *Anthropic) Chat(ctx context.Context, messages []session.Message, model string, temperature float64) (string, error) {
	ctx, span := c.tracer.Start(ctx, "anthropic_api_call")
	defer span.End()

	start := time.Now()

	if len(messages) == 0 {
		return "", &ProviderError{Provider: "anthropic", Op: "chat", Err: fmt.Errorf("empty message list")}
	}
	if model == "" {
		model = c.model
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	var system string
	reqMessages := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			system = msg.Content
			continue
		}
		reqMessages = append(reqMessages, anthropicMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if len(reqMessages) == 0 {
		return "", &ProviderError{Provider: "anthropic", Op: "chat", Err: fmt.Errorf("no user or assistant messages")}
	}

	reqBody := anthropicRequest{
		Model:       model,
		MaxTokens:   1024,
		Temperature: temperature,
		System:      system,
		Messages:    reqMessages,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: "anthropic", Op: "chat", Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	body, err := doWithRetry(ctx, c.httpClient, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		req.Header.Set("content-type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", &ProviderError{Provider: "anthropic", Op: "chat", Err: err}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &ProviderError{Provider: "anthropic", Op: "chat", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	duration := time.Since(start)
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	for _, content := range apiResp.Content {
		if content.Type == "text" {
			return content.Text, nil
		}
	}
	return "", &ProviderError{Provider: "anthropic", Op: "chat", Err: fmt.Errorf("empty response")}
}
