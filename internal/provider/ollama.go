package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"RelayChat/internal/session"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// ollamaRequest is the request body for the Ollama chat API.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
	} `json:"options,omitempty"`
}

// ollamaResponse is the response from the Ollama chat API.
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// ollamaTagsResponse is the response from the Ollama tags endpoint.
type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

// Ollama talks to a local or remote Ollama daemon. No credentials involved.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

var ollamaFallbackModels = map[string]string{
	"Llama 3":   "llama3:latest",
	"Mistral":   "mistral:latest",
	"Llama 3.1": "llama3.1:latest",
}

// NewOllama returns a client for the daemon at baseURL (default
// http://localhost:11434).
func NewOllama(baseURL, model string, logger *slog.Logger) (*Ollama, error) {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	if model == "" {
		model = "llama3:latest"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ollama{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		tracer:     otel.Tracer("relaychat/provider"),
		meter:      otel.Meter("relaychat/provider"),
	}, nil
}

func (c *Ollama) Name() string         { return "ollama" }
func (c *Ollama) DefaultModel() string { return c.model }

// ListModels asks the daemon for its installed models, falling back to a
// static list when the daemon is unreachable.
func (c *Ollama) ListModels(ctx context.Context) map[string]string {
	body, err := doWithRetry(ctx, c.httpClient, c.logger, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	})
	if err == nil {
		var tags ollamaTagsResponse
		if jsonErr := json.Unmarshal(body, &tags); jsonErr == nil && len(tags.Models) > 0 {
			models := make(map[string]string, len(tags.Models))
			for _, m := range tags.Models {
				models[m.Name] = m.Name
			}
			return models
		}
	} else {
		c.logger.Warn("model listing failed, using fallback (is Ollama running?)", "error", err)
	}

	models := make(map[string]string, len(ollamaFallbackModels))
	for k, v := range ollamaFallbackModels {
		models[k] = v
	}
	return models
}

// Chat sends a synchronous completion request.
func (c *Ollama) Chat(ctx context.Context, messages []session.Message, model string, temperature float64) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ollama_api_call")
	defer span.End()

	start := time.Now()

	if len(messages) == 0 {
		return "", &ProviderError{Provider: "ollama", Op: "chat", Err: fmt.Errorf("empty message list")}
	}
	if model == "" {
		model = c.model
	}

	reqBody := ollamaRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   false,
	}
	if temperature > 0 {
		reqBody.Options.Temperature = temperature
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Op: "chat", Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	body, err := doWithRetry(ctx, c.httpClient, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("content-type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Op: "chat", Err: err}
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &ProviderError{Provider: "ollama", Op: "chat", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	duration := time.Since(start)
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	return apiResp.Message.Content, nil
}
