package provider

import (
	"context"

	"RelayChat/internal/session"
)

// Client is the capability set every LLM backend implements.
type Client interface {
	// Name returns the registry name of this provider.
	Name() string

	// DefaultModel returns the model used when a caller does not pick one.
	DefaultModel() string

	// ListModels returns display-name to model-id pairs. It never fails:
	// when the upstream listing is unavailable each provider falls back to
	// a static, non-empty map.
	ListModels(ctx context.Context) map[string]string

	// Chat sends the message list as-is and returns the assistant's text.
	// Trimming the prompt is the caller's job. Any transport or parsing
	// failure surfaces as a *ProviderError; partial text is never returned.
	Chat(ctx context.Context, messages []session.Message, model string, temperature float64) (string, error)
}

// Streamer is implemented by clients that can deliver the reply
// incrementally. The full text is still the return value; onChunk is a
// notification, not a different contract.
type Streamer interface {
	ChatStream(ctx context.Context, messages []session.Message, model string, temperature float64, onChunk func(string)) (string, error)
}

// Descriptor is a snapshot of a provider's identity and model catalogue.
type Descriptor struct {
	Name         string            `json:"name"`
	DefaultModel string            `json:"default_model"`
	Models       map[string]string `json:"models"`
}

// Describe builds a Descriptor for c.
func Describe(ctx context.Context, c Client) Descriptor {
	return Descriptor{
		Name:         c.Name(),
		DefaultModel: c.DefaultModel(),
		Models:       c.ListModels(ctx),
	}
}

const defaultTemperature = 0.7
