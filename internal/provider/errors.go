package provider

import (
	"errors"
	"fmt"
)

// ErrUnknownProvider indicates a name with no registered factory.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrNoActiveProvider indicates no provider has been switched to yet.
var ErrNoActiveProvider = errors.New("no active provider")

// ProviderError wraps any failure from an already-constructed client.
type ProviderError struct {
	Provider string
	Op       string // "chat" or "list_models"
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConstructionError indicates a provider could not be built: credentials
// missing or invalid, endpoint unusable. A half-configured client is never
// returned alongside one of these.
type ConstructionError struct {
	Provider string
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct provider %s: %v", e.Provider, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }
