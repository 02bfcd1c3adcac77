package provider

import (
	"fmt"
	"log/slog"
	"sync"
)

// Factory constructs a Client. Construction validates credentials and
// configuration; it must not return a half-configured client.
type Factory func() (Client, error)

// Registry maps provider names to lazily-constructed, cached clients and
// tracks the single active provider. Clients are cached for the process
// lifetime: providers are few and construction is not cheap.
//
// The active pointer is shared mutable state. Callers capture the client once
// at the start of a chat call, so a concurrent switch never redirects an
// in-flight request.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	clients   map[string]Client
	active    Client
	logger    *slog.Logger
}

// NewRegistry creates an empty registry with no active provider.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: map[string]Factory{},
		clients:   map[string]Client{},
		logger:    logger,
	}
}

// Register adds a named factory. Registering an existing name replaces the
// factory but keeps any already-constructed client.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// GetOrCreate returns the cached client for name, constructing it on first
// use. Unknown names fail with ErrUnknownProvider; construction failures
// surface as the factory's *ConstructionError and nothing is cached.
func (r *Registry) GetOrCreate(name string) (Client, error) {
	r.mu.RLock()
	if client, ok := r.clients[name]; ok {
		r.mu.RUnlock()
		return client, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[name]; ok {
		return client, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	client, err := factory()
	if err != nil {
		return nil, err
	}
	r.clients[name] = client
	r.logger.Info("constructed provider", "provider", name)
	return client, nil
}

// SwitchActive attempts to make name the active provider. On any failure the
// previous active provider is left untouched and false is returned, so a
// switch never leaves the process without a usable provider.
func (r *Registry) SwitchActive(name string) bool {
	client, err := r.GetOrCreate(name)
	if err != nil {
		r.logger.Warn("provider switch failed", "provider", name, "error", err)
		return false
	}

	r.mu.Lock()
	r.active = client
	r.mu.Unlock()

	r.logger.Info("switched active provider", "provider", name)
	return true
}

// Active returns the current active client, or false when none has been
// selected yet.
func (r *Registry) Active() (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.active != nil
}
