package chat

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"RelayChat/internal/cache"
	"RelayChat/internal/config"
	"RelayChat/internal/provider"
	"RelayChat/internal/session"
)

// Status tags an orchestrator result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the normalized outcome of a chat call. The orchestrator is the
// failure-containment boundary: provider and store errors come back tagged
// here, never as raised errors.
type Result struct {
	Status    Status `json:"status"`
	Response  string `json:"response,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Err       string `json:"error,omitempty"`
}

func errorResult(sessionID string, err error) Result {
	return Result{Status: StatusError, SessionID: sessionID, Err: err.Error()}
}

const sessionLockStripes = 64

// Orchestrator routes chat requests to the active provider and maintains
// per-session history. Turns within one session are serialized by a striped
// lock; distinct sessions run fully parallel.
type Orchestrator struct {
	registry *provider.Registry
	store    session.Store
	window   int
	cache    *cache.Cache // nil when disabled
	logger   *slog.Logger

	persistFailures metric.Int64Counter

	sessionLocks [sessionLockStripes]sync.Mutex
}

// Options tunes an Orchestrator.
type Options struct {
	// ContextWindow is the default number of turns forwarded upstream.
	ContextWindow int
	// Cache, when non-nil, replays completions for identical prompts.
	Cache  *cache.Cache
	Logger *slog.Logger
}

// New creates an Orchestrator over registry and store.
func New(registry *provider.Registry, store session.Store, opts Options) *Orchestrator {
	window := opts.ContextWindow
	if window <= 0 {
		window = config.DefaultContextWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter("relaychat/chat")
	persistFailures, err := meter.Int64Counter(
		"chat.persist.failures",
		metric.WithDescription("Session histories that failed to persist after a successful turn"),
	)
	if err != nil {
		logger.Warn("failed to create persist failure counter", "error", err)
	}

	return &Orchestrator{
		registry:        registry,
		store:           store,
		window:          window,
		cache:           opts.Cache,
		logger:          logger,
		persistFailures: persistFailures,
	}
}

// Chat is the stateless mode: the caller supplies the complete message list,
// which is forwarded as-is to the active provider. No session is involved.
func (o *Orchestrator) Chat(ctx context.Context, messages []session.Message, model string) Result {
	client, ok := o.registry.Active()
	if !ok {
		return errorResult("", provider.ErrNoActiveProvider)
	}
	if model == "" {
		model = client.DefaultModel()
	}

	response, err := o.complete(ctx, client, messages, model)
	if err != nil {
		o.logger.Error("stateless chat failed", "provider", client.Name(), "error", err)
		return errorResult("", err)
	}
	return Result{Status: StatusSuccess, Response: response}
}

// ChatWithMemory is the stateful mode: it loads the session history, sends
// the windowed tail upstream, and persists the grown history only after the
// provider answered. A failed call leaves durable history exactly as it was.
func (o *Orchestrator) ChatWithMemory(ctx context.Context, sessionID, userMessage, model string, contextWindow int) Result {
	// Capture the active client up front; a concurrent switch must not
	// redirect this call mid-flight.
	client, ok := o.registry.Active()
	if !ok {
		return errorResult("", provider.ErrNoActiveProvider)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if model == "" {
		model = client.DefaultModel()
	}

	window := contextWindow
	if window <= 0 {
		window = o.window
	}

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history := o.store.GetHistory(ctx, sessionID)
	working := append(history, session.Message{Role: session.RoleUser, Content: userMessage})

	// The prompt is bounded to the last window*2 messages; the stored
	// history never is.
	prompt := working
	if limit := window * 2; len(prompt) > limit {
		prompt = prompt[len(prompt)-limit:]
	}

	response, err := o.complete(ctx, client, prompt, model)
	if err != nil {
		o.logger.Error("chat turn failed", "provider", client.Name(), "session_id", sessionID, "error", err)
		return errorResult(sessionID, err)
	}

	working = append(working, session.Message{Role: session.RoleAssistant, Content: response})
	if err := o.store.SaveHistory(ctx, sessionID, working); err != nil {
		// The provider already answered; the caller still gets the
		// response. The lost turn is flagged for operators.
		o.logger.Error("failed to persist session history", "session_id", sessionID, "error", err)
		if o.persistFailures != nil {
			o.persistFailures.Add(ctx, 1)
		}
	}

	return Result{Status: StatusSuccess, Response: response, SessionID: sessionID}
}

// ChatStream behaves like ChatWithMemory but forwards response chunks to
// onChunk when the captured client supports streaming. The persisted history
// and the returned result carry the full text either way.
func (o *Orchestrator) ChatStream(ctx context.Context, sessionID, userMessage, model string, contextWindow int, onChunk func(string)) Result {
	client, ok := o.registry.Active()
	if !ok {
		return errorResult("", provider.ErrNoActiveProvider)
	}

	streamer, canStream := client.(provider.Streamer)
	if !canStream {
		result := o.ChatWithMemory(ctx, sessionID, userMessage, model, contextWindow)
		if result.Status == StatusSuccess && onChunk != nil {
			onChunk(result.Response)
		}
		return result
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if model == "" {
		model = client.DefaultModel()
	}
	window := contextWindow
	if window <= 0 {
		window = o.window
	}

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history := o.store.GetHistory(ctx, sessionID)
	working := append(history, session.Message{Role: session.RoleUser, Content: userMessage})
	prompt := working
	if limit := window * 2; len(prompt) > limit {
		prompt = prompt[len(prompt)-limit:]
	}

	response, err := streamer.ChatStream(ctx, prompt, model, 0, onChunk)
	if err != nil {
		o.logger.Error("streamed chat turn failed", "provider", client.Name(), "session_id", sessionID, "error", err)
		return errorResult(sessionID, err)
	}

	working = append(working, session.Message{Role: session.RoleAssistant, Content: response})
	if err := o.store.SaveHistory(ctx, sessionID, working); err != nil {
		o.logger.Error("failed to persist session history", "session_id", sessionID, "error", err)
		if o.persistFailures != nil {
			o.persistFailures.Add(ctx, 1)
		}
	}

	return Result{Status: StatusSuccess, Response: response, SessionID: sessionID}
}

// complete runs one provider call, consulting the response cache when
// enabled.
func (o *Orchestrator) complete(ctx context.Context, client provider.Client, prompt []session.Message, model string) (string, error) {
	var key string
	if o.cache != nil {
		key = cache.Key(prompt)
		if cached, ok := o.cache.Get(key); ok {
			o.logger.Info("cache hit", "key", key[:16])
			return cached, nil
		}
	}

	response, err := client.Chat(ctx, prompt, model, 0)
	if err != nil {
		return "", err
	}

	if o.cache != nil {
		o.cache.Put(key, response)
	}
	return response, nil
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &o.sessionLocks[h.Sum32()%sessionLockStripes]
}
