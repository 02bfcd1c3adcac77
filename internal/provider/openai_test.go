package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"RelayChat/internal/session"
)

func testOpenAIConfig(name, baseURL string) OpenAICompatibleConfig {
	return OpenAICompatibleConfig{
		Name:         name,
		BaseURL:      baseURL,
		APIKey:       "test-key",
		DefaultModel: "test-model",
		FallbackModels: map[string]string{
			"Test Model": "test-model",
		},
	}
}

func fastRetries(t *testing.T) {
	t.Helper()
	old := baseRetryDelay
	baseRetryDelay = time.Millisecond
	t.Cleanup(func() { baseRetryDelay = old })
}

func TestOpenAICompatibleConstructionRequiresKey(t *testing.T) {
	cfg := testOpenAIConfig("openai", "http://localhost")
	cfg.APIKey = ""
	cfg.APIKeyEnv = "RELAYCHAT_TEST_MISSING_KEY"

	_, err := NewOpenAICompatible(cfg, nil)
	var ce *ConstructionError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ConstructionError", err)
	}
	if ce.Provider != "openai" {
		t.Errorf("ConstructionError.Provider = %q, want openai", ce.Provider)
	}
}

func TestOpenAICompatibleChat(t *testing.T) {
	var gotAuth string
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello there"}}],"usage":{"total_tokens":7}}`))
	}))
	defer srv.Close()

	client, err := NewOpenAICompatible(testOpenAIConfig("openai", srv.URL), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	messages := []session.Message{
		{Role: session.RoleSystem, Content: "be brief"},
		{Role: session.RoleUser, Content: "hi"},
	}
	got, err := client.Chat(context.Background(), messages, "test-model", 0.5)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got != "hello there" {
		t.Errorf("Chat = %q, want %q", got, "hello there")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 {
		t.Errorf("upstream received %d messages, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("first upstream role = %q, want system", gotReq.Messages[0].Role)
	}
}

func TestOpenAICompatibleChatEmptyMessages(t *testing.T) {
	client, err := NewOpenAICompatible(testOpenAIConfig("openai", "http://localhost:1"), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	_, err = client.Chat(context.Background(), nil, "test-model", 0)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
}

func TestOpenAICompatibleRetriesTransientFailures(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"recovered"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAICompatible(testOpenAIConfig("openai", srv.URL), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	got, err := client.Chat(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hi"}}, "", 0)
	if err != nil {
		t.Fatalf("Chat failed after retries: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Chat = %q, want %q", got, "recovered")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("upstream called %d times, want 3", n)
	}
}

func TestOpenAICompatibleDoesNotRetryClientErrors(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewOpenAICompatible(testOpenAIConfig("openai", srv.URL), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	_, err = client.Chat(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hi"}}, "", 0)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if pe.Provider != "openai" {
		t.Errorf("ProviderError.Provider = %q, want openai", pe.Provider)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream called %d times for a 401, want 1", n)
	}
}

func TestOpenAICompatibleGivesUpAfterBudget(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewOpenAICompatible(testOpenAIConfig("openai", srv.URL), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	_, err = client.Chat(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hi"}}, "", 0)
	if err == nil {
		t.Fatal("expected terminal error after retry budget")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("upstream called %d times, want 3", n)
	}
}

func TestOpenAICompatibleListModelsDynamic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"model-a"},{"id":"model-b"}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAICompatible(testOpenAIConfig("openai", srv.URL), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	models := client.ListModels(context.Background())
	if len(models) != 2 {
		t.Fatalf("ListModels returned %d entries, want 2", len(models))
	}
	if models["model-a"] != "model-a" {
		t.Errorf("models[model-a] = %q", models["model-a"])
	}
}

func TestOpenAICompatibleListModelsFallback(t *testing.T) {
	fastRetries(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewOpenAICompatible(testOpenAIConfig("silicon", srv.URL), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	models := client.ListModels(context.Background())
	if len(models) == 0 {
		t.Fatal("fallback model list is empty")
	}
	if models["Test Model"] != "test-model" {
		t.Errorf("fallback models = %v", models)
	}
}

func TestOpenAICompatibleChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream=true in request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client, err := NewOpenAICompatible(testOpenAIConfig("openai", srv.URL), nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatible failed: %v", err)
	}

	var chunks []string
	got, err := client.ChatStream(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hi"}}, "", 0, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("ChatStream full text = %q, want %q", got, "hello")
	}
	if len(chunks) != 2 {
		t.Errorf("received %d chunks, want 2", len(chunks))
	}
}
