package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"RelayChat/internal/chat"
	"RelayChat/internal/provider"
	"RelayChat/internal/session"
)

type stubClient struct{}

func (s *stubClient) Name() string         { return "dummy" }
func (s *stubClient) DefaultModel() string { return "dummy-model" }
func (s *stubClient) ListModels(context.Context) map[string]string {
	return map[string]string{"Dummy": "dummy-model"}
}
func (s *stubClient) Chat(_ context.Context, _ []session.Message, _ string, _ float64) (string, error) {
	return "stub reply", nil
}

func newTestServer(t *testing.T, activate bool) (*httptest.Server, *provider.Registry) {
	t.Helper()
	registry := provider.NewRegistry(nil)
	registry.Register("dummy", func() (provider.Client, error) { return &stubClient{}, nil })
	if activate && !registry.SwitchActive("dummy") {
		t.Fatal("failed to activate dummy provider")
	}

	orchestrator := chat.New(registry, session.NewMemoryStore(), chat.Options{})
	srv := httptest.NewServer(NewServer(orchestrator, registry, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, registry
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestListModelsNoActiveProvider(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/api/models")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Models map[string]string `json:"models"`
	}
	decodeBody(t, resp, &out)
	if len(out.Models) != 0 {
		t.Errorf("models = %v, want empty map", out.Models)
	}
}

func TestSwitchProvider(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := postJSON(t, srv.URL+"/api/provider/switch", map[string]string{"provider_name": "dummy"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Status          string            `json:"status"`
		CurrentProvider string            `json:"current_provider"`
		Models          map[string]string `json:"models"`
	}
	decodeBody(t, resp, &out)
	if out.Status != "switched" || out.CurrentProvider != "dummy" {
		t.Errorf("switch response = %+v", out)
	}
	if len(out.Models) == 0 {
		t.Error("switch response has no models")
	}
}

func TestSwitchProviderUnknown(t *testing.T) {
	srv, registry := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/provider/switch", map[string]string{"provider_name": "nonexistent"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	active, ok := registry.Active()
	if !ok || active.Name() != "dummy" {
		t.Error("failed switch disturbed the active provider")
	}
}

func TestChatStateful(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{
		"session_id":   "s1",
		"user_message": "hi",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out chatResponse
	decodeBody(t, resp, &out)
	if out.Response != "stub reply" {
		t.Errorf("response = %q, want stub reply", out.Response)
	}
	if out.SessionID != "s1" {
		t.Errorf("session_id = %q, want s1", out.SessionID)
	}
}

func TestChatStateless(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": "hi"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out chatResponse
	decodeBody(t, resp, &out)
	if out.Response != "stub reply" {
		t.Errorf("response = %q, want stub reply", out.Response)
	}
	if out.SessionID != "" {
		t.Errorf("stateless chat returned session_id %q", out.SessionID)
	}
}

func TestChatRejectsInvalidRole(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{
		"messages": []map[string]string{
			{"role": "robot", "content": "hi"},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatNoActiveProvider(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{"user_message": "hi"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/export", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
		"title":    "chat",
		"format":   "html",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestExportWord(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/export", map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
		},
		"title":  "chat",
		"format": "word",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}
