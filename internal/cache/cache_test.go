package cache

import (
	"testing"
	"time"

	"RelayChat/internal/session"
)

func TestKeyDependsOnRoleAndContent(t *testing.T) {
	a := Key([]session.Message{{Role: session.RoleUser, Content: "hi"}})
	b := Key([]session.Message{{Role: session.RoleUser, Content: "hi"}})
	if a != b {
		t.Error("identical prompts produced different keys")
	}

	c := Key([]session.Message{{Role: session.RoleAssistant, Content: "hi"}})
	if a == c {
		t.Error("different roles produced the same key")
	}

	d := Key([]session.Message{{Role: session.RoleUser, Content: "hi there"}})
	if a == d {
		t.Error("different contents produced the same key")
	}
}

func TestCachePutGet(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache reported a hit")
	}

	c.Put("k", "response")
	got, ok := c.Get("k")
	if !ok || got != "response" {
		t.Errorf("Get = (%q, %v), want (response, true)", got, ok)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(time.Nanosecond)
	c.Put("k", "response")

	time.Sleep(time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry still served")
	}
}
