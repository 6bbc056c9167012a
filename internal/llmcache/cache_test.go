package llmcache

import (
	"testing"
	"time"

	"github.com/getmira/mira-core/internal/llm/providers"
	"github.com/getmira/mira-core/pkg/models"
)

func sampleMessages() []providers.Message {
	return []providers.Message{{Role: models.RoleUser, Content: "hello"}}
}

func TestFingerprintDeterministic(t *testing.T) {
	msgs := sampleMessages()
	tools := []models.ToolDeclaration{{Name: "grep"}}

	a, err := Fingerprint("anthropic", "claude-sonnet-4-20250514", "medium", msgs, tools)
	if err != nil {
		t.Fatalf("Fingerprint() error: %v", err)
	}
	b, err := Fingerprint("anthropic", "claude-sonnet-4-20250514", "medium", msgs, tools)
	if err != nil {
		t.Fatalf("Fingerprint() error: %v", err)
	}
	if a != b {
		t.Errorf("Fingerprint() not deterministic: %q != %q", a, b)
	}
}

func TestFingerprintDiffersOnAnyField(t *testing.T) {
	msgs := sampleMessages()
	tools := []models.ToolDeclaration{{Name: "grep"}}
	base, _ := Fingerprint("anthropic", "claude-sonnet-4-20250514", "medium", msgs, tools)

	variants := map[string]string{}
	variants["provider"], _ = Fingerprint("openai", "claude-sonnet-4-20250514", "medium", msgs, tools)
	variants["model"], _ = Fingerprint("anthropic", "claude-opus-4", "medium", msgs, tools)
	variants["effort"], _ = Fingerprint("anthropic", "claude-sonnet-4-20250514", "high", msgs, tools)
	variants["messages"], _ = Fingerprint("anthropic", "claude-sonnet-4-20250514", "medium",
		[]providers.Message{{Role: models.RoleUser, Content: "goodbye"}}, tools)
	variants["tools"], _ = Fingerprint("anthropic", "claude-sonnet-4-20250514", "medium", msgs,
		[]models.ToolDeclaration{{Name: "search_codebase"}})

	for name, v := range variants {
		if v == base {
			t.Errorf("variant %q produced the same fingerprint as base", name)
		}
	}
}

func TestCacheGetMiss(t *testing.T) {
	c := New(Options{})
	if _, ok := c.Get("nonexistent"); ok {
		t.Error("Get() on empty cache returned a hit")
	}
}

func TestCachePutThenGet(t *testing.T) {
	c := New(Options{})
	resp := &providers.Response{Content: "answer", TokensIn: 10, TokensOut: 20}
	c.Put("key-1", resp)

	got, ok := c.Get("key-1")
	if !ok {
		t.Fatal("Get() after Put() missed")
	}
	if got.Content != "answer" {
		t.Errorf("got.Content = %q, want %q", got.Content, "answer")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(Options{TTL: time.Millisecond})
	c.Put("key-1", &providers.Response{Content: "answer"})

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("key-1"); ok {
		t.Error("Get() returned a hit past TTL")
	}
}

func TestCacheMaxSizeEviction(t *testing.T) {
	c := New(Options{MaxSize: 2})
	c.Put("key-1", &providers.Response{Content: "a"})
	time.Sleep(time.Millisecond)
	c.Put("key-2", &providers.Response{Content: "b"})
	time.Sleep(time.Millisecond)
	c.Put("key-3", &providers.Response{Content: "c"})

	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
	if _, ok := c.Get("key-1"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("key-3"); !ok {
		t.Error("newest entry should still be present")
	}
}

func TestCacheClear(t *testing.T) {
	c := New(Options{})
	c.Put("key-1", &providers.Response{Content: "a"})
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear() = %d, want 0", c.Size())
	}
}

func TestNilCacheIsSafeMiss(t *testing.T) {
	var c *Cache
	if _, ok := c.Get("anything"); ok {
		t.Error("nil cache returned a hit")
	}
	c.Put("anything", &providers.Response{Content: "a"}) // must not panic
	if c.Size() != 0 {
		t.Errorf("Size() on nil cache = %d, want 0", c.Size())
	}
	c.Clear() // must not panic
}
