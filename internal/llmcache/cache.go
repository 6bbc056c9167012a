// Package llmcache implements the LLM Cache (C9): a content-addressed
// prompt→completion cache, generalized from teacher
// internal/cache.DedupeCache's TTL+max-size map — that cache only
// recorded "have we seen this key" as a boolean; this one stores the
// provider.Response itself so a hit can skip the call entirely, per
// spec §4.5 ("Cache hits skip the provider call ... from_cache=true and
// cost=0"). The cache is a nice-to-have: every lookup method degrades
// to a miss on an empty/nil Cache, so the Operation Engine functions
// identically with caching disabled.
package llmcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/getmira/mira-core/internal/llm/providers"
	"github.com/getmira/mira-core/pkg/models"
)

type entry struct {
	response  *providers.Response
	timestamp int64
}

// Cache is a TTL+max-size bounded map keyed by request fingerprint,
// grounded on teacher internal/cache.DedupeCache's prune/touch shape.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int
}

// Options configures a Cache.
type Options struct {
	TTL     time.Duration
	MaxSize int
}

// New builds a Cache. A zero-value Options (TTL<=0, MaxSize<=0) makes
// every entry live forever with no size bound — callers that want
// caching disabled entirely should pass a nil *Cache instead, since
// every method on a nil *Cache is a safe no-op/miss.
func New(opts Options) *Cache {
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	maxSize := opts.MaxSize
	if maxSize < 0 {
		maxSize = 0
	}
	return &Cache{entries: make(map[string]entry), ttl: ttl, maxSize: maxSize}
}

// Fingerprint computes the content-addressed cache key per spec §4.5:
// hash(provider_id, model, reasoning_effort, messages_canonical_json,
// tools_canonical_json).
func Fingerprint(providerID, model, reasoningEffort string, messages []providers.Message, tools []models.ToolDeclaration) (string, error) {
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(providerID))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(reasoningEffort))
	h.Write([]byte{0})
	h.Write(messagesJSON)
	h.Write([]byte{0})
	h.Write(toolsJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached Response for fingerprint, if present and not
// expired. A nil Cache always misses.
func (c *Cache) Get(fingerprint string) (*providers.Response, bool) {
	if c == nil || fingerprint == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().UnixMilli()-e.timestamp >= c.ttl.Milliseconds() {
		delete(c.entries, fingerprint)
		return nil, false
	}
	return e.response, true
}

// Put stores resp under fingerprint, evicting expired and
// oldest-over-capacity entries. A nil Cache is a no-op.
func (c *Cache) Put(fingerprint string, resp *providers.Response) {
	if c == nil || fingerprint == "" || resp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMilli()
	c.entries[fingerprint] = entry{response: resp, timestamp: now}
	c.prune(now)
}

func (c *Cache) prune(nowUnix int64) {
	if c.ttl > 0 {
		cutoff := nowUnix - c.ttl.Milliseconds()
		for key, e := range c.entries {
			if e.timestamp < cutoff {
				delete(c.entries, key)
			}
		}
	}

	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize {
		var oldestKey string
		oldestTs := int64(1<<63 - 1)
		for k, e := range c.entries {
			if e.timestamp < oldestTs {
				oldestTs = e.timestamp
				oldestKey = k
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
	}
}

// Size returns the current number of cached entries. Safe on a nil
// Cache (returns 0).
func (c *Cache) Size() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries. Safe on a nil Cache (no-op).
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
