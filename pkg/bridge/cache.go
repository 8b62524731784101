package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/imago-ai/imago/pkg/types"
)

// cacheKey identifies one translation: source, target, and the content hash
// of the native document.
type cacheKey struct {
	source types.Framework
	target types.Framework
	hash   string
}

// contentHash is the deterministic digest of a native document. Map keys
// marshal sorted, so structurally equal documents hash equal.
func contentHash(native map[string]any) (string, error) {
	raw, err := json.Marshal(native)
	if err != nil {
		return "", fmt.Errorf("failed to hash native document: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// translationCache is a bounded cache with oldest-first eviction. A hit
// bumps the hit counter and never re-runs the translation.
type translationCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*TranslationResult
	order   []cacheKey
	limit   int
	hits    int64
}

func newTranslationCache(limit int) *translationCache {
	if limit < 1 {
		limit = 256
	}
	return &translationCache{
		entries: make(map[cacheKey]*TranslationResult, limit),
		limit:   limit,
	}
}

func (c *translationCache) get(key cacheKey) (*TranslationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.hits++
	return result, true
}

func (c *translationCache) put(key cacheKey, result *TranslationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.entries[key] = result
		return
	}
	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = result
	c.order = append(c.order, key)
}

func (c *translationCache) stats() (size int, hits int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.hits
}
