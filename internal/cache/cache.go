package cache

import (
	"chat-gateway/internal/service/llm"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// CachedResponse is a memoized non-streaming completion
type CachedResponse struct {
	Content string
	Model   string
}

// Cache is a best-effort, non-authoritative accelerator for identical
// non-streaming requests. A cache that returns nothing is always a valid,
// if slower, outcome; correctness never depends on its contents.
type Cache interface {
	Get(key string) (*CachedResponse, bool)
	SetWithTTL(key string, value *CachedResponse, ttl time.Duration)
}

// BuildKey derives the cache key for a (user, model, conversation,
// feature-flags) tuple
func BuildKey(userID, modelID string, messages []llm.Message, webSearch, wikiGrounding bool) string {
	payload := struct {
		UserID        string        `json:"user_id"`
		Model         string        `json:"model"`
		Messages      []llm.Message `json:"messages"`
		WebSearch     bool          `json:"web_search"`
		WikiGrounding bool          `json:"wiki_grounding"`
	}{userID, modelID, messages, webSearch, wikiGrounding}

	data, err := json.Marshal(payload)
	if err != nil {
		// Unmarshalable keys never hit; the cache is best-effort
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
