// Package searchcache memoizes similar_questions results per requester
// so a client re-paging through the same query doesn't re-run scoring.
// A reverse index from question id to cached keys lets a write to one
// question drop only the entries that contain it; Invalidate drops
// everything.
package searchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/right-to-ask/rta/core"
)

const defaultCapacity = 1000

type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache
	// byQuestion tracks which cache keys hold a snapshot mentioning a
	// given question, so a single question-store write can evict just
	// the entries it could invalidate instead of purging everything.
	byQuestion map[string]map[string]bool
}

// New builds a cache with the given capacity, or defaultCapacity (1000)
// if capacity is non-positive.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	c := &Cache{byQuestion: map[string]map[string]bool{}}
	inner, err := lru.NewWithEvict(capacity, func(key, value interface{}) {
		c.forgetKeyLocked(key.(string), value.(core.PageResult))
	})
	if err != nil {
		panic(err) // only fails for a non-positive capacity, which is normalized above
	}
	c.inner = inner
	return c
}

// forgetKeyLocked removes key from every question's reverse-index
// entry. Callers must hold c.mu; the LRU's eviction callback runs
// synchronously inside inner.Add/Remove/Purge, so it always does.
func (c *Cache) forgetKeyLocked(key string, result core.PageResult) {
	for _, q := range result.Questions {
		set, ok := c.byQuestion[q.QuestionID]
		if !ok {
			continue
		}
		delete(set, key)
		if len(set) == 0 {
			delete(c.byQuestion, q.QuestionID)
		}
	}
}

// Key derives a stable cache key from the requester and the query
// shape; two identical queries from the same user hit the same entry.
func Key(requesterUID string, cmd core.SimilarQuestionsCommand) string {
	body, _ := json.Marshal(cmd)
	sum := sha256.Sum256(append([]byte(requesterUID+":"), body...))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Get(key string) (core.PageResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.inner.Get(key)
	if !ok {
		return core.PageResult{}, false
	}
	result, ok := value.(core.PageResult)
	return result, ok
}

func (c *Cache) Put(key string, result core.PageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, result)
	for _, q := range result.Questions {
		set, ok := c.byQuestion[q.QuestionID]
		if !ok {
			set = map[string]bool{}
			c.byQuestion[q.QuestionID] = set
		}
		set[key] = true
	}
}

// Invalidate drops every cached page. Called on the periodic board
// publish, since a new published root can shift recency scoring for
// every candidate at once.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
	c.byQuestion = map[string]map[string]bool{}
}

// InvalidateForQuestion evicts only the cached snapshots that mention
// questionID, for a targeted question-store write (edit, answer, vote,
// report, censor) that can't have changed any other candidate's score.
func (c *Cache) InvalidateForQuestion(questionID string) {
	c.mu.Lock()
	keys := c.byQuestion[questionID]
	delete(c.byQuestion, questionID)
	c.mu.Unlock()

	for key := range keys {
		c.mu.Lock()
		c.inner.Remove(key)
		c.mu.Unlock()
	}
}
