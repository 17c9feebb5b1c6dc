// Package conversation orchestrates inbound messages and swipe navigation:
// persona resolution, guard checks, provider dispatch, and delivery.
package conversation

import (
	"sync"

	"github.com/ashureev/charcord/internal/provider"
)

// turn holds one persona's latest accepted exchange: the formatted user input,
// the parent pointer the exchange branched from (remote backend only), and the
// ordered response candidates accumulated by swipes.
type turn struct {
	input      string
	parentID   string
	candidates []provider.Candidate
}

// ResponseCache keeps per-persona candidate lists for swipe navigation.
// A persona's list is fully replaced on each newly accepted inbound message
// and append-only within a turn.
type ResponseCache struct {
	mu    sync.Mutex
	turns map[string]*turn
}

// NewResponseCache creates an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{turns: make(map[string]*turn)}
}

// Reset starts a new turn for the persona with a single candidate.
func (c *ResponseCache) Reset(personaID, input, parentID string, first provider.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[personaID] = &turn{
		input:      input,
		parentID:   parentID,
		candidates: []provider.Candidate{first},
	}
}

// Append adds a candidate to the persona's current turn and returns its index.
// Returns -1 when the persona has no active turn.
func (c *ResponseCache) Append(personaID string, cand provider.Candidate) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.turns[personaID]
	if !ok {
		return -1
	}
	t.candidates = append(t.candidates, cand)
	return len(t.candidates) - 1
}

// Get retrieves the candidate at index. Out-of-range lookups report false
// rather than erroring.
func (c *ResponseCache) Get(personaID string, index int) (provider.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.turns[personaID]
	if !ok || index < 0 || index >= len(t.candidates) {
		return provider.Candidate{}, false
	}
	return t.candidates[index], true
}

// Count returns the number of candidates in the persona's current turn.
func (c *ResponseCache) Count(personaID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.turns[personaID]
	if !ok {
		return 0
	}
	return len(t.candidates)
}

// Turn returns the formatted input and parent pointer of the current turn.
func (c *ResponseCache) Turn(personaID string) (input, parentID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, found := c.turns[personaID]
	if !found {
		return "", "", false
	}
	return t.input, t.parentID, true
}

// Extend appends continuation text to the candidate at index.
func (c *ResponseCache) Extend(personaID string, index int, more string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.turns[personaID]
	if !ok || index < 0 || index >= len(t.candidates) {
		return false
	}
	t.candidates[index].Text += more
	return true
}

// Drop discards the persona's current turn.
func (c *ResponseCache) Drop(personaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.turns, personaID)
}
