package station

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// pendingRequest is one outstanding Call awaiting its CallResult/CallError.
// resultCh receives at most one requestOutcome, carrying a response payload
// or an error; it is never closed.
type pendingRequest struct {
	command ocpp.Action
	payload interface{}
	resultCh chan requestOutcome
}

// requestOutcome is what a pendingRequest resolves to: either a decoded
// response payload or an error (OCPPError, station-stop sentinel, timeout).
type requestOutcome struct {
	response json.RawMessage
	err      error
}

// requestCache is the per-station map of outstanding MessageId -> pending
// Call. At most one outstanding entry per id; an id is
// resolved exactly once, whichever of response/error/timeout fires first.
type requestCache struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newRequestCache() *requestCache {
	return &requestCache{entries: make(map[string]*pendingRequest)}
}

// insert adds a new pending entry resolving through resultCh. It fails if
// the id is already present; MessageIds must be unique per station.
func (c *requestCache) insert(id string, command ocpp.Action, payload interface{}, resultCh chan requestOutcome) (*pendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; exists {
		return nil, fmt.Errorf("duplicate messageId %s", id)
	}
	entry := &pendingRequest{command: command, payload: payload, resultCh: resultCh}
	c.entries[id] = entry
	return entry, nil
}

// take removes and returns the entry for id, or nil if absent. Single-shot:
// a second call for the same id returns nil.
func (c *requestCache) take(id string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil
	}
	delete(c.entries, id)
	return entry
}

// remove deletes id without returning the entry, used when a send fails
// before any response can arrive.
func (c *requestCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// size reports the number of outstanding entries.
func (c *requestCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// drainWithError resolves every outstanding entry with err and empties the
// cache, used on station stop.
func (c *requestCache) drainWithError(err error) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, entry := range entries {
		entry.resultCh <- requestOutcome{err: err}
	}
}
