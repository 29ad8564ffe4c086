package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"idea-auction/internal/auction"
)

// Hub owns the subscriber sets. It implements auction.Sink, so session
// loops publish straight into it; because each session has a single
// producing goroutine, pushing into the per-connection send channels under
// one lock preserves event order identically for every viewer.
type Hub struct {
	maxConnections int
	maxViewers     int

	mu       sync.Mutex
	conns    map[*client]bool
	sessions map[string]map[*client]bool
	byKey    map[string]*client
}

func NewHub(maxConnections, maxViewersPerSession int) *Hub {
	return &Hub{
		maxConnections: maxConnections,
		maxViewers:     maxViewersPerSession,
		conns:          map[*client]bool{},
		sessions:       map[string]map[*client]bool{},
		byKey:          map[string]*client{},
	}
}

func (h *Hub) Publish(sessionID string, ev any) {
	h.publish(sessionID, ev, "")
}

func (h *Hub) PublishExcept(sessionID string, ev any, excludeKey string) {
	h.publish(sessionID, ev, excludeKey)
}

func (h *Hub) publish(sessionID string, ev any, excludeKey string) {
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("event marshal failed")
		return
	}
	h.mu.Lock()
	for c := range h.sessions[sessionID] {
		if excludeKey != "" && c.key == excludeKey {
			continue
		}
		safeSend(c.send, msg)
		metricEventsSent.Add(1)
	}
	h.mu.Unlock()
}

// register admits a fresh connection under the global cap, before any join.
func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxConnections > 0 && len(h.conns) >= h.maxConnections {
		return auction.ErrResourceExhausted
	}
	h.conns[c] = true
	metricConnections.Add(1)
	return nil
}

// attach subscribes a connection to a session and returns the new viewer
// count. A prior connection under the same key is evicted first, so a
// reconnecting client never holds two attachments and the count stays what
// a single join would produce.
func (h *Hub) attach(c *client, sessionID string) (int, error) {
	var evicted *client
	h.mu.Lock()
	if old := h.byKey[c.key]; old != nil && old != c {
		h.removeLocked(old)
		evicted = old
		metricEvictions.Add(1)
		metricConnections.Add(-1)
	}
	if c.sessionID != "" && c.sessionID != sessionID {
		h.detachLocked(c)
	}
	subs := h.sessions[sessionID]
	if h.maxViewers > 0 && len(subs) >= h.maxViewers && !subs[c] {
		h.mu.Unlock()
		if evicted != nil {
			evicted.shutdown()
		}
		return 0, auction.ErrResourceExhausted
	}
	if subs == nil {
		subs = map[*client]bool{}
		h.sessions[sessionID] = subs
	}
	subs[c] = true
	h.byKey[c.key] = c
	c.sessionID = sessionID
	count := len(subs)
	h.mu.Unlock()

	if evicted != nil {
		evicted.shutdown()
	}
	return count, nil
}

// rekey rebinds the connection's broadcast key once its identity is known.
// publish and the eviction path read the key under h.mu from other
// goroutines, so the write must happen under the same lock. A different
// connection already holding the new key is evicted, same as on attach.
func (h *Hub) rekey(c *client, key string) {
	var evicted *client
	h.mu.Lock()
	if key != "" && key != c.key {
		if old := h.byKey[key]; old != nil && old != c {
			h.removeLocked(old)
			evicted = old
			metricEvictions.Add(1)
			metricConnections.Add(-1)
		}
		if h.byKey[c.key] == c {
			delete(h.byKey, c.key)
			h.byKey[key] = c
		}
		c.key = key
	}
	h.mu.Unlock()
	if evicted != nil {
		evicted.shutdown()
	}
}

// detach unsubscribes the connection from its session, if any, and returns
// the session id and remaining viewer count.
func (h *Hub) detach(c *client) (string, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessionID := c.sessionID
	if sessionID == "" {
		return "", 0, false
	}
	h.detachLocked(c)
	return sessionID, len(h.sessions[sessionID]), true
}

// unregister removes the connection from every map in one step, so it can
// never linger half-removed.
func (h *Hub) unregister(c *client) (string, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.conns[c] {
		return "", 0, false
	}
	sessionID := c.sessionID
	wasAttached := sessionID != ""
	h.removeLocked(c)
	metricConnections.Add(-1)
	return sessionID, len(h.sessions[sessionID]), wasAttached
}

func (h *Hub) removeLocked(c *client) {
	delete(h.conns, c)
	if h.byKey[c.key] == c {
		delete(h.byKey, c.key)
	}
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *client) {
	if c.sessionID == "" {
		return
	}
	if subs := h.sessions[c.sessionID]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.sessions, c.sessionID)
		}
	}
	c.sessionID = ""
}

// sessionOf reads the client's current attachment under the hub lock; the
// eviction path can clear it from another goroutine.
func (h *Hub) sessionOf(c *client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.sessionID
}

func (h *Hub) viewerCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// Viewers reports the current attachment count for a session.
func (h *Hub) Viewers(sessionID string) int {
	return h.viewerCount(sessionID)
}

// stale returns connections whose last heartbeat is older than the cutoff.
func (h *Hub) stale(cutoff int64) []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*client
	for c := range h.conns {
		if c.lastSeenUnixMilli() < cutoff {
			out = append(out, c)
		}
	}
	return out
}
