package ws

import (
	"errors"
	"testing"

	"idea-auction/internal/auction"
)

func newHubClient(key string) *client {
	c := &client{send: make(chan []byte, 64), id: key, key: key}
	c.touch()
	return c
}

func TestHubDuplicateKeyEviction(t *testing.T) {
	h := NewHub(10, 10)

	c1 := newHubClient("user-1")
	c2 := newHubClient("user-1")
	for _, c := range []*client{c1, c2} {
		if err := h.register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	count, err := h.attach(c1, "sess-1")
	if err != nil || count != 1 {
		t.Fatalf("first attach: count=%d err=%v", count, err)
	}
	count, err = h.attach(c2, "sess-1")
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if count != 1 {
		t.Fatalf("viewer count after reconnect = %d, want 1 (old attachment evicted)", count)
	}
	if h.viewerCount("sess-1") != 1 {
		t.Fatalf("hub viewer count = %d, want 1", h.viewerCount("sess-1"))
	}

	// the evicted client's send channel is closed
	select {
	case _, open := <-c1.send:
		if open {
			t.Fatal("evicted client received data instead of close")
		}
	default:
		t.Fatal("evicted client's send channel still open")
	}
}

func TestHubViewerCap(t *testing.T) {
	h := NewHub(10, 2)
	for i, key := range []string{"a", "b"} {
		c := newHubClient(key)
		if err := h.register(c); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if _, err := h.attach(c, "sess-1"); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}
	c := newHubClient("c")
	if err := h.register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := h.attach(c, "sess-1"); !errors.Is(err, auction.ErrResourceExhausted) {
		t.Fatalf("attach over cap: err = %v, want ErrResourceExhausted", err)
	}
	// a different session is unaffected
	if _, err := h.attach(c, "sess-2"); err != nil {
		t.Fatalf("attach to second session: %v", err)
	}
}

func TestHubGlobalCap(t *testing.T) {
	h := NewHub(2, 10)
	for _, key := range []string{"a", "b"} {
		if err := h.register(newHubClient(key)); err != nil {
			t.Fatalf("register %s: %v", key, err)
		}
	}
	if err := h.register(newHubClient("c")); !errors.Is(err, auction.ErrResourceExhausted) {
		t.Fatalf("register over cap: err = %v, want ErrResourceExhausted", err)
	}
}

func TestHubUnregisterRemovesEverywhere(t *testing.T) {
	h := NewHub(10, 10)
	c := newHubClient("user-1")
	if err := h.register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := h.attach(c, "sess-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	sessionID, remaining, wasAttached := h.unregister(c)
	if !wasAttached || sessionID != "sess-1" || remaining != 0 {
		t.Fatalf("unregister = (%q, %d, %v)", sessionID, remaining, wasAttached)
	}
	if h.viewerCount("sess-1") != 0 {
		t.Fatal("viewer still counted after unregister")
	}
	h.mu.Lock()
	_, inConns := h.conns[c]
	_, inKeys := h.byKey["user-1"]
	h.mu.Unlock()
	if inConns || inKeys {
		t.Fatalf("client left behind: conns=%v byKey=%v", inConns, inKeys)
	}
	// second unregister is a no-op
	if _, _, again := h.unregister(c); again {
		t.Fatal("double unregister reported an attachment")
	}
}

func TestHubPublishExceptSkipsSender(t *testing.T) {
	h := NewHub(10, 10)
	a := newHubClient("a")
	b := newHubClient("b")
	for _, c := range []*client{a, b} {
		if err := h.register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
		if _, err := h.attach(c, "sess-1"); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	h.PublishExcept("sess-1", Pong{Type: "pong"}, "a")
	if len(a.send) != 0 {
		t.Fatal("sender received its own echo")
	}
	if len(b.send) != 1 {
		t.Fatalf("other viewer got %d messages, want 1", len(b.send))
	}
}

func TestHubRekeyMovesIndex(t *testing.T) {
	h := NewHub(10, 10)

	c1 := newHubClient("conn-1")
	if err := h.register(c1); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := h.attach(c1, "sess-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	h.rekey(c1, "user-9")

	h.mu.Lock()
	_, oldKept := h.byKey["conn-1"]
	indexed := h.byKey["user-9"]
	h.mu.Unlock()
	if oldKept {
		t.Fatal("stale key still indexed after rekey")
	}
	if indexed != c1 {
		t.Fatal("new key not indexed after rekey")
	}

	// A reconnect under the rebound key evicts the first connection.
	c2 := newHubClient("user-9")
	if err := h.register(c2); err != nil {
		t.Fatalf("register: %v", err)
	}
	count, err := h.attach(c2, "sess-1")
	if err != nil || count != 1 {
		t.Fatalf("attach after rekey: count=%d err=%v", count, err)
	}
	select {
	case _, open := <-c1.send:
		if open {
			t.Fatal("evicted connection still has an open send channel")
		}
	default:
		t.Fatal("evicted connection was not shut down")
	}
}

func TestHubRekeyEvictsExistingHolder(t *testing.T) {
	h := NewHub(10, 10)

	c1 := newHubClient("user-9")
	c2 := newHubClient("conn-2")
	for _, c := range []*client{c1, c2} {
		if err := h.register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if _, err := h.attach(c1, "sess-1"); err != nil {
		t.Fatalf("attach c1: %v", err)
	}
	if _, err := h.attach(c2, "sess-1"); err != nil {
		t.Fatalf("attach c2: %v", err)
	}

	h.rekey(c2, "user-9")

	if got := h.viewerCount("sess-1"); got != 1 {
		t.Fatalf("viewer count = %d, want 1 (prior holder of the key evicted)", got)
	}
	h.mu.Lock()
	indexed := h.byKey["user-9"]
	h.mu.Unlock()
	if indexed != c2 {
		t.Fatal("rekeyed connection does not own the key")
	}
}
