package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"idea-auction/internal/aigen"
	"idea-auction/internal/auction"
	"idea-auction/internal/config"
	"idea-auction/internal/persona"
)

type offlineBackend struct{ name string }

func (b offlineBackend) Name() string { return b.name }

func (b offlineBackend) Generate(context.Context, string, aigen.GenOptions) (string, aigen.Usage, error) {
	return "", aigen.Usage{}, aigen.ErrBackendUnavailable
}

func newTestRouter(t *testing.T, cfg config.ServerConfig) (http.Handler, *auction.Registry) {
	t.Helper()
	catalog, err := persona.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	dispatcher := aigen.NewDispatcher(aigen.DispatcherConfig{},
		offlineBackend{name: "openai"}, offlineBackend{name: "kimi"})
	budget := 30 * time.Second
	params := auction.Params{
		Budgets:          [5]time.Duration{budget, budget, budget, budget, budget},
		DialogueInterval: time.Hour,
		ExtensionSeconds: 60,
		HistoryWindow:    8,
		CostUpdateEvery:  5,
	}
	registry := auction.NewRegistry(params, auction.Limits{MaxSessions: 10}, dispatcher, catalog, nil, nil)
	t.Cleanup(func() {
		for _, s := range registry.Live() {
			s.End("test_done")
		}
	})
	return NewRouter(cfg, registry, catalog, nil, nil, nil), registry
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestCreateSessionAndSnapshot(t *testing.T) {
	h, _ := newTestRouter(t, config.ServerConfig{})

	rec, created := doJSON(t, h, http.MethodPost, "/api/sessions",
		`{"topic_id":"t1","topic_content":"a robot barista"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" || created["phase"] != "warmup" {
		t.Fatalf("unexpected create response: %v", created)
	}

	rec, snap := doJSON(t, h, http.MethodGet, "/api/public/sessions/"+sessionID+"/snapshot", "", nil)
	if rec.Code != http.StatusOK || snap["topic_id"] != "t1" {
		t.Fatalf("snapshot: status=%d body=%v", rec.Code, snap)
	}

	rec, list := doJSON(t, h, http.MethodGet, "/api/public/sessions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	items, _ := list["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("live sessions = %d, want 1", len(items))
	}

	// same topic resolves to the same session
	rec, again := doJSON(t, h, http.MethodPost, "/api/sessions",
		`{"topic_id":"t1","topic_content":"a robot barista"}`, nil)
	if rec.Code != http.StatusCreated || again["session_id"] != sessionID {
		t.Fatalf("repeat create: status=%d session=%v", rec.Code, again["session_id"])
	}
}

func TestCreateSessionValidation(t *testing.T) {
	h, _ := newTestRouter(t, config.ServerConfig{})

	rec, body := doJSON(t, h, http.MethodPost, "/api/sessions", `{"topic_id":""}`, nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "invalid_request" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
	rec, body = doJSON(t, h, http.MethodPost, "/api/sessions", `not json`, nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "invalid_json" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestSnapshotUnknownSession(t *testing.T) {
	h, _ := newTestRouter(t, config.ServerConfig{})
	rec, body := doJSON(t, h, http.MethodGet, "/api/public/sessions/nope/snapshot", "", nil)
	if rec.Code != http.StatusNotFound || body["error"] != "session_not_found" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestPersonasListed(t *testing.T) {
	h, _ := newTestRouter(t, config.ServerConfig{})
	rec, body := doJSON(t, h, http.MethodGet, "/api/public/personas", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	items, _ := body["items"].([]any)
	if len(items) == 0 {
		t.Fatal("no personas listed")
	}
}

func TestAdminForceEndRequiresKey(t *testing.T) {
	h, registry := newTestRouter(t, config.ServerConfig{AdminAPIKey: "secret"})

	sess, err := registry.GetOrCreate("t1", "a robot barista")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec, _ := doJSON(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/end", `{"reason":"ops"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}

	rec, body := doJSON(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/end", `{"reason":"ops"}`,
		map[string]string{"X-Admin-Key": "secret"})
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("with key: status=%d body=%v", rec.Code, body)
	}
	if !sess.Ending() {
		t.Fatal("session not ending after force end")
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/api/sessions/unknown/end", `{}`,
		map[string]string{"X-Admin-Key": "secret"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status = %d, want 404", rec.Code)
	}
}

func TestSummaryServedAfterEnd(t *testing.T) {
	h, registry := newTestRouter(t, config.ServerConfig{})

	sess, err := registry.GetOrCreate("t1", "a robot barista")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess.End("manual")

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, body := doJSON(t, h, http.MethodGet, "/api/public/sessions/"+sess.ID+"/summary", "", nil)
		if rec.Code == http.StatusOK {
			if body["reason"] != "manual" {
				t.Fatalf("summary = %v", body)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("summary still %d after end", rec.Code)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthWithoutStore(t *testing.T) {
	h, _ := newTestRouter(t, config.ServerConfig{})
	rec, body := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}
