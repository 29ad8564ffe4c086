package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idea-auction/internal/auction"
	"idea-auction/internal/persona"
	"idea-auction/internal/store"
)

// ViewerCounter reports how many connections watch a session. Implemented
// by the websocket hub.
type ViewerCounter interface {
	Viewers(sessionID string) int
}

type noViewers struct{}

func (noViewers) Viewers(string) int { return 0 }

type PublicHandlers struct {
	registry *auction.Registry
	catalog  *persona.Catalog
	viewers  ViewerCounter
	st       *store.Store
}

func NewPublicHandlers(registry *auction.Registry, catalog *persona.Catalog, viewers ViewerCounter, st *store.Store) *PublicHandlers {
	if viewers == nil {
		viewers = noViewers{}
	}
	return &PublicHandlers{registry: registry, catalog: catalog, viewers: viewers, st: st}
}

type sessionListItem struct {
	SessionID       string `json:"session_id"`
	TopicID         string `json:"topic_id"`
	TopicContent    string `json:"topic_content"`
	Phase           string `json:"phase"`
	TimeRemainingMS int64  `json:"time_remaining_ms"`
	HighestBid      int64  `json:"highest_bid"`
	ViewerCount     int    `json:"viewer_count"`
}

func (h *PublicHandlers) Sessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live := h.registry.Live()
		items := make([]sessionListItem, 0, len(live))
		for _, s := range live {
			if s.Ending() {
				continue
			}
			snap := s.Snapshot()
			items = append(items, sessionListItem{
				SessionID:       snap.SessionID,
				TopicID:         snap.TopicID,
				TopicContent:    snap.TopicContent,
				Phase:           snap.Phase,
				TimeRemainingMS: snap.TimeRemainingMS,
				HighestBid:      snap.HighestBid,
				ViewerCount:     h.viewers.Viewers(snap.SessionID),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}
}

func (h *PublicHandlers) SessionSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		sess, ok := h.registry.Get(sessionID)
		if !ok {
			WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			return
		}
		_ = json.NewEncoder(w).Encode(sess.Snapshot())
	}
}

// SessionSummary serves the terminal summary. Live sessions have none yet;
// ended ones resolve from the in-memory cache first, then the audit table.
func (h *PublicHandlers) SessionSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if summary, ok := h.registry.Summary(sessionID); ok {
			_ = json.NewEncoder(w).Encode(summary)
			return
		}
		if h.st != nil {
			audit, err := h.st.GetSessionAudit(r.Context(), sessionID)
			if err == nil && audit.Status == "ended" {
				_ = json.NewEncoder(w).Encode(audit)
				return
			}
		}
		WriteHTTPError(w, http.StatusNotFound, "session_not_found")
	}
}

func (h *PublicHandlers) Personas() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": h.catalog.All()})
	}
}

func (h *PublicHandlers) CreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TopicID      string `json:"topic_id"`
			TopicContent string `json:"topic_content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.TopicID == "" || body.TopicContent == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		sess, err := h.registry.GetOrCreate(body.TopicID, body.TopicContent)
		if err != nil {
			metricSessionCreateErrors.Add(1)
			if errors.Is(err, auction.ErrResourceExhausted) {
				WriteHTTPError(w, http.StatusServiceUnavailable, "resource_exhausted")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		metricSessionCreateTotal.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sess.Snapshot())
	}
}

// RegisterUser creates a viewer identity with a starting credit balance so
// paid actions like price guesses work out of the box.
func (h *PublicHandlers) RegisterUser(initialCredits int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.st == nil {
			WriteHTTPError(w, http.StatusServiceUnavailable, "store_unavailable")
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		token := store.NewID()
		userID, err := h.st.CreateUser(r.Context(), body.Name, token)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if err := h.st.EnsureAccount(r.Context(), userID, initialCredits); err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		metricUserRegisterTotal.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id": userID,
			"token":   token,
			"balance": initialCredits,
		})
	}
}
