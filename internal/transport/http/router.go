package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"idea-auction/internal/auction"
	"idea-auction/internal/config"
	"idea-auction/internal/persona"
	"idea-auction/internal/store"
)

// starting balance for self-registered viewers
const initialViewerCredits = 1000

func NewRouter(cfg config.ServerConfig, registry *auction.Registry, catalog *persona.Catalog, viewers ViewerCounter, wsHandler http.HandlerFunc, st *store.Store) *chi.Mux {
	publicHandlers := NewPublicHandlers(registry, catalog, viewers, st)
	adminHandlers := NewAdminHandlers(registry, st)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/public/sessions", publicHandlers.Sessions())
		r.Get("/public/sessions/{session_id}/snapshot", publicHandlers.SessionSnapshot())
		r.Get("/public/sessions/{session_id}/summary", publicHandlers.SessionSummary())
		r.Get("/public/personas", publicHandlers.Personas())

		r.Post("/sessions", publicHandlers.CreateSession())
		r.Post("/users/register", publicHandlers.RegisterUser(initialViewerCredits))

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Post("/sessions/{session_id}/end", adminHandlers.ForceEnd())
			r.Get("/audits/sessions", adminHandlers.SessionAudits())
			r.Get("/audits/sessions/{session_id}/events", adminHandlers.EventAudits())
			r.Get("/ledger", adminHandlers.Ledger())
			r.Post("/topup", adminHandlers.Topup())
			r.Get("/debug/vars", expvar.Handler().ServeHTTP)
		})
	})

	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
