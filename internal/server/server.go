// Package server assembles the HTTP surface: chi router, middleware chain and
// the route table.
package server

import (
	"net/http"
	"slices"
	"strings"

	"lovetrack-backend/internal/handlers"
	"lovetrack-backend/internal/middleware"
	"lovetrack-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Services are the collaborators the routes call into
type Services struct {
	Users   *services.UserService
	Couples *services.CoupleService
	Fields  *services.FieldService
	Events  *services.EventService
	Exports *services.ExportService
	Hub     *services.WSHub
}

// Options tune the HTTP surface
type Options struct {
	AllowedOrigins []string
	VAPIDPublicKey string
	Logger         zerolog.Logger
}

// Server holds the handlers behind the router
type Server struct {
	svc     Services
	opts    Options
	userH   *handlers.UserHandler
	coupleH *handlers.CoupleHandler
	fieldH  *handlers.FieldHandler
	eventH  *handlers.EventHandler
	pushH   *handlers.PushHandler
	wsH     *handlers.WebSocketHandler
}

// New creates the server
func New(svc Services, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		svc:     svc,
		opts:    opts,
		userH:   handlers.NewUserHandler(svc.Users),
		coupleH: handlers.NewCoupleHandler(svc.Couples, svc.Exports),
		fieldH:  handlers.NewFieldHandler(svc.Couples, svc.Fields),
		eventH:  handlers.NewEventHandler(svc.Couples, svc.Events),
		pushH:   handlers.NewPushHandler(svc.Users, opts.VAPIDPublicKey),
		wsH:     handlers.NewWebSocketHandler(svc.Hub, svc.Users, opts.AllowedOrigins),
	}
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.opts.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(s.opts.AllowedOrigins))

	r.Get("/healthz", healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", s.userH.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(s.svc.Users))

			r.Get("/users/me", s.userH.GetMe)

			r.Post("/couples", s.coupleH.CreateCouple)
			r.Post("/couples/join", s.coupleH.JoinCouple)
			r.Get("/couples/{couple_id}", s.coupleH.GetCouple)
			r.Post("/couples/{couple_id}/pairing-code", s.coupleH.RegeneratePairingCode)
			r.Post("/couples/{couple_id}/export", s.coupleH.ExportCouple)

			r.Put("/couples/{couple_id}/fields/{name}", s.fieldH.PutField)
			r.Get("/couples/{couple_id}/fields/{name}", s.fieldH.GetField)
			r.Delete("/couples/{couple_id}/fields/{name}", s.fieldH.DeleteField)

			r.Get("/events", s.eventH.ListEvents)
			r.Post("/events", s.eventH.CreateEvent)
			r.Get("/events/{event_id}", s.eventH.GetEvent)
			r.Put("/events/{event_id}", s.eventH.UpdateEvent)
			r.Delete("/events/{event_id}", s.eventH.DeleteEvent)

			r.Post("/push/tokens", s.pushH.RegisterToken)
		})

		r.Get("/push/vapid-key", s.pushH.VAPIDKey)
	})

	// WebSocket route
	r.Get("/ws", s.wsH.HandleWebSocket)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// corsMiddleware handles CORS
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(allowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			}, ", "))
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
