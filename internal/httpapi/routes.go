package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/ws"
)

func SetupRoutes(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/metrics", s.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(s.jwtSecret))

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", s.CreateRoom)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", s.GetRoom)
				r.Post("/players", s.JoinRoom)
				r.Delete("/players/{id}", s.LeaveRoom)
				r.Put("/players/{id}/ready", s.SetReady)
				r.Post("/start", s.StartGame)
				r.Post("/scores", s.SubmitScore)
				r.Post("/rounds", s.AdvanceRound)
				r.Post("/end", s.EndGame)
				r.Get("/ws", ws.Handler(s.gateway, s.engine, s.logger))
			})
		})

		r.Get("/users/{ref}/games", s.GamesForUser)
		r.Get("/users/{ref}/games/{other}", s.GamesBetweenUsers)

		r.Get("/ledger/{ref}", s.Balances)
		r.Post("/ledger/{ref}/nudge/{other}", s.Nudge)
	})
	return r
}
