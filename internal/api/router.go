package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Anonymous demo routes, identified by a hashed device id
		r.Get("/demo/cards/today", apiHandler.DemoTodayCardsHandler)

		// Bearer optional: authenticated users and demo devices share this
		// endpoint, with isolated quotas
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.OptionalJWTAuthMiddleware)
			r.Post("/cards/regenerate-question", apiHandler.RegenerateQuestionHandler)
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/cards/today", apiHandler.TodayCardsHandler)
			r.Post("/cards/regenerate-today", apiHandler.RegenerateTodayHandler)

			r.Get("/repositories", apiHandler.ListRepositoriesHandler)
			r.Put("/repositories", apiHandler.UpdateRepositoriesHandler)
		})
	})

	return r
}
