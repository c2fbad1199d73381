package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)

		// Marker-token routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.TokenAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)
			r.Get("/me", apiHandler.MeHandler)

			r.Route("/chat", func(r chi.Router) {
				r.Get("/", apiHandler.GetChatHandler)
				r.Get("/suggestions", apiHandler.SuggestionsHandler)
				r.Post("/reset", apiHandler.ResetChatHandler)
				r.Post("/messages", apiHandler.PostMessageHandler)
				r.Post("/messages/{messageID}/feedback", apiHandler.MessageFeedbackHandler)
			})

			r.Post("/dictation", apiHandler.DictationHandler)
		})
	})

	return r
}
