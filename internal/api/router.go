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
		r.Post("/auth/signup", apiHandler.SignupHandler)
		r.Post("/auth/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Recording routes work with or without a credential; an anonymous
		// submission is processed but not persisted.
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.OptionalIdentityMiddleware)

			r.Post("/recordings", apiHandler.SubmitRecordingHandler)
			r.Post("/conversations", apiHandler.DirectSaveHandler)
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/auth/me", apiHandler.MeHandler)
			r.Put("/user/profile", apiHandler.UpdateProfileHandler)

			r.Get("/user/conversations", apiHandler.ListConversationsHandler)
			r.Get("/user/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Delete("/user/conversations/{conversationID}", apiHandler.DeleteConversationHandler)
		})
	})

	return r
}
