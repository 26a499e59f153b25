/*
server.go - Router setup and middleware

PURPOSE:
  Wires the HTTP routes to their handlers and configures the
  middleware stack (request IDs, logging, panic recovery, CORS).

SEE ALSO:
  - handlers.go: The handler implementations
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the API router for the given handler.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/sections", func(r chi.Router) {
			r.Get("/", h.ListSections)
			r.Post("/", h.CreateSection)
			r.Post("/{id}/toggle", h.ToggleSection)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Delete("/{id}", h.DeleteTask)
			r.Get("/{id}/scheduled", h.IsScheduled)

			r.Post("/{id}/toggle", h.ToggleCompletion)
			r.Post("/{id}/complete-all", h.CompleteWithSubtasks)
			r.Post("/{id}/rollover", h.Rollover)
			r.Put("/{id}/completions/{date}", h.UpsertCompletion)
			r.Post("/{id}/completions/{date}", h.UpsertCompletion)
			r.Patch("/{id}/completions/{date}", h.UpsertCompletion)
			r.Delete("/{id}/completions/{date}", h.DeleteCompletion)
		})

		r.Route("/views", func(r chi.Router) {
			r.Get("/today", h.TodayView)
			r.Get("/backlog", h.BacklogView)
			r.Get("/history", h.HistoryView)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
