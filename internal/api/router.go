package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/mynotes/internal/auth"
	"github.com/starford/mynotes/internal/notes"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(machine *auth.Machine, svc *notes.Service, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)
	ah := NewAuthHandler(machine)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Authentication.
	r.Post("/auth/events", ah.PostEvent)
	r.Get("/auth/state", ah.GetState)
	r.Get("/auth/stream", ah.StreamState)

	// Users.
	r.Post("/users", h.GetOrCreateUser)
	r.Get("/users/{email}", h.GetUser)
	r.Delete("/users/{email}", h.DeleteUser)

	// Notes. chi matches the static /notes/stream ahead of /notes/{id}.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Delete("/notes", h.DeleteAllNotes)
	r.Get("/notes/stream", h.StreamNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	return r
}
