package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mynotes/internal/notes"
	"github.com/starford/mynotes/internal/sse"
)

// SSE event types.
const (
	EventNotesSnapshot = "notes.snapshot"
	EventAuthState     = "auth.state"
)

// Handler holds notes and users route handlers.
type Handler struct {
	svc *notes.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *notes.Service) *Handler {
	return &Handler{svc: svc}
}

// noteID parses the {id} URL parameter, answering 400 itself when invalid.
func noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return 0, false
	}
	return id, true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List every note
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.GetAllNotes(r.Context())
	if err != nil {
		writeServiceError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: all, Total: len(all)})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create an empty note for a user
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Owner"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("email is required"))
		return
	}
	owner, err := h.svc.GetUser(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, "create note", err, slog.String("email", req.Email))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), owner)
	if err != nil {
		writeServiceError(w, "create note", err, slog.String("email", req.Email))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		int	true	"Note id"
//	@Success		200		{object}	Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get note", err, slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace the text of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Note id"
//	@Param			body	body		UpdateNoteRequest	true	"New text"
//	@Success		200		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), Note{ID: id}, req.Text)
	if err != nil {
		writeServiceError(w, "update note", err, slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	int	true	"Note id"
//	@Success		204		"Note deleted"
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		writeServiceError(w, "delete note", err, slog.Int64("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllNotes handles DELETE /api/notes.
//
//	@Summary		Delete every note
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	DeleteAllResponse
//	@Security		BearerAuth
//	@Router			/notes [delete]
func (h *Handler) DeleteAllNotes(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteAllNotes(r.Context())
	if err != nil {
		writeServiceError(w, "delete all notes", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteAllResponse{Deleted: n})
}

// StreamNotes handles GET /api/notes/stream.
//
// The first event is the current cache; each later event is the full note set
// after a change. With ?owned=true only the current user's notes are sent, and
// the stream ends when that user stops being the current user.
//
//	@Summary		Stream note snapshots as Server-Sent Events
//	@Tags			notes
//	@Produce		text/event-stream
//	@Param			owned	query	bool	false	"Only the current user's notes"
//	@Security		BearerAuth
//	@Router			/notes/stream [get]
func (h *Handler) StreamNotes(w http.ResponseWriter, r *http.Request) {
	toEvent := func(s notes.Snapshot) sse.Event {
		if s == nil {
			s = notes.Snapshot{}
		}
		return sse.Event{Type: EventNotesSnapshot, Data: s}
	}

	if owned, _ := strconv.ParseBool(r.URL.Query().Get("owned")); owned {
		initial, sub, err := h.svc.SubscribeOwnedSnapshot()
		if err != nil {
			writeServiceError(w, "stream owned notes", err)
			return
		}
		sse.Stream(w, r, sub, &initial, toEvent)
		return
	}

	initial, sub := h.svc.SubscribeSnapshot()
	sse.Stream(w, r, sub, &initial, toEvent)
}

// GetOrCreateUser handles POST /api/users.
//
//	@Summary		Get or create a user and make it the current user
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UserRequest	true	"User email"
//	@Success		200		{object}	User
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users [post]
func (h *Handler) GetOrCreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("email is required"))
		return
	}
	u, err := h.svc.GetOrCreateUser(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, "get or create user", err, slog.String("email", req.Email))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetUser handles GET /api/users/{email}.
//
//	@Summary		Get a user by email
//	@Tags			users
//	@Produce		json
//	@Param			email	path		string	true	"Email, case-insensitive"
//	@Success		200		{object}	User
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users/{email} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	u, err := h.svc.GetUser(r.Context(), email)
	if err != nil {
		writeServiceError(w, "get user", err, slog.String("email", email))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteUser handles DELETE /api/users/{email}.
//
//	@Summary		Delete a user
//	@Tags			users
//	@Param			email	path	string	true	"Email, case-insensitive"
//	@Success		204		"User deleted"
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users/{email} [delete]
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.svc.DeleteUser(r.Context(), email); err != nil {
		writeServiceError(w, "delete user", err, slog.String("email", email))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
