package api

import (
	"log/slog"
	"net/http"

	"github.com/starford/mynotes/internal/auth"
	"github.com/starford/mynotes/internal/sse"
)

// AuthHandler exposes the authentication state machine.
type AuthHandler struct {
	machine *auth.Machine
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(m *auth.Machine) *AuthHandler {
	return &AuthHandler{machine: m}
}

// PostEvent handles POST /api/auth/events.
//
// The event is queued; its outcome is observed through the state endpoints.
//
//	@Summary		Dispatch an authentication event
//	@Tags			auth
//	@Accept			json
//	@Param			body	body	AuthEventRequest	true	"Event"
//	@Success		202		"Event accepted"
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/auth/events [post]
func (h *AuthHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req AuthEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := req.Event()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.machine.Dispatch(r.Context(), ev); err != nil {
		slog.Warn("dispatch auth event failed", slog.String("type", req.Type), slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetState handles GET /api/auth/state.
//
//	@Summary		Get the current authentication state
//	@Tags			auth
//	@Produce		json
//	@Success		200		{object}	StateResponse
//	@Security		BearerAuth
//	@Router			/auth/state [get]
func (h *AuthHandler) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewStateResponse(h.machine.State()))
}

// StreamState handles GET /api/auth/stream.
//
//	@Summary		Stream authentication states as Server-Sent Events
//	@Tags			auth
//	@Produce		text/event-stream
//	@Security		BearerAuth
//	@Router			/auth/stream [get]
func (h *AuthHandler) StreamState(w http.ResponseWriter, r *http.Request) {
	cur, sub := h.machine.SubscribeCurrent()
	sse.Stream(w, r, sub, &cur, func(s auth.State) sse.Event {
		return sse.Event{Type: EventAuthState, Data: NewStateResponse(s)}
	})
}
