package api

import (
	"fmt"

	"github.com/starford/mynotes/internal/auth"
	"github.com/starford/mynotes/internal/store"
)

// Auth event types accepted by POST /api/auth/events.
const (
	EventInitialize            = "initialize"
	EventLogIn                 = "log_in"
	EventLogOut                = "log_out"
	EventShouldRegister        = "should_register"
	EventRegister              = "register"
	EventForgotPassword        = "forgot_password"
	EventSendEmailVerification = "send_email_verification"
)

// AuthEventRequest is the request body for dispatching an auth event.
type AuthEventRequest struct {
	Type     string `json:"type" example:"log_in" validate:"required"`
	Email    string `json:"email,omitempty" example:"me@example.com"`
	Password string `json:"password,omitempty" example:"secret1"`
}

// Event converts the request into an auth.Event.
func (r AuthEventRequest) Event() (auth.Event, error) {
	switch r.Type {
	case EventInitialize:
		return auth.Initialize{}, nil
	case EventLogIn:
		return auth.LogIn{Email: r.Email, Password: r.Password}, nil
	case EventLogOut:
		return auth.LogOut{}, nil
	case EventShouldRegister:
		return auth.ShouldRegister{}, nil
	case EventRegister:
		return auth.Register{Email: r.Email, Password: r.Password}, nil
	case EventForgotPassword:
		return auth.ForgotPasswordRequest{Email: r.Email}, nil
	case EventSendEmailVerification:
		return auth.SendEmailVerification{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", r.Type)
	}
}

// StateResponse is the flattened wire form of an auth.State.
type StateResponse struct {
	Kind          string `json:"kind" example:"logged_in" validate:"required"`
	Email         string `json:"email,omitempty" example:"me@example.com"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	IsLoading     bool   `json:"is_loading,omitempty"`
	LoadingText   string `json:"loading_text,omitempty"`
	HasSentEmail  bool   `json:"has_sent_email,omitempty"`
	Registered    bool   `json:"registered,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty" example:"Wrong credentials"`
}

// NewStateResponse flattens s.
func NewStateResponse(s auth.State) StateResponse {
	resp := StateResponse{Kind: s.Kind()}
	switch s := s.(type) {
	case auth.Loading:
	case auth.LoggedOut:
		resp.IsLoading = s.IsLoading
		resp.LoadingText = s.LoadingText
	case auth.NeedsVerification:
	case auth.LoggedIn:
		resp.Email = s.User.Email
		resp.EmailVerified = s.User.IsEmailVerified
	case auth.ForgotPassword:
		resp.HasSentEmail = s.HasSentEmail
		resp.IsLoading = s.IsLoading
	case auth.LogoutFailure:
	case auth.Registering:
		resp.IsLoading = s.IsLoading
		resp.Registered = s.Registered
	}
	if err := auth.StateErr(s); err != nil {
		resp.Error = err.Error()
		resp.Message = auth.Message(err)
	}
	return resp
}

// UserRequest is the request body for POST /api/users.
type UserRequest struct {
	Email string `json:"email" example:"me@example.com" validate:"required"`
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Email string `json:"email" example:"me@example.com" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Text string `json:"text" example:"Buy milk"`
}

// Note is the note response type (aliased from the store layer).
type Note = store.Note

// User is the user response type (aliased from the store layer).
type User = store.User

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []Note `json:"notes" validate:"required"`
	Total int    `json:"total" example:"42" validate:"required"`
}

// DeleteAllResponse reports how many notes were removed.
type DeleteAllResponse struct {
	Deleted int64 `json:"deleted" example:"3" validate:"required"`
}
