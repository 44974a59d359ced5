package auth

import "errors"

// GenericMessage is shown for errors without a tailored message.
const GenericMessage = "Authentication error"

var messages = []struct {
	err error
	msg string
}{
	{ErrUserNotFound, "Cannot find a user with the entered credentials!"},
	{ErrWrongPassword, "Wrong credentials"},
	{ErrWeakPassword, "Weak password"},
	{ErrEmailAlreadyInUse, "Email is already in use"},
	{ErrInvalidEmail, "This is an invalid email address"},
	{ErrRequiresRecentLogin, "Please log in again to continue"},
	{ErrUserNotLoggedIn, "You are not logged in"},
}

// Message returns the dialog text for err, or "" for nil.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return GenericMessage
}
