package auth

import (
	"errors"
	"fmt"
)

// Provider error taxonomy. Provider implementations return errors wrapping
// exactly one of these.
var (
	ErrInvalidEmail        = errors.New("auth: invalid email")
	ErrWeakPassword        = errors.New("auth: weak password")
	ErrEmailAlreadyInUse   = errors.New("auth: email already in use")
	ErrUserNotFound        = errors.New("auth: user not found")
	ErrWrongPassword       = errors.New("auth: wrong password")
	ErrRequiresRecentLogin = errors.New("auth: requires recent login")
	ErrUserNotLoggedIn     = errors.New("auth: user not logged in")
	ErrGenericAuth         = errors.New("auth: authentication failed")
)

// ErrNotInitialized is returned by provider calls made before Initialize.
var ErrNotInitialized = fmt.Errorf("auth: provider not initialized: %w", ErrGenericAuth)

// ErrMachineClosed is returned by Dispatch after Close.
var ErrMachineClosed = errors.New("auth: machine closed")
