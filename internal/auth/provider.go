package auth

import "context"

// Provider is the identity backend the Machine drives.
//
// Every error returned wraps one of the taxonomy errors in this package.
type Provider interface {
	// Initialize prepares the backend. Calling it again is a no-op.
	Initialize(ctx context.Context) error
	// CurrentUser returns the signed-in user without any I/O.
	CurrentUser() (User, bool)
	LogIn(ctx context.Context, email, password string) (User, error)
	CreateUser(ctx context.Context, email, password string) (User, error)
	LogOut(ctx context.Context) error
	SendEmailVerification(ctx context.Context) error
	SendPasswordResetEmail(ctx context.Context, email string) error
}

// Reloader is implemented by providers that can refresh the current user
// from the backend, e.g. to pick up a verification done elsewhere.
type Reloader interface {
	Reload(ctx context.Context) (User, error)
}
