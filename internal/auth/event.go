package auth

// Event is an input to the Machine. The set is closed.
type Event interface {
	isEvent()
}

// Initialize prepares the provider and resolves the signed-in user.
type Initialize struct{}

// LogIn signs in with email and password.
type LogIn struct {
	Email    string
	Password string
}

// LogOut ends the session.
type LogOut struct{}

// ShouldRegister asks for the registration screen.
type ShouldRegister struct{}

// Register creates an account and sends the verification email.
type Register struct {
	Email    string
	Password string
}

// ForgotPasswordRequest sends a password reset email. An empty Email only
// opens the forgot-password flow.
type ForgotPasswordRequest struct {
	Email string
}

// SendEmailVerification re-sends the verification email.
type SendEmailVerification struct{}

func (Initialize) isEvent()            {}
func (LogIn) isEvent()                 {}
func (LogOut) isEvent()                {}
func (ShouldRegister) isEvent()        {}
func (Register) isEvent()              {}
func (ForgotPasswordRequest) isEvent() {}
func (SendEmailVerification) isEvent() {}
