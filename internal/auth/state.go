package auth

// State is the Machine's output. The set of variants is closed; consumers
// switch over it exhaustively.
type State interface {
	// Kind is a stable lower_snake name of the variant.
	Kind() string
	isState()
}

// Loading is the initial state and the state while logging out.
type Loading struct{}

// LoggedOut means no user is signed in. IsLoading marks the interim state
// emitted while a log-in attempt is in flight.
type LoggedOut struct {
	Err         error
	IsLoading   bool
	LoadingText string
}

// NeedsVerification means the signed-in user has not verified their email.
// Err is set when re-sending the verification email failed.
type NeedsVerification struct {
	Err error
}

// LoggedIn carries the signed-in, verified user.
type LoggedIn struct {
	User User
}

// ForgotPassword is the password reset flow.
type ForgotPassword struct {
	Err          error
	HasSentEmail bool
	IsLoading    bool
}

// LogoutFailure means the provider refused to log out.
type LogoutFailure struct {
	Err error
}

// Registering is the registration flow. Registered is set once the account
// exists and the verification email went out.
type Registering struct {
	Err        error
	IsLoading  bool
	Registered bool
}

func (Loading) Kind() string           { return "loading" }
func (LoggedOut) Kind() string         { return "logged_out" }
func (NeedsVerification) Kind() string { return "needs_verification" }
func (LoggedIn) Kind() string          { return "logged_in" }
func (ForgotPassword) Kind() string    { return "forgot_password" }
func (LogoutFailure) Kind() string     { return "logout_failure" }
func (Registering) Kind() string       { return "registering" }

func (Loading) isState()           {}
func (LoggedOut) isState()         {}
func (NeedsVerification) isState() {}
func (LoggedIn) isState()          {}
func (ForgotPassword) isState()    {}
func (LogoutFailure) isState()     {}
func (Registering) isState()       {}

// StateErr returns the error carried by s, if any.
func StateErr(s State) error {
	switch s := s.(type) {
	case Loading, LoggedIn:
		return nil
	case LoggedOut:
		return s.Err
	case NeedsVerification:
		return s.Err
	case ForgotPassword:
		return s.Err
	case LogoutFailure:
		return s.Err
	case Registering:
		return s.Err
	default:
		return nil
	}
}
