package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/mynotes/internal/identity"
)

// refreshBefore is how close to expiry an ID token may be before it is
// refreshed ahead of a call that needs it.
const refreshBefore = time.Minute

// IdentityProvider is a Provider backed by the identity REST service.
// It owns the only client for that service.
type IdentityProvider struct {
	cfg    identity.Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	client      *identity.Client
	initialized bool
	session     *identity.Session
	user        *User
}

// NewIdentityProvider creates a provider. Nothing talks to the service until
// Initialize.
func NewIdentityProvider(cfg identity.Config, logger *slog.Logger) *IdentityProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityProvider{cfg: cfg, logger: logger, now: time.Now}
}

// Initialize creates the client. Later calls do nothing.
func (p *IdentityProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if p.cfg.APIKey == "" {
		return fmt.Errorf("%w: identity api key is not configured", ErrGenericAuth)
	}
	p.client = identity.New(p.cfg)
	p.initialized = true
	p.logger.Debug("auth: identity provider initialized")
	return nil
}

func (p *IdentityProvider) ready() (*identity.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	return p.client, nil
}

// CurrentUser returns the cached signed-in user.
func (p *IdentityProvider) CurrentUser() (User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return User{}, false
	}
	return *p.user, true
}

// LogIn signs in with email and password.
func (p *IdentityProvider) LogIn(ctx context.Context, email, password string) (User, error) {
	c, err := p.ready()
	if err != nil {
		return User{}, err
	}
	s, err := c.SignInWithPassword(ctx, email, password)
	if err != nil {
		return User{}, mapError(err)
	}
	return p.setSession(s)
}

// CreateUser signs up and leaves the new account signed in.
func (p *IdentityProvider) CreateUser(ctx context.Context, email, password string) (User, error) {
	c, err := p.ready()
	if err != nil {
		return User{}, err
	}
	s, err := c.SignUp(ctx, email, password)
	if err != nil {
		return User{}, mapError(err)
	}
	return p.setSession(s)
}

// LogOut drops the session.
func (p *IdentityProvider) LogOut(ctx context.Context) error {
	if _, err := p.ready(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrUserNotLoggedIn
	}
	p.session = nil
	p.user = nil
	return nil
}

// SendEmailVerification emails the signed-in user a verification link.
func (p *IdentityProvider) SendEmailVerification(ctx context.Context) error {
	c, err := p.ready()
	if err != nil {
		return err
	}
	s, err := p.freshSession(ctx, c)
	if err != nil {
		return err
	}
	if err := c.SendOobCode(ctx, identity.OobRequest{RequestType: identity.VerifyEmail, IDToken: s.IDToken}); err != nil {
		return mapError(err)
	}
	return nil
}

// SendPasswordResetEmail emails a reset link to email.
func (p *IdentityProvider) SendPasswordResetEmail(ctx context.Context, email string) error {
	c, err := p.ready()
	if err != nil {
		return err
	}
	if err := c.SendOobCode(ctx, identity.OobRequest{RequestType: identity.PasswordReset, Email: email}); err != nil {
		return mapError(err)
	}
	return nil
}

// Reload re-reads the signed-in account from the service.
func (p *IdentityProvider) Reload(ctx context.Context) (User, error) {
	c, err := p.ready()
	if err != nil {
		return User{}, err
	}
	s, err := p.freshSession(ctx, c)
	if err != nil {
		return User{}, err
	}
	acct, err := c.Lookup(ctx, s.IDToken)
	if err != nil {
		return User{}, mapError(err)
	}

	u := User{Email: acct.Email, IsEmailVerified: acct.EmailVerified}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return User{}, ErrUserNotLoggedIn
	}
	p.user = &u
	return u, nil
}

// freshSession returns the session, refreshing its ID token when it is about
// to expire.
func (p *IdentityProvider) freshSession(ctx context.Context, c *identity.Client) (identity.Session, error) {
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return identity.Session{}, ErrUserNotLoggedIn
	}
	s := *p.session
	p.mu.Unlock()

	if s.ExpiresAt.Sub(p.now()) > refreshBefore {
		return s, nil
	}
	fresh, err := c.Refresh(ctx, s.RefreshToken)
	if err != nil {
		return identity.Session{}, mapError(err)
	}
	if fresh.Email == "" {
		fresh.Email = s.Email
	}
	if _, err := p.setSession(fresh); err != nil {
		return identity.Session{}, err
	}
	return fresh, nil
}

// setSession stores s and derives the user from its ID token.
func (p *IdentityProvider) setSession(s identity.Session) (User, error) {
	claims, err := identity.ParseClaims(s.IDToken)
	if err != nil {
		return User{}, mapError(err)
	}
	u := User{Email: claims.Email, IsEmailVerified: claims.EmailVerified}
	if u.Email == "" {
		u.Email = s.Email
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = &s
	p.user = &u
	return u, nil
}

// mapError translates identity service errors into the taxonomy, keeping the
// service message.
func mapError(err error) error {
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", ErrGenericAuth, err)
	}

	var kind error
	switch apiErr.Code {
	case "INVALID_EMAIL", "MISSING_EMAIL":
		kind = ErrInvalidEmail
	case "WEAK_PASSWORD":
		kind = ErrWeakPassword
	case "EMAIL_EXISTS":
		kind = ErrEmailAlreadyInUse
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		kind = ErrUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		kind = ErrWrongPassword
	case "CREDENTIAL_TOO_OLD_LOGIN_AGAIN", "TOKEN_EXPIRED":
		kind = ErrRequiresRecentLogin
	default:
		kind = ErrGenericAuth
	}
	return fmt.Errorf("%w: %s", kind, apiErr.Message)
}
