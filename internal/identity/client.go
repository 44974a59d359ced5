// Package identity is a client for the Google Identity Toolkit REST API
// (Firebase Authentication) and its local emulator.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Default endpoints of the hosted service.
const (
	DefaultEndpoint      = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenEndpoint = "https://securetoken.googleapis.com/v1"
	DefaultTimeout       = 15 * time.Second
)

// Config configures a Client.
type Config struct {
	APIKey        string
	Endpoint      string
	TokenEndpoint string
	Timeout       time.Duration
	// RatePerSecond caps outgoing requests. Zero disables throttling.
	RatePerSecond float64
	RateBurst     int
	// HTTPClient overrides the transport, e.g. for tests.
	HTTPClient *http.Client
}

// Session is the result of a sign-in, sign-up or token refresh.
type Session struct {
	LocalID      string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Account is an account record returned by Lookup.
type Account struct {
	LocalID       string
	Email         string
	EmailVerified bool
}

// OobRequestType selects the kind of out-of-band email.
type OobRequestType string

const (
	VerifyEmail   OobRequestType = "VERIFY_EMAIL"
	PasswordReset OobRequestType = "PASSWORD_RESET"
)

// OobRequest asks the service to send an out-of-band email. VerifyEmail needs
// IDToken, PasswordReset needs Email.
type OobRequest struct {
	RequestType OobRequestType `json:"requestType"`
	Email       string         `json:"email,omitempty"`
	IDToken     string         `json:"idToken,omitempty"`
}

// Client calls the identity service.
type Client struct {
	apiKey        string
	endpoint      string
	tokenEndpoint string
	hc            *http.Client
	refresh       singleflight.Group
}

// New creates a Client, filling unset endpoints and timeout with defaults.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = DefaultTokenEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc.Transport = &rateLimitedTransport{
			transport: base,
			limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		}
	}

	return &Client{
		apiKey:        cfg.APIKey,
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		tokenEndpoint: strings.TrimRight(cfg.TokenEndpoint, "/"),
		hc:            hc,
	}
}

// rateLimitedTransport waits for the limiter before every request.
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type sessionResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// SignUp creates an email/password account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	var res sessionResponse
	if err := c.post(ctx, "accounts:signUp", credentialsRequest{email, password, true}, &res); err != nil {
		return Session{}, err
	}
	return res.session()
}

// SignInWithPassword signs in with email and password.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var res sessionResponse
	if err := c.post(ctx, "accounts:signInWithPassword", credentialsRequest{email, password, true}, &res); err != nil {
		return Session{}, err
	}
	return res.session()
}

func (r sessionResponse) session() (Session, error) {
	ttl, err := parseSeconds(r.ExpiresIn)
	if err != nil {
		return Session{}, err
	}
	return Session{
		LocalID:      r.LocalID,
		Email:        r.Email,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    time.Now().Add(ttl),
	}, nil
}

func parseSeconds(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identity: bad expiry %q: %w", s, err)
	}
	return time.Duration(n) * time.Second, nil
}

// Lookup returns the account behind idToken.
func (c *Client) Lookup(ctx context.Context, idToken string) (Account, error) {
	var res struct {
		Users []struct {
			LocalID       string `json:"localId"`
			Email         string `json:"email"`
			EmailVerified bool   `json:"emailVerified"`
		} `json:"users"`
	}
	if err := c.post(ctx, "accounts:lookup", map[string]string{"idToken": idToken}, &res); err != nil {
		return Account{}, err
	}
	if len(res.Users) == 0 {
		return Account{}, &APIError{Status: http.StatusBadRequest, Code: "USER_NOT_FOUND", Message: "USER_NOT_FOUND"}
	}
	u := res.Users[0]
	return Account{LocalID: u.LocalID, Email: u.Email, EmailVerified: u.EmailVerified}, nil
}

// SendOobCode sends a verification or password reset email.
func (c *Client) SendOobCode(ctx context.Context, req OobRequest) error {
	return c.post(ctx, "accounts:sendOobCode", req, nil)
}

// Refresh exchanges a refresh token for a new ID token. Concurrent refreshes
// of the same token share one request.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	v, err, _ := c.refresh.Do(refreshToken, func() (any, error) {
		return c.doRefresh(ctx, refreshToken)
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

func (c *Client) doRefresh(ctx context.Context, refreshToken string) (Session, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.tokenEndpoint+"/token?"+c.keyQuery(), strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("identity: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var res struct {
		ExpiresIn    string `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		UserID       string `json:"user_id"`
	}
	if err := c.do(req, &res); err != nil {
		return Session{}, err
	}
	ttl, err := parseSeconds(res.ExpiresIn)
	if err != nil {
		return Session{}, err
	}
	s := Session{
		LocalID:      res.UserID,
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    time.Now().Add(ttl),
	}
	if claims, err := ParseClaims(res.IDToken); err == nil {
		s.Email = claims.Email
	}
	return s, nil
}

func (c *Client) keyQuery() string {
	return url.Values{"key": {c.apiKey}}.Encode()
}

// post sends body as JSON to <endpoint>/<method> and decodes the reply into out.
func (c *Client) post(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("identity: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/"+method+"?"+c.keyQuery(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("identity: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, out); err != nil {
		return fmt.Errorf("identity: %s: %w", method, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return readAPIError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
