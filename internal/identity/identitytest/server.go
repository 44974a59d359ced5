// Package identitytest runs an in-memory fake of the identity REST endpoints
// for tests.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Endpoint names accepted by FailNext.
const (
	SignUp             = "accounts:signUp"
	SignInWithPassword = "accounts:signInWithPassword"
	Lookup             = "accounts:lookup"
	SendOobCode        = "accounts:sendOobCode"
	Token              = "token"
)

var signingKey = []byte("identitytest")

// OobCode records an out-of-band email the fake "sent".
type OobCode struct {
	RequestType string
	Email       string
}

type account struct {
	localID  string
	email    string
	password string
	verified bool
}

// Server is a fake identity service.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*account
	refresh  map[string]string
	failures map[string]string
	calls    map[string]int
	sent     []OobCode
	nextID   int
	ttl      time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued ID tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// NewServer starts a fake. Close it when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		accounts: map[string]*account{},
		refresh:  map[string]string{},
		failures: map[string]string{},
		calls:    map[string]int{},
		ttl:      time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /identitytoolkit/v1/"+SignUp, s.handleSignUp)
	mux.HandleFunc("POST /identitytoolkit/v1/"+SignInWithPassword, s.handleSignIn)
	mux.HandleFunc("POST /identitytoolkit/v1/"+Lookup, s.handleLookup)
	mux.HandleFunc("POST /identitytoolkit/v1/"+SendOobCode, s.handleSendOobCode)
	mux.HandleFunc("POST /securetoken/v1/"+Token, s.handleToken)
	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoint is the identity toolkit base URL.
func (s *Server) Endpoint() string { return s.URL + "/identitytoolkit/v1" }

// TokenEndpoint is the secure token base URL.
func (s *Server) TokenEndpoint() string { return s.URL + "/securetoken/v1" }

// FailNext makes the next call to endpoint fail with code.
func (s *Server) FailNext(endpoint, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = code
}

// AddUser registers an account directly.
func (s *Server) AddUser(email, password string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(email, password).verified = verified
}

// SetVerified flips the verification flag of email.
func (s *Server) SetVerified(email string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[strings.ToLower(email)]; ok {
		a.verified = verified
	}
}

// Sent returns the out-of-band emails sent so far.
func (s *Server) Sent() []OobCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OobCode(nil), s.sent...)
}

// Calls returns how many times endpoint was hit.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

func (s *Server) addLocked(email, password string) *account {
	s.nextID++
	a := &account{localID: "uid" + strconv.Itoa(s.nextID), email: strings.ToLower(email), password: password}
	s.accounts[a.email] = a
	return a
}

// begin counts the call and reports a forced failure, if any.
func (s *Server) begin(w http.ResponseWriter, endpoint string) bool {
	s.calls[endpoint]++
	if code, ok := s.failures[endpoint]; ok {
		delete(s.failures, endpoint)
		writeError(w, code)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": http.StatusBadRequest, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(w, SignUp) {
		return
	}
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, "INVALID_JSON")
		return
	}
	switch {
	case c.Email == "":
		writeError(w, "MISSING_EMAIL")
		return
	case !strings.Contains(c.Email, "@"):
		writeError(w, "INVALID_EMAIL")
		return
	case len(c.Password) < 6:
		writeError(w, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}
	if _, ok := s.accounts[strings.ToLower(c.Email)]; ok {
		writeError(w, "EMAIL_EXISTS")
		return
	}
	writeJSON(w, s.sessionLocked(s.addLocked(c.Email, c.Password)))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(w, SignInWithPassword) {
		return
	}
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, "INVALID_JSON")
		return
	}
	a, ok := s.accounts[strings.ToLower(c.Email)]
	if !ok {
		writeError(w, "EMAIL_NOT_FOUND")
		return
	}
	if a.password != c.Password {
		writeError(w, "INVALID_PASSWORD")
		return
	}
	writeJSON(w, s.sessionLocked(a))
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(w, Lookup) {
		return
	}
	var body struct {
		IDToken string `json:"idToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	a, ok := s.accountForTokenLocked(body.IDToken)
	if !ok {
		writeError(w, "INVALID_ID_TOKEN")
		return
	}
	writeJSON(w, map[string]any{"users": []map[string]any{{
		"localId":       a.localID,
		"email":         a.email,
		"emailVerified": a.verified,
	}}})
}

func (s *Server) handleSendOobCode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(w, SendOobCode) {
		return
	}
	var body struct {
		RequestType string `json:"requestType"`
		Email       string `json:"email"`
		IDToken     string `json:"idToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	var email string
	switch body.RequestType {
	case "VERIFY_EMAIL":
		a, ok := s.accountForTokenLocked(body.IDToken)
		if !ok {
			writeError(w, "INVALID_ID_TOKEN")
			return
		}
		email = a.email
	case "PASSWORD_RESET":
		if body.Email == "" {
			writeError(w, "MISSING_EMAIL")
			return
		}
		if _, ok := s.accounts[strings.ToLower(body.Email)]; !ok {
			writeError(w, "EMAIL_NOT_FOUND")
			return
		}
		email = strings.ToLower(body.Email)
	default:
		writeError(w, "INVALID_REQ_TYPE")
		return
	}
	s.sent = append(s.sent, OobCode{RequestType: body.RequestType, Email: email})
	writeJSON(w, map[string]string{"email": email})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(w, Token) {
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		writeError(w, "INVALID_GRANT_TYPE")
		return
	}
	email, ok := s.refresh[r.PostForm.Get("refresh_token")]
	if !ok {
		writeError(w, "INVALID_REFRESH_TOKEN")
		return
	}
	sess := s.sessionLocked(s.accounts[email])
	writeJSON(w, map[string]string{
		"expires_in":    sess["expiresIn"],
		"token_type":    "Bearer",
		"refresh_token": sess["refreshToken"],
		"id_token":      sess["idToken"],
		"user_id":       sess["localId"],
	})
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	UserID        string `json:"user_id"`
}

func (s *Server) sessionLocked(a *account) map[string]string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.localID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email:         a.email,
		EmailVerified: a.verified,
		UserID:        a.localID,
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("identitytest: sign token: %v", err))
	}

	refresh := fmt.Sprintf("refresh-%s-%d", a.localID, len(s.refresh)+1)
	s.refresh[refresh] = a.email
	return map[string]string{
		"localId":      a.localID,
		"email":        a.email,
		"idToken":      signed,
		"refreshToken": refresh,
		"expiresIn":    strconv.Itoa(int(s.ttl / time.Second)),
	}
}

func (s *Server) accountForTokenLocked(idToken string) (*account, bool) {
	var c tokenClaims
	_, err := jwt.ParseWithClaims(idToken, &c, func(*jwt.Token) (any, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, false
	}
	a, ok := s.accounts[c.Email]
	return a, ok
}
