package identity_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/starford/mynotes/internal/identity"
	"github.com/starford/mynotes/internal/identity/identitytest"
)

func testClient(t *testing.T, opts ...identitytest.Option) (*identity.Client, *identitytest.Server) {
	t.Helper()
	srv := identitytest.NewServer(opts...)
	t.Cleanup(srv.Close)
	c := identity.New(identity.Config{
		APIKey:        "test-key",
		Endpoint:      srv.Endpoint(),
		TokenEndpoint: srv.TokenEndpoint(),
		Timeout:       5 * time.Second,
	})
	return c, srv
}

func TestSignUpAndSignIn(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	s, err := c.SignUp(ctx, "new@x.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if s.IDToken == "" || s.RefreshToken == "" || s.LocalID == "" {
		t.Errorf("incomplete session: %+v", s)
	}
	if time.Until(s.ExpiresAt) < 59*time.Minute {
		t.Errorf("ExpiresAt = %v, want about an hour out", s.ExpiresAt)
	}

	claims, err := identity.ParseClaims(s.IDToken)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.Email != "new@x.com" || claims.EmailVerified {
		t.Errorf("claims = %+v", claims)
	}

	in, err := c.SignInWithPassword(ctx, "new@x.com", "secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if in.LocalID != s.LocalID {
		t.Errorf("LocalID = %q, want %q", in.LocalID, s.LocalID)
	}
}

func TestAPIErrorCodes(t *testing.T) {
	c, srv := testClient(t)
	ctx := context.Background()
	srv.AddUser("taken@x.com", "secret1", false)

	tests := []struct {
		name string
		call func() error
		code string
	}{
		{"email exists", func() error { _, err := c.SignUp(ctx, "taken@x.com", "secret1"); return err }, "EMAIL_EXISTS"},
		{"weak password", func() error { _, err := c.SignUp(ctx, "w@x.com", "123"); return err }, "WEAK_PASSWORD"},
		{"invalid email", func() error { _, err := c.SignUp(ctx, "nope", "secret1"); return err }, "INVALID_EMAIL"},
		{"unknown email", func() error { _, err := c.SignInWithPassword(ctx, "ghost@x.com", "secret1"); return err }, "EMAIL_NOT_FOUND"},
		{"wrong password", func() error { _, err := c.SignInWithPassword(ctx, "taken@x.com", "bad"); return err }, "INVALID_PASSWORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var apiErr *identity.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Code != tt.code {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.code)
			}
			if apiErr.Status != http.StatusBadRequest {
				t.Errorf("Status = %d", apiErr.Status)
			}
		})
	}
}

func TestAPIErrorKeepsDetail(t *testing.T) {
	c, _ := testClient(t)
	_, err := c.SignUp(context.Background(), "w@x.com", "1")
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Message != "WEAK_PASSWORD : Password should be at least 6 characters" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := identity.New(identity.Config{Endpoint: srv.URL})
	_, err := c.SignInWithPassword(context.Background(), "a@x.com", "p")
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Code != "" || apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream down" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestLookupReflectsVerification(t *testing.T) {
	c, srv := testClient(t)
	ctx := context.Background()
	s, _ := c.SignUp(ctx, "v@x.com", "secret1")

	acct, err := c.Lookup(ctx, s.IDToken)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if acct.EmailVerified {
		t.Error("new account should be unverified")
	}

	srv.SetVerified("v@x.com", true)
	acct, _ = c.Lookup(ctx, s.IDToken)
	if !acct.EmailVerified {
		t.Error("Lookup did not pick up verification")
	}
}

func TestSendOobCode(t *testing.T) {
	c, srv := testClient(t)
	ctx := context.Background()
	s, _ := c.SignUp(ctx, "o@x.com", "secret1")

	if err := c.SendOobCode(ctx, identity.OobRequest{RequestType: identity.VerifyEmail, IDToken: s.IDToken}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := c.SendOobCode(ctx, identity.OobRequest{RequestType: identity.PasswordReset, Email: "o@x.com"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	want := []identitytest.OobCode{
		{RequestType: "VERIFY_EMAIL", Email: "o@x.com"},
		{RequestType: "PASSWORD_RESET", Email: "o@x.com"},
	}
	got := srv.Sent()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("sent = %+v, want %+v", got, want)
	}
}

func TestRefresh(t *testing.T) {
	c, srv := testClient(t)
	ctx := context.Background()
	s, _ := c.SignUp(ctx, "r@x.com", "secret1")
	srv.SetVerified("r@x.com", true)

	fresh, err := c.Refresh(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, _ := identity.ParseClaims(fresh.IDToken)
	if !claims.EmailVerified || fresh.Email != "r@x.com" {
		t.Errorf("refreshed claims = %+v, session = %+v", claims, fresh)
	}

	if _, err := c.Refresh(ctx, "bogus"); err == nil {
		t.Error("expected error for unknown refresh token")
	}
}

func TestConcurrentRefreshes(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()
	s, _ := c.SignUp(ctx, "cr@x.com", "secret1")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Refresh(ctx, s.RefreshToken); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestRateLimit(t *testing.T) {
	srv := identitytest.NewServer()
	defer srv.Close()
	c := identity.New(identity.Config{
		Endpoint:      srv.Endpoint(),
		RatePerSecond: 20,
		RateBurst:     1,
	})
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		_, _ = c.SignInWithPassword(ctx, "ghost@x.com", "p")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 requests took %v, limiter not applied", elapsed)
	}
	if srv.Calls(identitytest.SignInWithPassword) != 3 {
		t.Errorf("calls = %d", srv.Calls(identitytest.SignInWithPassword))
	}
}

func TestFailNext(t *testing.T) {
	c, srv := testClient(t)
	ctx := context.Background()
	srv.AddUser("f@x.com", "secret1", true)
	srv.FailNext(identitytest.SignInWithPassword, "TOO_MANY_ATTEMPTS_TRY_LATER")

	_, err := c.SignInWithPassword(ctx, "f@x.com", "secret1")
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "TOO_MANY_ATTEMPTS_TRY_LATER" {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.SignInWithPassword(ctx, "f@x.com", "secret1"); err != nil {
		t.Errorf("second attempt: %v", err)
	}
}
