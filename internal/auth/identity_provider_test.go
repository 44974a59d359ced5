package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/mynotes/internal/identity"
	"github.com/starford/mynotes/internal/identity/identitytest"
)

func testIdentityProvider(t *testing.T, opts ...identitytest.Option) (*IdentityProvider, *identitytest.Server) {
	t.Helper()
	srv := identitytest.NewServer(opts...)
	t.Cleanup(srv.Close)
	p := NewIdentityProvider(identity.Config{
		APIKey:        "test-key",
		Endpoint:      srv.Endpoint(),
		TokenEndpoint: srv.TokenEndpoint(),
		Timeout:       5 * time.Second,
	}, quietLogger())
	return p, srv
}

func TestIdentityProviderRequiresInitialize(t *testing.T) {
	p, _ := testIdentityProvider(t)
	ctx := context.Background()

	if _, err := p.LogIn(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("LogIn = %v, want ErrNotInitialized", err)
	}
	if err := p.LogOut(ctx); !errors.Is(err, ErrGenericAuth) {
		t.Fatalf("LogOut = %v, want generic auth error", err)
	}
}

func TestIdentityProviderInitializeIsIdempotent(t *testing.T) {
	p, _ := testIdentityProvider(t)
	ctx := context.Background()
	for i := range 3 {
		if err := p.Initialize(ctx); err != nil {
			t.Fatalf("Initialize #%d: %v", i+1, err)
		}
	}
}

func TestIdentityProviderInitializeWithoutKey(t *testing.T) {
	p := NewIdentityProvider(identity.Config{}, quietLogger())
	if err := p.Initialize(context.Background()); !errors.Is(err, ErrGenericAuth) {
		t.Fatalf("Initialize = %v, want ErrGenericAuth", err)
	}
}

func TestIdentityProviderErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"INVALID_EMAIL", ErrInvalidEmail},
		{"MISSING_EMAIL", ErrInvalidEmail},
		{"WEAK_PASSWORD : Password should be at least 6 characters", ErrWeakPassword},
		{"EMAIL_EXISTS", ErrEmailAlreadyInUse},
		{"EMAIL_NOT_FOUND", ErrUserNotFound},
		{"USER_NOT_FOUND", ErrUserNotFound},
		{"INVALID_PASSWORD", ErrWrongPassword},
		{"INVALID_LOGIN_CREDENTIALS", ErrWrongPassword},
		{"CREDENTIAL_TOO_OLD_LOGIN_AGAIN", ErrRequiresRecentLogin},
		{"TOKEN_EXPIRED", ErrRequiresRecentLogin},
		{"TOO_MANY_ATTEMPTS_TRY_LATER", ErrGenericAuth},
	}
	p, srv := testIdentityProvider(t)
	ctx := context.Background()
	if err := p.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv.FailNext(identitytest.SignInWithPassword, tt.code)
			_, err := p.LogIn(ctx, "a@x.com", "secret1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !strings.Contains(err.Error(), tt.code) {
				t.Errorf("native message lost: %v", err)
			}
		})
	}
}

func TestIdentityProviderTransportErrorIsGeneric(t *testing.T) {
	srv := identitytest.NewServer()
	endpoint := srv.Endpoint()
	srv.Close()

	p := NewIdentityProvider(identity.Config{APIKey: "k", Endpoint: endpoint}, quietLogger())
	ctx := context.Background()
	_ = p.Initialize(ctx)
	if _, err := p.LogIn(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrGenericAuth) {
		t.Fatalf("err = %v, want ErrGenericAuth", err)
	}
}

func TestIdentityProviderSession(t *testing.T) {
	p, srv := testIdentityProvider(t)
	ctx := context.Background()
	_ = p.Initialize(ctx)

	if _, ok := p.CurrentUser(); ok {
		t.Fatal("no user before log in")
	}
	if err := p.LogOut(ctx); !errors.Is(err, ErrUserNotLoggedIn) {
		t.Fatalf("LogOut without session = %v, want ErrUserNotLoggedIn", err)
	}
	if err := p.SendEmailVerification(ctx); !errors.Is(err, ErrUserNotLoggedIn) {
		t.Fatalf("SendEmailVerification without session = %v, want ErrUserNotLoggedIn", err)
	}

	u, err := p.CreateUser(ctx, "new@x.com", "secret1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if want := (User{Email: "new@x.com"}); u != want {
		t.Errorf("user = %+v, want %+v", u, want)
	}
	if cur, ok := p.CurrentUser(); !ok || cur != u {
		t.Errorf("CurrentUser = %+v, %v", cur, ok)
	}

	srv.SetVerified("new@x.com", true)
	reloaded, err := p.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !reloaded.IsEmailVerified {
		t.Error("Reload should pick up verification")
	}
	if u.IsEmailVerified {
		t.Error("earlier User value must not change")
	}

	if err := p.LogOut(ctx); err != nil {
		t.Fatalf("LogOut: %v", err)
	}
	if _, ok := p.CurrentUser(); ok {
		t.Error("user still present after log out")
	}
}

func TestIdentityProviderRefreshesStaleToken(t *testing.T) {
	p, srv := testIdentityProvider(t, identitytest.WithTokenTTL(30*time.Second))
	ctx := context.Background()
	_ = p.Initialize(ctx)

	if _, err := p.CreateUser(ctx, "stale@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	if err := p.SendEmailVerification(ctx); err != nil {
		t.Fatalf("SendEmailVerification: %v", err)
	}
	if n := srv.Calls(identitytest.Token); n != 1 {
		t.Errorf("token refreshes = %d, want 1", n)
	}
	sent := srv.Sent()
	if len(sent) != 1 || sent[0].RequestType != "VERIFY_EMAIL" || sent[0].Email != "stale@x.com" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestIdentityProviderPasswordReset(t *testing.T) {
	p, srv := testIdentityProvider(t)
	ctx := context.Background()
	_ = p.Initialize(ctx)
	srv.AddUser("reset@x.com", "secret1", true)

	if err := p.SendPasswordResetEmail(ctx, "reset@x.com"); err != nil {
		t.Fatalf("SendPasswordResetEmail: %v", err)
	}
	if err := p.SendPasswordResetEmail(ctx, "ghost@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown email = %v, want ErrUserNotFound", err)
	}
}

// The machine driven end to end against the fake service.
func TestMachineWithIdentityProvider(t *testing.T) {
	p, srv := testIdentityProvider(t)
	m, sub := newTestMachine(t, p)

	dispatch(t, m, Initialize{})
	if s, ok := nextState(t, sub).(LoggedOut); !ok || s.Err != nil {
		t.Fatalf("after Initialize: %#v", s)
	}

	dispatch(t, m, LogIn{Email: "ghost@x.com", Password: "secret1"})
	nextState(t, sub)
	if s, ok := nextState(t, sub).(LoggedOut); !ok || !errors.Is(s.Err, ErrUserNotFound) {
		t.Fatalf("after unknown LogIn: %#v", s)
	}

	dispatch(t, m, Register{Email: "me@x.com", Password: "secret1"})
	nextState(t, sub)
	if s, ok := nextState(t, sub).(Registering); !ok || !s.Registered {
		t.Fatalf("after Register: %#v", s)
	}

	dispatch(t, m, LogIn{Email: "me@x.com", Password: "secret1"})
	nextState(t, sub)
	if _, ok := nextState(t, sub).(NeedsVerification); !ok {
		t.Fatal("unverified log in should need verification")
	}

	srv.SetVerified("me@x.com", true)
	dispatch(t, m, LogIn{Email: "me@x.com", Password: "secret1"})
	nextState(t, sub)
	s, ok := nextState(t, sub).(LoggedIn)
	if !ok || s.User != (User{Email: "me@x.com", IsEmailVerified: true}) {
		t.Fatalf("after verified LogIn: %#v", s)
	}

	dispatch(t, m, LogOut{})
	nextState(t, sub)
	if _, ok := nextState(t, sub).(LoggedOut); !ok {
		t.Fatal("want LoggedOut after LogOut")
	}
}
