// Package testutil provides shared test helpers for setting up notes services
// and auth machines.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/mynotes/internal/auth"
	"github.com/starford/mynotes/internal/notes"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Notes creates an open notes service backed by a temporary directory. It is
// shut down automatically.
func Notes(t *testing.T, opts ...notes.Option) *notes.Service {
	t.Helper()
	opts = append([]notes.Option{notes.WithDir(t.TempDir()), notes.WithLogger(Logger())}, opts...)
	svc := notes.NewService(opts...)
	t.Cleanup(svc.Shutdown)
	if err := svc.Open(context.Background()); err != nil {
		t.Fatalf("open notes: %v", err)
	}
	return svc
}

// Machine creates an auth machine driving p. It is closed automatically.
func Machine(t *testing.T, p auth.Provider) *auth.Machine {
	t.Helper()
	m := auth.NewMachine(p, auth.WithMachineLogger(Logger()))
	t.Cleanup(m.Close)
	return m
}
