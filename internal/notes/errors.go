package notes

import (
	"fmt"

	"github.com/starford/mynotes/internal/apperr"
)

// Lifecycle errors.
var (
	ErrDatabaseAlreadyOpen           = fmt.Errorf("database already open: %w", apperr.ErrAlreadyExists)
	ErrDatabaseIsNotOpen             = fmt.Errorf("database is not open: %w", apperr.ErrUnavailable)
	ErrUnableToGetDocumentsDirectory = fmt.Errorf("unable to get documents directory: %w", apperr.ErrUnavailable)
)

// Entity errors.
var (
	ErrCouldNotFindUser   = fmt.Errorf("could not find user: %w", apperr.ErrNotFound)
	ErrUserAlreadyExists  = fmt.Errorf("user already exists: %w", apperr.ErrAlreadyExists)
	ErrCouldNotDeleteUser = fmt.Errorf("could not delete user: %w", apperr.ErrConflict)
	ErrCouldNotFindNote   = fmt.Errorf("could not find note: %w", apperr.ErrNotFound)
	ErrCouldNotUpdateNote = fmt.Errorf("could not update note: %w", apperr.ErrConflict)
	ErrCouldNotDeleteNote = fmt.Errorf("could not delete note: %w", apperr.ErrConflict)

	ErrUserShouldBeSetBeforeReadingAllNotes = fmt.Errorf("current user must be set before reading owned notes: %w", apperr.ErrConflict)
)
