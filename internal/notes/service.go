// Package notes is the single authority over the local user and note store.
//
// A Service owns the database handle, an in-memory cache of every note, and a
// broadcast hub that carries a snapshot of the cache after each change. After
// any operation returns successfully, the cache and the last published
// snapshot match the database.
//
// All operations are serialized by one mutex, so concurrent callers cannot
// interleave cache updates.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/starford/mynotes/internal/broadcast"
	"github.com/starford/mynotes/internal/dirs"
	"github.com/starford/mynotes/internal/store"
)

// DefaultFileName is the database file created inside the resolved directory.
const DefaultFileName = "notes.db"

// AppDirName is the per-user data directory name.
const AppDirName = "mynotes"

// Snapshot is an immutable copy of the note cache. Subscribers must not modify it.
type Snapshot = []store.Note

// Service is the notes data-access layer.
type Service struct {
	mu          sync.Mutex
	db          *store.DB
	notes       []store.Note
	owner       *store.User
	ownedSubs   map[*broadcast.Subscription[Snapshot]]struct{}
	dataVersion int64

	hub        *broadcast.Hub[Snapshot]
	resolveDir func() (string, error)
	fileName   string
	driver     store.Driver
	cascade    bool
	buffer     int
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDirResolver sets how the storage directory is found.
func WithDirResolver(fn func() (string, error)) Option {
	return func(s *Service) { s.resolveDir = fn }
}

// WithDir stores the database in dir, creating it when missing.
func WithDir(dir string) Option {
	return WithDirResolver(func() (string, error) { return dirs.Ensure(dir) })
}

// WithFileName sets the database file name.
func WithFileName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.fileName = name
		}
	}
}

// WithDriver selects the SQLite driver.
func WithDriver(d store.Driver) Option {
	return func(s *Service) {
		if d != "" {
			s.driver = d
		}
	}
}

// WithCascadeDelete controls whether DeleteUser also deletes the user's notes.
func WithCascadeDelete(on bool) Option {
	return func(s *Service) { s.cascade = on }
}

// WithSubscriberBuffer sets how many snapshots a subscriber may lag behind
// before it is evicted.
func WithSubscriberBuffer(n int) Option {
	return func(s *Service) { s.buffer = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. The database is opened by Open or lazily by
// the first operation that needs it.
func NewService(opts ...Option) *Service {
	s := &Service{
		resolveDir: func() (string, error) { return dirs.DataDir(AppDirName) },
		fileName:   DefaultFileName,
		driver:     store.DriverCGO,
		cascade:    true,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = broadcast.New[Snapshot](broadcast.WithBuffer(s.buffer), broadcast.WithLogger(s.logger))
	return s
}

// Open opens the database, creating file and tables as needed, and publishes
// the full note set. It fails with ErrDatabaseAlreadyOpen if already open.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

func (s *Service) openLocked(ctx context.Context) error {
	if s.db != nil {
		return ErrDatabaseAlreadyOpen
	}
	dir, err := s.resolveDir()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnableToGetDocumentsDirectory, err)
	}
	path := filepath.Join(dir, s.fileName)

	db, err := store.Open(ctx, s.driver, path)
	if err != nil {
		return fmt.Errorf("notes: open: %w", err)
	}
	s.db = db

	if s.dataVersion, err = db.DataVersion(ctx); err != nil {
		s.closeLocked()
		return fmt.Errorf("notes: open: %w", err)
	}
	if err := s.refreshLocked(ctx); err != nil {
		s.closeLocked()
		return err
	}
	s.logger.Debug("notes: database opened",
		slog.String("path", path),
		slog.String("driver", string(s.driver)),
		slog.Int("notes", len(s.notes)))
	return nil
}

// ensureOpenLocked opens the database unless it already is.
func (s *Service) ensureOpenLocked(ctx context.Context) error {
	if err := s.openLocked(ctx); err != nil && !errors.Is(err, ErrDatabaseAlreadyOpen) {
		return err
	}
	return nil
}

// Close releases the database. It fails with ErrDatabaseIsNotOpen if not open.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrDatabaseIsNotOpen
	}
	return s.closeLocked()
}

func (s *Service) closeLocked() error {
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("notes: close: %w", err)
	}
	return nil
}

// Shutdown closes the database if open and ends every subscription.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.db != nil {
		if err := s.closeLocked(); err != nil {
			s.logger.Warn("notes: close on shutdown failed", slog.String("error", err.Error()))
		}
	}
	s.mu.Unlock()
	s.hub.Close()
}

// CloseStreams ends every subscription but leaves the database usable.
func (s *Service) CloseStreams() {
	s.hub.Close()
}

// Path returns the database file path, or "" when not open.
func (s *Service) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ""
	}
	return s.db.Path()
}

// refreshLocked replaces the cache with the full note set and publishes it.
func (s *Service) refreshLocked(ctx context.Context) error {
	all, err := s.db.ListNotes(ctx)
	if err != nil {
		return fmt.Errorf("notes: cache notes: %w", err)
	}
	s.notes = all
	s.publishLocked()
	return nil
}

// RefreshIfChanged reloads the cache when another connection has written to
// the database since the last check. It reports whether a reload happened.
func (s *Service) RefreshIfChanged(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return false, ErrDatabaseIsNotOpen
	}
	v, err := s.db.DataVersion(ctx)
	if err != nil {
		return false, err
	}
	if v == s.dataVersion {
		return false, nil
	}
	s.dataVersion = v
	if err := s.refreshLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) publishLocked() {
	s.hub.Publish(slices.Clone(s.notes))
}

func (s *Service) removeCachedLocked(match func(store.Note) bool) int {
	before := len(s.notes)
	s.notes = slices.DeleteFunc(s.notes, match)
	return before - len(s.notes)
}

// Subscribe returns a subscription to every future cache snapshot.
func (s *Service) Subscribe() *broadcast.Subscription[Snapshot] {
	return s.hub.Subscribe()
}

// SubscribeSnapshot atomically returns the current cache and a subscription
// to every snapshot published after it.
func (s *Service) SubscribeSnapshot() (Snapshot, *broadcast.Subscription[Snapshot]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notes), s.hub.Subscribe()
}

// SubscribeOwned returns a subscription to future snapshots filtered to the
// notes of the current user set by GetOrCreateUser. The subscription is
// closed when that user stops being the current user.
func (s *Service) SubscribeOwned() (*broadcast.Subscription[Snapshot], error) {
	_, sub, err := s.SubscribeOwnedSnapshot()
	return sub, err
}

// SubscribeOwnedSnapshot is SubscribeOwned that also returns, atomically, the
// current user's notes from the cache.
func (s *Service) SubscribeOwnedSnapshot() (Snapshot, *broadcast.Subscription[Snapshot], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		return nil, nil, ErrUserShouldBeSetBeforeReadingAllNotes
	}
	ownerID := s.owner.ID
	sub := s.hub.SubscribeFunc(func(all Snapshot) Snapshot { return OwnedBy(all, ownerID) })

	if s.ownedSubs == nil {
		s.ownedSubs = make(map[*broadcast.Subscription[Snapshot]]struct{})
	}
	for old := range s.ownedSubs {
		select {
		case <-old.Done():
			delete(s.ownedSubs, old)
		default:
		}
	}
	s.ownedSubs[sub] = struct{}{}
	return OwnedBy(s.notes, ownerID), sub, nil
}

// setOwnerLocked records u as the current user. Owned subscriptions of a
// previous owner are closed.
func (s *Service) setOwnerLocked(u *store.User) {
	if s.owner != nil && (u == nil || u.ID != s.owner.ID) {
		for sub := range s.ownedSubs {
			sub.Unsubscribe()
		}
		clear(s.ownedSubs)
	}
	s.owner = u
}

// OwnedBy returns the notes of snap that belong to userID.
func OwnedBy(snap Snapshot, userID int64) Snapshot {
	out := make(Snapshot, 0, len(snap))
	for _, n := range snap {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// Cached returns a copy of the current cache.
func (s *Service) Cached() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notes)
}

// CurrentUser returns the user recorded by the last GetOrCreateUser.
func (s *Service) CurrentUser() (store.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		return store.User{}, false
	}
	return *s.owner, true
}

func normalizeEmail(email string) string {
	return strings.ToLower(email)
}

// GetUser returns the user with email, compared case-insensitively.
func (s *Service) GetUser(ctx context.Context, email string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return store.User{}, err
	}
	return s.getUserLocked(ctx, email)
}

func (s *Service) getUserLocked(ctx context.Context, email string) (store.User, error) {
	u, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNoRows) {
		return store.User{}, ErrCouldNotFindUser
	}
	return u, err
}

// CreateUser inserts a user with the lower-cased email.
func (s *Service) CreateUser(ctx context.Context, email string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return store.User{}, err
	}
	return s.createUserLocked(ctx, email)
}

func (s *Service) createUserLocked(ctx context.Context, email string) (store.User, error) {
	email = normalizeEmail(email)
	_, err := s.db.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return store.User{}, ErrUserAlreadyExists
	case !errors.Is(err, store.ErrNoRows):
		return store.User{}, err
	}
	return s.db.InsertUser(ctx, email)
}

// DeleteUser deletes the user with email. Unless cascade deletion was turned
// off, the user's notes go with it and leave the cache.
func (s *Service) DeleteUser(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return err
	}
	email = normalizeEmail(email)

	if !s.cascade {
		n, err := s.db.DeleteUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrCouldNotDeleteUser
		}
		s.forgetOwnerLocked(email)
		return nil
	}

	var userID, removedNotes int64
	err := s.db.WithTx(ctx, func(ctx context.Context, tx store.Conn) error {
		u, err := tx.GetUserByEmail(ctx, email)
		if errors.Is(err, store.ErrNoRows) {
			return ErrCouldNotDeleteUser
		}
		if err != nil {
			return err
		}
		userID = u.ID
		if removedNotes, err = tx.DeleteNotesByUser(ctx, u.ID); err != nil {
			return err
		}
		n, err := tx.DeleteUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrCouldNotDeleteUser
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.forgetOwnerLocked(email)
	if removedNotes > 0 {
		s.removeCachedLocked(func(n store.Note) bool { return n.UserID == userID })
		s.publishLocked()
	}
	return nil
}

func (s *Service) forgetOwnerLocked(email string) {
	if s.owner != nil && s.owner.Email == email {
		s.setOwnerLocked(nil)
	}
}

// GetOrCreateUser returns the user with email, creating it when missing, and
// records it as the current user for SubscribeOwned.
func (s *Service) GetOrCreateUser(ctx context.Context, email string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return store.User{}, err
	}

	u, err := s.getUserLocked(ctx, email)
	if errors.Is(err, ErrCouldNotFindUser) {
		u, err = s.createUserLocked(ctx, email)
	}
	if err != nil {
		return store.User{}, err
	}
	s.setOwnerLocked(&u)
	return u, nil
}

// CreateNote inserts an empty, unsynced note for owner. owner must match the
// stored user with its email exactly.
func (s *Service) CreateNote(ctx context.Context, owner store.User) (store.Note, error) {
	return s.CreateNoteWithText(ctx, owner, "")
}

// CreateNoteWithText is CreateNote with initial text, inserted and published
// in one step.
func (s *Service) CreateNoteWithText(ctx context.Context, owner store.User, text string) (store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return store.Note{}, err
	}

	dbUser, err := s.getUserLocked(ctx, owner.Email)
	if err != nil {
		return store.Note{}, err
	}
	if dbUser != owner {
		return store.Note{}, ErrCouldNotFindUser
	}

	n, err := s.db.InsertNote(ctx, owner.ID, text, false)
	if err != nil {
		return store.Note{}, err
	}
	s.notes = append(s.notes, n)
	s.publishLocked()
	return n, nil
}

// GetNote returns note id. It also replaces the cached copy of that note with
// the fresh row (moving it to the end) and publishes a snapshot.
func (s *Service) GetNote(ctx context.Context, id int64) (store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return store.Note{}, err
	}

	n, err := s.getNoteLocked(ctx, id)
	if err != nil {
		return store.Note{}, err
	}
	s.removeCachedLocked(func(c store.Note) bool { return c.ID == id })
	s.notes = append(s.notes, n)
	s.publishLocked()
	return n, nil
}

func (s *Service) getNoteLocked(ctx context.Context, id int64) (store.Note, error) {
	n, err := s.db.GetNote(ctx, id)
	if errors.Is(err, store.ErrNoRows) {
		return store.Note{}, ErrCouldNotFindNote
	}
	return n, err
}

// GetAllNotes reads every note from the database. The cache is not touched.
func (s *Service) GetAllNotes(ctx context.Context) ([]store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return nil, err
	}
	return s.db.ListNotes(ctx)
}

// UpdateNote sets the text of note and marks it unsynced.
func (s *Service) UpdateNote(ctx context.Context, note store.Note, text string) (store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return store.Note{}, err
	}

	if _, err := s.getNoteLocked(ctx, note.ID); err != nil {
		return store.Note{}, err
	}
	n, err := s.db.UpdateNote(ctx, note.ID, text, false)
	if err != nil {
		return store.Note{}, err
	}
	if n == 0 {
		return store.Note{}, ErrCouldNotUpdateNote
	}

	updated, err := s.getNoteLocked(ctx, note.ID)
	if errors.Is(err, ErrCouldNotFindNote) {
		return store.Note{}, ErrCouldNotUpdateNote
	}
	if err != nil {
		return store.Note{}, err
	}
	s.removeCachedLocked(func(c store.Note) bool { return c.ID == note.ID })
	s.notes = append(s.notes, updated)
	s.publishLocked()
	return updated, nil
}

// DeleteNote deletes note id.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return err
	}

	n, err := s.db.DeleteNote(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCouldNotDeleteNote
	}
	s.removeCachedLocked(func(c store.Note) bool { return c.ID == id })
	s.publishLocked()
	return nil
}

// DeleteAllNotes deletes every note and returns how many were removed.
func (s *Service) DeleteAllNotes(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(ctx); err != nil {
		return 0, err
	}

	n, err := s.db.DeleteAllNotes(ctx)
	if err != nil {
		return 0, err
	}
	s.notes = []store.Note{}
	s.publishLocked()
	return n, nil
}
