// Package auth turns authentication events into a single current State.
//
// A Machine processes events one at a time, in arrival order, on its own
// goroutine. Each handler calls the Provider and emits one or more states to
// every subscriber. Provider failures never escape Dispatch; they show up
// only as the Err field of the emitted state.
package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/mynotes/internal/broadcast"
)

// LogInLoadingText is shown while a log-in attempt is in flight.
const LogInLoadingText = "Please wait while I log you in"

// DefaultQueueSize is how many events may wait before Dispatch blocks.
const DefaultQueueSize = 16

// Machine is the authentication state machine.
type Machine struct {
	provider Provider
	logger   *slog.Logger
	hub      *broadcast.Hub[State]
	queue    chan Event

	mu    sync.RWMutex
	state State

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// MachineOption configures a Machine.
type MachineOption func(*machineOptions)

type machineOptions struct {
	logger    *slog.Logger
	queueSize int
}

// WithMachineLogger sets the logger.
func WithMachineLogger(l *slog.Logger) MachineOption {
	return func(o *machineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) MachineOption {
	return func(o *machineOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// NewMachine starts a Machine in the Loading state.
func NewMachine(provider Provider, opts ...MachineOption) *Machine {
	o := machineOptions{logger: slog.Default(), queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		provider: provider,
		logger:   o.logger,
		hub:      broadcast.New[State](broadcast.WithLogger(o.logger)),
		queue:    make(chan Event, o.queueSize),
		state:    Loading{},
		ctx:      ctx,
		cancel:   cancel,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Dispatch enqueues ev. It blocks only while the queue is full.
//
// A nil return means ev was queued before Close began. An event that lands in
// the queue while Close is running is reported as ErrMachineClosed.
func (m *Machine) Dispatch(ctx context.Context, ev Event) error {
	select {
	case <-m.closing:
		return ErrMachineClosed
	default:
	}

	select {
	case m.queue <- ev:
		select {
		case <-m.closing:
			return ErrMachineClosed
		default:
			return nil
		}
	case <-m.closing:
		return ErrMachineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a subscription to every later state, in order.
func (m *Machine) Subscribe() *broadcast.Subscription[State] {
	return m.hub.Subscribe()
}

// SubscribeCurrent atomically returns the current state and a subscription to
// every state emitted after it.
func (m *Machine) SubscribeCurrent() (State, *broadcast.Subscription[State]) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.hub.Subscribe()
}

// Close stops the worker, cancels in-flight provider calls and ends every
// subscription. Events still queued are discarded and counted in the log.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		close(m.closing)
		m.cancel()
		<-m.done
		if n := m.drain(); n > 0 {
			m.logger.Warn("auth: discarded queued events", slog.Int("count", n))
		}
		m.hub.Close()
	})
}

func (m *Machine) drain() int {
	n := 0
	for {
		select {
		case <-m.queue:
			n++
		default:
			return n
		}
	}
}

func (m *Machine) run() {
	defer close(m.done)
	for {
		// Close wins over a queued event.
		select {
		case <-m.closing:
			return
		default:
		}
		select {
		case <-m.closing:
			return
		case ev := <-m.queue:
			m.handle(m.ctx, ev)
		}
	}
}

// emit replaces the current state and publishes it while holding the lock,
// so SubscribeCurrent never misses or repeats a state.
func (m *Machine) emit(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.logger.Debug("auth: state", slog.String("kind", s.Kind()))
	m.hub.Publish(s)
}

func (m *Machine) handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case Initialize:
		m.onInitialize(ctx)
	case LogIn:
		m.onLogIn(ctx, ev)
	case LogOut:
		m.onLogOut(ctx)
	case ShouldRegister:
		m.emit(Registering{})
	case Register:
		m.onRegister(ctx, ev)
	case ForgotPasswordRequest:
		m.onForgotPassword(ctx, ev)
	case SendEmailVerification:
		m.onSendEmailVerification(ctx)
	default:
		m.logger.Warn("auth: unknown event", slog.Any("event", ev))
	}
}

// resolveUser emits the state matching the provider's current user.
func (m *Machine) resolveUser(noUser State) {
	u, ok := m.provider.CurrentUser()
	switch {
	case !ok:
		m.emit(noUser)
	case !u.IsEmailVerified:
		m.emit(NeedsVerification{})
	default:
		m.emit(LoggedIn{User: u})
	}
}

func (m *Machine) onInitialize(ctx context.Context) {
	if err := m.provider.Initialize(ctx); err != nil {
		m.emit(LoggedOut{Err: err})
		return
	}
	if r, ok := m.provider.(Reloader); ok {
		if _, signedIn := m.provider.CurrentUser(); signedIn {
			if _, err := r.Reload(ctx); err != nil {
				m.logger.Warn("auth: reload current user failed", slog.String("error", err.Error()))
			}
		}
	}
	m.resolveUser(LoggedOut{})
}

func (m *Machine) onLogIn(ctx context.Context, ev LogIn) {
	m.emit(LoggedOut{IsLoading: true, LoadingText: LogInLoadingText})
	if _, err := m.provider.LogIn(ctx, ev.Email, ev.Password); err != nil {
		m.emit(LoggedOut{Err: err})
		return
	}
	m.resolveUser(LoggedOut{Err: ErrGenericAuth})
}

func (m *Machine) onLogOut(ctx context.Context) {
	m.emit(Loading{})
	if err := m.provider.LogOut(ctx); err != nil {
		m.emit(LogoutFailure{Err: err})
		return
	}
	m.emit(LoggedOut{})
}

func (m *Machine) onRegister(ctx context.Context, ev Register) {
	m.emit(Registering{IsLoading: true})
	if _, err := m.provider.CreateUser(ctx, ev.Email, ev.Password); err != nil {
		m.emit(Registering{Err: err})
		return
	}
	if err := m.provider.SendEmailVerification(ctx); err != nil {
		m.emit(Registering{Err: err})
		return
	}
	m.emit(Registering{Registered: true})
}

func (m *Machine) onForgotPassword(ctx context.Context, ev ForgotPasswordRequest) {
	m.emit(ForgotPassword{IsLoading: true})
	if ev.Email == "" {
		m.emit(ForgotPassword{})
		return
	}
	if err := m.provider.SendPasswordResetEmail(ctx, ev.Email); err != nil {
		m.emit(ForgotPassword{Err: err})
		return
	}
	m.emit(ForgotPassword{HasSentEmail: true})
}

func (m *Machine) onSendEmailVerification(ctx context.Context) {
	if err := m.provider.SendEmailVerification(ctx); err != nil {
		m.emit(NeedsVerification{Err: err})
		return
	}
	m.emit(m.State())
}
