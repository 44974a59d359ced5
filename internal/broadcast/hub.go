// Package broadcast implements an in-process publish/subscribe hub.
//
// A Hub delivers every published value, in publish order, to every subscriber
// attached at the time of publishing. There is no replay: a late subscriber
// starts with the next value.
package broadcast

import (
	"log/slog"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity used when none is given.
const DefaultBuffer = 64

// Subscription is a single subscriber's view of a Hub.
type Subscription[T any] struct {
	// C yields published values. It is closed on Unsubscribe, on Hub.Close,
	// or when the subscriber fell behind by more than its buffer.
	C <-chan T

	ch        chan T
	done      chan struct{}
	transform func(T) T
	hub       *Hub[T]
}

// Done is closed together with C.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) close() {
	close(s.ch)
	close(s.done)
}

// Unsubscribe detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.hub.unsubscribe(s)
}

// Hub fans values out to subscribers.
//
// Concurrency model: a single internal loop goroutine owns the subscriber set.
// Public methods talk to the loop through channels, so no mutexes are needed.
type Hub[T any] struct {
	buffer int
	logger *slog.Logger

	subscribeCh   chan *Subscription[T]
	unsubscribeCh chan *Subscription[T]
	publishCh     chan T
	countReqCh    chan chan int

	evicted atomic.Int64
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Hub.
type Option func(*hubOptions)

type hubOptions struct {
	buffer int
	logger *slog.Logger
}

// WithBuffer sets the per-subscriber buffer size.
func WithBuffer(n int) Option {
	return func(o *hubOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithLogger sets the logger used to report evicted subscribers.
func WithLogger(l *slog.Logger) Option {
	return func(o *hubOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a Hub and starts its loop.
func New[T any](opts ...Option) *Hub[T] {
	o := hubOptions{buffer: DefaultBuffer, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Hub[T]{
		buffer:        o.buffer,
		logger:        o.logger,
		subscribeCh:   make(chan *Subscription[T]),
		unsubscribeCh: make(chan *Subscription[T]),
		publishCh:     make(chan T),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go h.run()
	return h
}

func (h *Hub[T]) run() {
	defer close(h.stopped)

	subs := make(map[*Subscription[T]]struct{})

	for {
		select {
		case <-h.stopCh:
			for s := range subs {
				s.close()
			}
			return

		case s := <-h.subscribeCh:
			subs[s] = struct{}{}

		case s := <-h.unsubscribeCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				s.close()
			}

		case v := <-h.publishCh:
			for s := range subs {
				out := v
				if s.transform != nil {
					out = s.transform(v)
				}
				select {
				case s.ch <- out:
				default:
					// Subscriber fell behind. Closing its channel tells it so
					// instead of letting it miss values silently.
					delete(subs, s)
					s.close()
					h.evicted.Add(1)
					h.logger.Warn("broadcast: evicted slow subscriber", slog.Int("buffer", h.buffer))
				}
			}

		case resp := <-h.countReqCh:
			resp <- len(subs)
		}
	}
}

// Subscribe attaches a new subscriber.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	return h.SubscribeFunc(nil)
}

// SubscribeFunc attaches a subscriber that receives transform(v) instead of v.
// transform runs on the hub loop and must not block.
func (h *Hub[T]) SubscribeFunc(transform func(T) T) *Subscription[T] {
	ch := make(chan T, h.buffer)
	s := &Subscription[T]{C: ch, ch: ch, done: make(chan struct{}), transform: transform, hub: h}
	if h.closed.Load() {
		s.close()
		return s
	}

	select {
	case h.subscribeCh <- s:
	case <-h.stopped:
		s.close()
	}
	return s
}

func (h *Hub[T]) unsubscribe(s *Subscription[T]) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- s:
	case <-h.stopped:
	}
}

// Publish hands v to the hub loop, which fans it out before serving any other
// request. A subscriber attached after Publish returns never sees v.
// No-op after Close.
func (h *Hub[T]) Publish(v T) {
	if h.closed.Load() {
		return
	}
	select {
	case h.publishCh <- v:
	case <-h.stopped:
	}
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub[T]) SubscriberCount() int {
	if h.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Evicted reports how many subscribers were dropped for falling behind.
func (h *Hub[T]) Evicted() int64 {
	return h.evicted.Load()
}

// Close stops the loop and closes all subscriber channels.
func (h *Hub[T]) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}
