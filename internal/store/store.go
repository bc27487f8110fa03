// Package store holds the request-list state of the monitor panel and the
// actions that change it, in the style of a Redux store: one reducer, plain
// action values, read-only state snapshots and change listeners.
package store

import (
	"sync"
	"time"

	"github.com/raysh454/netmon/internal/logging"
)

// DefaultBatchInterval is how long queued request actions wait before they
// are applied together.
const DefaultBatchInterval = 500 * time.Millisecond

// Listener is called after every applied action with the new state. It runs
// on the dispatching goroutine and must not call Dispatch.
type Listener func(s State, a Action)

type Store struct {
	logger   logging.Logger
	interval time.Duration

	// dispatchMu serializes reduce + notify so listeners observe actions in
	// the order they were applied.
	dispatchMu sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int

	queueMu sync.Mutex
	queue   []Action
	timer   *time.Timer
	closed  bool
}

type Option func(*Store)

// WithBatchInterval overrides DefaultBatchInterval.
func WithBatchInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInitialState replaces InitialState, e.g. to start with batching off.
func WithInitialState(st State) Option {
	return func(s *Store) { s.state = st }
}

func New(opts ...Option) *Store {
	s := &Store{
		logger:    logging.Nop(),
		interval:  DefaultBatchInterval,
		state:     InitialState(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetState returns the current state snapshot.
func (s *Store) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Dispatch applies a, or queues it when batching is on and a adds or updates
// a request.
func (s *Store) Dispatch(a Action) {
	switch a.Type {
	case ActionBatchFlush:
		s.flush()
		return
	case ActionBatchEnable:
		if !a.Enabled {
			s.apply(a)
			s.flush()
			return
		}
	}

	if batchable(a) && s.GetState().BatchEnabled {
		s.enqueue(a)
		return
	}
	s.apply(a)
}

func (s *Store) enqueue(a Action) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, a)
	if s.timer == nil {
		s.timer = time.AfterFunc(s.interval, s.flush)
	}
}

// flush applies everything queued as a single BATCH_ACTIONS.
func (s *Store) flush() {
	s.queueMu.Lock()
	queued := s.queue
	s.queue = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.queueMu.Unlock()

	if len(queued) == 0 {
		return
	}
	s.logger.Debug("flushing batched actions", logging.F("count", len(queued)))
	s.apply(BatchActions(queued))
}

func (s *Store) apply(a Action) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	s.state = reduce(s.state, a)
	st := s.state
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(st, a)
	}
}

// Close stops the batch timer and drops anything still queued.
func (s *Store) Close() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.closed = true
	s.queue = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
