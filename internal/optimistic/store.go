// Package optimistic is a keyed state store that applies mutations locally
// before the server confirms them and rolls them back when it does not.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrMutationInFlight rejects a second mutation on a key whose first
	// mutation has not settled yet.
	ErrMutationInFlight = errors.New("a mutation is already in flight for this key")

	ErrNotLoaded = errors.New("key not loaded")
)

// Fetcher loads the server truth for key.
type Fetcher[T any] func(ctx context.Context, key string) (T, error)

// MutationError is published on Errors when a commit fails and the state has
// been rolled back.
type MutationError struct {
	Key string
	Err error
}

func (e MutationError) Error() string {
	return fmt.Sprintf("mutation on %s: %v", e.Key, e.Err)
}

func (e MutationError) Unwrap() error { return e.Err }

type entry[T any] struct {
	value    T
	loaded   bool
	inFlight *Mutation[T]
	// gen advances on every Begin. A fetch started under an older gen read
	// the server before the mutation and is dropped.
	gen uint64
	// stale is set when a refetch arrived during a mutation and was dropped.
	stale bool
}

// Store holds one value per key.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	fetch   Fetcher[T]
	clone   func(T) T
	group   singleflight.Group
	errs    chan MutationError
	subs    map[int]chan string
	nextSub int
	logger  *slog.Logger
}

type Option[T any] func(*Store[T])

// WithClone sets the copy function used for snapshots. Without it values are
// copied by assignment.
func WithClone[T any](clone func(T) T) Option[T] {
	return func(s *Store[T]) { s.clone = clone }
}

func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(s *Store[T]) { s.logger = logger }
}

func NewStore[T any](fetch Fetcher[T], opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		entries: make(map[string]*entry[T]),
		fetch:   fetch,
		clone:   func(v T) T { return v },
		errs:    make(chan MutationError, 16),
		subs:    make(map[int]chan string),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the current value.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !e.loaded {
		var zero T
		return zero, false
	}
	return s.clone(e.value), true
}

// Load fetches key from the server and stores it.
func (s *Store[T]) Load(ctx context.Context, key string) (T, error) {
	if err := s.refetch(ctx, key); err != nil {
		var zero T
		return zero, err
	}
	v, _ := s.Get(key)
	return v, nil
}

// Invalidate signals subscribers that key is dirty and refetches it.
func (s *Store[T]) Invalidate(ctx context.Context, key string) error {
	s.notify(key)
	return s.refetch(ctx, key)
}

// Errors delivers rolled-back mutation failures. Sends never block; when no
// one reads, failures are only logged.
func (s *Store[T]) Errors() <-chan MutationError {
	return s.errs
}

// Subscribe returns a channel of invalidated keys and a cancel function.
func (s *Store[T]) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan string, 16)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// Begin snapshots key, applies mutator and returns the in-flight handle. A
// failing mutator leaves the state untouched.
func (s *Store[T]) Begin(key string, mutator func(T) (T, error)) (*Mutation[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.loaded {
		return nil, ErrNotLoaded
	}
	if e.inFlight != nil {
		return nil, ErrMutationInFlight
	}

	snapshot := s.clone(e.value)
	next, err := mutator(s.clone(e.value))
	if err != nil {
		return nil, err
	}

	m := &Mutation[T]{store: s, key: key, snapshot: snapshot}
	e.value = next
	e.inFlight = m
	e.gen++
	return m, nil
}

// settle refetches key after a mutation on a flight of its own, so it never
// shares the result of a fetch that started before the commit landed.
func (s *Store[T]) settle(ctx context.Context, key string) error {
	s.notify(key)
	s.group.Forget(key)
	return s.refetch(ctx, key)
}

func (s *Store[T]) refetch(ctx context.Context, key string) error {
	_, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.Lock()
		gen := s.entry(key).gen
		s.mu.Unlock()

		v, err := s.fetch(ctx, key)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		e := s.entry(key)
		if e.inFlight != nil || e.gen != gen {
			e.stale = true
			return nil, nil
		}
		e.value = v
		e.loaded = true
		e.stale = false
		return nil, nil
	})
	return err
}

func (s *Store[T]) entry(key string) *entry[T] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[T]{}
		s.entries[key] = e
	}
	return e
}

func (s *Store[T]) notify(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- key:
		default:
		}
	}
}

func (s *Store[T]) publishError(me MutationError) {
	select {
	case s.errs <- me:
	default:
		s.logger.Warn("mutation error dropped, no reader", "key", me.Key, "error", me.Err)
	}
}
