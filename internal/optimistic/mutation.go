package optimistic

import (
	"context"
	"errors"
	"sync"
)

var ErrSettled = errors.New("mutation already settled")

// Mutation is the handle of one optimistic update.
type Mutation[T any] struct {
	store    *Store[T]
	key      string
	snapshot T
	once     sync.Once
}

func (m *Mutation[T]) Key() string { return m.key }

// Snapshot returns the state captured before the mutation was applied.
func (m *Mutation[T]) Snapshot() T {
	return m.store.clone(m.snapshot)
}

// Commit sends the mutation to the server through commit. On success the
// optimistic state stays; on failure it is rolled back and the failure is
// published on Store.Errors. Either way the key is then invalidated so the
// store converges on server truth. commit runs detached from ctx
// cancellation: once sent, its outcome is always applied.
func (m *Mutation[T]) Commit(ctx context.Context, commit func(ctx context.Context) error) error {
	settled := false
	m.once.Do(func() { settled = true })
	if !settled {
		return ErrSettled
	}

	ctx = context.WithoutCancel(ctx)
	err := commit(ctx)

	s := m.store
	s.mu.Lock()
	e := s.entry(m.key)
	if err != nil {
		e.value = m.snapshot
	}
	e.inFlight = nil
	s.mu.Unlock()

	if err != nil {
		s.publishError(MutationError{Key: m.key, Err: err})
	}

	if ierr := s.settle(ctx, m.key); ierr != nil {
		s.logger.Warn("refetch after settle failed", "key", m.key, "error", ierr)
	}
	return err
}

// Abort rolls back a mutation whose commit was never sent.
func (m *Mutation[T]) Abort() {
	m.once.Do(func() {
		s := m.store
		s.mu.Lock()
		defer s.mu.Unlock()
		e := s.entry(m.key)
		e.value = m.snapshot
		e.inFlight = nil
	})
}
