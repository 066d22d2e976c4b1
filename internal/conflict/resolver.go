package conflict

import (
	"context"
	"errors"
	"sync"
)

type State int

const (
	NoConflict State = iota
	ConflictDetected
	Refreshing
	Overwriting
)

func (s State) String() string {
	switch s {
	case NoConflict:
		return "no_conflict"
	case ConflictDetected:
		return "conflict_detected"
	case Refreshing:
		return "refreshing"
	case Overwriting:
		return "overwriting"
	default:
		return "unknown"
	}
}

type Action string

const (
	ActionRefresh   Action = "refresh"
	ActionOverwrite Action = "overwrite"
)

// ActionState describes one choice offered to the user.
type ActionState struct {
	Action  Action
	Enabled bool
	Loading bool
}

var (
	ErrNoConflict           = errors.New("no conflict to resolve")
	ErrResolutionInProgress = errors.New("a resolution is already in progress")
	ErrOverwriteUnsupported = errors.New("overwrite is not supported for this resource")
)

// Resolver walks one conflict through
// NoConflict -> ConflictDetected -> (Refreshing | Overwriting) -> NoConflict.
// Only one action may run at a time.
type Resolver struct {
	mu     sync.Mutex
	state  State
	record *Error
	// pending is set when a conflict arrived while an action was running.
	pending   bool
	refresh   func(ctx context.Context) error
	overwrite func(ctx context.Context) error
}

// NewResolver wires the two recovery paths. overwrite may be nil when the
// collaborator has no force-write path, in which case only refresh is offered.
func NewResolver(refresh, overwrite func(ctx context.Context) error) *Resolver {
	return &Resolver{refresh: refresh, overwrite: overwrite}
}

// Detect inspects err and enters ConflictDetected when it is a version
// conflict. It returns false for every other error. A conflict detected while
// an action runs replaces the record but leaves the state alone; once the
// action succeeds the resolver goes back to ConflictDetected for it.
func (r *Resolver) Detect(err error) bool {
	ce, ok := As(err)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = ce
	if r.state == Refreshing || r.state == Overwriting {
		r.pending = true
		return true
	}
	r.state = ConflictDetected
	return true
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Record returns the conflict under resolution, or nil.
func (r *Resolver) Record() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// Actions lists the choices to show. It is empty when there is no conflict.
func (r *Resolver) Actions() []ActionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == NoConflict {
		return nil
	}
	busy := r.state == Refreshing || r.state == Overwriting
	actions := []ActionState{{
		Action:  ActionRefresh,
		Enabled: !busy,
		Loading: r.state == Refreshing,
	}}
	if r.overwrite != nil {
		actions = append(actions, ActionState{
			Action:  ActionOverwrite,
			Enabled: !busy,
			Loading: r.state == Overwriting,
		})
	}
	return actions
}

// Refresh discards local changes and reloads the current version.
func (r *Resolver) Refresh(ctx context.Context) error {
	return r.run(ctx, Refreshing, r.refresh)
}

// Overwrite resubmits the write ignoring the stored version.
func (r *Resolver) Overwrite(ctx context.Context) error {
	if r.overwrite == nil {
		return ErrOverwriteUnsupported
	}
	return r.run(ctx, Overwriting, r.overwrite)
}

// Dismiss drops the conflict without acting on it.
func (r *Resolver) Dismiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ConflictDetected {
		r.state = NoConflict
		r.record = nil
	}
}

func (r *Resolver) run(ctx context.Context, next State, fn func(context.Context) error) error {
	r.mu.Lock()
	switch r.state {
	case NoConflict:
		r.mu.Unlock()
		return ErrNoConflict
	case Refreshing, Overwriting:
		r.mu.Unlock()
		return ErrResolutionInProgress
	}
	r.state = next
	r.pending = false
	r.mu.Unlock()

	err := fn(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.pending
	r.pending = false
	if err != nil {
		if ce, ok := As(err); ok {
			r.record = ce
		}
		r.state = ConflictDetected
		return err
	}
	if pending {
		r.state = ConflictDetected
		return nil
	}
	r.state = NoConflict
	r.record = nil
	return nil
}
