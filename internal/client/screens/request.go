package screens

import "sync"

type ActionKind string

const (
	ActionAdd     ActionKind = "add"
	ActionSave    ActionKind = "save"
	ActionDelete  ActionKind = "delete"
	ActionSignOut ActionKind = "sign-out"
	ActionSubmit  ActionKind = "submit"
)

type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSubmitting:
		return "submitting"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// RequestState is the progress of the latest request of one kind.
type RequestState struct {
	Kind   ActionKind
	Status Status
	Err    error
}

// requests tracks one RequestState per action kind. A kind can only have one
// request in flight; other kinds are independent.
type requests struct {
	mu     sync.Mutex
	states map[ActionKind]RequestState
}

func newRequests() *requests {
	return &requests{states: make(map[ActionKind]RequestState)}
}

func (r *requests) get(kind ActionKind) RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[kind]
	if !ok {
		return RequestState{Kind: kind}
	}
	return st
}

// begin reports false when a request of this kind is already in flight.
func (r *requests) begin(kind ActionKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states[kind].Status == StatusSubmitting {
		return false
	}
	r.states[kind] = RequestState{Kind: kind, Status: StatusSubmitting}
	return true
}

func (r *requests) finish(kind ActionKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.states[kind] = RequestState{Kind: kind, Status: StatusFailed, Err: err}
		return
	}
	r.states[kind] = RequestState{Kind: kind}
}

// reset forgets the outcome, leaving the kind idle.
func (r *requests) reset(kind ActionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[kind] = RequestState{Kind: kind}
}
