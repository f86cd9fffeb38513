package editor

import "sync"

// Store wraps the reducer behind a single entry point. Any component may
// dispatch, but every mutation serializes through the store's lock, so
// there are no read-modify-write races on editor state.
type Store struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewStore creates a store holding the initial editor state
func NewStore() *Store {
	return &Store{
		state: NewState(),
		subs:  make(map[int]func(State)),
	}
}

// Dispatch applies an action and notifies subscribers when the state
// changed. No-op transitions (unknown actions, duplicate log appends) skip
// notification entirely.
func (st *Store) Dispatch(a Action) {
	st.mu.Lock()
	next, changed := Reduce(st.state, a)
	if !changed {
		st.mu.Unlock()
		return
	}
	st.state = next

	subs := make([]func(State), 0, len(st.subs))
	for _, fn := range st.subs {
		subs = append(subs, fn)
	}
	st.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// State returns the current state snapshot
func (st *Store) State() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Subscribe registers a listener called after every state change. The
// returned function unsubscribes it.
func (st *Store) Subscribe(fn func(State)) func() {
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	st.subs[id] = fn
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
}
