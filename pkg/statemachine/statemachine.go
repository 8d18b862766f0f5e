package statemachine

import (
	"reflect"
	"sync"
)

// StateFn is a state function following Rob Pike's pattern: the states of the
// machine are the functions themselves, and each returns the next state
// function (or nil to terminate).
type StateFn[T any] func(*T) StateFn[T]

// StateMachine is a small, thread-safe wrapper that holds the current state
// function for an entity.
type StateMachine[T any] struct {
	entity  *T
	stateFn StateFn[T]
	mu      sync.RWMutex
}

// New creates a state machine for the given entity starting at initial.
func New[T any](entity *T, initial StateFn[T]) *StateMachine[T] {
	return &StateMachine[T]{
		entity:  entity,
		stateFn: initial,
	}
}

// Dispatch sets stateFn as the current state, executes it once, and stores
// the state function it returns.
func (sm *StateMachine[T]) Dispatch(stateFn StateFn[T]) {
	sm.mu.Lock()
	sm.stateFn = stateFn
	sm.mu.Unlock()

	if stateFn == nil {
		return
	}

	next := stateFn(sm.entity)

	sm.mu.Lock()
	sm.stateFn = next
	sm.mu.Unlock()
}

// Current returns the current state function.
func (sm *StateMachine[T]) Current() StateFn[T] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateFn
}

// Is reports whether the machine currently sits in the given state. Function
// values are not comparable in Go, so identity is checked through the
// functions' code pointers.
func (sm *StateMachine[T]) Is(stateFn StateFn[T]) bool {
	cur := sm.Current()
	if cur == nil || stateFn == nil {
		return cur == nil && stateFn == nil
	}
	return reflect.ValueOf(cur).Pointer() == reflect.ValueOf(stateFn).Pointer()
}

// Terminated reports whether the machine has reached a nil state.
func (sm *StateMachine[T]) Terminated() bool {
	return sm.Current() == nil
}

// SetState replaces the current state function without executing it.
func (sm *StateMachine[T]) SetState(stateFn StateFn[T]) {
	sm.mu.Lock()
	sm.stateFn = stateFn
	sm.mu.Unlock()
}
