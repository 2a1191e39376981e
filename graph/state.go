package graph

import (
	"sort"
	"sync"

	"github.com/chainkit/chainkit/errors"
)

// State is a thread-safe key-value store for passing data between nodes.
type State struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewState creates a new empty State.
func NewState() *State {
	return &State{data: make(map[string]any)}
}

// Get retrieves a value by key. Returns false if the key does not exist.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value by key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Keys returns the sorted keys currently present in the state.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Port is a compile-time typed accessor for State. It prevents type
// mismatches between connected nodes.
type Port[T any] struct {
	Key string
}

// Read retrieves a typed value from state using a Port. A missing key
// or a type mismatch is an INVALID_INPUT unit error.
func Read[T any](state *State, port Port[T]) (T, error) {
	var zero T
	raw, ok := state.Get(port.Key)
	if !ok {
		return zero, errors.InvalidInput(port.Key, "state key "+port.Key+" not found")
	}
	val, ok := raw.(T)
	if !ok {
		return zero, errors.InvalidInput(port.Key, "state key "+port.Key+" holds a different type")
	}
	return val, nil
}

// Write stores a typed value into state using a Port.
func Write[T any](state *State, port Port[T], value T) {
	state.Set(port.Key, value)
}
