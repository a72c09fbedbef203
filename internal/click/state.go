// internal/click/state.go - Click processing state and its store
package click

import (
	"sync"
	"time"

	"github.com/valpere/r4c-viewport/internal/scene"
)

// Stage is the coordinator's lifecycle stage
type Stage string

// Processing stages
const (
	StageIdle      Stage = "idle"
	StageLoading   Stage = "loading"
	StageAnimating Stage = "animating"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// Busy reports whether an interaction is in progress
func (s Stage) Busy() bool {
	return s == StageLoading || s == StageAnimating
}

// ErrorInfo is the user-visible failure of an interaction
type ErrorInfo struct {
	Message  string `json:"message"`
	Details  string `json:"details"`
	CanRetry bool   `json:"can_retry"`
}

// Progress counts finished data sub-requests
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// State is the published click processing state. An empty TargetID means no target.
type State struct {
	Stage           Stage             `json:"stage"`
	TargetID        string            `json:"target_id,omitempty"`
	TargetName      string            `json:"target_name,omitempty"`
	StartTime       time.Time         `json:"start_time,omitempty"`
	CanCancel       bool              `json:"can_cancel"`
	Error           *ErrorInfo        `json:"error,omitempty"`
	RetryCount      int               `json:"retry_count"`
	LoadingProgress *Progress         `json:"loading_progress,omitempty"`
	PreviousCamera  *scene.CameraPose `json:"previous_camera,omitempty"`
}

// IdleState returns the initial state
func IdleState() State {
	return State{Stage: StageIdle}
}

// Clone returns a deep copy
func (s State) Clone() State {
	out := s
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.LoadingProgress != nil {
		p := *s.LoadingProgress
		out.LoadingProgress = &p
	}
	if s.PreviousCamera != nil {
		c := *s.PreviousCamera
		out.PreviousCamera = &c
	}
	return out
}

// Store receives every state the coordinator publishes
type Store interface {
	Publish(state State)
}

// StoreFunc adapts a function to the Store interface
type StoreFunc func(state State)

// Publish calls f(state)
func (f StoreFunc) Publish(state State) {
	f(state)
}

// StateStore is an observable in-memory Store
type StateStore struct {
	mu      sync.RWMutex
	current State
	subs    map[int]chan State
	next    int
}

// NewStateStore creates a store holding the idle state
func NewStateStore() *StateStore {
	return &StateStore{
		current: IdleState(),
		subs:    make(map[int]chan State),
	}
}

// Publish replaces the current state and notifies subscribers without blocking
func (s *StateStore) Publish(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = state.Clone()
	for _, ch := range s.subs {
		select {
		case ch <- state.Clone():
		default:
		}
	}
}

// Snapshot returns a copy of the current state
func (s *StateStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Subscribe returns a channel of published states and a function that ends the subscription.
// Slow subscribers miss states rather than block the publisher.
func (s *StateStore) Subscribe(buffer int) (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan State, buffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}
