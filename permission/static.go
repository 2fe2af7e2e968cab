package permission

import (
	"context"
	"sync"
)

// Static is a programmable Platform with in-memory grant state.
//
// Prompts are held until [Static.Resolve] answers them. When AutoAnswer is
// set, each prompt is answered on its own goroutine instead.
type Static struct {
	// AutoAnswer is applied to every prompted capability that is not already
	// granted. Empty means prompts wait for Resolve.
	AutoAnswer State

	mu      sync.Mutex
	states  map[Capability]State
	prompts []staticPrompt
}

type staticPrompt struct {
	capabilities []Capability
	deliver      func(map[Capability]State)
}

// NewStatic returns a Static platform where granted capabilities start as
// StateGranted and every other capability as StateNotRequested.
func NewStatic(granted ...Capability) *Static {
	s := &Static{states: map[Capability]State{}}
	for _, capability := range Capabilities() {
		s.states[capability] = StateNotRequested
	}
	for _, capability := range granted {
		s.states[capability] = StateGranted
	}
	return s
}

// Set overrides the state of capability.
func (s *Static) Set(capability Capability, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[capability] = state
}

// Status implements Platform.
func (s *Static) Status(_ context.Context, capability Capability) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[capability]; ok {
		return state, nil
	}
	return StateNotRequested, nil
}

// Prompt implements Platform.
func (s *Static) Prompt(_ context.Context, capabilities []Capability, deliver func(map[Capability]State)) error {
	p := staticPrompt{capabilities: append([]Capability(nil), capabilities...), deliver: deliver}
	if s.AutoAnswer != "" {
		answer := s.AutoAnswer
		go s.answer(p, answer)
		return nil
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	return nil
}

// Outstanding returns the number of prompts waiting for Resolve.
func (s *Static) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Resolve answers every outstanding prompt with answer and returns how many
// prompts were answered.
func (s *Static) Resolve(answer State) int {
	s.mu.Lock()
	prompts := s.prompts
	s.prompts = nil
	s.mu.Unlock()

	for _, p := range prompts {
		s.answer(p, answer)
	}
	return len(prompts)
}

func (s *Static) answer(p staticPrompt, answer State) {
	states := make(map[Capability]State, len(p.capabilities))
	s.mu.Lock()
	for _, capability := range p.capabilities {
		if s.states[capability] != StateGranted {
			s.states[capability] = answer
		}
		states[capability] = s.states[capability]
	}
	s.mu.Unlock()
	p.deliver(states)
}
