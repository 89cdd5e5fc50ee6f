package llm

import (
	"context"
	"fmt"
	"sync"
)

// Script is a deterministic Generator that replays queued responses in
// order. It stands in for the real API in tests and records every prompt
// it receives.
type Script struct {
	mu        sync.Mutex
	responses []string
	calls     []Prompt
	// Err, when set, is returned by every Generate call.
	Err error
}

// NewScript creates a scripted generator with the given responses.
func NewScript(responses ...string) *Script {
	return &Script{responses: responses}
}

// Generate pops the next queued response.
func (s *Script) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.responses) == 0 {
		return "", fmt.Errorf("script exhausted after %d calls", len(s.calls))
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

// Calls returns every prompt seen so far.
func (s *Script) Calls() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.calls...)
}

// CallCount returns the number of Generate invocations.
func (s *Script) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
