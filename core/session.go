package core

import "sync"

// Session caches the result of the most recent successful prompt
// generation so the regenerate-last and prompt-only entry points can reuse
// it. It is an explicit object owned by the orchestrator rather than
// package-level state, so tests can construct independent sessions.
//
// The cache is overwritten, never merged; the last writer wins and readers
// must tolerate staleness (a regenerated poster may use a prompt derived
// from a note that has since changed).
type Session struct {
	mu       sync.Mutex
	prompt   string
	notePath string
}

// NewSession returns an empty session cache.
func NewSession() *Session {
	return &Session{}
}

// Store records the prompt and originating note path, replacing any
// previous entry.
func (s *Session) Store(prompt, notePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt = prompt
	s.notePath = notePath
}

// Last returns the cached prompt and note path. ok is false when no prompt
// has been generated in this session.
func (s *Session) Last() (prompt, notePath string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt == "" {
		return "", "", false
	}
	return s.prompt, s.notePath, true
}
