// Package document holds the single in-memory document shared by every
// connected client.
package document

import "sync"

// State is the authoritative in-memory document content.
//
// All access goes through the mutex, so a reader always observes a value
// written by exactly one Set call. The zero value is an empty document at
// revision 0 and is ready to use.
type State struct {
	mu       sync.RWMutex
	content  string
	revision uint64
}

// New creates a State holding content at revision 0.
func New(content string) *State {
	return &State{content: content}
}

// Get returns the current content.
func (s *State) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

// Set replaces the content wholesale and returns the new revision.
func (s *State) Set(content string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = content
	s.revision++
	return s.revision
}

// Snapshot returns the content together with its revision.
func (s *State) Snapshot() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content, s.revision
}

// Revision returns the number of Set calls applied so far.
func (s *State) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}
