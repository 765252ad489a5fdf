package ssh

import "sync"

// secretCache holds the privilege-escalation secret for the lifetime of one
// run. Once invalidated a value is never handed out again; only a fresh Set
// makes the cache usable.
type secretCache struct {
	mu    sync.Mutex
	value string
	valid bool
}

func (s *secretCache) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.valid
}

func (s *secretCache) Set(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.valid = true
}

func (s *secretCache) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	s.valid = false
}
