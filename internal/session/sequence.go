package session

import "sync"

// Sequence orders session writes for one client across concurrent requests.
// Login and logout take an operation id from it; a write commits only while
// its id is still the latest. Logout also raises the floor below which
// already-issued tokens are refused.
type Sequence struct {
	mu     sync.Mutex
	n      uint64
	floor  uint64
	shared bool
}

// NewSequence returns the sequence of a single client.
func NewSequence() *Sequence {
	return &Sequence{}
}

// newSharedSequence serves requests that carry no client id. Logins do not
// supersede each other on it and it never revokes tokens.
func newSharedSequence() *Sequence {
	return &Sequence{shared: true}
}

// begin records a login intent.
func (s *Sequence) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shared {
		s.n++
	}
	return s.n
}

// revoke records a logout: in-flight operations lose and older tokens stop
// resolving.
func (s *Sequence) revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	if !s.shared {
		s.floor = s.n
	}
}

func (s *Sequence) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// commit runs fn with the sequence held, unless a later operation began after op.
// fn receives the generation to stamp on a newly issued token.
func (s *Sequence) commit(op uint64, fn func(gen uint64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n != op {
		return ErrSuperseded
	}
	if s.shared {
		return fn(0)
	}
	return fn(op)
}

// admits reports whether a token stamped with gen is still valid.
func (s *Sequence) admits(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shared || gen >= s.floor
}
