package provider

import (
	"context"
	"fmt"
	"sync"
)

// Stub es un Provider determinista para tests: el código correcto es fijo y
// los proofs son reproducibles. No envía nada a ningún lado.
type Stub struct {
	Code string // código aceptado; default "123456"
	Fail error  // si no es nil, SendChallenge y VerifyChallenge fallan con esto

	mu       sync.Mutex
	seq      int
	contacts map[string]string // handle -> contacto
}

func NewStub() *Stub {
	return &Stub{Code: "123456", contacts: make(map[string]string)}
}

func (s *Stub) SendChallenge(_ context.Context, contact string) (string, error) {
	if s.Fail != nil {
		return "", s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	handle := fmt.Sprintf("stub-challenge-%d", s.seq)
	s.contacts[handle] = contact
	return handle, nil
}

func (s *Stub) VerifyChallenge(_ context.Context, handle, code string) (string, error) {
	if s.Fail != nil {
		return "", s.Fail
	}
	s.mu.Lock()
	contact, ok := s.contacts[handle]
	if ok {
		delete(s.contacts, handle) // single use, igual que los providers reales
	}
	s.mu.Unlock()
	if !ok || code != s.Code {
		return "", ErrInvalidOrExpiredCode
	}
	return "proof:" + contact + ":" + handle, nil
}
