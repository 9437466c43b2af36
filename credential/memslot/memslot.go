package memslot

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/credential"
)

var _ credential.Slot = (*Slot)(nil)

// Slot keeps values in process memory. Values are lost on restart.
type Slot struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *Slot {
	return &Slot{
		values: make(map[string]string),
	}
}

func (s *Slot) Get(_ context.Context, key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Slot) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values[key] = value
	return nil
}

func (s *Slot) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.values, key)
	return nil
}
