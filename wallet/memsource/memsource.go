// Package memsource is an in-process wallet.Source, used where the wallet SDK
// hands the client account changes directly.
package memsource

import (
	"sync"

	"github.com/jrsteele09/go-auth-client/wallet"
)

var _ wallet.Source = (*Source)(nil)

type Source struct {
	mu          sync.RWMutex
	active      *wallet.Account
	subscribers map[int]func(*wallet.Account)
	nextID      int

	// serialises notifications so subscribers see changes in Set order
	notifyMu sync.Mutex
}

func New(initial *wallet.Account) *Source {
	return &Source{
		active:      copyAccount(initial),
		subscribers: make(map[int]func(*wallet.Account)),
	}
}

func (s *Source) Active() *wallet.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAccount(s.active)
}

func (s *Source) Subscribe(fn func(*wallet.Account)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Set replaces the active account (nil disconnects) and notifies subscribers
// before returning.
func (s *Source) Set(acct *wallet.Account) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.active = copyAccount(acct)
	subs := make([]func(*wallet.Account), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(copyAccount(acct))
	}
}

func copyAccount(acct *wallet.Account) *wallet.Account {
	if acct == nil {
		return nil
	}
	c := *acct
	return &c
}
