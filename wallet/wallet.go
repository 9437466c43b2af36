// Package wallet projects the wallet SDK's active account into a display
// address. The SDK stays the source of truth; Binding only caches the latest
// address it was told about.
package wallet

import (
	"sync"
)

// Account is the part of the SDK's active account the client consumes.
type Account struct {
	Address string `json:"address"`
	ChainID int64  `json:"chainId,omitempty"`
}

// Source is an externally owned active-account value with change notifications.
type Source interface {
	// Active returns the current account, or nil when no wallet is connected
	Active() *Account

	// Subscribe calls fn with the new account (nil on disconnect) after every
	// change. The returned function stops the notifications.
	Subscribe(fn func(*Account)) (unsubscribe func())
}

// Binding follows a Source and exposes the active address.
type Binding struct {
	mu          sync.RWMutex
	address     string
	present     bool
	notified    bool
	listeners   map[int]func(string, bool)
	nextID      int
	unsubscribe func()
}

// Bind seeds the binding from src.Active and follows its notifications until Close.
func Bind(src Source) *Binding {
	b := &Binding{listeners: make(map[int]func(string, bool))}
	// subscribe first so a change between Active and Subscribe is not lost
	unsubscribe := src.Subscribe(b.update)
	acct := src.Active()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribe = unsubscribe
	if !b.notified && acct != nil {
		b.address, b.present = acct.Address, true
	}
	return b
}

// Address returns the active address and whether an account is connected.
func (b *Binding) Address() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.address, b.present
}

// OnChange registers fn for address changes. The returned function removes it.
func (b *Binding) OnChange(fn func(address string, present bool)) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Close stops following the source. The last address stays readable.
func (b *Binding) Close() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.listeners = make(map[int]func(string, bool))
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (b *Binding) update(acct *Account) {
	b.mu.Lock()
	b.notified = true
	if acct == nil {
		b.address, b.present = "", false
	} else {
		b.address, b.present = acct.Address, true
	}
	address, present := b.address, b.present
	listeners := make([]func(string, bool), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(address, present)
	}
}

// Abbreviate shortens an address for display, e.g. 0x1234…cdef. Addresses too
// short to shorten are returned unchanged.
func Abbreviate(address string) string {
	const head, tail = 6, 4
	r := []rune(address)
	if len(r) <= head+tail+1 {
		return address
	}
	return string(r[:head]) + "…" + string(r[len(r)-tail:])
}
