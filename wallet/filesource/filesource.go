// Package filesource reads the active wallet account from a JSON file that a
// wallet bridge keeps up to date, and watches it with fsnotify.
//
// The file holds {"address": "0x...", "chainId": 1}. A missing file or an empty
// address means no wallet is connected.
package filesource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/jrsteele09/go-auth-client/wallet"
	"github.com/rs/zerolog/log"
)

var _ wallet.Source = (*Source)(nil)

type Source struct {
	path    string
	watcher *fsnotify.Watcher

	mu          sync.RWMutex
	active      *wallet.Account
	subscribers map[int]func(*wallet.Account)
	nextID      int

	done      chan struct{}
	closeOnce sync.Once
}

// New reads path and starts watching its directory. Close stops the watcher.
func New(path string) (*Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filesource: resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filesource: create watcher: %w", err)
	}
	// watch the directory so atomic replace-by-rename is seen
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("filesource: watch %s: %w", filepath.Dir(abs), err)
	}

	s := &Source{
		path:        abs,
		watcher:     w,
		subscribers: make(map[int]func(*wallet.Account)),
		done:        make(chan struct{}),
	}
	acct, err := s.read()
	if err != nil {
		log.Warn().Err(err).Str("path", abs).Msg("Wallet account file unreadable")
	}
	s.active = acct

	go s.run()
	return s, nil
}

func (s *Source) Active() *wallet.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	c := *s.active
	return &c
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

// Close stops watching the file. Subscribers receive no further notifications.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
		<-s.done
	})
	return err
}

func (s *Source) run() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.refresh()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Err(err).Str("path", s.path).Msg("Wallet account watcher error")
		}
	}
}

func (s *Source) refresh() {
	acct, err := s.read()
	if err != nil {
		// a half-written file; the next write event brings the full content
		log.Debug().Err(err).Str("path", s.path).Msg("Skipping unreadable wallet account file")
		return
	}

	s.mu.Lock()
	if sameAccount(s.active, acct) {
		s.mu.Unlock()
		return
	}
	s.active = acct
	subs := make([]func(*wallet.Account), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		var c *wallet.Account
		if acct != nil {
			cp := *acct
			c = &cp
		}
		fn(c)
	}
}

func (s *Source) read() (*wallet.Account, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var acct wallet.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("decode account file: %w", err)
	}
	if acct.Address == "" {
		return nil, nil
	}
	return &acct, nil
}

func sameAccount(a, b *wallet.Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
