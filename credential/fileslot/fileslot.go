// Package fileslot stores each credential key as a file inside a directory.
package fileslot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-client/credential"
)

var _ credential.Slot = (*Slot)(nil)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Slot is a file-backed credential.Slot. Files are written 0600 and replaced
// atomically so a reader never observes a partial value.
type Slot struct {
	dir  string
	lock sync.Mutex
}

// New creates the directory if needed and returns a slot rooted there.
func New(dir string) (*Slot, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", credential.ErrStorage, dir, err)
	}
	return &Slot{dir: dir}, nil
}

func (s *Slot) Get(_ context.Context, key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: read %s: %w", credential.ErrStorage, key, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

func (s *Slot) Set(_ context.Context, key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+key+".*")
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", credential.ErrStorage, key, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod %s: %w", credential.ErrStorage, key, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", credential.ErrStorage, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", credential.ErrStorage, key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename %s: %w", credential.ErrStorage, key, err)
	}
	return nil
}

func (s *Slot) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %w", credential.ErrStorage, key, err)
	}
	return nil
}

func (s *Slot) path(key string) (string, error) {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: invalid key %q", credential.ErrStorage, key)
	}
	return filepath.Join(s.dir, key), nil
}
