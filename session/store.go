// Package session owns the client-side authentication state: which user the
// persisted credential identifies, whether the backend still accepts it, and
// whether that question is currently being answered.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/verifier"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyInitialized = errors.New("session store already initialized")
	ErrClosed             = errors.New("session store closed")
)

// Decoder extracts claims from a raw credential without verifying it.
type Decoder interface {
	Parse(raw string) (*credential.Claims, error)
}

// TransportPolicy decides what a load does when the backend cannot be reached.
type TransportPolicy int

const (
	// ClearOnTransportError treats an unreachable backend like a rejected
	// credential: the slot is cleared and the session ends.
	ClearOnTransportError TransportPolicy = iota
	// KeepSessionOnTransportError leaves the stored credential alone and keeps
	// whatever claims the store held before the load.
	KeepSessionOnTransportError
)

type Option func(*Store)

// WithKey overrides the slot key the credential is read from.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithTransportPolicy(p TransportPolicy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// Store is safe for concurrent use. Every Initialize, Reload, Logout and SignIn
// takes a new sequence number; a load only commits while its number is still
// the latest, so a slow response can never overwrite a newer decision.
//
// Subscribers are called outside the state lock and may read the Store. They
// see changes in commit order, though a burst of concurrent changes can be
// collapsed into its latest state. They must not call Initialize, Reload,
// Logout or SignIn synchronously.
type Store struct {
	slot     credential.Slot
	key      string
	decoder  Decoder
	verifier verifier.Verifier
	policy   TransportPolicy

	mu          sync.Mutex
	state       State
	seq         uint64
	initialized bool
	closed      bool
	subscribers map[int]func(State)
	nextSubID   int

	published uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a store in the Uninitialized state. Call Initialize once at startup.
func New(slot credential.Slot, decoder Decoder, v verifier.Verifier, opts ...Option) *Store {
	s := &Store{
		slot:        slot,
		key:         credential.DefaultKey,
		decoder:     decoder,
		verifier:    v,
		state:       State{IsLoading: true, Status: StatusUninitialized},
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current session.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) Claims() *credential.Claims {
	return s.State().Claims
}

func (s *Store) IsAuthenticated() bool {
	return s.State().IsAuthenticated
}

func (s *Store) IsLoading() bool {
	return s.State().IsLoading
}

// Subscribe registers fn to receive every state change. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || fn == nil {
		return func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
		})
	}
}

// Initialize resolves the session from the stored credential. It may run once
// per Store; later calls return ErrAlreadyInitialized. Failures of the load
// itself are reported in the Outcome, never as an error.
func (s *Store) Initialize(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	if s.initialized {
		s.mu.Unlock()
		return Outcome{}, ErrAlreadyInitialized
	}
	s.initialized = true
	seq := s.beginLocked()

	return s.load(ctx, seq), nil
}

// Reload re-runs the initialization sequence and returns its outcome.
func (s *Store) Reload(ctx context.Context) Outcome {
	s.mu.Lock()
	if s.closed {
		state := s.state.clone()
		s.mu.Unlock()
		return Outcome{Kind: OutcomeSuperseded, Err: ErrClosed, State: state}
	}
	seq := s.beginLocked()

	return s.load(ctx, seq)
}

// SignIn stores a credential obtained from an external login and reloads the
// session from it.
func (s *Store) SignIn(ctx context.Context, raw string) Outcome {
	s.mu.Lock()
	if s.closed {
		state := s.state.clone()
		s.mu.Unlock()
		return Outcome{Kind: OutcomeSuperseded, Err: ErrClosed, State: state}
	}
	setErr := s.slot.Set(context.WithoutCancel(ctx), s.key, raw)
	seq := s.beginLocked()

	if setErr != nil {
		log.Err(setErr).Msg("SignIn: failed to store credential")
		return s.commit(ctx, seq, OutcomeStorageFailed, setErr, false, nil)
	}
	return s.load(ctx, seq)
}

// Logout clears the stored credential and the claims. Any load still in flight
// is discarded. The state is cleared even when removing the credential fails;
// the error is returned so the caller knows the slot may still hold it.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.seq++
	err := s.slot.Delete(context.WithoutCancel(ctx), s.key)
	s.state = State{Status: StatusUnauthenticated}
	s.publishLocked()

	if err != nil {
		log.Err(err).Msg("Logout: failed to clear stored credential")
		return fmt.Errorf("session logout: %w", err)
	}
	return nil
}

// Close discards in-flight loads and drops every subscriber.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.seq++
	s.subscribers = make(map[int]func(State))
}

// beginLocked enters Loading and releases s.mu.
func (s *Store) beginLocked() uint64 {
	s.seq++
	seq := s.seq
	s.state = loadingState(s.state)
	s.publishLocked()
	return seq
}

// load runs decode -> verify -> commit for one sequence number.
func (s *Store) load(ctx context.Context, seq uint64) Outcome {
	raw, ok, err := s.slot.Get(ctx, s.key)
	if err != nil {
		log.Err(err).Msg("Session load: failed to read stored credential")
		return s.commit(ctx, seq, OutcomeStorageFailed, err, false, nil)
	}
	if !ok {
		return s.commit(ctx, seq, OutcomeNoCredential, nil, false, nil)
	}

	claims, err := s.decoder.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Session load: stored credential is not usable")
		return s.commit(ctx, seq, OutcomeDecodeFailed, err, true, nil)
	}

	err = s.verifier.Verify(ctx, raw)
	switch {
	case err == nil && !claims.HasSubject():
		log.Warn().Msg("Session load: verified credential carries no subject")
		return s.commit(ctx, seq, OutcomeNoSubject, nil, false, claims)

	case err == nil:
		return s.commit(ctx, seq, OutcomeAuthenticated, nil, false, claims)

	case errors.Is(err, verifier.ErrUnauthorized):
		log.Info().Str("sub", claims.Subject).Msg("Session load: backend rejected credential")
		return s.commit(ctx, seq, OutcomeUnauthorized, err, true, nil)

	case ctx.Err() != nil:
		// the caller gave up; that says nothing about the credential
		log.Warn().Err(err).Msg("Session load: cancelled during verification")
		return s.keepPrevious(ctx, seq, err)

	default:
		log.Err(err).Str("sub", claims.Subject).Msg("Session load: credential verification failed")
		if s.policy == KeepSessionOnTransportError {
			return s.keepPrevious(ctx, seq, err)
		}
		return s.commit(ctx, seq, OutcomeTransportFailed, err, true, nil)
	}
}

func (s *Store) keepPrevious(ctx context.Context, seq uint64, cause error) Outcome {
	s.mu.Lock()
	prev := s.state.Claims
	s.mu.Unlock()
	return s.commit(ctx, seq, OutcomeTransportFailed, cause, false, prev)
}

// commit applies the result of load seq unless a newer operation has been
// issued since. Clearing the slot and writing the state happen under one lock
// so Logout and a finishing load cannot interleave.
func (s *Store) commit(ctx context.Context, seq uint64, kind OutcomeKind, cause error, clear bool, claims *credential.Claims) Outcome {
	s.mu.Lock()
	if seq != s.seq || s.closed {
		state := s.state.clone()
		s.mu.Unlock()
		log.Debug().Str("discarded", kind.String()).Msg("Session load superseded")
		return Outcome{Kind: OutcomeSuperseded, Err: cause, State: state}
	}

	if clear {
		if err := s.slot.Delete(context.WithoutCancel(ctx), s.key); err != nil {
			log.Err(err).Msg("Session load: failed to clear stored credential")
		}
	}
	s.state = resolvedState(claims)
	state := s.state.clone()
	s.publishLocked()

	return Outcome{Kind: kind, Err: cause, State: state}
}

// publishLocked hands the current state to subscribers and releases s.mu.
// Each snapshot carries a publish number taken under s.mu; delivery happens
// after s.mu is released, and a snapshot older than one already delivered is
// dropped, so subscribers never see the session move backwards.
func (s *Store) publishLocked() {
	s.published++
	n := s.published
	state := s.state.clone()
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if n <= s.delivered {
		return
	}
	s.delivered = n

	for _, fn := range subs {
		fn(state.clone())
	}
}
