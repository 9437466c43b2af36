package session

import (
	"github.com/jrsteele09/go-auth-client/credential"
)

// Status is the position of a Store in its lifecycle.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of the session. Claims must not be mutated by
// consumers; Store hands out copies.
type State struct {
	Claims          *credential.Claims
	IsAuthenticated bool
	IsLoading       bool
	Status          Status
}

func loadingState(prev State) State {
	return State{
		Claims:          prev.Claims,
		IsAuthenticated: prev.IsAuthenticated,
		IsLoading:       true,
		Status:          StatusLoading,
	}
}

// resolvedState derives the authentication flag from claims.
func resolvedState(claims *credential.Claims) State {
	if claims.HasSubject() {
		return State{Claims: claims, IsAuthenticated: true, Status: StatusAuthenticated}
	}
	return State{Claims: claims, Status: StatusUnauthenticated}
}

func (s State) clone() State {
	if s.Claims != nil {
		c := *s.Claims
		c.Roles = append([]string(nil), s.Claims.Roles...)
		c.Audience = append([]string(nil), s.Claims.Audience...)
		s.Claims = &c
	}
	return s
}

// OutcomeKind classifies how a load finished. Every kind other than
// OutcomeAuthenticated leaves the session unauthenticated under the default
// policy, but callers can still tell an invalid credential from an unreachable
// backend.
type OutcomeKind int

const (
	OutcomeNoCredential OutcomeKind = iota
	OutcomeAuthenticated
	OutcomeDecodeFailed
	OutcomeUnauthorized
	OutcomeTransportFailed
	OutcomeStorageFailed
	// OutcomeSuperseded means a newer Reload or Logout was issued while this
	// load was in flight; its result was discarded.
	OutcomeSuperseded
	// OutcomeNoSubject means the backend accepted the credential but it names
	// no subject. The claims are kept and the session stays unauthenticated.
	OutcomeNoSubject
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoCredential:
		return "no_credential"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeDecodeFailed:
		return "decode_failed"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeTransportFailed:
		return "transport_failed"
	case OutcomeStorageFailed:
		return "storage_failed"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeNoSubject:
		return "no_subject"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of Initialize or Reload.
type Outcome struct {
	Kind  OutcomeKind
	Err   error // cause for the failure kinds, nil otherwise
	State State // state after the load; the current state when superseded
}
