package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var (
	// ErrMalformed is returned for credentials that cannot be parsed as a JWT.
	ErrMalformed = errors.New("malformed credential")
	// ErrExpired is returned for credentials whose exp claim lies in the past.
	ErrExpired = errors.New("credential expired")
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Decoder turns a raw credential into Claims. The signature is not checked here;
// the backend verifier is the authority on validity.
type Decoder struct {
	now func() time.Time
}

// NewDecoder creates a decoder. A nil clock falls back to NowTimeFunc.
func NewDecoder(now func() time.Time) *Decoder {
	return &Decoder{now: now}
}

// Decode returns the claims carried by raw, or nil when raw is malformed or
// already expired. Failures are logged and never returned.
func (d *Decoder) Decode(raw string) *Claims {
	claims, err := d.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Credential decode failed")
		return nil
	}
	return claims
}

// Parse is Decode with the failure reason kept: ErrMalformed or ErrExpired.
func (d *Decoder) Parse(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrMalformed)
	}

	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	// exp equal to now is still valid; only strictly earlier expiries are rejected
	if claims.ExpiresAt != nil && claims.ExpiresAt.Unix() < d.clock().Unix() {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpired, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	return claims, nil
}

func (d *Decoder) clock() time.Time {
	if d == nil || d.now == nil {
		return NowTimeFunc()
	}
	return d.now()
}
