// Package verifier asks the backend whether a credential is still valid.
//
// The backend contract is a single protected endpoint: GET /api/protected with
// the credential as a Bearer token. 401 means the credential is rejected, any
// 2xx means it is accepted, and everything else is a transport failure that says
// nothing about the credential itself.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// ProtectedPath is the backend route used to check a credential.
	ProtectedPath = "/api/protected"

	// RequestIDHeader carries a per-call correlation ID.
	RequestIDHeader = "X-Request-ID"

	DefaultTimeout = 10 * time.Second
)

var (
	// ErrUnauthorized means the backend explicitly rejected the credential.
	ErrUnauthorized = errors.New("credential rejected by backend")
	// ErrTransport means verification could not complete: network failure,
	// timeout or an unexpected status.
	ErrTransport = errors.New("credential verification unavailable")
)

// StatusError reports an unexpected (non-2xx, non-401) backend status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected backend status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// Verifier confirms a credential server-side.
type Verifier interface {
	Verify(ctx context.Context, credential string) error
}

// HTTPVerifier implements Verifier against the backend's protected endpoint.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

type Option func(*HTTPVerifier)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *HTTPVerifier) {
		v.client = c
	}
}

// WithTimeout bounds each verification call.
func WithTimeout(d time.Duration) Option {
	return func(v *HTTPVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

var _ Verifier = (*HTTPVerifier)(nil)

// New creates a verifier for the backend at baseURL (e.g. "https://api.example.com").
func New(baseURL string, opts ...Option) *HTTPVerifier {
	v := &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns nil when the backend accepts credential, an error wrapping
// ErrUnauthorized on 401 and an error wrapping ErrTransport otherwise.
func (v *HTTPVerifier) Verify(ctx context.Context, credential string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+ProtectedPath, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Info().Str("request_id", requestID).Msg("Backend rejected credential")
		return ErrUnauthorized
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		log.Warn().Str("request_id", requestID).Int("status", resp.StatusCode).Msg("Unexpected verification status")
		return &StatusError{StatusCode: resp.StatusCode}
	}
}
