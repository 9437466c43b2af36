// Package keyrecovery calls the external threshold-key service that rebuilds a
// user's private key from an identity token and a recovery factor. The client
// only forwards the request; no share handling happens here.
package keyrecovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrRejected = errors.New("key recovery rejected")
	ErrService  = errors.New("key recovery service unavailable")
)

type Request struct {
	IDToken        string `json:"idToken"`
	Email          string `json:"email"`
	RecoveryFactor string `json:"recoveryFactor"`
}

type response struct {
	PrivateKey string `json:"privateKey"`
	Error      string `json:"error,omitempty"`
}

type Client struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// New creates a client for the reconstruction endpoint at url.
func New(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, client: httpClient, timeout: 30 * time.Second}
}

// Reconstruct returns the private key the service rebuilt for req.
func (c *Client) Reconstruct(ctx context.Context, req Request) (string, error) {
	if req.IDToken == "" || req.Email == "" || req.RecoveryFactor == "" {
		return "", fmt.Errorf("%w: id token, email and recovery factor are required", ErrRejected)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrService, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrService, err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("%w: decode response: %w", ErrService, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300 && out.PrivateKey != "":
		return out.PrivateKey, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, out.Error)
	default:
		return "", fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
	}
}
