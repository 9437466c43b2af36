// Package login signs a user in against an OpenID Connect provider and returns
// the credential the session store persists.
package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var ErrNoToken = errors.New("token response carried no usable token")

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client // optional
}

// Identity is what the verified ID token says about the user.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Result of a successful login. Credential is the ID token when the provider
// returned one, the access token otherwise.
type Result struct {
	Credential string
	Identity   *Identity // nil when no ID token was returned
	Token      *oauth2.Token
}

type Client struct {
	provider   *oidc.Provider
	oauth2     *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// New discovers the provider at cfg.Issuer.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("login: issuer and client ID are required")
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &Client{
		provider: provider,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{
			ClientID: cfg.ClientID,
		}),
		httpClient: cfg.HTTPClient,
	}, nil
}

// PasswordLogin runs the resource owner password grant and verifies the
// returned ID token.
func (c *Client) PasswordLogin(ctx context.Context, username, password string) (*Result, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	token, err := c.oauth2.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		if token.AccessToken == "" {
			return nil, ErrNoToken
		}
		return &Result{Credential: token.AccessToken, Token: token}, nil
	}

	if c.httpClient != nil {
		ctx = oidc.ClientContext(ctx, c.httpClient)
	}
	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("ID token verification failed: %w", err)
	}

	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}

	return &Result{Credential: rawIDToken, Identity: &identity, Token: token}, nil
}
