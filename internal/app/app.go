// Package app wires the session store, wallet binding and external
// collaborators from configuration, with an explicit New/Close lifecycle.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/credential/fileslot"
	"github.com/jrsteele09/go-auth-client/credential/memslot"
	"github.com/jrsteele09/go-auth-client/credential/redisslot"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/keyrecovery"
	"github.com/jrsteele09/go-auth-client/login"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/verifier"
	"github.com/jrsteele09/go-auth-client/wallet"
	"github.com/jrsteele09/go-auth-client/wallet/filesource"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type App struct {
	config  config.Config
	slot    credential.Slot
	Session *session.Store
	Wallet  *wallet.Binding // nil when no wallet account file is configured

	closers []func() error
}

// New builds the application. Nothing touches the network until Start.
func New(cfg config.Config) (*App, error) {
	a := &App{config: cfg}

	slot, err := a.newSlot()
	if err != nil {
		return nil, err
	}
	a.slot = slot

	policy := session.ClearOnTransportError
	if cfg.GetKeepSessionOnTransportError() {
		policy = session.KeepSessionOnTransportError
	}
	a.Session = session.New(
		slot,
		credential.NewDecoder(nil),
		verifier.New(cfg.GetBackendURL(), verifier.WithTimeout(cfg.GetVerifyTimeout())),
		session.WithKey(cfg.GetCredentialKey()),
		session.WithTransportPolicy(policy),
	)
	a.closers = append(a.closers, func() error { a.Session.Close(); return nil })

	if path := cfg.GetWalletAccountFile(); path != "" {
		src, err := filesource.New(path)
		if err != nil {
			_ = a.Close()
			return nil, errors.Wrapf(err, "[App New] wallet source")
		}
		a.Wallet = wallet.Bind(src)
		a.closers = append(a.closers, src.Close, func() error { a.Wallet.Close(); return nil })
	}

	return a, nil
}

func (a *App) newSlot() (credential.Slot, error) {
	switch kind := a.config.GetStorageKind(); kind {
	case config.StorageMemory:
		return memslot.New(), nil
	case config.StorageFile:
		s, err := fileslot.New(filepath.Clean(a.config.GetStoragePath()))
		if err != nil {
			return nil, errors.Wrapf(err, "[App New] file storage")
		}
		return s, nil
	case config.StorageRedis:
		s, err := redisslot.New(redisslot.Config{
			Client:    redis.NewClient(&redis.Options{Addr: a.config.GetRedisAddr()}),
			KeyPrefix: a.config.GetRedisKeyPrefix(),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "[App New] redis storage")
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("[App New] storage %q: %w", kind, errors.ErrUnsupportedStorage)
	}
}

// Start resolves the session from the stored credential.
func (a *App) Start(ctx context.Context) (session.Outcome, error) {
	out, err := a.Session.Initialize(ctx)
	if err != nil {
		return out, err
	}
	log.Debug().Str("outcome", out.Kind.String()).Str("status", out.State.Status.String()).Msg("Session initialized")
	return out, nil
}

// Login signs in with the configured OIDC provider and adopts the credential.
func (a *App) Login(ctx context.Context, username, password string) (session.Outcome, error) {
	if a.config.GetOIDCIssuer() == "" {
		return session.Outcome{}, errors.Wrapf(errors.ErrNotConfigured, "login: OIDC_ISSUER not set")
	}

	client, err := login.New(ctx, login.Config{
		Issuer:       a.config.GetOIDCIssuer(),
		ClientID:     a.config.GetOIDCClientID(),
		ClientSecret: a.config.GetOIDCClientSecret(),
		Scopes:       a.config.GetOIDCScopes(),
	})
	if err != nil {
		return session.Outcome{}, err
	}

	res, err := client.PasswordLogin(ctx, username, password)
	if err != nil {
		return session.Outcome{}, err
	}
	return a.Session.SignIn(ctx, res.Credential), nil
}

// RecoverKey asks the threshold-key service to rebuild the user's private key,
// using the stored credential as the identity token.
func (a *App) RecoverKey(ctx context.Context, email, recoveryFactor string) (string, error) {
	url := a.config.GetKeyRecoveryURL()
	if url == "" {
		return "", errors.Wrapf(errors.ErrNotConfigured, "recover key: KEY_RECOVERY_URL not set")
	}

	raw, ok, err := a.slot.Get(ctx, a.config.GetCredentialKey())
	if err != nil {
		return "", err
	}
	if !ok || !a.Session.IsAuthenticated() {
		return "", errors.ErrNoCredential
	}

	return keyrecovery.New(url, nil).Reconstruct(ctx, keyrecovery.Request{
		IDToken:        raw,
		Email:          email,
		RecoveryFactor: recoveryFactor,
	})
}

// Close tears everything down in reverse construction order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
