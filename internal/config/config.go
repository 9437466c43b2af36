package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
	OIDCConfig
	WalletConfig
	RecoveryConfig
	BackendConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

// SessionConfig covers the session store and its backend verifier.
type SessionConfig interface {
	GetBackendURL() string
	GetVerifyTimeout() time.Duration
	GetKeepSessionOnTransportError() bool
}

type StorageConfig interface {
	GetCredentialKey() string
	GetStorageKind() StorageKind
	GetStoragePath() string
	GetRedisAddr() string
	GetRedisKeyPrefix() string
}

type OIDCConfig interface {
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCScopes() []string
}

type WalletConfig interface {
	GetWalletAccountFile() string
}

type RecoveryConfig interface {
	GetKeyRecoveryURL() string
}

// BackendConfig is read by the development backend only.
type BackendConfig interface {
	GetBackendPort() string
	GetBackendKeyID() string
	GetBackendPrivateKeyFile() string
	GetBackendIssuer() string
}

type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StorageFile   StorageKind = "file"
	StorageRedis  StorageKind = "redis"
)

type mainConfig struct {
	EnvVars
	Session
	Storage
	OIDC
	Wallet
	Recovery
	Backend
}

var _ Config = mainConfig{}

// New reads the configuration from the environment. Unset variables take the
// defaults declared on the struct tags.
func New() (Config, error) {
	var c mainConfig
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config.New: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c mainConfig) validate() error {
	switch c.GetStorageKind() {
	case StorageMemory, StorageFile, StorageRedis:
	default:
		return fmt.Errorf("config: storage kind %q: %w", c.StorageKind, ErrUnknownStorage)
	}
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("config: verify timeout must be positive, got %s", c.VerifyTimeout)
	}
	if c.CredentialKey == "" {
		return errors.New("config: credential key must not be empty")
	}
	return nil
}
