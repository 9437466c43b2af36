package config

import (
	"fmt"
	"strings"
	"time"

	ierrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// ErrUnknownStorage is returned when STORAGE names a backend the client does not ship.
var ErrUnknownStorage = ierrors.ErrUnsupportedStorage

type EnvVars struct {
	AppName  string `env:"APP_NAME,default=Go Auth Client"`
	Env      string `env:"ENV,default=DEV"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

type Session struct {
	BackendURL                  string        `env:"BACKEND_URL,default=http://localhost:8080"`
	VerifyTimeout               time.Duration `env:"VERIFY_TIMEOUT,default=10s"`
	KeepSessionOnTransportError bool          `env:"KEEP_SESSION_ON_TRANSPORT_ERROR,default=false"`
}

var _ SessionConfig = Session{}

// GetBackendURL returns the backend base URL without a trailing slash.
func (s Session) GetBackendURL() string {
	return strings.TrimRight(s.BackendURL, "/")
}

func (s Session) GetVerifyTimeout() time.Duration {
	return s.VerifyTimeout
}

func (s Session) GetKeepSessionOnTransportError() bool {
	return s.KeepSessionOnTransportError
}

type Storage struct {
	CredentialKey  string `env:"CREDENTIAL_KEY,default=auth_token"`
	StorageKind    string `env:"STORAGE,default=file"`
	StoragePath    string `env:"STORAGE_PATH,default=./data"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=authclient:credential:"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetCredentialKey() string {
	return s.CredentialKey
}

func (s Storage) GetStorageKind() StorageKind {
	return StorageKind(strings.ToLower(s.StorageKind))
}

func (s Storage) GetStoragePath() string {
	return s.StoragePath
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisKeyPrefix() string {
	return s.RedisKeyPrefix
}

type OIDC struct {
	Issuer       string `env:"OIDC_ISSUER"`
	ClientID     string `env:"OIDC_CLIENT_ID"`
	ClientSecret string `env:"OIDC_CLIENT_SECRET"`
	Scopes       string `env:"OIDC_SCOPES,default=openid profile email"`
}

var _ OIDCConfig = OIDC{}

func (o OIDC) GetOIDCIssuer() string {
	return o.Issuer
}

func (o OIDC) GetOIDCClientID() string {
	return o.ClientID
}

func (o OIDC) GetOIDCClientSecret() string {
	return o.ClientSecret
}

func (o OIDC) GetOIDCScopes() []string {
	return strings.Fields(o.Scopes)
}

type Wallet struct {
	AccountFile string `env:"WALLET_ACCOUNT_FILE"`
}

var _ WalletConfig = Wallet{}

func (w Wallet) GetWalletAccountFile() string {
	return w.AccountFile
}

type Recovery struct {
	URL string `env:"KEY_RECOVERY_URL"`
}

var _ RecoveryConfig = Recovery{}

func (r Recovery) GetKeyRecoveryURL() string {
	return r.URL
}

type Backend struct {
	Port           string `env:"PORT,default=8080"`
	KeyID          string `env:"BACKEND_KEY_ID,default=dev-key"`
	PrivateKeyFile string `env:"BACKEND_PRIVATE_KEY_FILE"`
	Issuer         string `env:"BACKEND_ISSUER,default=http://localhost:8080"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetBackendPort() string {
	port := b.Port
	if port == "" {
		port = "8080"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (b Backend) GetBackendKeyID() string {
	return b.KeyID
}

// GetBackendPrivateKeyFile returns the PEM file the signing key is loaded from.
// Empty means a fresh key is generated on every start.
func (b Backend) GetBackendPrivateKeyFile() string {
	return b.PrivateKeyFile
}

func (b Backend) GetBackendIssuer() string {
	return b.Issuer
}
