package backend

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Identity is the user a development credential is minted for
type Identity struct {
	Subject string
	Email   string
	Name    string
	Tenant  string
	Roles   []string
}

// Issuer mints credentials the development backend accepts
type Issuer struct {
	keys   *KeyPair
	issuer string
	ttl    time.Duration
}

func NewIssuer(keys *KeyPair, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{keys: keys, issuer: issuer, ttl: ttl}
}

// Mint creates a signed credential for id
func (i *Issuer) Mint(id Identity) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss": i.issuer,
		"sub": id.Subject,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
		"jti": uuid.New().String(),
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	if id.Tenant != "" {
		claims["tenant"] = id.Tenant
	}
	if len(id.Roles) > 0 {
		claims["roles"] = id.Roles
	}

	raw, err := i.keys.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("mint credential for %s: %w", id.Subject, err)
	}
	return raw, nil
}
