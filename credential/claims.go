// Package credential decodes the persisted sign-in credential and defines the
// durable key-value slot it lives in.
package credential

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the identity decoded from a credential. Registered claims (sub, exp,
// iat, iss, aud, jti) come from the embedded RegisteredClaims.
type Claims struct {
	jwtlib.RegisteredClaims
	Email  string   `json:"email,omitempty"`  // User email
	Name   string   `json:"name,omitempty"`   // Display name
	Tenant string   `json:"tenant,omitempty"` // Tenant the token was issued for
	Roles  []string `json:"roles,omitempty"`  // Roles assigned to the user
}

// HasSubject reports whether the claims identify a user.
func (c *Claims) HasSubject() bool {
	return c != nil && c.Subject != ""
}

// Expiry returns the expiry time, or the zero time when the token carries no exp claim.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
