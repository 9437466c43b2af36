package credential

import (
	"context"
	"errors"
)

// DefaultKey is the slot key the credential is stored under.
const DefaultKey = "auth_token"

// ErrStorage wraps failures of the backing store (file system, redis).
var ErrStorage = errors.New("credential storage failure")

// Slot is durable client-side key-value storage holding the credential.
type Slot interface {
	// Get returns the stored value and whether one exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}
