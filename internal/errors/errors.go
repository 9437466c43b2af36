package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the client's internal packages
var (
	// Configuration errors
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnsupportedStorage = errors.New("unsupported credential storage")

	// Collaborator errors
	ErrNotConfigured = errors.New("collaborator not configured")
	ErrNoCredential  = errors.New("no stored credential")

	// General errors
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
