package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies refresh failures into the retry taxonomy.
type ErrorKind int

const (
	// KindNetwork covers network-unavailable failures. Retryable.
	KindNetwork ErrorKind = iota

	// KindRateLimited covers throttling by the token endpoint. Retryable.
	KindRateLimited

	// KindInvalidCredentials means the refresh token or client
	// credentials were rejected. Terminal: requires re-authentication.
	KindInvalidCredentials

	// KindNoToken means there is no token material to refresh with.
	// Terminal.
	KindNoToken

	// KindTokenExpired means the refresh token itself has expired or
	// been revoked. Terminal.
	KindTokenExpired

	// KindTransport covers unclassified transport failures, treated as
	// possibly transient. Retryable.
	KindTransport
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNoToken:
		return "no_token"
	case KindTokenExpired:
		return "token_expired"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RefreshError is a classified token refresh failure.
type RefreshError struct {
	Kind ErrorKind
	Err  error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("token refresh failed (%s)", e.Kind)
	}
	return fmt.Sprintf("token refresh failed (%s): %v", e.Kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Retryable reports whether a failure of this kind may succeed on retry.
func (e *RefreshError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited, KindTransport:
		return true
	default:
		return false
	}
}

// NewRefreshError wraps err with a classification.
func NewRefreshError(kind ErrorKind, err error) *RefreshError {
	return &RefreshError{Kind: kind, Err: err}
}

// IsRetryable reports whether err (or any error in its chain) is a
// retryable RefreshError. Unclassified errors are treated as retryable
// transport failures.
func IsRetryable(err error) bool {
	var re *RefreshError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// IsTerminalAuth reports whether err requires re-authentication rather
// than retry.
func IsTerminalAuth(err error) bool {
	var re *RefreshError
	if errors.As(err, &re) {
		return !re.Retryable()
	}
	return false
}
