package remote

import (
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// ErrorKind classifies mailbox failures by how the sync engine should
// react to them.
type ErrorKind int

const (
	// KindUnknown covers failures with no better classification.
	// Treated as retryable.
	KindUnknown ErrorKind = iota

	// KindNetwork is a transport or server fault. Retryable.
	KindNetwork

	// KindRateLimited means the backend asked us to slow down.
	// Retryable after backing off.
	KindRateLimited

	// KindAuth means the backend rejected our credentials. Not
	// retryable without a token refresh.
	KindAuth

	// KindNotFound means the requested object no longer exists.
	KindNotFound

	// KindHistoryExpired means the change cursor is too old or the
	// backend keeps no history. The engine must fall back to a full
	// sync.
	KindHistoryExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindHistoryExpired:
		return "history_expired"
	default:
		return "unknown"
	}
}

// Error is a classified mailbox failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the failing operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ClassifyGoogleAPI wraps an error from the Google API client with the
// matching kind.
func ClassifyGoogleAPI(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401:
			return NewError(KindAuth, op, err)
		case apiErr.Code == 404:
			return NewError(KindNotFound, op, err)
		case apiErr.Code == 429:
			return NewError(KindRateLimited, op, err)
		case apiErr.Code == 403 && hasRateReason(apiErr):
			return NewError(KindRateLimited, op, err)
		case apiErr.Code >= 500:
			return NewError(KindNetwork, op, err)
		default:
			return NewError(KindUnknown, op, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(KindNetwork, op, err)
	}

	return NewError(KindUnknown, op, err)
}

func hasRateReason(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}

// KindOf extracts the kind of a classified error, KindUnknown for
// anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the operation that produced err is worth
// repeating without outside intervention.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited, KindUnknown:
		return true
	default:
		return false
	}
}

// IsHistoryExpired reports whether err means the incremental cursor is
// unusable and a full sync is required.
func IsHistoryExpired(err error) bool {
	return KindOf(err) == KindHistoryExpired
}

// IsNotFound reports whether err means the requested object is gone.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
