package isp

import (
	"errors"
	"fmt"
)

// AuthReason distinguishes a rejected login from an unexpected
// authentication failure.
type AuthReason string

const (
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	AuthUnknown            AuthReason = "unknown"
)

// AuthError reports a failed authentication attempt. A portal response
// that plainly says "bad credentials" maps to AuthInvalidCredentials;
// anything else maps to AuthUnknown.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrSessionExpired is returned (wrapped) by Fetch when the portal
// indicates the session is no longer authenticated, as opposed to a
// transport failure. The session manager reacts by re-authenticating
// instead of backing off.
var ErrSessionExpired = errors.New("session expired")

// TransientError wraps network, timeout and rate-limit class failures
// that are expected to heal on their own schedule.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// ProtocolError reports that a portal response no longer matches the
// expected shape. It names the field that could not be extracted, so
// a remote markup change is diagnosable from the error alone.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: field %q %s", e.Field, e.Reason)
}

// UnknownProviderError is raised at configuration load time when an
// account references an unregistered provider identifier.
type UnknownProviderError struct {
	Identifier string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown ISP provider %q", e.Identifier)
}

// FailureClass buckets poll failures for store state and metrics labels.
type FailureClass string

const (
	FailureAuth           FailureClass = "auth"
	FailureSessionExpired FailureClass = "session_expired"
	FailureTransient      FailureClass = "transient"
	FailureProtocol       FailureClass = "protocol"
	FailureUnknown        FailureClass = "unknown"
)

// Classify maps an error from a poll cycle to its failure class.
func Classify(err error) FailureClass {
	var (
		authErr      *AuthError
		transientErr *TransientError
		protoErr     *ProtocolError
	)
	switch {
	case errors.As(err, &authErr):
		return FailureAuth
	case errors.Is(err, ErrSessionExpired):
		return FailureSessionExpired
	case errors.As(err, &transientErr):
		return FailureTransient
	case errors.As(err, &protoErr):
		return FailureProtocol
	default:
		return FailureUnknown
	}
}
