package isp

import "context"

// Session is the opaque authenticated context a connector hands back
// from Authenticate. It is owned exclusively by one account's session
// manager and never shared across accounts.
type Session any

// RawPayload is whatever a connector's Fetch produced, typically the
// raw page bodies of the portal. Normalize turns it into a Snapshot
// without any further I/O.
type RawPayload any

// Capabilities gate which derived attributes the poller computes for a
// connector's snapshots.
type Capabilities struct {
	// DirectPaymentRequired is set when the portal exposes a payment
	// figure of its own.
	DirectPaymentRequired bool
	// DerivePaymentSuggested allows the poller to derive a suggested
	// payment from monthly cost and balance when the portal reports no
	// direct figure.
	DerivePaymentSuggested bool
}

// Connector implements authentication, fetch and normalization for one
// ISP family. One instance serves one account.
type Connector interface {
	// Authenticate performs the portal login and returns an opaque
	// session. A rejected login returns an *AuthError rather than a
	// generic error.
	Authenticate(ctx context.Context, creds Credentials) (Session, error)

	// SessionValid is a cheap local check (expiry hint, no network).
	// Best effort: a false negative is tolerated.
	SessionValid(sess Session) bool

	// Fetch performs the data requests. It returns an error wrapping
	// ErrSessionExpired when the portal signals the session is no
	// longer authenticated, a *TransientError for transport failures,
	// and a *ProtocolError for unexpected response shapes.
	Fetch(ctx context.Context, sess Session) (RawPayload, error)

	// Normalize maps a raw payload to a canonical snapshot. Pure; a
	// missing mandatory field fails with a *ProtocolError.
	Normalize(raw RawPayload) (*Snapshot, error)

	Capabilities() Capabilities
}
