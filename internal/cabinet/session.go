package cabinet

import (
	"context"
	"log/slog"

	"github.com/user/isp-cabinet/pkg/isp"
)

// SessionManager owns the portal session of one account. It hands out
// the cached session while the connector considers it usable and
// re-authenticates lazily otherwise. All calls happen on the account's
// poll cycle, so there is never more than one authentication in flight
// for an account.
type SessionManager struct {
	conn  isp.Connector
	creds isp.Credentials
	log   *slog.Logger

	sess isp.Session
}

func NewSessionManager(conn isp.Connector, creds isp.Credentials, log *slog.Logger) *SessionManager {
	return &SessionManager{conn: conn, creds: creds, log: log}
}

// GetValidSession returns the cached session when the connector's
// local check accepts it; otherwise it authenticates once. The local
// check is a heuristic: the portal may still reject the session, which
// surfaces as ErrSessionExpired from Fetch.
func (m *SessionManager) GetValidSession(ctx context.Context) (isp.Session, error) {
	if m.sess != nil && m.conn.SessionValid(m.sess) {
		return m.sess, nil
	}

	m.log.Debug("authenticating")
	sess, err := m.conn.Authenticate(ctx, m.creds)
	if err != nil {
		m.sess = nil
		return nil, err
	}
	m.sess = sess
	m.log.Debug("session established")
	return sess, nil
}

// Invalidate discards the cached session so the next GetValidSession
// re-authenticates.
func (m *SessionManager) Invalidate() {
	m.sess = nil
}
