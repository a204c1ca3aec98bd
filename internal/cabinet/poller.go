package cabinet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/isp-cabinet/pkg/isp"
)

// Poller runs the poll cycle of one account: session, fetch,
// normalize, derived attributes. It holds the account's connector
// instance and session manager; cycles are strictly sequential.
type Poller struct {
	accountID string
	conn      isp.Connector
	sessions  *SessionManager
	log       *slog.Logger
}

// NewPoller builds a poller with a fresh connector from the provider
// descriptor, so sessions are never shared between accounts.
func NewPoller(accountID string, d isp.Descriptor, creds isp.Credentials, log *slog.Logger) *Poller {
	conn := d.New()
	log = log.With("account", accountID, "isp", d.Identifiers[0])
	return &Poller{
		accountID: accountID,
		conn:      conn,
		sessions:  NewSessionManager(conn, creds, log),
		log:       log,
	}
}

func (p *Poller) AccountID() string { return p.accountID }

// Poll runs one cycle and returns the normalized snapshot. An expired
// session triggers exactly one re-authentication and retried fetch; a
// second expiry in the same cycle means the renewed session was
// rejected too and is reported as an authentication failure.
func (p *Poller) Poll(ctx context.Context) (*isp.Snapshot, error) {
	raw, err := p.fetch(ctx)
	if errors.Is(err, isp.ErrSessionExpired) {
		p.log.Debug("session rejected by portal, re-authenticating")
		p.sessions.Invalidate()
		raw, err = p.fetch(ctx)
		if errors.Is(err, isp.ErrSessionExpired) {
			return nil, &isp.AuthError{
				Reason: isp.AuthUnknown,
				Err:    fmt.Errorf("freshly authenticated session rejected: %w", err),
			}
		}
	}
	if err != nil {
		return nil, err
	}

	snap, err := p.conn.Normalize(raw)
	if err != nil {
		return nil, err
	}
	p.deriveSuggestedPayment(snap)

	p.log.Info("poll succeeded",
		"account_code", snap.AccountCode,
		"balance", snap.CurrentBalance,
	)
	return snap, nil
}

func (p *Poller) fetch(ctx context.Context) (isp.RawPayload, error) {
	sess, err := p.sessions.GetValidSession(ctx)
	if err != nil {
		return nil, err
	}
	return p.conn.Fetch(ctx, sess)
}

// deriveSuggestedPayment fills PaymentSuggested when the portal did
// not report one directly. A positive PaymentRequired doubles as the
// suggestion; otherwise, for providers that opt in, the shortfall
// against the monthly cost is used. A directly reported figure is
// never overridden.
func (p *Poller) deriveSuggestedPayment(snap *isp.Snapshot) {
	if snap.PaymentSuggested != nil {
		return
	}
	if snap.PaymentRequired != nil && *snap.PaymentRequired > 0 {
		snap.PaymentSuggested = isp.Float(*snap.PaymentRequired)
		return
	}
	if !p.conn.Capabilities().DerivePaymentSuggested || snap.TariffMonthlyCost == nil {
		return
	}
	shortfall := *snap.TariffMonthlyCost - snap.CurrentBalance
	if shortfall < 0 {
		shortfall = 0
	}
	snap.PaymentSuggested = isp.Float(shortfall)
}
