package skyen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/user/isp-cabinet/pkg/isp"
)

const (
	// The cabinet is served over plain HTTP.
	baseURL    = "http://lk.sky-en.ru"
	urlCabinet = baseURL + "/cabinet/welcome-2/"

	requestTimeout = 30 * time.Second
	sessionTTL     = 30 * time.Minute

	loginPanelMarker = `class="ca-login-panel"`
)

func init() {
	isp.Register(isp.Descriptor{
		Identifiers:  []string{"sky_engineering", "sky_en"},
		Title:        "Sky Engineering",
		ScanInterval: 2 * time.Hour,
		New:          func() isp.Connector { return New() },
	})
}

// Connector polls the Sky Engineering cabinet. The welcome page doubles
// as the login form for anonymous visitors and as the account dashboard
// once a session cookie is set.
type Connector struct{}

func New() *Connector { return &Connector{} }

func (c *Connector) Capabilities() isp.Capabilities {
	// The dashboard prints its own recommended top-up amount.
	return isp.Capabilities{DerivePaymentSuggested: false}
}

var (
	loginFormRe  = regexp.MustCompile(`(?s)class="ca-login-panel".*?<form[^>]*>(.*?)</form>`)
	hiddenRe     = regexp.MustCompile(`<input[^>]*type="hidden"[^>]*name="([^"]*)"[^>]*value="([^"]*)"[^>]*>`)
	userDataRe   = regexp.MustCompile(`(?s)class="user-data"[^>]*>(.*?)</div>`)
	valueRe      = regexp.MustCompile(`<b>([^<]+)</b>`)
	payUntilRe   = regexp.MustCompile(`<small>[^<0-9]*([0-9]{2}\.[0-9]{2}\.[0-9]{4})`)
	tariffLineRe = regexp.MustCompile(`(?s)class="tarif-current".*?<p>([^<]+)</p>`)
	speedRe      = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)?)`)
)

func (c *Connector) Authenticate(ctx context.Context, creds isp.Credentials) (isp.Session, error) {
	sess := isp.NewCookieSession(requestTimeout, sessionTTL)

	page, err := sess.Get(ctx, urlCabinet, nil)
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	if page.StatusCode != http.StatusOK {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: fmt.Errorf("cabinet returned status %d", page.StatusCode)}
	}

	form, err := parseLoginForm(page.Body)
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	form.Set("login-field", creds.Username)
	form.Set("pass-field", creds.Password)

	resp, err := sess.PostForm(ctx, urlCabinet, form, nil)
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// Accepted logins bounce back to the dashboard.
	case resp.StatusCode == http.StatusOK:
		if strings.Contains(resp.Body, loginPanelMarker) {
			return nil, &isp.AuthError{Reason: isp.AuthInvalidCredentials}
		}
	default:
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: fmt.Errorf("login returned status %d", resp.StatusCode)}
	}

	sess.MarkEstablished()
	return sess, nil
}

// parseLoginForm collects the hidden anti-forgery inputs
// (module_token, module_token_unique) from the login panel.
func parseLoginForm(body string) (url.Values, error) {
	m := loginFormRe.FindStringSubmatch(body)
	if len(m) < 2 {
		return nil, errors.New("login panel not found")
	}
	form := url.Values{}
	for _, in := range hiddenRe.FindAllStringSubmatch(m[1], -1) {
		if in[1] != "" {
			form.Set(in[1], in[2])
		}
	}
	return form, nil
}

func (c *Connector) SessionValid(sess isp.Session) bool {
	s, ok := sess.(*isp.CookieSession)
	return ok && s.Valid()
}

type rawPayload struct {
	dashboardHTML string
}

func (c *Connector) Fetch(ctx context.Context, sess isp.Session) (isp.RawPayload, error) {
	s, ok := sess.(*isp.CookieSession)
	if !ok {
		return nil, fmt.Errorf("no cookie session: %w", isp.ErrSessionExpired)
	}

	page, err := s.GetNoRedirect(ctx, urlCabinet, nil)
	if err != nil {
		return nil, err
	}
	if page.StatusCode >= 300 && page.StatusCode < 400 {
		return nil, fmt.Errorf("cabinet redirected to %s: %w", page.Location, isp.ErrSessionExpired)
	}
	if page.StatusCode != http.StatusOK {
		return nil, &isp.ProtocolError{Field: "dashboard", Reason: fmt.Sprintf("unexpected status %d", page.StatusCode)}
	}
	// Anonymous visitors get the login panel on the same URL.
	if strings.Contains(page.Body, loginPanelMarker) {
		return nil, fmt.Errorf("dashboard served login panel: %w", isp.ErrSessionExpired)
	}

	return rawPayload{dashboardHTML: page.Body}, nil
}

func (c *Connector) Normalize(payload isp.RawPayload) (*isp.Snapshot, error) {
	raw, ok := payload.(rawPayload)
	if !ok {
		return nil, &isp.ProtocolError{Field: "payload", Reason: "unexpected type"}
	}
	body := raw.dashboardHTML

	snap := &isp.Snapshot{
		Currency:  isp.DefaultCurrency,
		FetchedAt: time.Now().UTC(),
	}

	// The dashboard stacks four user-data blocks: client name, contract
	// number, balance with a "pay until" hint, suggested top-up.
	blocks := userDataRe.FindAllStringSubmatch(body, -1)
	if len(blocks) < 3 {
		return nil, &isp.ProtocolError{Field: "account_code", Reason: "user data blocks missing"}
	}

	snap.ClientName = isp.FirstMatch(valueRe, blocks[0][1])
	snap.AccountCode = isp.FirstMatch(valueRe, blocks[1][1])
	if snap.AccountCode == "" {
		return nil, &isp.ProtocolError{Field: "account_code", Reason: "missing"}
	}

	balance, ok := isp.ParseAmount(isp.FirstMatch(valueRe, blocks[2][1]))
	if !ok {
		return nil, &isp.ProtocolError{Field: "current_balance", Reason: "unparseable"}
	}
	snap.CurrentBalance = balance
	if t, ok := isp.ParseRuDate(isp.FirstMatch(payUntilRe, blocks[2][1])); ok {
		snap.PaymentUntil = &t
	}

	if len(blocks) >= 4 {
		if v, ok := isp.ParseAmount(isp.FirstMatch(valueRe, blocks[3][1])); ok {
			snap.PaymentSuggested = isp.Float(v)
		}
	}

	// Tariff line reads "Скорость 100: 500 руб.". The name carries the
	// speed, the tail the monthly cost.
	if line := isp.FirstMatch(tariffLineRe, body); line != "" {
		name, cost, hasCost := strings.Cut(line, ":")
		snap.TariffName = strings.TrimSpace(name)
		if hasCost {
			if v, ok := isp.ParseAmount(isp.FirstMatch(speedRe, cost)); ok {
				snap.TariffMonthlyCost = isp.Float(v)
			}
		}
		if v, ok := isp.ParseAmount(isp.FirstMatch(speedRe, snap.TariffName)); ok {
			snap.TariffSpeed = isp.Float(v)
			snap.TariffSpeedUnit = "Мбит/с"
		}
	}

	return snap, nil
}
