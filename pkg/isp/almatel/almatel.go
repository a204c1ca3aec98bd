package almatel

import (
	"context"
	"encoding/json"
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
	baseURL    = "https://almatel.ru"
	baseLKURL  = baseURL + "/lk"
	urlLogin   = baseLKURL + "/login.php"
	urlProfile = baseLKURL + "/index.php"

	requestTimeout = 30 * time.Second
	sessionTTL     = 30 * time.Minute
)

func init() {
	isp.Register(isp.Descriptor{
		Identifiers:  []string{"almatel", "2kom", "2com"},
		Title:        "Almatel",
		ScanInterval: 2 * time.Hour,
		New:          func() isp.Connector { return New() },
	})
}

// Connector polls the Almatel (ex-2KOM) cabinet. Login is a JSON XHR
// endpoint; all account data sits on a single profile page.
type Connector struct{}

func New() *Connector { return &Connector{} }

func (c *Connector) Capabilities() isp.Capabilities {
	// The profile page reports a suggested top-up of its own, so no
	// derivation is needed.
	return isp.Capabilities{DerivePaymentSuggested: false}
}

func xhrHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("Origin", baseURL)
	h.Set("Referer", urlLogin)
	return h
}

func (c *Connector) Authenticate(ctx context.Context, creds isp.Credentials) (isp.Session, error) {
	sess := isp.NewCookieSession(requestTimeout, sessionTTL)

	page, err := sess.Get(ctx, urlLogin, nil)
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	if page.StatusCode != http.StatusOK {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: fmt.Errorf("login page returned status %d", page.StatusCode)}
	}

	form := url.Values{}
	form.Set("login", creds.Username)
	form.Set("password", creds.Password)

	resp, err := sess.PostForm(ctx, urlLogin, form, xhrHeaders())
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: fmt.Errorf("login returned status %d", resp.StatusCode)}
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: errors.New("login response is not JSON")}
	}
	if !result.OK {
		return nil, &isp.AuthError{Reason: isp.AuthInvalidCredentials, Err: errors.New(result.Error)}
	}

	sess.MarkEstablished()
	return sess, nil
}

func (c *Connector) SessionValid(sess isp.Session) bool {
	s, ok := sess.(*isp.CookieSession)
	return ok && s.Valid()
}

type rawPayload struct {
	profileHTML string
}

func (c *Connector) Fetch(ctx context.Context, sess isp.Session) (isp.RawPayload, error) {
	s, ok := sess.(*isp.CookieSession)
	if !ok {
		return nil, fmt.Errorf("no cookie session: %w", isp.ErrSessionExpired)
	}

	page, err := s.GetNoRedirect(ctx, urlProfile, nil)
	if err != nil {
		return nil, err
	}
	if page.StatusCode >= 300 && page.StatusCode < 400 {
		return nil, fmt.Errorf("profile redirected to %s: %w", page.Location, isp.ErrSessionExpired)
	}
	if page.StatusCode != http.StatusOK {
		return nil, &isp.ProtocolError{Field: "profile", Reason: fmt.Sprintf("unexpected status %d", page.StatusCode)}
	}
	// An anonymous request is served the login markup on the same URL.
	if strings.Contains(page.Body, `id="login-form"`) {
		return nil, fmt.Errorf("profile served login form: %w", isp.ErrSessionExpired)
	}

	return rawPayload{profileHTML: page.Body}, nil
}

var (
	nameActRe  = regexp.MustCompile(`class="lk__profile--name_act"[^>]*>([^<]+)<`)
	codeRe     = regexp.MustCompile(`\d+`)
	balanceRe  = regexp.MustCompile(`(?s)class="lk__profile-balance".*?class="question-block-value"[^>]*>([^<]+)<`)
	needSumRe  = regexp.MustCompile(`id="need-sum"[^>]*>([^<]+)<`)
	bonusRe    = regexp.MustCompile(`(?s)class="lk__profile-payment".*?class="lk__profile-payment".*?class="question-block-value"[^>]*>([^<]+)<`)
	dateRe     = regexp.MustCompile(`(?s)class="lk__profile-date".*?class="question-block-value"[^>]*>([^<]+)<`)
	internetRe = regexp.MustCompile(`(?s)id="internet".*?class="lk__billing-content-item-row"(.*?)</div>\s*</div>\s*</div>`)
	billValRe  = regexp.MustCompile(`class="lk__billing--val"[^>]*>([^<]+)<`)
)

func (c *Connector) Normalize(payload isp.RawPayload) (*isp.Snapshot, error) {
	raw, ok := payload.(rawPayload)
	if !ok {
		return nil, &isp.ProtocolError{Field: "payload", Reason: "unexpected type"}
	}
	body := raw.profileHTML

	snap := &isp.Snapshot{
		Currency:  isp.DefaultCurrency,
		FetchedAt: time.Now().UTC(),
	}

	// Header line: "Договор № 8001234 | <address>".
	nameAct := strings.ReplaceAll(isp.FirstMatch(nameActRe, body), "&nbsp;", " ")
	codePart, addrPart, hasAddr := strings.Cut(nameAct, "|")
	snap.AccountCode = codeRe.FindString(codePart)
	if snap.AccountCode == "" {
		return nil, &isp.ProtocolError{Field: "account_code", Reason: "missing"}
	}
	if hasAddr {
		snap.Address = strings.TrimSpace(addrPart)
	}

	balance, ok := isp.ParseAmount(isp.FirstMatch(balanceRe, body))
	if !ok {
		return nil, &isp.ProtocolError{Field: "current_balance", Reason: "unparseable"}
	}
	snap.CurrentBalance = balance

	if v, ok := isp.ParseAmount(isp.FirstMatch(needSumRe, body)); ok {
		snap.PaymentSuggested = isp.Float(v)
	}
	if b := isp.FirstMatch(bonusRe, body); b != "" {
		snap.Bonuses = b
	}
	if t, ok := isp.ParseRuDate(isp.FirstMatch(dateRe, body)); ok {
		snap.PaymentUntil = &t
	}

	// Internet tariff block: name, status, monthly cost, speed.
	if m := internetRe.FindStringSubmatch(body); len(m) >= 2 {
		vals := billValRe.FindAllStringSubmatch(m[1], -1)
		if len(vals) >= 4 {
			snap.TariffName = strings.TrimSpace(vals[0][1])
			if cost, ok := isp.ParseAmount(strings.Fields(vals[2][1])[0]); ok {
				snap.TariffMonthlyCost = isp.Float(cost)
			}
			speedParts := strings.Fields(strings.TrimSpace(vals[3][1]))
			if len(speedParts) >= 2 {
				if v, ok := isp.ParseAmount(speedParts[0]); ok {
					snap.TariffSpeed = isp.Float(v)
					snap.TariffSpeedUnit = speedParts[1]
				}
			}
		}
	}

	return snap, nil
}
