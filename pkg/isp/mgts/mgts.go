package mgts

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

	"golang.org/x/sync/errgroup"

	"github.com/user/isp-cabinet/pkg/isp"
)

const (
	baseURLCabinet = "https://lk.mgts.ru"
	baseURLLogin   = "https://login.mgts.ru"
	urlLogin       = baseURLLogin + "/amserver/UI/Login"
	urlAccountInfo = baseURLLogin + "/CustomerSelfCare2/account-status.aspx"

	requestTimeout = 30 * time.Second
	sessionTTL     = 20 * time.Minute
)

func init() {
	isp.Register(isp.Descriptor{
		Identifiers:  []string{"mgts", "mts"},
		Title:        "MGTS",
		ScanInterval: 2 * time.Hour,
		New:          func() isp.Connector { return New() },
	})
}

// Connector polls the MGTS personal cabinet. Login goes through the
// SSO form on login.mgts.ru; account data is spread over the cabinet
// home page and the account status page.
type Connector struct{}

func New() *Connector { return &Connector{} }

func (c *Connector) Capabilities() isp.Capabilities {
	return isp.Capabilities{
		DirectPaymentRequired:  true,
		DerivePaymentSuggested: true,
	}
}

func authHeaders() http.Header {
	h := http.Header{}
	h.Set("Referer", urlLogin)
	h.Set("Origin", baseURLLogin)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return h
}

var (
	loginFormRe  = regexp.MustCompile(`(?s)<form[^>]*id="login"[^>]*>(.*?)</form>`)
	inputRe      = regexp.MustCompile(`<input[^>]*name="([^"]*)"[^>]*value="([^"]*)"[^>]*>`)
	balanceRe    = regexp.MustCompile(`class="account-info_balance_value"[^>]*>\s*(-?\d[\d \x{00A0}]*(?:[.,]\d+)?)`)
	itemValueRe  = regexp.MustCompile(`class="account-info_item_value"[^>]*>([^<]+)<`)
	titleBlockRe = regexp.MustCompile(`(?s)class="account-info_title"[^>]*>(.*?)</div>`)
	titleWordRe  = regexp.MustCompile(`>([^<>]+)<`)
	widgetsRe    = regexp.MustCompile(`mgts\.data\.widgets\s*=\s*(\[[^;]+);`)
	rightCellRe  = regexp.MustCompile(`class="right"[^>]*>([^<]+)<`)
	commentRe    = regexp.MustCompile(`class="comment"[^>]*>([^<]+)<`)
)

func (c *Connector) Authenticate(ctx context.Context, creds isp.Credentials) (isp.Session, error) {
	sess := isp.NewCookieSession(requestTimeout, sessionTTL)

	page, err := sess.Get(ctx, urlLogin, authHeaders())
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	if page.StatusCode != http.StatusOK {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: fmt.Errorf("login page returned status %d", page.StatusCode)}
	}

	form, err := parseLoginForm(page.Body)
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	form.Set("IDToken1", creds.Username)
	form.Set("IDToken2", creds.Password)

	resp, err := sess.PostForm(ctx, urlLogin, form, authHeaders())
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	// The SSO endpoint answers a successful login with a redirect;
	// anything else means the credentials were not accepted.
	if resp.StatusCode != http.StatusFound {
		return nil, &isp.AuthError{Reason: isp.AuthInvalidCredentials}
	}

	sess.MarkEstablished()
	return sess, nil
}

func parseLoginForm(body string) (url.Values, error) {
	m := loginFormRe.FindStringSubmatch(body)
	if len(m) < 2 {
		return nil, errors.New("login form not found")
	}
	form := url.Values{}
	for _, in := range inputRe.FindAllStringSubmatch(m[1], -1) {
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
	mainHTML   string
	statusHTML string
}

func (c *Connector) Fetch(ctx context.Context, sess isp.Session) (isp.RawPayload, error) {
	s, ok := sess.(*isp.CookieSession)
	if !ok {
		return nil, fmt.Errorf("no cookie session: %w", isp.ErrSessionExpired)
	}

	var raw rawPayload
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		page, err := s.GetNoRedirect(ctx, baseURLCabinet, nil)
		if err != nil {
			return err
		}
		if page.StatusCode >= 300 && page.StatusCode < 400 {
			return fmt.Errorf("cabinet redirected to %s: %w", page.Location, isp.ErrSessionExpired)
		}
		if page.StatusCode != http.StatusOK {
			return fmt.Errorf("cabinet returned status %d: %w", page.StatusCode, isp.ErrSessionExpired)
		}
		raw.mainHTML = page.Body
		return nil
	})

	g.Go(func() error {
		page, err := s.Get(ctx, urlAccountInfo, nil)
		if err != nil {
			return err
		}
		if page.StatusCode != http.StatusOK {
			return &isp.ProtocolError{Field: "account_status", Reason: fmt.Sprintf("unexpected status %d", page.StatusCode)}
		}
		raw.statusHTML = page.Body
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Connector) Normalize(payload isp.RawPayload) (*isp.Snapshot, error) {
	raw, ok := payload.(rawPayload)
	if !ok {
		return nil, &isp.ProtocolError{Field: "payload", Reason: "unexpected type"}
	}

	snap := &isp.Snapshot{
		Currency:  isp.DefaultCurrency,
		FetchedAt: time.Now().UTC(),
	}

	// Contract code is the last account-info item on the home page.
	items := itemValueRe.FindAllStringSubmatch(raw.mainHTML, -1)
	if len(items) == 0 {
		return nil, &isp.ProtocolError{Field: "account_code", Reason: "missing"}
	}
	snap.AccountCode = strings.TrimSpace(items[len(items)-1][1])
	if snap.AccountCode == "" {
		return nil, &isp.ProtocolError{Field: "account_code", Reason: "missing"}
	}

	balance, ok := isp.ParseAmount(isp.FirstMatch(balanceRe, raw.mainHTML))
	if !ok {
		return nil, &isp.ProtocolError{Field: "current_balance", Reason: "unparseable"}
	}
	snap.CurrentBalance = balance

	if block := isp.FirstMatch(titleBlockRe, raw.mainHTML); block != "" {
		var parts []string
		for _, w := range titleWordRe.FindAllStringSubmatch(block, -1) {
			if t := strings.TrimSpace(w[1]); t != "" {
				parts = append(parts, capitalize(t))
			}
		}
		snap.ClientName = strings.Join(parts, " ")
	}

	if err := parseTariffWidget(raw.mainHTML, snap); err != nil {
		return nil, err
	}
	if err := parsePayments(raw.statusHTML, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// parseTariffWidget extracts the internet tariff from the JSON widget
// blob embedded in the cabinet home page.
func parseTariffWidget(body string, snap *isp.Snapshot) error {
	m := widgetsRe.FindStringSubmatch(body)
	if len(m) < 2 {
		return &isp.ProtocolError{Field: "tariff_name", Reason: "widgets blob missing"}
	}

	var widgets []struct {
		RelatedPageURL string `json:"relatedPageUrl"`
		Value          string `json:"value"`
	}
	if err := json.Unmarshal([]byte(m[1]), &widgets); err != nil {
		return &isp.ProtocolError{Field: "tariff_name", Reason: "widgets blob unparseable"}
	}

	for _, w := range widgets {
		if w.RelatedPageURL != "/internet/" {
			continue
		}
		parts := strings.SplitN(w.Value, "-", 2)
		snap.TariffName = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			speedParts := strings.Fields(strings.TrimSpace(parts[1]))
			if len(speedParts) >= 2 {
				if v, ok := isp.ParseAmount(speedParts[0]); ok {
					snap.TariffSpeed = isp.Float(v)
					snap.TariffSpeedUnit = speedParts[1]
				}
			}
		}
		return nil
	}
	return nil // no internet widget; tariff attributes stay absent
}

// parsePayments extracts the monthly cost and the outstanding payment
// from the payments table on the account status page. The cabinet
// prints the amount still owed as a negative number.
func parsePayments(body string, snap *isp.Snapshot) error {
	cells := rightCellRe.FindAllStringSubmatch(body, -1)
	if len(cells) < 2 {
		return &isp.ProtocolError{Field: "payment_required", Reason: "payments table missing"}
	}

	if v, ok := isp.ParseAmount(cells[0][1]); ok && v >= 0 {
		snap.TariffMonthlyCost = isp.Float(v)
	}

	due, ok := isp.ParseAmount(cells[len(cells)-1][1])
	if !ok {
		return &isp.ProtocolError{Field: "payment_required", Reason: "unparseable"}
	}
	required := -due
	if required < 0 {
		required = 0
	}
	snap.PaymentRequired = isp.Float(required)

	if comment := isp.FirstMatch(commentRe, body); comment != "" {
		fields := strings.Fields(comment)
		dateText := strings.TrimSuffix(fields[len(fields)-1], "г")
		if t, ok := isp.ParseRuDate(dateText); ok {
			snap.PaymentUntil = &t
		}
	}
	return nil
}

func capitalize(s string) string {
	r := []rune(strings.ToLower(s))
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
