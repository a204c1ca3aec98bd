package sevensky

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
	baseURLCabinet = "https://lk.seven-sky.net"
	urlLogin       = baseURLCabinet + "/ajax/login.jsp"
	urlMain        = baseURLCabinet + "/index.jsp"
	urlSettings    = baseURLCabinet + "/settings.jsp"

	requestTimeout = 30 * time.Second
	sessionTTL     = 30 * time.Minute
)

func init() {
	isp.Register(isp.Descriptor{
		Identifiers:  []string{"sevensky", "gorcom"},
		Title:        "SevenSky",
		ScanInterval: 2 * time.Hour,
		New:          func() isp.Connector { return New() },
	})
}

// Connector polls the SevenSky (Gorcom) cabinet: JSON login endpoint,
// account state on the index page, personal details on the settings
// page.
type Connector struct{}

func New() *Connector { return &Connector{} }

func (c *Connector) Capabilities() isp.Capabilities {
	// The index page shows a payment banner only when a payment is
	// actually due; otherwise the suggestion is derived.
	return isp.Capabilities{
		DirectPaymentRequired:  true,
		DerivePaymentSuggested: true,
	}
}

func (c *Connector) Authenticate(ctx context.Context, creds isp.Credentials) (isp.Session, error) {
	sess := isp.NewCookieSession(requestTimeout, sessionTTL)

	page, err := sess.Get(ctx, baseURLCabinet, nil)
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	if page.StatusCode != http.StatusOK {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: fmt.Errorf("cabinet returned status %d", page.StatusCode)}
	}

	form := url.Values{}
	form.Set("login", creds.Username)
	form.Set("password", creds.Password)

	resp, err := sess.PostForm(ctx, urlLogin, form, nil)
	if err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: fmt.Errorf("login returned status %d", resp.StatusCode)}
	}

	var result struct {
		Res bool `json:"res"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
		return nil, &isp.AuthError{Reason: isp.AuthUnknown, Err: errors.New("login response is not JSON")}
	}
	if !result.Res {
		return nil, &isp.AuthError{Reason: isp.AuthInvalidCredentials}
	}

	sess.MarkEstablished()
	return sess, nil
}

func (c *Connector) SessionValid(sess isp.Session) bool {
	s, ok := sess.(*isp.CookieSession)
	return ok && s.Valid()
}

type rawPayload struct {
	mainHTML     string
	settingsHTML string
}

func (c *Connector) Fetch(ctx context.Context, sess isp.Session) (isp.RawPayload, error) {
	s, ok := sess.(*isp.CookieSession)
	if !ok {
		return nil, fmt.Errorf("no cookie session: %w", isp.ErrSessionExpired)
	}

	hdr := http.Header{}
	hdr.Set("Referer", baseURLCabinet+"/login.jsp")

	var raw rawPayload
	g, ctx := errgroup.WithContext(ctx)

	fetch := func(rawURL string, dst *string) func() error {
		return func() error {
			page, err := s.GetNoRedirect(ctx, rawURL, hdr)
			if err != nil {
				return err
			}
			if page.StatusCode >= 300 && page.StatusCode < 400 {
				return fmt.Errorf("%s redirected to %s: %w", rawURL, page.Location, isp.ErrSessionExpired)
			}
			if page.StatusCode != http.StatusOK {
				return &isp.ProtocolError{Field: "page", Reason: fmt.Sprintf("%s returned status %d", rawURL, page.StatusCode)}
			}
			*dst = page.Body
			return nil
		}
	}

	g.Go(fetch(urlMain, &raw.mainHTML))
	g.Go(fetch(urlSettings, &raw.settingsHTML))

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return raw, nil
}

var (
	codeRe      = regexp.MustCompile(`(?s)id="info-header-1".*?№\s*([0-9]+)`)
	balanceRe   = regexp.MustCompile(`(?s)class="info-table-content".*?<span>([^<]+)</span>\s*<span>([^<]+)</span>`)
	requiredRe  = regexp.MustCompile(`(?s)class="block-message".*?<strong>[^0-9<]*([0-9]+(?:[.,][0-9]+)?)`)
	tariffRe    = regexp.MustCompile(`(?s)class="tarif".*?«([^»]+)»`)
	speedRe     = regexp.MustCompile(`(?s)class="tarif".*?до\s*([0-9]+)\s*([^\s<]+)`)
	priceRe     = regexp.MustCompile(`class="price"[^>]*>\s*([0-9]+(?:[.,][0-9]+)?)`)
	dataTableRe = regexp.MustCompile(`<tr>\s*<td>[^<]*</td>\s*<td>([^<]+)</td>\s*</tr>`)
)

func (c *Connector) Normalize(payload isp.RawPayload) (*isp.Snapshot, error) {
	raw, ok := payload.(rawPayload)
	if !ok {
		return nil, &isp.ProtocolError{Field: "payload", Reason: "unexpected type"}
	}

	snap := &isp.Snapshot{
		Currency:  isp.DefaultCurrency,
		FetchedAt: time.Now().UTC(),
	}

	snap.AccountCode = isp.FirstMatch(codeRe, raw.mainHTML)
	if snap.AccountCode == "" {
		return nil, &isp.ProtocolError{Field: "account_code", Reason: "missing"}
	}

	m := balanceRe.FindStringSubmatch(raw.mainHTML)
	if len(m) < 3 {
		return nil, &isp.ProtocolError{Field: "current_balance", Reason: "missing"}
	}
	balance, ok := isp.ParseAmount(m[1])
	if !ok {
		return nil, &isp.ProtocolError{Field: "current_balance", Reason: "unparseable"}
	}
	snap.CurrentBalance = balance
	if cur := strings.TrimSpace(m[2]); cur != "" {
		snap.Currency = cur
	}

	// Payment banner is only rendered when a top-up is due.
	if v, ok := isp.ParseAmount(isp.FirstMatch(requiredRe, raw.mainHTML)); ok {
		snap.PaymentRequired = isp.Float(v)
	}

	snap.TariffName = isp.FirstMatch(tariffRe, raw.mainHTML)
	if sm := speedRe.FindStringSubmatch(raw.mainHTML); len(sm) >= 3 {
		if v, ok := isp.ParseAmount(sm[1]); ok {
			snap.TariffSpeed = isp.Float(v)
			snap.TariffSpeedUnit = strings.TrimSpace(sm[2])
		}
	}
	if v, ok := isp.ParseAmount(isp.FirstMatch(priceRe, raw.mainHTML)); ok {
		snap.TariffMonthlyCost = isp.Float(v)
	}

	rows := dataTableRe.FindAllStringSubmatch(raw.settingsHTML, -1)
	if len(rows) >= 2 {
		snap.ClientName = strings.TrimSpace(rows[0][1])
		snap.Address = strings.TrimSpace(rows[1][1])
	}

	return snap, nil
}
