package isp

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// DefaultUserAgent is presented to portals that sniff for browsers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// NewHTTPClient creates an HTTP client with optional TLS configuration.
// Set skipTLSVerify to true for portals with misconfigured certificate
// chains (e.g., servers that don't send intermediate certificates).
func NewHTTPClient(timeout time.Duration, skipTLSVerify bool) *http.Client {
	transport := &http.Transport{}

	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Page is one fetched portal page.
type Page struct {
	StatusCode int
	Body       string
	// Location holds the redirect target for 3xx responses fetched
	// without following redirects.
	Location string
}

// CookieSession is the cookie-jar based Session shared by the portal
// connectors: an HTTP client bound to one account's authenticated
// cookies, plus a heuristic expiry hint.
type CookieSession struct {
	client     *http.Client
	noRedirect *http.Client
	userAgent  string

	establishedAt time.Time
	ttl           time.Duration
}

// NewCookieSession creates an unauthenticated cookie session. The ttl
// is the heuristic session lifetime used by Valid; zero disables the
// local expiry check.
func NewCookieSession(timeout, ttl time.Duration) *CookieSession {
	return newCookieSession(timeout, ttl, false)
}

// NewInsecureCookieSession is NewCookieSession without certificate
// verification, for portals with broken chains or plain HTTP cabinets.
func NewInsecureCookieSession(timeout, ttl time.Duration) *CookieSession {
	return newCookieSession(timeout, ttl, true)
}

func newCookieSession(timeout, ttl time.Duration, insecure bool) *CookieSession {
	jar, _ := cookiejar.New(nil)

	client := NewHTTPClient(timeout, insecure)
	client.Jar = jar

	noRedirect := NewHTTPClient(timeout, insecure)
	noRedirect.Jar = jar
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &CookieSession{
		client:     client,
		noRedirect: noRedirect,
		userAgent:  DefaultUserAgent,
		ttl:        ttl,
	}
}

// MarkEstablished records a successful login, starting the ttl clock.
func (s *CookieSession) MarkEstablished() {
	s.establishedAt = time.Now()
}

// Valid reports whether the session looks usable without a network
// call. False negatives are tolerated; the portal has the last word.
func (s *CookieSession) Valid() bool {
	if s.establishedAt.IsZero() {
		return false
	}
	if s.ttl <= 0 {
		return true
	}
	return time.Since(s.establishedAt) < s.ttl
}

// Get fetches a page following redirects.
func (s *CookieSession) Get(ctx context.Context, rawURL string, hdr http.Header) (*Page, error) {
	return s.do(ctx, s.client, http.MethodGet, rawURL, "", hdr)
}

// GetNoRedirect fetches a page without following redirects, so a
// 302-to-login can be recognized as an expired session.
func (s *CookieSession) GetNoRedirect(ctx context.Context, rawURL string, hdr http.Header) (*Page, error) {
	return s.do(ctx, s.noRedirect, http.MethodGet, rawURL, "", hdr)
}

// PostForm submits a form without following redirects; login endpoints
// signal their outcome in the immediate response.
func (s *CookieSession) PostForm(ctx context.Context, rawURL string, form url.Values, hdr http.Header) (*Page, error) {
	return s.do(ctx, s.noRedirect, http.MethodPost, rawURL, form.Encode(), hdr)
}

func (s *CookieSession) do(ctx context.Context, client *http.Client, method, rawURL, body string, hdr http.Header) (*Page, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", s.userAgent)
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		// Timeouts and transport failures are retryable by contract.
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(err)
	}

	return &Page{
		StatusCode: resp.StatusCode,
		Body:       string(b),
		Location:   resp.Header.Get("Location"),
	}, nil
}
