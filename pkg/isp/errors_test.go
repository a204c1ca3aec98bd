package isp

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"auth", &AuthError{Reason: AuthInvalidCredentials}, FailureAuth},
		{"auth wrapped", fmt.Errorf("login: %w", &AuthError{Reason: AuthUnknown}), FailureAuth},
		{"session expired", fmt.Errorf("redirected: %w", ErrSessionExpired), FailureSessionExpired},
		{"transient", Transient(errors.New("connection refused")), FailureTransient},
		{"protocol", &ProtocolError{Field: "current_balance", Reason: "missing"}, FailureProtocol},
		{"unknown", errors.New("boom"), FailureUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("%s: Classify = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestClassifyAuthWinsOverExpired(t *testing.T) {
	// A failed re-authentication after an expiry must stay an auth
	// failure, not fall back to session_expired.
	err := &AuthError{Reason: AuthUnknown, Err: ErrSessionExpired}
	if got := Classify(err); got != FailureAuth {
		t.Errorf("Classify = %q, want %q", got, FailureAuth)
	}
}

func TestTransientNil(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) must be nil")
	}
}

func TestErrorMessages(t *testing.T) {
	e := &ProtocolError{Field: "account_code", Reason: "missing"}
	if e.Error() != `protocol error: field "account_code" missing` {
		t.Errorf("unexpected message %q", e.Error())
	}
	u := &UnknownProviderError{Identifier: "foonet"}
	if u.Error() != `unknown ISP provider "foonet"` {
		t.Errorf("unexpected message %q", u.Error())
	}
}
