package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"golang.org/x/crypto/bcrypt"

	"github.com/user/isp-cabinet/internal/config"
)

// Identity is an authenticated API caller.
type Identity struct {
	Name string
	Role string
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates API callers against the configured tokens and
// enforces role permissions with Casbin.
type Service struct {
	tokens   map[string]Identity // sha256 hex digest -> identity
	basic    config.BasicAuthConfig
	enforcer *casbin.Enforcer
}

func NewService(cfg config.APIConfig) (*Service, error) {
	m, err := model.NewModelFromString(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	// Admin can do everything.
	e.AddPolicy("admin", "*", "*")
	// Editor manages accounts and triggers refreshes.
	e.AddPolicy("editor", "accounts", "read")
	e.AddPolicy("editor", "accounts", "write")
	e.AddPolicy("editor", "refresh", "write")
	e.AddPolicy("editor", "providers", "read")
	// Viewer can only read.
	e.AddPolicy("viewer", "accounts", "read")
	e.AddPolicy("viewer", "providers", "read")

	tokens := make(map[string]Identity, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if t.SHA256 == "" {
			continue
		}
		tokens[t.SHA256] = Identity{Name: t.Name, Role: t.Role}
	}

	return &Service{tokens: tokens, basic: cfg.Basic, enforcer: e}, nil
}

// Enabled reports whether any credential is configured. With none, the
// API runs open; suitable only behind a trusted network boundary.
func (s *Service) Enabled() bool {
	return len(s.tokens) > 0 || s.basic.Username != ""
}

// ValidateToken resolves a raw bearer token via its sha256 digest.
func (s *Service) ValidateToken(rawToken string) (Identity, error) {
	sum := sha256.Sum256([]byte(rawToken))
	id, ok := s.tokens[hex.EncodeToString(sum[:])]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	return id, nil
}

// ValidateBasic checks a basic auth pair against the bcrypt hash in
// the configuration.
func (s *Service) ValidateBasic(username, password string) (Identity, error) {
	if s.basic.Username == "" {
		return Identity{}, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.basic.Username)) != 1 {
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.basic.PasswordBcrypt), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	role := s.basic.Role
	if role == "" {
		role = "viewer"
	}
	return Identity{Name: s.basic.Username, Role: role}, nil
}

func (s *Service) Enforce(role, obj, act string) (bool, error) {
	return s.enforcer.Enforce(role, obj, act)
}

// HashToken returns the sha256 hex digest stored in the configuration
// for a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashPassword returns a bcrypt hash for the basic auth password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
