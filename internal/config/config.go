package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/user/isp-cabinet/internal/store"
	"github.com/user/isp-cabinet/pkg/isp"
)

// MinScanInterval is the floor for fixed polling intervals; portals do
// not appreciate being hammered.
const MinScanInterval = time.Minute

// Config is the root configuration.
type Config struct {
	Accounts []Account    `yaml:"accounts"`
	Store    store.Config `yaml:"store"`
	API      APIConfig    `yaml:"api"`
	Notify   NotifyConfig `yaml:"notify"`
}

// Account configures one portal account.
type Account struct {
	ISP          string       `yaml:"isp"`
	Username     string       `yaml:"username"`
	Password     string       `yaml:"password"`
	ScanInterval ScanInterval `yaml:"scan_interval"`
}

// ID is the account's stable key: provider identifier plus username.
func (a Account) ID() string { return a.ISP + ":" + a.Username }

// Credentials returns the portal credentials of the account.
func (a Account) Credentials() isp.Credentials {
	return isp.Credentials{Username: a.Username, Password: a.Password}
}

// APIConfig configures the optional HTTP surface.
type APIConfig struct {
	Listen string          `yaml:"listen"`
	Tokens []TokenConfig   `yaml:"tokens"`
	Basic  BasicAuthConfig `yaml:"basic_auth"`
}

// TokenConfig is one API bearer token, stored as its sha256 hex digest.
type TokenConfig struct {
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	SHA256 string `yaml:"sha256"`
}

// BasicAuthConfig is an optional HTTP basic auth identity; the
// password is stored as a bcrypt hash (see the token hash command).
type BasicAuthConfig struct {
	Username       string `yaml:"username"`
	PasswordBcrypt string `yaml:"password_bcrypt"`
	Role           string `yaml:"role"`
}

// NotifyConfig configures failure notifications.
type NotifyConfig struct {
	Email   EmailConfig   `yaml:"email"`
	Webhook WebhookConfig `yaml:"webhook"`

	// MinFailures is how many consecutive failures an account needs
	// before it counts as needing attention.
	MinFailures int `yaml:"min_failures"`
}

// EmailConfig selects and configures an email sender.
type EmailConfig struct {
	Provider string   `yaml:"provider"` // "smtp" or "sendgrid"
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	APIKey   string   `yaml:"api_key"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// WebhookConfig configures webhook alerting.
type WebhookConfig struct {
	URL  string `yaml:"url"`
	Type string `yaml:"type"` // "slack", "discord" or "generic"
}

// ScanInterval is a polling schedule. It accepts four YAML forms:
// plain seconds (21600), a components mapping ({hours: 6}), a duration
// string ("6h"), or a standard cron expression ("0 */6 * * *").
type ScanInterval struct {
	// Every is the fixed interval; zero when unset or cron-based.
	Every time.Duration

	// Cron is the cron expression; empty for fixed intervals.
	Cron string
}

func (s ScanInterval) IsZero() bool { return s.Every == 0 && s.Cron == "" }

// Duration returns the effective fixed interval, applying the
// fallback when unset and the minimum clamp always.
func (s ScanInterval) Duration(fallback time.Duration) time.Duration {
	d := s.Every
	if d == 0 {
		d = fallback
	}
	if d < MinScanInterval {
		d = MinScanInterval
	}
	return d
}

// ParseScanInterval parses the scalar string forms: a Go duration
// ("6h") or a standard cron expression ("0 */6 * * *").
func ParseScanInterval(s string) (ScanInterval, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return ScanInterval{Every: d}, nil
	}
	if _, err := cron.ParseStandard(s); err == nil {
		return ScanInterval{Cron: s}, nil
	}
	return ScanInterval{}, fmt.Errorf("scan_interval: %q is neither a duration nor a cron expression", s)
}

type intervalComponents struct {
	Hours   int `yaml:"hours"`
	Minutes int `yaml:"minutes"`
	Seconds int `yaml:"seconds"`
}

func (s *ScanInterval) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var c intervalComponents
		if err := node.Decode(&c); err != nil {
			return fmt.Errorf("scan_interval: %w", err)
		}
		s.Every = time.Duration(c.Hours)*time.Hour +
			time.Duration(c.Minutes)*time.Minute +
			time.Duration(c.Seconds)*time.Second
		return nil

	case yaml.ScalarNode:
		var secs int
		if err := node.Decode(&secs); err == nil {
			s.Every = time.Duration(secs) * time.Second
			return nil
		}
		var str string
		if err := node.Decode(&str); err != nil {
			return fmt.Errorf("scan_interval: %w", err)
		}
		parsed, err := ParseScanInterval(str)
		if err != nil {
			return fmt.Errorf("scan_interval: %q is neither seconds, a duration nor a cron expression", str)
		}
		*s = parsed
		return nil

	default:
		return fmt.Errorf("scan_interval: unexpected YAML node kind %d", node.Kind)
	}
}
