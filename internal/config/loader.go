package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/isp-cabinet/pkg/isp"
)

// Environment overrides, applied after the file is parsed.
const (
	EnvConfigPath  = "ISPCABINET_CONFIG"
	envListen      = "ISPCABINET_LISTEN"
	envStoreDriver = "ISPCABINET_STORE_DRIVER"
	envStoreDSN    = "ISPCABINET_STORE_DSN"
)

// DefaultPath is used when neither the flag nor EnvConfigPath names a
// config file.
const DefaultPath = "/etc/ispcabinet/config.yaml"

// Path resolves the config file path from an explicit flag value, the
// environment, or the default, in that order.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads a YAML config file, expands ${VAR} references and applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envListen); v != "" {
		c.API.Listen = v
	}
	if v := os.Getenv(envStoreDriver); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv(envStoreDSN); v != "" {
		c.Store.DSN = v
	}
}

// InvalidAccount is an account that cannot be scheduled.
type InvalidAccount struct {
	Account Account
	Err     error
}

// Partition splits the configured accounts into schedulable ones and
// ones referencing an unknown provider or missing credentials. Invalid
// accounts are reported, not scheduled; they never take the valid ones
// down with them.
func (c *Config) Partition() (valid []Account, invalid []InvalidAccount) {
	for _, a := range c.Accounts {
		if a.Username == "" {
			invalid = append(invalid, InvalidAccount{Account: a, Err: fmt.Errorf("account with isp %q has no username", a.ISP)})
			continue
		}
		if _, ok := isp.Resolve(a.ISP); !ok {
			invalid = append(invalid, InvalidAccount{Account: a, Err: &isp.UnknownProviderError{Identifier: a.ISP}})
			continue
		}
		valid = append(valid, a)
	}
	return valid, invalid
}
