package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Config controls how the store backend is opened.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Open constructs a Store based on the given configuration.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (Store, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		log.Info("store: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		log.Info("store: using gorm backend", "driver", drv)
		st, err := NewGorm(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("store migrate: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", drv)
	}
}
