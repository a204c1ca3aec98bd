package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/isp-cabinet/internal/migrate"
)

var (
	migrateDriver string
	migrateDSN    string
)

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrateDriver, "driver", "", "store driver (sqlite or postgres); defaults to the configured store")
	migrateCmd.PersistentFlags().StringVar(&migrateDSN, "dsn", "", "store DSN; defaults to the configured store")

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				driver, dsn, err := migrateTarget()
				if err != nil {
					return err
				}
				return migrate.Up(cmd.Context(), driver, dsn)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				driver, dsn, err := migrateTarget()
				if err != nil {
					return err
				}
				return migrate.Down(cmd.Context(), driver, dsn)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print migration status",
			RunE: func(cmd *cobra.Command, args []string) error {
				driver, dsn, err := migrateTarget()
				if err != nil {
					return err
				}
				return migrate.Status(cmd.Context(), driver, dsn)
			},
		},
	)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage store schema migrations",
}

// migrateTarget resolves driver and DSN from flags, falling back to
// the configured store.
func migrateTarget() (string, string, error) {
	driver, dsn := migrateDriver, migrateDSN
	if driver != "" {
		return driver, dsn, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", "", err
	}
	driver, dsn = cfg.Store.Driver, cfg.Store.DSN
	if driver == "" || driver == "memory" {
		return "", "", fmt.Errorf("store driver %q has no migrations; use --driver sqlite or postgres", driver)
	}
	return driver, dsn, nil
}
