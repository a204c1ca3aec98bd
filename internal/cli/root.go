package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/isp-cabinet/internal/config"

	// Register the supported ISP connectors.
	_ "github.com/user/isp-cabinet/pkg/isp/almatel"
	_ "github.com/user/isp-cabinet/pkg/isp/mgts"
	_ "github.com/user/isp-cabinet/pkg/isp/sevensky"
	_ "github.com/user/isp-cabinet/pkg/isp/skyen"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "ispcabinet",
		Short: "ISP cabinet poller",
		Long:  `Polls ISP web portals and exposes per-account balance and tariff state.`,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default "+config.DefaultPath+", env "+config.EnvConfigPath+")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Path(cfgFile))
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
