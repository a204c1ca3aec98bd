package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/isp-cabinet/internal/alerting"
	"github.com/user/isp-cabinet/internal/api"
	"github.com/user/isp-cabinet/internal/auth"
	"github.com/user/isp-cabinet/internal/notification"
	"github.com/user/isp-cabinet/internal/scheduler"
	"github.com/user/isp-cabinet/internal/store"
)

const defaultListen = ":8742"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poller with the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		var watchers []scheduler.Watcher
		if cfg.Notify.Webhook.URL != "" {
			watchers = append(watchers, alerting.New(cfg.Notify.Webhook, log))
		}
		if cfg.Notify.Email.Provider != "" {
			watchers = append(watchers, notification.New(cfg.Notify.Email, log))
		}

		sup := scheduler.New(scheduler.Options{
			Store:       st,
			Log:         log,
			MinFailures: cfg.Notify.MinFailures,
			Watchers:    watchers,
		})
		defer sup.Stop()

		valid, invalid := cfg.Partition()
		for _, bad := range invalid {
			log.Error("account not scheduled", "isp", bad.Account.ISP, "username", bad.Account.Username, "error", bad.Err)
		}
		for _, account := range valid {
			if err := sup.Add(account); err != nil {
				log.Error("account not scheduled", "account", account.ID(), "error", err)
			}
		}

		authSvc, err := auth.NewService(cfg.API)
		if err != nil {
			return fmt.Errorf("auth setup: %w", err)
		}
		if !authSvc.Enabled() {
			log.Warn("API authentication disabled: no tokens or basic auth configured")
		}

		listen := cfg.API.Listen
		if listen == "" {
			listen = defaultListen
		}
		srv := &http.Server{
			Addr:    listen,
			Handler: api.NewServer(st, sup, authSvc, log).Mux(),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("ispcabinet listening", "addr", listen, "accounts", len(valid))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("server shutdown failed", "error", err)
			}
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	},
}
