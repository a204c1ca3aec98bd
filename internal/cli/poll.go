package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/isp-cabinet/internal/cabinet"
	"github.com/user/isp-cabinet/pkg/isp"
)

func init() {
	pollCmd.Flags().Duration("timeout", 2*time.Minute, "per-account poll timeout")
	pollCmd.Flags().Bool("json", false, "print snapshots as JSON")
}

var pollCmd = &cobra.Command{
	Use:   "poll [account-id]",
	Short: "Poll configured accounts once and print the snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		asJSON, _ := cmd.Flags().GetBool("json")

		valid, invalid := cfg.Partition()
		for _, bad := range invalid {
			log.Error("skipping account", "isp", bad.Account.ISP, "username", bad.Account.Username, "error", bad.Err)
		}
		if len(args) == 1 {
			filtered := valid[:0]
			for _, a := range valid {
				if a.ID() == args[0] {
					filtered = append(filtered, a)
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("account %q is not configured", args[0])
			}
			valid = filtered
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		var failed int
		for _, account := range valid {
			desc, _ := isp.Resolve(account.ISP)
			poller := cabinet.NewPoller(account.ID(), desc, account.Credentials(), log)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			snap, err := poller.Poll(ctx)
			cancel()

			if err != nil {
				failed++
				log.Error("poll failed", "account", account.ID(), "class", string(isp.Classify(err)), "error", err)
				continue
			}
			if asJSON {
				if err := enc.Encode(snap); err != nil {
					return err
				}
				continue
			}
			printSnapshot(account.ID(), snap)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d accounts failed", failed, len(valid))
		}
		return nil
	},
}

func printSnapshot(accountID string, s *isp.Snapshot) {
	fmt.Printf("%s (account %s)\n", accountID, s.AccountCode)
	fmt.Printf("  balance: %.2f %s\n", s.CurrentBalance, s.Currency)
	if s.TariffName != "" {
		fmt.Printf("  tariff:  %s\n", s.TariffName)
	}
	if s.TariffSpeed != nil {
		fmt.Printf("  speed:   %g %s\n", *s.TariffSpeed, s.TariffSpeedUnit)
	}
	if s.TariffMonthlyCost != nil {
		fmt.Printf("  monthly: %.2f %s\n", *s.TariffMonthlyCost, s.Currency)
	}
	if s.PaymentRequired != nil {
		fmt.Printf("  payment required:  %.2f %s\n", *s.PaymentRequired, s.Currency)
	}
	if s.PaymentSuggested != nil {
		fmt.Printf("  payment suggested: %.2f %s\n", *s.PaymentSuggested, s.Currency)
	}
	if s.PaymentUntil != nil {
		fmt.Printf("  paid until: %s\n", s.PaymentUntil.Format("02.01.2006"))
	}
	if s.Bonuses != "" {
		fmt.Printf("  bonuses: %s\n", s.Bonuses)
	}
}
