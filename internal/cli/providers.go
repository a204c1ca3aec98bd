package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/isp-cabinet/pkg/isp"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the supported ISP providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, d := range isp.Providers() {
			fmt.Printf("%-20s %s (default interval %s)\n",
				strings.Join(d.Identifiers, ", "), d.Title, d.ScanInterval)
		}
		return nil
	},
}
